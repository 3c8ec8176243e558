package termctx

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/pairadmin/terminal-gateway/internal/config"
)

// TiktokenEstimator counts tokens with a real BPE encoding. Loading the
// encoding is deferred to the first Estimate call; if it fails (the encoding
// registry may need network access on first use), the estimator logs once
// and falls back to the heuristic for the rest of the process.
type TiktokenEstimator struct {
	encoding string
	fallback Estimator

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenEstimator creates an estimator for the named encoding.
// An empty name selects the default encoding; a nil fallback gets the
// default heuristic.
func NewTiktokenEstimator(encoding string, fallback Estimator) *TiktokenEstimator {
	if encoding == "" {
		encoding = config.DefaultTiktokenEncoding
	}
	if fallback == nil {
		fallback = NewHeuristicEstimator(0)
	}
	return &TiktokenEstimator{encoding: encoding, fallback: fallback}
}

// Estimate returns the tokenized length of text, or the heuristic estimate
// when the encoding is unavailable. Blank text estimates to zero.
func (e *TiktokenEstimator) Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			log.Warn().
				Err(err).
				Str("encoding", e.encoding).
				Msg("Tokenizer unavailable, using heuristic token estimates")
			return
		}
		e.enc = enc
	})

	if e.enc == nil {
		return e.fallback.Estimate(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}

var _ Estimator = (*TiktokenEstimator)(nil)
