package adapters

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/pairadmin/terminal-gateway/internal/config"
	"github.com/pairadmin/terminal-gateway/internal/termctx"
)

// baseAdapter holds the committed configuration and shared plumbing every
// vendor adapter needs: an HTTP client bound to the configured timeout and
// a token estimator for EstimateTokens.
type baseAdapter struct {
	provider Provider

	mu         sync.RWMutex
	cfg        Config
	configured bool
	client     *http.Client

	estimator termctx.Estimator
}

func newBaseAdapter(provider Provider) baseAdapter {
	return baseAdapter{
		provider:  provider,
		estimator: termctx.NewHeuristicEstimator(0),
	}
}

// Name returns the provider id this adapter serves.
func (b *baseAdapter) Name() Provider { return b.provider }

// IsConfigured reports whether Configure committed a configuration.
func (b *baseAdapter) IsConfigured() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.configured
}

// EstimateTokens approximates the token count of text.
func (b *baseAdapter) EstimateTokens(text string) int {
	return b.estimator.Estimate(text)
}

// config returns a copy of the committed configuration.
func (b *baseAdapter) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// httpClient returns the client built at Configure time, or a default one
// so test helpers can call adapters without configuring.
func (b *baseAdapter) httpClient() *http.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.client != nil {
		return b.client
	}
	return http.DefaultClient
}

// commit stores a validated configuration and rebuilds the HTTP client.
// Callers validate before committing.
func (b *baseAdapter) commit(cfg Config) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
		cfg.Timeout = timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = config.DefaultMaxRetries
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = config.DefaultMaxTokens
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	b.configured = true
	b.client = &http.Client{Timeout: timeout}
}

// fillRequestDefaults resolves the effective model and sampling parameters
// for a request from the committed configuration.
func (b *baseAdapter) fillRequestDefaults(req *CompletionRequest, defaultModel string) (model string, temperature, topP float64, maxTokens int) {
	cfg := b.config()

	model = req.Model
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		model = defaultModel
	}

	temperature = req.Temperature
	if temperature == 0 {
		temperature = cfg.Temperature
	}
	topP = req.TopP
	if topP == 0 {
		topP = cfg.TopP
	}
	maxTokens = req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}
	return model, temperature, topP, maxTokens
}

// errNotConfigured is the failure for calls made before Configure.
func (b *baseAdapter) errNotConfigured() *ProviderError {
	return NewProviderError(b.provider, "adapter is not configured", false)
}

// timeoutOr wraps ctx-related failures: a deadline hit becomes a retryable
// timeout, everything else stays a generic transport failure.
func (b *baseAdapter) timeoutOr(err error, message string) *ProviderError {
	if isDeadline(err) {
		return NewTimeoutError(b.provider, message, err)
	}
	pe := NewProviderError(b.provider, message+": "+err.Error(), true)
	pe.Err = err
	return pe
}

func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
