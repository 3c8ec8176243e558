package termctx

import (
	"math"
	"strings"

	"github.com/pairadmin/terminal-gateway/internal/config"
)

// Estimator converts text to an approximate token count. Results are
// estimates by contract; callers must never treat them as exact.
type Estimator interface {
	Estimate(text string) int
}

// HeuristicEstimator divides character count by a configurable ratio.
type HeuristicEstimator struct {
	ratio float64
}

// NewHeuristicEstimator creates an estimator with the given characters-per-
// token ratio. Non-positive ratios fall back to the default.
func NewHeuristicEstimator(charsPerToken float64) *HeuristicEstimator {
	if charsPerToken <= 0 {
		charsPerToken = config.DefaultCharsPerToken
	}
	return &HeuristicEstimator{ratio: charsPerToken}
}

// Estimate returns ceil(len(text)/ratio). Blank text estimates to zero.
func (e *HeuristicEstimator) Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / e.ratio))
}

var _ Estimator = (*HeuristicEstimator)(nil)
