package termctx

import (
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pairadmin/terminal-gateway/internal/config"
	"github.com/pairadmin/terminal-gateway/internal/events"
)

// TruncationReason names the constraint that forced a truncation.
type TruncationReason string

const (
	ReasonNone       TruncationReason = "none"
	ReasonTokenLimit TruncationReason = "token_limit"
	ReasonLineLimit  TruncationReason = "line_limit"
	ReasonModelLimit TruncationReason = "model_limit"
	ReasonUserLimit  TruncationReason = "user_limit"
)

// TruncationResult reports how context was fitted to a token budget.
// Produced per request, never persisted.
type TruncationResult struct {
	Content         string
	OriginalTokens  int
	TruncatedTokens int
	LinesKept       int
	WasTruncated    bool
	Reason          TruncationReason
}

// Engine composes the line buffer, cache, estimator, and sizing policy into
// the context operations the gateway consumes.
type Engine struct {
	buf       *LineBuffer
	estimator Estimator
	bus       *events.Bus

	mu        sync.Mutex
	policy    Policy
	model     string
	modelMax  int
	cache     Cache // active cache, swapped by SetCacheEnabled
	realCache Cache
	maxLines  int // default line count for GetContext
	minLines  int // floor enforced by SetMaxLines
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCapacity sets the line buffer capacity.
func WithCapacity(n int) EngineOption {
	return func(e *Engine) { e.buf = NewLineBuffer(n) }
}

// WithEstimator replaces the token estimator.
func WithEstimator(est Estimator) EngineOption {
	return func(e *Engine) {
		if est != nil {
			e.estimator = est
		}
	}
}

// WithCache replaces the context cache.
func WithCache(c Cache) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
			e.realCache = c
		}
	}
}

// WithPolicy sets the initial sizing policy. Invalid policies are ignored
// in favor of the default; use SetPolicy to observe validation errors.
func WithPolicy(p Policy) EngineOption {
	return func(e *Engine) {
		if p.Validate() == nil {
			e.policy = p
		}
	}
}

// WithModel sets the initial model and its context ceiling.
func WithModel(model string, maxContext int) EngineOption {
	return func(e *Engine) {
		e.model = model
		e.modelMax = maxContext
	}
}

// WithEvents attaches the notification bus.
func WithEvents(bus *events.Bus) EngineOption {
	return func(e *Engine) { e.bus = bus }
}

// WithMinContextLines sets the floor SetMaxLines enforces.
func WithMinContextLines(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.minLines = n
		}
	}
}

// NewEngine builds an engine with a default buffer, heuristic estimator,
// TTL cache, and Auto sizing policy. Options override each piece.
func NewEngine(opts ...EngineOption) *Engine {
	cache := Cache(NewTTLCache(0, 0))
	e := &Engine{
		buf:       NewLineBuffer(0),
		estimator: NewHeuristicEstimator(0),
		cache:     cache,
		realCache: cache,
		policy:    Policy{Mode: ModeAuto},
		minLines:  config.DefaultMinContextLines,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxLines <= 0 {
		e.maxLines = e.buf.Cap()
	}
	return e
}

// AddLine appends one line of terminal output and invalidates cached
// context so no stale formatting is ever served.
func (e *Engine) AddLine(line string) {
	e.buf.Append(line)
	e.activeCache().InvalidateAll()
}

// Clear empties the buffer and the cache.
func (e *Engine) Clear() {
	e.buf.Clear()
	e.activeCache().InvalidateAll()
}

// GetContext returns the last maxLines lines joined by newlines, serving
// from cache when the buffer has not changed. maxLines <= 0 uses the
// engine's default.
func (e *Engine) GetContext(maxLines int) string {
	if maxLines <= 0 {
		e.mu.Lock()
		maxLines = e.maxLines
		e.mu.Unlock()
	}

	key := cacheKey(maxLines)
	cache := e.activeCache()
	if content, ok := cache.Get(key); ok {
		return content
	}

	content := strings.Join(e.buf.LastN(maxLines), "\n")
	cache.Put(key, content)
	return content
}

// GetEstimatedTokenCount estimates the token size of the full buffered
// context.
func (e *Engine) GetEstimatedTokenCount() int {
	return e.estimator.Estimate(e.fullContext())
}

// WillTruncate reports whether GetTruncatedContext would truncate for the
// given request budget, without truncating or raising a notification.
func (e *Engine) WillTruncate(requestBudget int) bool {
	effectiveMax, _, _ := e.effectiveBudget(requestBudget)
	content := e.fullContext()
	if content == "" {
		return false
	}
	return e.estimator.Estimate(content) > effectiveMax
}

// GetTruncatedContext fits the buffered context into the smaller of the
// policy target and the request budget. When the context already fits it is
// returned untouched; otherwise the oldest lines are dropped first and a
// context-truncated notification is published.
func (e *Engine) GetTruncatedContext(requestBudget int) TruncationResult {
	effectiveMax, modelMax, policy := e.effectiveBudget(requestBudget)

	lines := e.buf.LastN(0)
	content := strings.Join(lines, "\n")
	current := e.estimator.Estimate(content)

	result := TruncationResult{
		Content:         content,
		OriginalTokens:  current,
		TruncatedTokens: current,
		LinesKept:       len(lines),
		Reason:          ReasonNone,
	}
	// An empty context always fits; this also guards the per-line division.
	if len(lines) == 0 || current <= effectiveMax {
		return result
	}

	tokensPerLine := current / len(lines)
	if tokensPerLine < 1 {
		tokensPerLine = 1
	}
	targetLines := effectiveMax / tokensPerLine

	reason := ReasonTokenLimit
	if effectiveMax >= modelMax {
		reason = ReasonModelLimit
	} else if policy.boundByUserMax(effectiveMax) {
		reason = ReasonUserLimit
	}
	if policy.MaxLines > 0 && targetLines > policy.MaxLines {
		targetLines = policy.MaxLines
		reason = ReasonLineLimit
	}
	if targetLines > len(lines) {
		targetLines = len(lines)
	}

	// The per-line average can undershoot when line lengths are skewed;
	// drop further oldest lines until the estimate honors the budget.
	kept := lines[len(lines)-targetLines:]
	truncated := strings.Join(kept, "\n")
	estimate := e.estimator.Estimate(truncated)
	for estimate > effectiveMax && targetLines > 0 {
		targetLines--
		kept = lines[len(lines)-targetLines:]
		truncated = strings.Join(kept, "\n")
		estimate = e.estimator.Estimate(truncated)
	}

	result.Content = truncated
	result.TruncatedTokens = estimate
	result.LinesKept = targetLines
	result.WasTruncated = true
	result.Reason = reason

	log.Debug().
		Int("original_tokens", current).
		Int("truncated_tokens", estimate).
		Int("lines_kept", targetLines).
		Str("reason", string(reason)).
		Msg("Context truncated to fit budget")

	e.bus.Publish(events.Event{
		Kind:            events.KindContextTruncated,
		Model:           e.activeModel(),
		OriginalTokens:  current,
		TruncatedTokens: estimate,
		Reason:          string(reason),
	})
	return result
}

// SetPolicy atomically replaces the sizing policy. Invalid policies are
// rejected whole; the previous policy stays in effect.
func (e *Engine) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
	return nil
}

// Policy returns the current sizing policy.
func (e *Engine) Policy() Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// SetModel records the active model and its context ceiling. A non-positive
// maxContext falls back to the model registry.
func (e *Engine) SetModel(model string, maxContext int) {
	if maxContext <= 0 {
		maxContext = ContextWindowFor(model)
	}
	e.mu.Lock()
	e.model = model
	e.modelMax = maxContext
	e.mu.Unlock()
}

// SetMaxLines changes the default line count served by GetContext.
// Values below the configured minimum are rejected.
func (e *Engine) SetMaxLines(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n < e.minLines {
		return &SizingError{Field: "max_lines", Reason: "must be at least " + strconv.Itoa(e.minLines)}
	}
	e.maxLines = n
	return nil
}

// MaxLines returns the default line count served by GetContext.
func (e *Engine) MaxLines() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxLines
}

// SetCacheEnabled switches between the real cache and the no-op cache.
// Disabling drops all stored entries.
func (e *Engine) SetCacheEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if enabled {
		e.cache = e.realCache
		return
	}
	e.realCache.InvalidateAll()
	e.cache = NoopCache{}
}

// CacheStats reports the active cache's counters.
func (e *Engine) CacheStats() CacheStats {
	return e.activeCache().Stats()
}

// BufferLen returns the number of buffered lines.
func (e *Engine) BufferLen() int { return e.buf.Len() }

// BufferCap returns the buffer capacity.
func (e *Engine) BufferCap() int { return e.buf.Cap() }

// SizingError reports a rejected engine setting.
type SizingError struct {
	Field  string
	Reason string
}

func (e *SizingError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// effectiveBudget resolves the binding token budget: the policy target for
// the active model, lowered by the request budget when one is given.
func (e *Engine) effectiveBudget(requestBudget int) (effectiveMax, modelMax int, policy Policy) {
	e.mu.Lock()
	policy = e.policy
	model := e.model
	modelMax = e.modelMax
	e.mu.Unlock()

	if modelMax <= 0 {
		modelMax = ContextWindowFor(model)
	}
	effectiveMax = policy.TargetSize(model, modelMax)
	if requestBudget > 0 && requestBudget < effectiveMax {
		effectiveMax = requestBudget
	}
	return effectiveMax, modelMax, policy
}

func (e *Engine) fullContext() string {
	return strings.Join(e.buf.LastN(0), "\n")
}

func (e *Engine) activeCache() Cache {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache
}

func (e *Engine) activeModel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

func cacheKey(maxLines int) string {
	return "context_" + strconv.Itoa(maxLines)
}
