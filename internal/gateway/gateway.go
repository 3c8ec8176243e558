// Package gateway dispatches completion requests to the active provider.
//
// DESIGN: Request flow through Send/SendStreaming:
//   - capture:  snapshot the active adapter + config (in-flight calls keep
//     the adapter they captured; switching providers affects later calls)
//   - validate: normalize defaults, then reject malformed requests outright
//   - ground:   inject recent terminal context as a leading system message
//     (best effort, never aborts the request)
//   - dispatch: drive the adapter through the retry coordinator (retry.go);
//     streams restart from scratch with redelivery suppressed (stream.go)
//
// The registry and per-provider configuration map sit behind one RWMutex;
// Send holds it only long enough to snapshot, so calls never serialize on
// the gateway itself.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pairadmin/terminal-gateway/internal/adapters"
	"github.com/pairadmin/terminal-gateway/internal/config"
	"github.com/pairadmin/terminal-gateway/internal/events"
	"github.com/pairadmin/terminal-gateway/internal/termctx"
	"github.com/pairadmin/terminal-gateway/internal/utils"
)

// contextPreamble introduces injected terminal grounding so the model knows
// what the lines are.
const contextPreamble = "Recent terminal output:\n"

// ContextSource supplies terminal grounding for requests that carry none.
// *termctx.Engine implements it.
type ContextSource interface {
	GetTruncatedContext(requestBudget int) termctx.TruncationResult
}

// Gateway owns the provider registry and turns assembled requests into
// completions. Safe for concurrent use.
type Gateway struct {
	engine ContextSource
	bus    *events.Bus

	mu       sync.RWMutex
	registry map[adapters.Provider]adapters.Adapter
	configs  map[adapters.Provider]adapters.Config
	active   adapters.Provider

	// sleep is swappable so retry tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithContextSource attaches the engine used for context injection.
func WithContextSource(src ContextSource) Option {
	return func(g *Gateway) { g.engine = src }
}

// WithEvents attaches the notification bus.
func WithEvents(bus *events.Bus) Option {
	return func(g *Gateway) { g.bus = bus }
}

// New creates an empty gateway.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		registry: make(map[adapters.Provider]adapters.Adapter),
		configs:  make(map[adapters.Provider]adapters.Config),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// =============================================================================
// REGISTRY
// =============================================================================

// RegisterProvider adds an adapter to the registry. Registering the same
// provider id twice is rejected.
func (g *Gateway) RegisterProvider(adapter adapters.Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter must not be nil")
	}
	id := adapter.Name()

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.registry[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}
	g.registry[id] = adapter

	log.Debug().Str("provider", id.String()).Msg("Provider registered")
	return nil
}

// ConfigureProvider validates and commits a configuration for a registered
// provider. The stored configuration drives retry limits and request
// defaults for that provider.
func (g *Gateway) ConfigureProvider(cfg adapters.Config) error {
	g.mu.RLock()
	adapter, ok := g.registry[cfg.Provider]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, cfg.Provider)
	}

	// Dry-run first so an invalid configuration never half-applies.
	if err := adapter.ValidateConfig(cfg); err != nil {
		return err
	}
	if err := adapter.Configure(cfg); err != nil {
		return err
	}

	g.mu.Lock()
	g.configs[cfg.Provider] = cfg
	g.mu.Unlock()

	evt := log.Info().
		Str("provider", cfg.Provider.String()).
		Str("model", cfg.Model)
	if cfg.APIKey != "" {
		evt = evt.Str("api_key", utils.MaskKeyShort(cfg.APIKey))
	}
	evt.Msg("Provider configured")
	return nil
}

// SetActiveProvider selects the provider Send dispatches to. The provider
// must be registered and configured.
func (g *Gateway) SetActiveProvider(id adapters.Provider) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	adapter, ok := g.registry[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	if !adapter.IsConfigured() {
		return fmt.Errorf("%w: %s", ErrProviderNotConfigured, id)
	}
	g.active = id

	log.Info().Str("provider", id.String()).Msg("Active provider set")
	return nil
}

// ActiveProvider returns the currently selected provider id, or false when
// none is active.
func (g *Gateway) ActiveProvider() (adapters.Provider, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active, g.active != ""
}

// ProviderInfo describes one registered provider for status surfaces.
type ProviderInfo struct {
	ID           adapters.Provider `json:"id"`
	Model        string            `json:"model,omitempty"`
	DefaultModel string            `json:"default_model"`
	Configured   bool              `json:"configured"`
	Active       bool              `json:"active"`
	Streaming    bool              `json:"streaming"`
}

// Providers lists registered providers sorted by id.
func (g *Gateway) Providers() []ProviderInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]ProviderInfo, 0, len(g.registry))
	for id, adapter := range g.registry {
		info := ProviderInfo{
			ID:           id,
			DefaultModel: adapter.DefaultModel(),
			Configured:   adapter.IsConfigured(),
			Active:       id == g.active,
			Streaming:    adapter.SupportsStreaming(),
		}
		if cfg, ok := g.configs[id]; ok {
			info.Model = cfg.Model
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TestProvider verifies a registered provider is reachable.
func (g *Gateway) TestProvider(ctx context.Context, id adapters.Provider) error {
	g.mu.RLock()
	adapter, ok := g.registry[id]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return adapter.TestConnection(ctx)
}

// snapshotActive captures the active adapter and its configuration. In-flight
// requests finish against this snapshot even if the active provider changes.
func (g *Gateway) snapshotActive() (adapters.Adapter, adapters.Config, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.active == "" {
		return nil, adapters.Config{}, ErrNoActiveProvider
	}
	adapter := g.registry[g.active]
	return adapter, g.configs[g.active], nil
}

// =============================================================================
// SEND
// =============================================================================

// Send executes one completion request against the active provider,
// retrying transient failures with exponential backoff.
func (g *Gateway) Send(ctx context.Context, req *adapters.CompletionRequest) (*adapters.CompletionResponse, error) {
	adapter, cfg, err := g.snapshotActive()
	if err != nil {
		return nil, err
	}

	prepared, err := g.prepare(req, adapter, cfg)
	if err != nil {
		return nil, err
	}

	g.bus.Publish(events.Event{
		Kind:        events.KindRequestSent,
		RequestID:   prepared.RequestID,
		Provider:    adapter.Name().String(),
		Model:       prepared.Model,
		InputTokens: adapter.EstimateTokens(promptText(prepared)),
	})

	start := time.Now()
	resp, attempt, err := g.completeWithRetry(ctx, adapter, cfg, prepared)
	if err != nil {
		g.publishError(prepared.RequestID, adapter.Name(), prepared.Model, attempt, err)
		return nil, err
	}

	g.bus.Publish(events.Event{
		Kind:         events.KindResponseReceived,
		RequestID:    prepared.RequestID,
		Provider:     adapter.Name().String(),
		Model:        resp.Model,
		Attempt:      attempt,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		DurationMs:   time.Since(start).Milliseconds(),
	})
	return resp, nil
}

// SendStreaming starts one streaming completion against the active provider.
// The returned stream retries transient failures by restarting the upstream
// call; content delivered before a restart is not redelivered.
func (g *Gateway) SendStreaming(ctx context.Context, req *adapters.CompletionRequest) (adapters.Stream, error) {
	adapter, cfg, err := g.snapshotActive()
	if err != nil {
		return nil, err
	}
	if !adapter.SupportsStreaming() {
		return nil, fmt.Errorf("%w: %s", ErrStreamingUnsupported, adapter.Name())
	}

	prepared, err := g.prepare(req, adapter, cfg)
	if err != nil {
		return nil, err
	}

	g.bus.Publish(events.Event{
		Kind:        events.KindRequestSent,
		RequestID:   prepared.RequestID,
		Provider:    adapter.Name().String(),
		Model:       prepared.Model,
		InputTokens: adapter.EstimateTokens(promptText(prepared)),
	})

	return g.newRetryingStream(ctx, adapter, cfg, prepared), nil
}

// =============================================================================
// REQUEST PREPARATION
// =============================================================================

// prepare normalizes, validates, and grounds one request. The caller's
// struct is never mutated; the returned copy is what gets dispatched.
func (g *Gateway) prepare(req *adapters.CompletionRequest, adapter adapters.Adapter, cfg adapters.Config) (*adapters.CompletionRequest, error) {
	if req == nil {
		return nil, &adapters.ConfigurationError{Field: "request", Reason: "must not be nil"}
	}

	out := *req
	if out.RequestID == "" {
		out.RequestID = uuid.NewString()
	}
	if out.Model == "" {
		out.Model = adapter.DefaultModel()
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = cfg.MaxTokens
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = config.DefaultMaxTokens
	}

	if err := validateRequest(&out); err != nil {
		return nil, err
	}

	g.injectContext(&out, adapter)
	return &out, nil
}

// validateRequest rejects malformed requests before any provider call.
// Failures are configuration errors and are never retried.
func validateRequest(req *adapters.CompletionRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return &adapters.ConfigurationError{Field: "model", Reason: "must not be empty"}
	}
	if len(req.Messages) == 0 {
		return &adapters.ConfigurationError{Field: "messages", Reason: "must not be empty"}
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return &adapters.ConfigurationError{Field: "temperature", Reason: "must be within [0,2]"}
	}
	if req.TopP < 0 || req.TopP > 1 {
		return &adapters.ConfigurationError{Field: "top_p", Reason: "must be within [0,1]"}
	}
	if req.MaxTokens <= 0 {
		return &adapters.ConfigurationError{Field: "max_tokens", Reason: "must be > 0"}
	}
	return nil
}

// injectContext prepends terminal grounding as a system message. Explicit
// request context wins; otherwise the engine supplies up to half the
// completion budget worth of recent lines. Best effort: a request is never
// aborted because grounding could not be assembled.
func (g *Gateway) injectContext(req *adapters.CompletionRequest, adapter adapters.Adapter) {
	if req.SkipContext {
		return
	}

	content := req.Context
	if content == "" {
		if g.engine == nil {
			return
		}
		result := g.engine.GetTruncatedContext(req.MaxTokens / 2)
		content = result.Content
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	messages := make([]adapters.Message, 0, len(req.Messages)+1)
	messages = append(messages, adapters.Message{
		Role:    adapters.RoleSystem,
		Content: contextPreamble + content,
	})
	messages = append(messages, req.Messages...)
	req.Messages = messages

	log.Debug().
		Str("request_id", req.RequestID).
		Int("context_len", len(content)).
		Msg("Injected terminal context")
}

// promptText flattens a request's messages for token estimation.
func promptText(req *adapters.CompletionRequest) string {
	var b strings.Builder
	for _, msg := range req.Messages {
		b.WriteString(msg.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// publishError emits the terminal failure notification for one request.
func (g *Gateway) publishError(requestID string, provider adapters.Provider, model string, attempt int, err error) {
	g.bus.Publish(events.Event{
		Kind:      events.KindErrorOccurred,
		RequestID: requestID,
		Provider:  provider.String(),
		Model:     model,
		Attempt:   attempt,
		Error:     err.Error(),
		Retryable: adapters.IsRetryable(err),
	})
}
