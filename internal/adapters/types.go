// Package adapters isolates vendor-specific completion APIs from the gateway.
//
// DESIGN: Every provider implements the Adapter interface:
//   - Configure/ValidateConfig: commit or dry-run per-provider settings
//   - Complete:                 one request, one response
//   - StreamComplete:           lazy pull-based chunk sequence (Stream)
//   - metadata:                 models, context windows, streaming support
//
// All types shared by adapters and the gateway are defined here. Failures
// surface as *ProviderError (errors.go) carrying the retryable flag the
// retry coordinator branches on.
package adapters

import (
	"context"
	"time"
)

// =============================================================================
// PROVIDER IDS
// =============================================================================

// Provider identifies one LLM vendor integration.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderBedrock   Provider = "bedrock"
	ProviderOllama    Provider = "ollama"
	ProviderUnknown   Provider = "unknown"
)

// String returns the provider name.
func (p Provider) String() string {
	return string(p)
}

// ProviderFromString converts a string to a Provider type.
func ProviderFromString(s string) Provider {
	switch s {
	case "anthropic":
		return ProviderAnthropic
	case "openai":
		return ProviderOpenAI
	case "bedrock":
		return ProviderBedrock
	case "ollama":
		return ProviderOllama
	default:
		return ProviderUnknown
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds per-provider settings. Exactly one validated Config is active
// per provider; the gateway stores them and adapters copy what they need at
// Configure time.
type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	Endpoint    string // Empty = provider default.
	Region      string // Bedrock only.
	Temperature float64
	TopP        float64
	MaxTokens   int
	MaxRetries  int
	Timeout     time.Duration
}

// =============================================================================
// REQUEST / RESPONSE
// =============================================================================

// Role tags who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry in a completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is one assembled model call. Validated by the gateway
// before dispatch and treated as immutable afterwards.
type CompletionRequest struct {
	// RequestID correlates telemetry and events; the gateway fills it when empty.
	RequestID string

	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int

	// Context carries pre-assembled terminal grounding, injected as a leading
	// system message. When empty the gateway asks the context engine for
	// recent lines; SkipContext suppresses that.
	Context     string
	SkipContext bool
}

// UsageInfo holds token usage extracted from an API response.
type UsageInfo struct {
	InputTokens              int
	OutputTokens             int
	TotalTokens              int
	CacheCreationInputTokens int // Anthropic: tokens written to cache
	CacheReadInputTokens     int // Anthropic: tokens read from cache
}

// CompletionResponse is the final output of a single-shot completion.
type CompletionResponse struct {
	Content      string
	Model        string
	Provider     Provider
	FinishReason string
	Usage        UsageInfo
}

// StreamingChunk is one incremental unit of a streamed completion.
// Usage is typically attached only to the final chunk.
type StreamingChunk struct {
	Content      string
	FinishReason string
	Usage        *UsageInfo
}

// Stream is a lazy pull-based chunk sequence. Recv blocks until the next
// chunk is available and returns io.EOF once the stream is complete. A
// stream is not restartable; a fresh StreamComplete call starts a new one.
type Stream interface {
	Recv() (StreamingChunk, error)
	Close() error
}

// =============================================================================
// ADAPTER INTERFACE
// =============================================================================

// Adapter is the vendor abstraction the gateway drives. Implementations must
// be safe for concurrent calls after Configure.
type Adapter interface {
	// Name returns the provider id this adapter serves.
	Name() Provider

	// ValidateConfig checks a configuration without committing it.
	ValidateConfig(cfg Config) error

	// Configure validates and commits a configuration.
	Configure(cfg Config) error

	// IsConfigured reports whether a configuration has been committed.
	IsConfigured() bool

	// Complete executes one completion call.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// StreamComplete starts a streaming completion call.
	StreamComplete(ctx context.Context, req *CompletionRequest) (Stream, error)

	// EstimateTokens approximates the token count of text for this provider.
	EstimateTokens(text string) int

	// SupportedModels lists models this adapter knows about.
	SupportedModels() []string

	// DefaultModel returns the model used when a request names none.
	DefaultModel() string

	// SupportsStreaming reports whether StreamComplete is usable.
	SupportsStreaming() bool

	// MaxContextForModel returns the model's context window in tokens.
	MaxContextForModel(model string) int

	// TestConnection verifies the provider is reachable with the committed
	// configuration. nil means reachable.
	TestConnection(ctx context.Context) error
}
