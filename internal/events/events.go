// Package events carries the pipeline's observable notifications.
//
// DESIGN: Collaborators (telemetry, metrics, the feed server, UIs) register
// callbacks on a Bus instead of polling. Delivery is synchronous and
// best-effort: handlers must return quickly and never block, and a slow or
// missing subscriber never affects the request that produced the event.
// Events of one kind for one request are delivered in production order.
package events

import "time"

// Kind names one observable notification type.
type Kind string

const (
	KindRequestSent      Kind = "request_sent"
	KindResponseReceived Kind = "response_received"
	KindChunkReceived    Kind = "chunk_received"
	KindErrorOccurred    Kind = "error_occurred"
	KindContextTruncated Kind = "context_truncated"
)

// Event is one pipeline notification. Fields beyond Kind and Time are
// populated per kind; unused fields marshal away under omitempty.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`

	// Request/response details
	Attempt      int   `json:"attempt,omitempty"`
	InputTokens  int   `json:"input_tokens,omitempty"`
	OutputTokens int   `json:"output_tokens,omitempty"`
	DurationMs   int64 `json:"duration_ms,omitempty"`
	ChunkIndex   int   `json:"chunk_index,omitempty"`
	ContentLen   int   `json:"content_len,omitempty"`

	// Truncation details
	OriginalTokens  int    `json:"original_tokens,omitempty"`
	TruncatedTokens int    `json:"truncated_tokens,omitempty"`
	Reason          string `json:"reason,omitempty"`

	// Failure details
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
