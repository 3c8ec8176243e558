// Package monitoring - types.go defines the telemetry record shapes.
//
// DESIGN: Records are built from bus events and written as JSONL, one object
// per line. Defined here ONCE so the tracker, the usage store, and tests
// share a single vocabulary.
//
// TYPES:
//   - RequestRecord:    One finished completion request (success or failure)
//   - TruncationRecord: One context truncation performed by the engine
//   - TelemetryConfig:  Tracker settings
package monitoring

import "time"

// RequestRecord captures one completion request at the moment it finishes.
type RequestRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model,omitempty"`
	Attempts     int       `json:"attempts"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	DurationMs   int64     `json:"duration_ms,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Retryable    bool      `json:"retryable,omitempty"`
}

// TruncationRecord captures one context truncation.
type TruncationRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	Model           string    `json:"model,omitempty"`
	OriginalTokens  int       `json:"original_tokens"`
	TruncatedTokens int       `json:"truncated_tokens"`
	Reason          string    `json:"reason"`
}

// TelemetryConfig contains tracker configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}
