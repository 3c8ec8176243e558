// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// LINE BUFFER
// =============================================================================

// DefaultBufferCapacity is the number of terminal lines retained for context.
const DefaultBufferCapacity = 100

// DefaultMinContextLines is the lowest line count SetMaxLines accepts.
const DefaultMinContextLines = 10

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// DefaultCharsPerToken is the approximate number of characters per token.
// Token counts derived from it are estimates, never exact.
const DefaultCharsPerToken = 4.0

// DefaultTiktokenEncoding is the encoding used when the real tokenizer
// backs the estimator.
const DefaultTiktokenEncoding = "cl100k_base"

// DefaultModelContextWindow is the assumed context window for models the
// registry does not know.
const DefaultModelContextWindow = 8192

// =============================================================================
// CONTEXT CACHE
// =============================================================================

// DefaultCacheTTL is how long a formatted context entry stays servable.
const DefaultCacheTTL = 300 * time.Second

// DefaultCacheMaxEntries bounds the cache size before LRU eviction.
const DefaultCacheMaxEntries = 256

// DefaultCacheSweepInterval is the frequency of the expired-entry sweeper.
const DefaultCacheSweepInterval = 5 * time.Minute

// =============================================================================
// RETRY AND BACKOFF
// =============================================================================

// DefaultMaxRetries is the attempt limit for provider calls.
const DefaultMaxRetries = 3

// RetryBackoffBase is the first retry delay; it doubles per attempt.
const RetryBackoffBase = 1000 * time.Millisecond

// RetryJitterMax bounds the random component added to every retry delay.
const RetryJitterMax = 1000 * time.Millisecond

// =============================================================================
// PROVIDER CALLS
// =============================================================================

// DefaultRequestTimeout is the per-attempt deadline for single-shot
// completion calls. Streams are bounded by the caller's context instead.
const DefaultRequestTimeout = 60 * time.Second

// DefaultMaxTokens is the completion budget when a request does not set one.
const DefaultMaxTokens = 1024

// DefaultTemperature is the sampling temperature when unset.
const DefaultTemperature = 0.7

// MaxErrorBodyLogLen limits provider error bodies in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// =============================================================================
// FEED SERVER
// =============================================================================

// DefaultFeedListen is the local address of the terminal feed endpoint.
const DefaultFeedListen = "127.0.0.1:18080"

// DefaultEventQueueSize is the per-connection buffer for pushed events.
// Events beyond it are dropped; delivery is best-effort.
const DefaultEventQueueSize = 64

// DefaultServerWriteTimeout for the feed HTTP server (safe for long pushes).
const DefaultServerWriteTimeout = 10 * time.Minute

// DefaultServerReadTimeout for the feed HTTP server.
const DefaultServerReadTimeout = 30 * time.Second

// =============================================================================
// MONITORING
// =============================================================================

// DefaultTelemetryFile is the JSONL event log filename under the state dir.
const DefaultTelemetryFile = "telemetry.jsonl"

// DefaultUsageDBFile is the SQLite usage database filename under the state dir.
const DefaultUsageDBFile = "usage.db"
