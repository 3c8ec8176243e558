// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters fed by the notification bus:
//   - requests/successes/failures: Completion request outcomes
//   - retries:                     Extra attempts beyond the first
//   - chunks:                      Streamed chunks delivered to callers
//   - truncations:                 Context truncations performed
//   - tokens:                      Billed input/output and truncation totals
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pairadmin/terminal-gateway/internal/events"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	// Request counters
	requests  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	retries   atomic.Int64
	chunks    atomic.Int64

	// Truncation counters
	truncations          atomic.Int64
	totalOriginalTokens  atomic.Int64
	totalTruncatedTokens atomic.Int64

	// Token usage counters (from API responses, actual billed counts)
	totalInputTokens  atomic.Int64
	totalOutputTokens atomic.Int64

	// Latency accumulator for successful requests
	totalDurationMs atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startedAt: time.Now(),
	}
}

// Observe subscribes the collector to the notification bus. The returned
// function removes the subscription.
func (mc *MetricsCollector) Observe(bus *events.Bus) (unsubscribe func()) {
	return bus.SubscribeAll(mc.handle)
}

// handle updates counters for one event. Runs on the publishing goroutine,
// so it only touches atomics.
func (mc *MetricsCollector) handle(ev events.Event) {
	switch ev.Kind {
	case events.KindRequestSent:
		mc.requests.Add(1)
	case events.KindResponseReceived:
		mc.successes.Add(1)
		if ev.Attempt > 1 {
			mc.retries.Add(int64(ev.Attempt - 1))
		}
		mc.totalInputTokens.Add(int64(ev.InputTokens))
		mc.totalOutputTokens.Add(int64(ev.OutputTokens))
		mc.totalDurationMs.Add(ev.DurationMs)
	case events.KindErrorOccurred:
		mc.failures.Add(1)
		if ev.Attempt > 1 {
			mc.retries.Add(int64(ev.Attempt - 1))
		}
	case events.KindChunkReceived:
		mc.chunks.Add(1)
	case events.KindContextTruncated:
		mc.truncations.Add(1)
		mc.totalOriginalTokens.Add(int64(ev.OriginalTokens))
		mc.totalTruncatedTokens.Add(int64(ev.TruncatedTokens))
	}
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current metrics as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":    mc.requests.Load(),
		"successes":   mc.successes.Load(),
		"failures":    mc.failures.Load(),
		"retries":     mc.retries.Load(),
		"chunks":      mc.chunks.Load(),
		"truncations": mc.truncations.Load(),
	}
}

// TokenStats returns token usage metrics.
func (mc *MetricsCollector) TokenStats() TokenStatsData {
	original := mc.totalOriginalTokens.Load()
	truncated := mc.totalTruncatedTokens.Load()

	var trimPercent float64
	if original > 0 {
		trimPercent = float64(original-truncated) / float64(original) * 100
	}

	return TokenStatsData{
		InputTokens:     mc.totalInputTokens.Load(),
		OutputTokens:    mc.totalOutputTokens.Load(),
		OriginalTokens:  original,
		TruncatedTokens: truncated,
		TrimPercent:     trimPercent,
	}
}

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)
	requests := mc.requests.Load()
	successes := mc.successes.Load()
	failures := mc.failures.Load()
	durationMs := mc.totalDurationMs.Load()

	var avgLatencyMs int64
	if successes > 0 {
		avgLatencyMs = durationMs / successes
	}

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:        requests,
			Successful:   successes,
			Failed:       failures,
			Retries:      mc.retries.Load(),
			AvgLatencyMs: avgLatencyMs,
		},
		Tokens: mc.TokenStats(),
		Streaming: StreamingStats{
			Chunks: mc.chunks.Load(),
		},
		Truncation: TruncationStats{
			Operations: mc.truncations.Load(),
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string          `json:"uptime"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartedAt     string          `json:"started_at"`
	Requests      RequestStats    `json:"requests"`
	Tokens        TokenStatsData  `json:"tokens"`
	Streaming     StreamingStats  `json:"streaming"`
	Truncation    TruncationStats `json:"truncation"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total        int64 `json:"total"`
	Successful   int64 `json:"successful"`
	Failed       int64 `json:"failed"`
	Retries      int64 `json:"retries"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

// TokenStatsData holds token usage metrics.
type TokenStatsData struct {
	InputTokens     int64   `json:"input_tokens"`
	OutputTokens    int64   `json:"output_tokens"`
	OriginalTokens  int64   `json:"original_tokens"`
	TruncatedTokens int64   `json:"truncated_tokens"`
	TrimPercent     float64 `json:"trim_percent"`
}

// StreamingStats holds streaming delivery metrics.
type StreamingStats struct {
	Chunks int64 `json:"chunks"`
}

// TruncationStats holds context truncation metrics.
type TruncationStats struct {
	Operations int64 `json:"operations"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
