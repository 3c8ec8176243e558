package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pairadmin/terminal-gateway/internal/events"
)

func TestMetricsCountersFollowEvents(t *testing.T) {
	bus := events.NewBus()
	mc := NewMetricsCollector()
	unsub := mc.Observe(bus)
	defer unsub()

	bus.Publish(events.Event{Kind: events.KindRequestSent})
	bus.Publish(events.Event{Kind: events.KindRequestSent})
	bus.Publish(events.Event{
		Kind:        events.KindResponseReceived,
		Attempt:     3,
		InputTokens: 100, OutputTokens: 20, DurationMs: 250,
	})
	bus.Publish(events.Event{Kind: events.KindErrorOccurred, Attempt: 2})
	bus.Publish(events.Event{Kind: events.KindChunkReceived})
	bus.Publish(events.Event{Kind: events.KindChunkReceived})
	bus.Publish(events.Event{
		Kind:           events.KindContextTruncated,
		OriginalTokens: 1000, TruncatedTokens: 400,
	})

	stats := mc.Stats()
	assert.Equal(t, int64(2), stats["requests"])
	assert.Equal(t, int64(1), stats["successes"])
	assert.Equal(t, int64(1), stats["failures"])
	assert.Equal(t, int64(3), stats["retries"]) // two extra attempts + one extra
	assert.Equal(t, int64(2), stats["chunks"])
	assert.Equal(t, int64(1), stats["truncations"])
}

func TestMetricsTokenStats(t *testing.T) {
	bus := events.NewBus()
	mc := NewMetricsCollector()
	mc.Observe(bus)

	bus.Publish(events.Event{Kind: events.KindResponseReceived, Attempt: 1, InputTokens: 60, OutputTokens: 15})
	bus.Publish(events.Event{Kind: events.KindResponseReceived, Attempt: 1, InputTokens: 40, OutputTokens: 5})
	bus.Publish(events.Event{Kind: events.KindContextTruncated, OriginalTokens: 800, TruncatedTokens: 600})

	tokens := mc.TokenStats()
	assert.Equal(t, int64(100), tokens.InputTokens)
	assert.Equal(t, int64(20), tokens.OutputTokens)
	assert.Equal(t, int64(800), tokens.OriginalTokens)
	assert.Equal(t, int64(600), tokens.TruncatedTokens)
	assert.InDelta(t, 25.0, tokens.TrimPercent, 0.001)
}

func TestMetricsTrimPercentZeroWithoutTruncations(t *testing.T) {
	mc := NewMetricsCollector()
	assert.Zero(t, mc.TokenStats().TrimPercent)
}

func TestMetricsFullStats(t *testing.T) {
	bus := events.NewBus()
	mc := NewMetricsCollector()
	mc.Observe(bus)

	bus.Publish(events.Event{Kind: events.KindRequestSent})
	bus.Publish(events.Event{Kind: events.KindResponseReceived, Attempt: 2, InputTokens: 10, OutputTokens: 2, DurationMs: 120})
	bus.Publish(events.Event{Kind: events.KindResponseReceived, Attempt: 1, InputTokens: 30, OutputTokens: 6, DurationMs: 80})

	full := mc.FullStats()
	assert.Equal(t, "0m", full.Uptime)
	assert.NotEmpty(t, full.StartedAt)
	assert.Equal(t, int64(1), full.Requests.Total)
	assert.Equal(t, int64(2), full.Requests.Successful)
	assert.Zero(t, full.Requests.Failed)
	assert.Equal(t, int64(1), full.Requests.Retries)
	assert.Equal(t, int64(100), full.Requests.AvgLatencyMs)
	assert.Equal(t, int64(40), full.Tokens.InputTokens)
	assert.Equal(t, int64(8), full.Tokens.OutputTokens)
	assert.Zero(t, full.Streaming.Chunks)
	assert.Zero(t, full.Truncation.Operations)
}

func TestMetricsAvgLatencyZeroWithoutSuccesses(t *testing.T) {
	mc := NewMetricsCollector()
	assert.Zero(t, mc.FullStats().Requests.AvgLatencyMs)
}

func TestMetricsUnsubscribeStopsCounting(t *testing.T) {
	bus := events.NewBus()
	mc := NewMetricsCollector()
	unsub := mc.Observe(bus)

	bus.Publish(events.Event{Kind: events.KindRequestSent})
	unsub()
	bus.Publish(events.Event{Kind: events.KindRequestSent})

	assert.Equal(t, int64(1), mc.Stats()["requests"])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m", formatDuration(30*time.Second))
	assert.Equal(t, "5m", formatDuration(5*time.Minute))
	assert.Equal(t, "2h 15m", formatDuration(2*time.Hour+15*time.Minute))
	assert.Equal(t, "3d 4h 0m", formatDuration(3*24*time.Hour+4*time.Hour))
}
