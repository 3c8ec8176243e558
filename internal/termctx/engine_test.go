package termctx

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairadmin/terminal-gateway/internal/events"
)

// lineCountEstimator charges a flat token price per line, making truncation
// arithmetic exact in tests.
type lineCountEstimator struct{ perLine int }

func (e lineCountEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return e.perLine * (strings.Count(text, "\n") + 1)
}

func fillLines(e *Engine, n int) []string {
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line := fmt.Sprintf("line-%03d", i)
		e.AddLine(line)
		lines = append(lines, line)
	}
	return lines
}

func TestGetContextJoinsNewestLines(t *testing.T) {
	e := NewEngine(WithCapacity(10))
	fillLines(e, 4)

	assert.Equal(t, "line-002\nline-003", e.GetContext(2))
	// The default count is the buffer capacity.
	assert.Equal(t, strings.Join([]string{"line-000", "line-001", "line-002", "line-003"}, "\n"), e.GetContext(0))
	assert.Equal(t, 4, e.BufferLen())
	assert.Equal(t, 10, e.BufferCap())
}

func TestGetContextServesFromCacheUntilMutation(t *testing.T) {
	e := NewEngine(WithCapacity(10))
	fillLines(e, 3)

	first := e.GetContext(5)
	second := e.GetContext(5)
	assert.Equal(t, first, second)

	stats := e.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	// Any mutation invalidates; the next read recomputes.
	e.AddLine("fresh")
	third := e.GetContext(5)
	assert.True(t, strings.HasSuffix(third, "fresh"))
	assert.Equal(t, int64(2), e.CacheStats().Misses)
}

func TestClearEmptiesBufferAndCache(t *testing.T) {
	e := NewEngine(WithCapacity(10))
	fillLines(e, 3)
	_ = e.GetContext(3)

	e.Clear()

	assert.Equal(t, 0, e.BufferLen())
	assert.Equal(t, "", e.GetContext(3))
	assert.Equal(t, 0, e.GetEstimatedTokenCount())
}

func TestTruncationKeepsNewestLinesWithinBudget(t *testing.T) {
	// 100 lines at 10 tokens each; a 400-token request budget keeps the
	// newest 40 lines.
	e := NewEngine(
		WithCapacity(200),
		WithEstimator(lineCountEstimator{perLine: 10}),
		WithModel("mystery-model", 100000),
	)
	lines := fillLines(e, 100)

	res := e.GetTruncatedContext(400)

	require.True(t, res.WasTruncated)
	assert.Equal(t, 1000, res.OriginalTokens)
	assert.Equal(t, 400, res.TruncatedTokens)
	assert.Equal(t, 40, res.LinesKept)
	assert.Equal(t, ReasonTokenLimit, res.Reason)
	assert.Equal(t, strings.Join(lines[60:], "\n"), res.Content)
}

func TestTruncationReturnsContextUntouchedWhenItFits(t *testing.T) {
	e := NewEngine(
		WithCapacity(50),
		WithEstimator(lineCountEstimator{perLine: 10}),
		WithModel("mystery-model", 100000),
	)
	lines := fillLines(e, 5)

	res := e.GetTruncatedContext(1000)

	assert.False(t, res.WasTruncated)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.Equal(t, strings.Join(lines, "\n"), res.Content)
	assert.Equal(t, res.OriginalTokens, res.TruncatedTokens)
	assert.Equal(t, 5, res.LinesKept)
}

func TestTruncationOnEmptyBufferFits(t *testing.T) {
	e := NewEngine(WithCapacity(10))

	res := e.GetTruncatedContext(100)

	assert.False(t, res.WasTruncated)
	assert.Equal(t, "", res.Content)
	assert.Equal(t, 0, res.OriginalTokens)
	assert.Equal(t, 0, res.LinesKept)
}

func TestTruncationIsIdempotent(t *testing.T) {
	e := NewEngine(
		WithCapacity(200),
		WithEstimator(lineCountEstimator{perLine: 10}),
		WithModel("mystery-model", 100000),
	)
	fillLines(e, 100)

	first := e.GetTruncatedContext(400)
	second := e.GetTruncatedContext(400)

	// Truncation never mutates the buffer, so repeating it is a no-op.
	assert.Equal(t, first, second)
	assert.Equal(t, 100, e.BufferLen())
}

// The per-line average undershoots on skewed input; the result must honor
// the budget anyway and always be a suffix of the buffer.
func TestTruncationSoundOnSkewedLineLengths(t *testing.T) {
	est := NewHeuristicEstimator(4)
	e := NewEngine(
		WithCapacity(300),
		WithEstimator(est),
		WithModel("mystery-model", 1000000),
	)

	var all []string
	for i := 0; i < 200; i++ {
		line := fmt.Sprintf("%d", i)
		if i%7 == 0 {
			line = strings.Repeat("x", 400) // occasional huge line
		}
		e.AddLine(line)
		all = append(all, line)
	}
	full := strings.Join(all, "\n")

	for _, budget := range []int{50, 200, 1000, 5000} {
		res := e.GetTruncatedContext(budget)
		assert.LessOrEqual(t, est.Estimate(res.Content), budget, "budget %d", budget)
		if res.Content != "" {
			assert.True(t, strings.HasSuffix(full, res.Content), "budget %d: result must be the newest lines", budget)
		}
	}
}

func TestTruncationReasonAttribution(t *testing.T) {
	newEngine := func(p Policy, modelMax int) *Engine {
		e := NewEngine(
			WithCapacity(200),
			WithEstimator(lineCountEstimator{perLine: 10}),
			WithPolicy(p),
			WithModel("mystery-model", modelMax),
		)
		fillLines(e, 100) // 1000 tokens
		return e
	}

	t.Run("line limit wins over token math", func(t *testing.T) {
		e := newEngine(Policy{Mode: ModeAuto, MaxLines: 5}, 100000)
		res := e.GetTruncatedContext(400)
		assert.Equal(t, ReasonLineLimit, res.Reason)
		assert.Equal(t, 5, res.LinesKept)
	})

	t.Run("model window is the binding constraint", func(t *testing.T) {
		e := newEngine(Policy{Mode: ModeAuto}, 500)
		res := e.GetTruncatedContext(0)
		assert.Equal(t, ReasonModelLimit, res.Reason)
		assert.Equal(t, 50, res.LinesKept)
	})

	t.Run("user token cap is the binding constraint", func(t *testing.T) {
		e := newEngine(Policy{Mode: ModeFixed, FixedSize: 10000, MaxTokens: 300}, 100000)
		res := e.GetTruncatedContext(0)
		assert.Equal(t, ReasonUserLimit, res.Reason)
		assert.Equal(t, 30, res.LinesKept)
	})
}

func TestTruncationPublishesNotification(t *testing.T) {
	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe(events.KindContextTruncated, func(ev events.Event) {
		got = append(got, ev)
	})

	e := NewEngine(
		WithCapacity(200),
		WithEstimator(lineCountEstimator{perLine: 10}),
		WithModel("mystery-model", 100000),
		WithEvents(bus),
	)
	fillLines(e, 100)

	// Probing never notifies.
	assert.True(t, e.WillTruncate(400))
	assert.Empty(t, got)

	res := e.GetTruncatedContext(400)
	require.Len(t, got, 1)
	assert.Equal(t, res.OriginalTokens, got[0].OriginalTokens)
	assert.Equal(t, res.TruncatedTokens, got[0].TruncatedTokens)
	assert.Equal(t, string(ReasonTokenLimit), got[0].Reason)
	assert.Equal(t, "mystery-model", got[0].Model)
}

func TestTruncationWithoutBusIsSafe(t *testing.T) {
	e := NewEngine(
		WithCapacity(50),
		WithEstimator(lineCountEstimator{perLine: 10}),
		WithModel("mystery-model", 100000),
	)
	fillLines(e, 20)

	assert.NotPanics(t, func() { e.GetTruncatedContext(50) })
}

func TestWillTruncateAgreesWithTruncation(t *testing.T) {
	e := NewEngine(
		WithCapacity(200),
		WithEstimator(lineCountEstimator{perLine: 10}),
		WithModel("mystery-model", 100000),
	)
	fillLines(e, 100)

	for _, budget := range []int{100, 999, 1000, 1001, 5000} {
		will := e.WillTruncate(budget)
		did := e.GetTruncatedContext(budget).WasTruncated
		assert.Equal(t, did, will, "budget %d", budget)
	}
}

func TestSetPolicyRejectsInvalidWholesale(t *testing.T) {
	e := NewEngine()
	valid := Policy{Mode: ModeFixed, FixedSize: 2000}
	require.NoError(t, e.SetPolicy(valid))

	err := e.SetPolicy(Policy{Mode: ModeFixed, FixedSize: -1})
	require.Error(t, err)

	// The previous policy stays in effect.
	assert.Equal(t, valid, e.Policy())
}

func TestSetMaxLinesEnforcesFloor(t *testing.T) {
	e := NewEngine(WithCapacity(100), WithMinContextLines(10))

	err := e.SetMaxLines(5)
	require.Error(t, err)
	var sizingErr *SizingError
	require.ErrorAs(t, err, &sizingErr)
	assert.Equal(t, "max_lines", sizingErr.Field)
	assert.Equal(t, 100, e.MaxLines())

	require.NoError(t, e.SetMaxLines(25))
	assert.Equal(t, 25, e.MaxLines())
}

func TestSetCacheEnabledSwitchesToNoop(t *testing.T) {
	e := NewEngine(WithCapacity(10))
	fillLines(e, 3)

	_ = e.GetContext(5)
	_ = e.GetContext(5)
	assert.Equal(t, int64(1), e.CacheStats().Hits)

	e.SetCacheEnabled(false)
	assert.Equal(t, CacheStats{}, e.CacheStats())

	// Reads still work, they just bypass the cache.
	assert.Equal(t, "line-000\nline-001\nline-002", e.GetContext(5))
	assert.Equal(t, CacheStats{}, e.CacheStats())

	// Re-enabling starts from an empty cache but keeps prior counters.
	e.SetCacheEnabled(true)
	_ = e.GetContext(5)
	stats := e.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestSetModelResolvesWindowFromRegistry(t *testing.T) {
	e := NewEngine(
		WithCapacity(200),
		WithEstimator(lineCountEstimator{perLine: 10}),
	)
	fillLines(e, 100) // 1000 tokens

	// gpt-4 resolves to an 8192 window with a 4000-token grounding budget,
	// so 1000 tokens fit.
	e.SetModel("gpt-4", 0)
	assert.False(t, e.WillTruncate(0))

	// An explicit ceiling overrides the registry.
	e.SetModel("gpt-4", 300)
	res := e.GetTruncatedContext(0)
	assert.True(t, res.WasTruncated)
	assert.Equal(t, ReasonModelLimit, res.Reason)
}
