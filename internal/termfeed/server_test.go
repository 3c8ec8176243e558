package termfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairadmin/terminal-gateway/internal/events"
	"github.com/pairadmin/terminal-gateway/internal/gateway"
	"github.com/pairadmin/terminal-gateway/internal/monitoring"
	"github.com/pairadmin/terminal-gateway/internal/termctx"
)

type feedFixture struct {
	srv     *Server
	engine  *termctx.Engine
	bus     *events.Bus
	metrics *monitoring.MetricsCollector
	ts      *httptest.Server
}

// newFeedFixture assembles a feed server over a fresh pipeline, with metrics
// subscribed the way the daemon wires them.
func newFeedFixture(t *testing.T, opts ...Option) *feedFixture {
	t.Helper()

	engine := termctx.NewEngine(termctx.WithCapacity(50))
	gw := gateway.New(gateway.WithContextSource(engine))
	metrics := monitoring.NewMetricsCollector()
	bus := events.NewBus()
	metrics.Observe(bus)

	srv := NewServer("127.0.0.1:0", engine, gw, metrics, bus, opts...)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	return &feedFixture{srv: srv, engine: engine, bus: bus, metrics: metrics, ts: ts}
}

func dialFeed(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/feed"
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	return conn
}

func writeFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frame feedFrame) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestFeedFramesDriveEngine(t *testing.T) {
	fx := newFeedFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialFeed(t, ctx, fx.ts)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeFrame(t, ctx, conn, feedFrame{Type: "line", Text: "$ make test"})
	writeFrame(t, ctx, conn, feedFrame{Type: "line", Text: "FAIL: TestParse (0.01s)"})
	require.Eventually(t, func() bool { return fx.engine.BufferLen() == 2 },
		2*time.Second, 5*time.Millisecond)
	assert.Contains(t, fx.engine.GetContext(0), "$ make test")

	// Unknown frame types and malformed JSON are skipped, not fatal.
	writeFrame(t, ctx, conn, feedFrame{Type: "bogus"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	writeFrame(t, ctx, conn, feedFrame{Type: "line", Text: "still alive"})
	require.Eventually(t, func() bool { return fx.engine.BufferLen() == 3 },
		2*time.Second, 5*time.Millisecond)

	writeFrame(t, ctx, conn, feedFrame{Type: "clear"})
	require.Eventually(t, func() bool { return fx.engine.BufferLen() == 0 },
		2*time.Second, 5*time.Millisecond)
}

func TestFeedPushesPipelineEvents(t *testing.T) {
	fx := newFeedFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialFeed(t, ctx, fx.ts)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// One processed frame proves the subscription is wired before publishing.
	writeFrame(t, ctx, conn, feedFrame{Type: "line", Text: "$ true"})
	require.Eventually(t, func() bool { return fx.engine.BufferLen() == 1 },
		2*time.Second, 5*time.Millisecond)

	fx.bus.Publish(events.Event{Kind: events.KindRequestSent, RequestID: "req-9", Provider: "anthropic"})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var frame eventFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "event", frame.Type)
	assert.Equal(t, events.KindRequestSent, frame.Event.Kind)
	assert.Equal(t, "req-9", frame.Event.RequestID)
	assert.Equal(t, "anthropic", frame.Event.Provider)
}

func TestStatsEndpointReportsPipelineState(t *testing.T) {
	store, err := monitoring.NewUsageStore(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Insert(&monitoring.UsageRow{
		RequestID: "req-1", Timestamp: time.Now().UTC(), Provider: "anthropic",
		InputTokens: 12, OutputTokens: 3, Success: true,
	}))

	fx := newFeedFixture(t, WithUsageStore(store))

	fx.engine.AddLine("$ go test ./...")
	fx.engine.AddLine("ok")
	_ = fx.engine.GetContext(0) // miss
	_ = fx.engine.GetContext(0) // hit

	fx.bus.Publish(events.Event{Kind: events.KindRequestSent})
	fx.bus.Publish(events.Event{Kind: events.KindResponseReceived, Attempt: 1, InputTokens: 12, OutputTokens: 3, DurationMs: 100})

	resp, err := http.Get(fx.ts.URL + "/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	assert.Equal(t, int64(1), got.Requests.Total)
	assert.Equal(t, int64(1), got.Requests.Successful)
	assert.Equal(t, int64(12), got.Tokens.InputTokens)
	assert.Equal(t, 2, got.Buffer.Lines)
	assert.Equal(t, 50, got.Buffer.Capacity)
	assert.Equal(t, int64(1), got.Cache.Hits)
	assert.Equal(t, int64(1), got.Cache.Misses)
	assert.InDelta(t, 0.5, got.Cache.HitRate, 0.001)
	assert.Empty(t, got.Providers)

	require.Len(t, got.Usage, 1)
	assert.Equal(t, "anthropic", got.Usage[0].Provider)
	assert.Equal(t, int64(12), got.Usage[0].InputTokens)
}

func TestStatsRejectsNonLoopbackClients(t *testing.T) {
	fx := newFeedFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.RemoteAddr = "203.0.113.9:44123"
	rr := httptest.NewRecorder()
	fx.srv.handleStats(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHealthEndpoint(t *testing.T) {
	fx := newFeedFixture(t)

	resp, err := http.Get(fx.ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["time"])
}

func TestIsLoopback(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:51234", true},
		{"[::1]:8080", true},
		{"127.0.0.1", true},
		{"192.168.1.10:4000", false},
		{"203.0.113.9:99", false},
		{"localhost:80", false}, // hostnames are never trusted
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isLoopback(tc.addr), "addr %q", tc.addr)
	}
}
