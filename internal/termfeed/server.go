// Package termfeed ingests terminal output over WebSocket and pushes
// pipeline notifications back to connected clients.
//
// DESIGN: One HTTP server, three routes:
//   - /feed:    WebSocket. Inbound {"type":"line","text":...} frames append
//     to the context engine, {"type":"clear"} empties it. Every pipeline
//     event is pushed back as a JSON frame; slow readers drop events rather
//     than stall the publisher.
//   - /stats:   Combined metrics snapshot as JSON. Loopback only.
//   - /healthz: Liveness probe.
//
// The server binds loopback by default; the feed carries raw terminal
// output, which is not something to expose on a network interface.
package termfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pairadmin/terminal-gateway/internal/config"
	"github.com/pairadmin/terminal-gateway/internal/events"
	"github.com/pairadmin/terminal-gateway/internal/gateway"
	"github.com/pairadmin/terminal-gateway/internal/monitoring"
	"github.com/pairadmin/terminal-gateway/internal/termctx"
)

// Server serves the terminal feed and the operational endpoints.
type Server struct {
	engine  *termctx.Engine
	gw      *gateway.Gateway
	metrics *monitoring.MetricsCollector
	usage   *monitoring.UsageStore // optional
	bus     *events.Bus

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithUsageStore attaches the persistent usage store to /stats.
func WithUsageStore(store *monitoring.UsageStore) Option {
	return func(s *Server) { s.usage = store }
}

// NewServer wires the feed server to the pipeline.
func NewServer(listen string, engine *termctx.Engine, gw *gateway.Gateway, metrics *monitoring.MetricsCollector, bus *events.Bus, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		gw:      gw,
		metrics: metrics,
		bus:     bus,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", s.handleFeed)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      mux,
		ReadTimeout:  config.DefaultServerReadTimeout,
		WriteTimeout: config.DefaultServerWriteTimeout,
	}
	return s
}

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Feed server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// =============================================================================
// FEED
// =============================================================================

// feedFrame is one inbound message from the terminal-side hook.
type feedFrame struct {
	Type string `json:"type"` // "line" or "clear"
	Text string `json:"text,omitempty"`
}

// eventFrame is one outbound pushed notification.
type eventFrame struct {
	Type  string       `json:"type"` // always "event"
	Event events.Event `json:"event"`
}

// handleFeed upgrades to WebSocket and runs the connection until the client
// goes away. Reads feed the engine; pipeline events stream back.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Feed upgrade failed")
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Per-connection queue. The bus handler must never block, so events
	// beyond the buffer are dropped for this subscriber only.
	queue := make(chan events.Event, config.DefaultEventQueueSize)
	unsubscribe := s.bus.SubscribeAll(func(ev events.Event) {
		select {
		case queue <- ev:
		default:
		}
	})
	defer unsubscribe()

	go s.pushEvents(ctx, conn, queue)

	log.Debug().Str("remote", r.RemoteAddr).Msg("Feed client connected")
	s.readFrames(ctx, conn)
	log.Debug().Str("remote", r.RemoteAddr).Msg("Feed client disconnected")
}

// readFrames consumes inbound frames until the connection dies.
func (s *Server) readFrames(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame feedFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Debug().Err(err).Msg("Feed frame rejected")
			continue
		}

		switch frame.Type {
		case "line":
			s.engine.AddLine(frame.Text)
		case "clear":
			s.engine.Clear()
		default:
			log.Debug().Str("type", frame.Type).Msg("Feed frame type unknown")
		}
	}
}

// pushEvents forwards queued notifications to one connection.
func (s *Server) pushEvents(ctx context.Context, conn *websocket.Conn, queue <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			data, err := json.Marshal(eventFrame{Type: "event", Event: ev})
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// =============================================================================
// STATS AND HEALTH
// =============================================================================

// statsResponse is the JSON response for GET /stats.
type statsResponse struct {
	monitoring.StatsResponse

	Buffer struct {
		Lines    int `json:"lines"`
		Capacity int `json:"capacity"`
	} `json:"buffer"`
	Cache struct {
		Hits    int64   `json:"hits"`
		Misses  int64   `json:"misses"`
		Entries int     `json:"entries"`
		HitRate float64 `json:"hit_rate"`
	} `json:"cache"`
	Providers []gateway.ProviderInfo   `json:"providers"`
	Usage     []monitoring.UsageTotals `json:"usage,omitempty"`
}

// handleStats returns the combined metrics snapshot as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var resp statsResponse
	resp.StatsResponse = s.metrics.FullStats()
	resp.Buffer.Lines = s.engine.BufferLen()
	resp.Buffer.Capacity = s.engine.BufferCap()

	cache := s.engine.CacheStats()
	resp.Cache.Hits = cache.Hits
	resp.Cache.Misses = cache.Misses
	resp.Cache.Entries = cache.Entries
	resp.Cache.HitRate = cache.HitRate()

	resp.Providers = s.gw.Providers()

	if s.usage != nil {
		totals, err := s.usage.Totals()
		if err != nil {
			log.Error().Err(err).Msg("Usage totals query failed")
		} else {
			resp.Usage = totals
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleHealth returns liveness status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// isLoopback reports whether the remote address is a loopback interface.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
