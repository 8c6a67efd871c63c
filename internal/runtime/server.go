// Package runtime wires every other component into the per-connection
// state machine (component J): HTTP upgrade, the read loop, dispatch,
// and teardown. Modeled on the teacher's internal/single/core package
// (handlers_ws.go, pump_read.go/pump_write.go, client_lifecycle.go,
// handlers_http.go), generalized from its trading-feed domain to the
// channel-broker domain this repo implements.
package runtime

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fastsocket/fastsocket/internal/admission"
	"github.com/fastsocket/fastsocket/internal/appmodel"
	"github.com/fastsocket/fastsocket/internal/catalog"
	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/dispatch"
	"github.com/fastsocket/fastsocket/internal/obs"
	"github.com/fastsocket/fastsocket/internal/registry"
	"github.com/rs/zerolog"
)

// Config configures the connection runtime's behavior that is not
// owned by any one component (capacity ceiling and the activity
// timeout chosen for "connection_established", spec.md §4.J step 4).
type Config struct {
	MaxConnections  int
	ActivityTimeout time.Duration
	WriteTimeout    time.Duration
}

// Server owns the shared state every connection reads from: the app
// catalog, the channel registry, the dispatcher, admission limiter,
// and metrics. One Server serves every app hosted by this process.
type Server struct {
	cfg        Config
	catalog    catalog.Catalog
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	admission  *admission.Limiter
	metrics    *obs.Metrics
	logger     zerolog.Logger

	liveConnections int64
	shuttingDown    int32

	httpServer *http.Server
	startedAt  time.Time
}

// New constructs a Server. Callers still need to call Serve to start
// accepting connections.
func New(cfg Config, cat catalog.Catalog, reg *registry.Registry, disp *dispatch.Dispatcher, adm *admission.Limiter, metrics *obs.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		catalog:    cat,
		registry:   reg,
		dispatcher: disp,
		admission:  adm,
		metrics:    metrics,
		logger:     logger.With().Str("component", "runtime").Logger(),
		startedAt:  time.Now(),
	}
}

// Serve starts the HTTP server bound to addr and blocks until it stops
// (http.ErrServerClosed on graceful shutdown).
func (s *Server) Serve(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	s.logger.Info().Str("addr", addr).Msg("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler builds the mux serving the WebSocket upgrade, health, and
// metrics endpoints, without binding a listener. Exposed so tests can
// drive the connection runtime end-to-end through httptest.NewServer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/app/", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metricsHandler())
	return mux
}

// Shutdown stops accepting new connections and waits (bounded by ctx)
// for the HTTP server to finish in-flight requests. It does not
// forcibly close live WebSocket connections: those drain via their own
// read loops observing transport errors or client-initiated closes.
func (s *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&s.shuttingDown, 1)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// statsEnabled reports whether Prometheus metrics should be recorded for
// app: metrics are wired to the App record's statistics-enabled flag
// (SPEC_FULL.md §2), so catalog configuration gates per-app emission
// rather than every app incrementing the same process-wide collectors.
func (s *Server) statsEnabled(app *appmodel.App) bool {
	return s.metrics != nil && app.StatisticsEnabled()
}

// handleWebSocket implements connection runtime steps 1-4 (spec.md
// §4.J): handshake, app resolution, capacity check, and the open reply.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	appID := appIDFromPath(r.URL.Path)
	if appID == "" {
		http.Error(w, "missing app id", http.StatusBadRequest)
		return
	}
	app, ok := s.catalog.Find(appID)
	if !ok {
		s.logger.Debug().Str("app_id", appID).Msg("upgrade rejected: unknown app")
		http.Error(w, "unknown app", http.StatusNotFound)
		return
	}

	if s.admission != nil && !s.admission.Allow(remoteIP(r)) {
		s.logger.Debug().Str("remote_ip", remoteIP(r)).Msg("upgrade rejected by admission limiter")
		if s.statsEnabled(app) {
			s.metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
		}
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	if int(atomic.LoadInt64(&s.liveConnections)) >= s.cfg.MaxConnections {
		s.logger.Debug().Int("max_connections", s.cfg.MaxConnections).Msg("upgrade rejected: at capacity")
		if s.statsEnabled(app) {
			s.metrics.ConnectionsRejected.WithLabelValues("capacity").Inc()
		}
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrade(w, r)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		if s.statsEnabled(app) {
			s.metrics.ConnectionsFailed.Inc()
		}
		return
	}

	c := client.New(conn, app)
	atomic.AddInt64(&s.liveConnections, 1)
	s.catalog.IncrementConnectionCount(app.ID)
	if s.statsEnabled(app) {
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ConnectionsActive.Inc()
	}

	if err := s.sendConnectionEstablished(c); err != nil {
		s.logger.Warn().Err(err).Str("socket_id", c.SocketID).Msg("failed to send connection_established")
		s.teardown(c)
		return
	}

	go s.readLoop(c)
}

// appIDFromPath extracts the 3rd "/"-separated path segment, per
// spec.md §6: "ws(s)://<host>/app/<app_id>".
func appIDFromPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

func remoteIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i != -1 {
		return host[:i]
	}
	return host
}
