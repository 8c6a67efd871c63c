package runtime

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthResponse is the /health body, modeled on the teacher's
// handleHealth but trimmed to what this broker actually tracks: no
// CPU/memory thresholds, since there is no resource-aware admission in
// this spec's scope.
type healthResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	LiveConnections int64  `json:"live_connections"`
	MaxConnections  int    `json:"max_connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	resp := healthResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		LiveConnections: atomic.LoadInt64(&s.liveConnections),
		MaxConnections:  s.cfg.MaxConnections,
	}
	json.NewEncoder(w).Encode(resp)
}

// metricsHandler exposes the process's Prometheus registry. It always
// returns promhttp.Handler(), which serves the default registry, so only
// collectors registered against prometheus.DefaultRegisterer (as
// cmd/fastsocketd passes to obs.NewMetrics) appear on /metrics.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.Handler()
}
