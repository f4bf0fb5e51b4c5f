// Package metrics exposes server metrics and health checks over HTTP.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several servers can live in one
// process (tests do).
type Metrics struct {
	registry     *prometheus.Registry
	rpcRequests  *prometheus.CounterVec
	rpcDuration  *prometheus.HistogramVec
	lobbyStreams prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		rpcRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "charasync_rpc_requests_total",
			Help: "RPCs handled, by method and status code.",
		}, []string{"method", "code"}),
		rpcDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "charasync_rpc_duration_seconds",
			Help:    "RPC handling time in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		lobbyStreams: f.NewGauge(prometheus.GaugeOpts{
			Name: "charasync_lobby_streams",
			Help: "Open lobby event streams.",
		}),
	}
}

// ObserveRPC records one finished call.
func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	m.rpcRequests.WithLabelValues(method, code).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) StreamOpened() { m.lobbyStreams.Inc() }
func (m *Metrics) StreamClosed() { m.lobbyStreams.Dec() }


// ReadinessFunc reports whether the server's dependencies are reachable.
type ReadinessFunc func(ctx context.Context) error

type healthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeHealth(w http.ResponseWriter, code int, status, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:    status,
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Router serves /metrics, /health/live and /health/ready.
func (m *Metrics) Router(ready ReadinessFunc) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "ok", "")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				writeHealth(w, http.StatusServiceUnavailable, "fail", err.Error())
				return
			}
		}
		writeHealth(w, http.StatusOK, "ok", "")
	})
	return r
}
