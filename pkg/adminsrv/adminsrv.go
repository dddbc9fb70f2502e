// Package adminsrv is the ambient admin/metrics HTTP surface: a health
// check and a Prometheus scrape endpoint, served on their own listener
// (never the request-serving daemon's own socket).
package adminsrv

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the process-wide supervisor gauges/counters this package
// registers and exposes at /metrics.
type Metrics struct {
	WorkersAlive        prometheus.Gauge
	WorkerRestartsTotal prometheus.Counter
	WorkerHeartbeatAge  *prometheus.GaugeVec
}

// NewMetrics registers and returns the supervisor's Prometheus collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WorkersAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corehttpd_workers_alive",
			Help: "Number of currently occupied worker slots.",
		}),
		WorkerRestartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corehttpd_worker_restarts_total",
			Help: "Total number of worker respawns since supervisor start.",
		}),
		WorkerHeartbeatAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "corehttpd_worker_heartbeat_age_seconds",
			Help: "Seconds since each worker slot's last heartbeat write.",
		}, []string{"slot"}),
	}
	reg.MustRegister(m.WorkersAlive, m.WorkerRestartsTotal, m.WorkerHeartbeatAge)
	return m
}

// Server is the admin HTTP server.
type Server struct {
	httpSrv *http.Server
}

// New builds an admin server bound to addr, exposing /healthz and
// /metrics against reg.
func New(addr string, reg *prometheus.Registry) *Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &Server{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ListenAndServe blocks serving the admin surface until Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
