package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics bundles every Prometheus metric the HTTP server owns. One
// instance lives on Server so tests can register into a throwaway
// prometheus.NewRegistry instead of the process-global default.
type serverMetrics struct {
	// Completed /api/chat requests by outcome: "ok", "timeout", "error".
	chatRequestsTotal   *prometheus.CounterVec
	chatDurationSeconds *prometheus.HistogramVec

	// Currently open /api/chat SSE streams.
	chatActiveStreams prometheus.Gauge

	// All requests handled by the mux, labelled with the logical handler
	// name rather than the raw URL path.
	httpRequestsTotal   *prometheus.CounterVec
	httpDurationSeconds *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	f := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pfai",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Completed /api/chat requests, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pfai",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Duration of /api/chat requests from receipt to stream completion.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		chatActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pfai",
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Number of /api/chat SSE streams currently open.",
		}),

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pfai",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, partitioned by method, handler, and status code.",
		}, []string{"method", "handler", "code"}),

		httpDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pfai",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "handler"}),
	}
}
