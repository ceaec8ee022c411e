package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label: the matched route pattern rather than
// the raw URL path, so cardinality stays bounded.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// askRequestsTotal counts answered ask requests by endpoint (ask, stream)
	// and outcome (ok, unsupported, invalid, timeout, error).
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records the wall-clock time from receipt to answer.
	askDurationSeconds *prometheus.HistogramVec

	// activeStreams is the number of /api/ask/stream responses currently open.
	activeStreams prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "icrag",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of ask requests completed, partitioned by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "icrag",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of ask requests from receipt to answer.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"endpoint", "outcome"}),

		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "icrag",
			Subsystem: "ask",
			Name:      "active_streams",
			Help:      "Number of /api/ask/stream SSE responses currently open.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "icrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "icrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeAsk records one completed ask request.
func (m *serverMetrics) observeAsk(endpoint, outcome string, elapsed time.Duration) {
	m.askRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.askDurationSeconds.WithLabelValues(endpoint, outcome).Observe(elapsed.Seconds())
}
