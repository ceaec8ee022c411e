package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for ingestion runs.
type Metrics struct {
	// chunksTotal counts chunks published, labelled by language.
	chunksTotal *prometheus.CounterVec
	// runsTotal counts language runs by outcome (published, skipped, failed).
	runsTotal *prometheus.CounterVec
	// durationSeconds observes per-language ingestion time.
	durationSeconds prometheus.Histogram
}

// NewMetrics registers the ingestion metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		chunksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "icrag",
			Name:      "ingest_chunks_total",
			Help:      "Total chunks published to the index, by language.",
		}, []string{"language"}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "icrag",
			Name:      "ingest_runs_total",
			Help:      "Total per-language ingestion runs, by outcome.",
		}, []string{"outcome"}),
		durationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "icrag",
			Name:      "ingest_duration_seconds",
			Help:      "Wall time spent ingesting one language.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
	}
}

// observe records one report. Safe on a nil receiver.
func (m *Metrics) observe(r Report) {
	if m == nil {
		return
	}
	outcome := "published"
	switch {
	case r.Err != nil:
		outcome = "failed"
	case r.Skipped:
		outcome = "skipped"
	default:
		m.chunksTotal.WithLabelValues(string(r.Language)).Add(float64(r.ChunksWritten))
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.durationSeconds.Observe(r.Duration.Seconds())
}
