package answer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for answer composition.
type Metrics struct {
	// completionSeconds observes completion latency by outcome (ok, error).
	completionSeconds *prometheus.HistogramVec
	// retrievalHits observes the number of chunks retrieved per question.
	retrievalHits prometheus.Histogram
	// answersTotal counts answers by language and outcome.
	answersTotal *prometheus.CounterVec
}

// NewMetrics registers the answer metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		completionSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "icrag",
			Name:      "completion_duration_seconds",
			Help:      "Completion backend latency including retries, by outcome.",
			// Hosted assistants can take tens of seconds.
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"}),
		retrievalHits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "icrag",
			Name:      "retrieval_hits",
			Help:      "Chunks retrieved as grounding for one question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		answersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "icrag",
			Name:      "answers_total",
			Help:      "Questions answered, by language and outcome (ok, unsupported, error).",
		}, []string{"language", "outcome"}),
	}
}

// observeCompletion records one completion. Safe on a nil receiver.
func (m *Metrics) observeCompletion(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.completionSeconds.WithLabelValues(outcome).Observe(seconds)
}

// observeHits records a retrieval size. Safe on a nil receiver.
func (m *Metrics) observeHits(n int) {
	if m == nil {
		return
	}
	m.retrievalHits.Observe(float64(n))
}

// observeAnswer counts one answer. Safe on a nil receiver.
func (m *Metrics) observeAnswer(language, outcome string) {
	if m == nil {
		return
	}
	m.answersTotal.WithLabelValues(language, outcome).Inc()
}
