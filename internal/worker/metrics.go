package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers worker rounds. A nil *Metrics records nothing.
type Metrics struct {
	Rounds        *prometheus.CounterVec
	RoundDuration prometheus.Histogram
	Submitted     prometheus.Counter
	Failures      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idoracle_worker_rounds_total",
			Help: "Worker rounds by result; skipped rounds overlapped a running one",
		}, []string{"result"}),
		RoundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "idoracle_worker_round_duration_seconds",
			Help:    "Wall time of a worker round",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "idoracle_worker_responses_submitted_total",
			Help: "Responses accepted by the pool",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idoracle_worker_failures_total",
			Help: "Per-request failures by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observeRound(r Report) {
	if m == nil {
		return
	}
	m.Rounds.WithLabelValues("completed").Inc()
	m.RoundDuration.Observe(r.Duration.Seconds())
	m.Submitted.Add(float64(r.Submitted))
	for kind, n := range r.Failures {
		m.Failures.WithLabelValues(string(kind)).Add(float64(n))
	}
}

func (m *Metrics) recordSkipped() {
	if m == nil {
		return
	}
	m.Rounds.WithLabelValues("skipped").Inc()
}
