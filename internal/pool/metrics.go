package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks pool occupancy and submission outcomes. A nil *Metrics
// records nothing.
type Metrics struct {
	Size        prometheus.Gauge
	Submissions *prometheus.CounterVec
	Expired     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Size: factory.NewGauge(prometheus.GaugeOpts{
			Name: "idoracle_pool_size",
			Help: "Unsigned transactions waiting for inclusion",
		}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idoracle_pool_submissions_total",
			Help: "Unsigned submissions by source and outcome",
		}, []string{"source", "outcome"}),
		Expired: factory.NewCounter(prometheus.CounterOpts{
			Name: "idoracle_pool_expired_total",
			Help: "Transactions dropped after their longevity elapsed",
		}),
	}
}

func (m *Metrics) setSize(n int) {
	if m == nil {
		return
	}
	m.Size.Set(float64(n))
}

func (m *Metrics) recordSubmission(source, outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) addExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Expired.Add(float64(n))
}
