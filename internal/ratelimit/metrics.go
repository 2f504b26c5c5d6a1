package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "idoracle_ratelimit_decisions_total",
			Help: "Rate limit decisions for verification requests",
		}, []string{"result"}),
	}
}

func (m *Metrics) record(result string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(result).Inc()
}
