package gist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers gist API calls and the fetch cache. A nil *Metrics records
// nothing.
type Metrics struct {
	FetchDuration *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
	BreakerState  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idoracle_gist_fetch_duration_seconds",
			Help:    "Latency of gist API calls by outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idoracle_gist_cache_lookups_total",
			Help: "Fetch cache lookups by result",
		}, []string{"result"}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "idoracle_gist_breaker_open",
			Help: "1 while the gist API circuit breaker is open",
		}),
	}
}

func (m *Metrics) observeFetch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) recordCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}
