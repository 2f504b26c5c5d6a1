package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Head       prometheus.Gauge
	Extrinsics *prometheus.CounterVec
	BlockTime  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Head: factory.NewGauge(prometheus.GaugeOpts{
			Name: "idoracle_chain_head_height",
			Help: "Height of the latest produced block",
		}),
		Extrinsics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idoracle_chain_extrinsics_total",
			Help: "Executed extrinsics by kind and result",
		}, []string{"kind", "result"}),
		BlockTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "idoracle_chain_block_execution_seconds",
			Help:    "Time spent executing a block",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeBlock(b Block, seconds float64) {
	if m == nil {
		return
	}
	m.Head.Set(float64(b.Height))
	m.BlockTime.Observe(seconds)
	for _, x := range b.Extrinsics {
		kind := "unsigned"
		if x.Signed {
			kind = "signed"
		}
		result := "failed"
		if x.Success {
			result = "ok"
		}
		m.Extrinsics.WithLabelValues(kind, result).Inc()
	}
}
