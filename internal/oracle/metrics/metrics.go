package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the consensus side of the oracle: admission decisions and
// applied extrinsics. A nil *Metrics records nothing.
type Metrics struct {
	Admissions *prometheus.CounterVec
	Dispatches *prometheus.CounterVec
	Bindings   prometheus.Counter
}

// New registers the oracle metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idoracle_gate_admissions_total",
			Help: "Admission gate decisions for unsigned responses, by outcome",
		}, []string{"outcome"}),
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idoracle_runtime_dispatches_total",
			Help: "Executed extrinsics, by call and outcome",
		}, []string{"call", "outcome"}),
		Bindings: factory.NewCounter(prometheus.CounterOpts{
			Name: "idoracle_identity_bindings_total",
			Help: "Identity bindings committed by the response applier",
		}),
	}
}

func (m *Metrics) RecordAdmission(outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDispatch(call, outcome string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(call, outcome).Inc()
}

func (m *Metrics) IncrementBindings() {
	if m == nil {
		return
	}
	m.Bindings.Inc()
}
