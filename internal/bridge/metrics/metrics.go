// Package metrics exposes Prometheus collectors for bridge sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	created  prometheus.Counter
	outcomes *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorgate_bridge_sessions_created_total",
			Help: "Bridge sessions created.",
		}),
		outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_bridge_session_outcomes_total",
			Help: "Bridge session terminal outcomes.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}
