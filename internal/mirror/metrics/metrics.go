// Package metrics exposes Prometheus collectors for mirror synchronization.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	applies *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		applies: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_sync_applies_total",
			Help: "Mirror sync apply attempts by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveApply(outcome string) {
	if m == nil {
		return
	}
	m.applies.WithLabelValues(outcome).Inc()
}
