// Package metrics exposes Prometheus collectors for the device trust
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	evaluations *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_device_evaluations_total",
			Help: "Device trust evaluations by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveEvaluation(outcome string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
}
