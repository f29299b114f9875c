// Package metrics exposes Prometheus collectors for the nonce ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	issued   prometheus.Counter
	consumes *prometheus.CounterVec
	swept    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		issued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorgate_nonces_issued_total",
			Help: "Nonces issued.",
		}),
		consumes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_nonce_consumes_total",
			Help: "Nonce consume attempts by result.",
		}, []string{"result"}),
		swept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirrorgate_nonces_swept_total",
			Help: "Nonces expired by the background sweep.",
		}),
	}
}

func (m *Metrics) ObserveIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

func (m *Metrics) ObserveConsume(result string) {
	if m == nil {
		return
	}
	m.consumes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSwept(n int) {
	if m == nil {
		return
	}
	m.swept.Add(float64(n))
}
