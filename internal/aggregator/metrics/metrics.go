// Package metrics exposes Prometheus collectors for admission decisions.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	decisions *prometheus.CounterVec
	duration  prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_admission_decisions_total",
			Help: "Admission decisions by verdict and reason.",
		}, []string{"admit", "reason"}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirrorgate_admission_decide_duration_seconds",
			Help:    "Latency of the admission decision.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveDecision(admit bool, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(strconv.FormatBool(admit), reason).Inc()
	m.duration.Observe(d.Seconds())
}
