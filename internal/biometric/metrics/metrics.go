// Package metrics exposes Prometheus metrics for the biometric engines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the biometric engine metrics. Scores are never exported, only
// outcomes and latencies.
type Metrics struct {
	enrollments   *prometheus.CounterVec
	verifications *prometheus.CounterVec
	verifyLatency *prometheus.HistogramVec
}

// New creates and registers the biometric metrics.
func New() *Metrics {
	return &Metrics{
		enrollments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_biometric_enrollments_total",
			Help: "Enrollment attempts by modality and outcome",
		}, []string{"modality", "outcome"}),
		verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorgate_biometric_verifications_total",
			Help: "Verification attempts by modality and outcome",
		}, []string{"modality", "outcome"}),
		verifyLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mirrorgate_biometric_verify_duration_seconds",
			Help:    "Latency of verification attempts",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"modality"}),
	}
}

// ObserveEnrollment records an enrollment outcome.
func (m *Metrics) ObserveEnrollment(modality, outcome string) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(modality, outcome).Inc()
}

// ObserveVerification records a verification outcome with its latency.
func (m *Metrics) ObserveVerification(modality, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(modality, outcome).Inc()
	m.verifyLatency.WithLabelValues(modality).Observe(elapsed.Seconds())
}
