package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records push and pull activity of the sync engine.
type SyncMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   *prometheus.GaugeVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labstock",
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Push and pull attempts by outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labstock",
			Subsystem: "sync",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests to the remote mirror.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}, []string{"op"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "labstock",
			Subsystem: "sync",
			Name:      "in_flight",
			Help:      "Requests to the remote mirror currently running.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.operations, m.duration, m.inFlight)
	return m
}

func (m *SyncMetrics) SyncStarted(op string) {
	m.inFlight.WithLabelValues(op).Inc()
}

func (m *SyncMetrics) SyncFinished(op, outcome string, elapsed time.Duration) {
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	m.inFlight.WithLabelValues(op).Dec()
}

func (m *SyncMetrics) SyncSkipped(op, outcome string) {
	m.operations.WithLabelValues(op, outcome).Inc()
}
