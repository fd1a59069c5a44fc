package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the aggregation pipeline and the
// reporting API.
type Metrics struct {
	// Leaf protocols read from the input, by emptiness
	ProtocolsIngested *prometheus.CounterVec

	// Anomaly flags raised, by kind and level
	AnomaliesFlagged *prometheus.CounterVec

	// Full pipeline run latency
	PipelineDuration prometheus.Histogram

	// Snapshot publish attempts by outcome
	SnapshotPublishes *prometheus.CounterVec

	// Snapshot store latency by backend and operation
	StoreLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ProtocolsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_protocols_ingested_total",
			Help: "Total leaf protocols ingested",
		}, []string{"empty"}),

		AnomaliesFlagged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_anomalies_flagged_total",
			Help: "Total anomaly flags raised by kind and commission level",
		}, []string{"kind", "level"}),

		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_pipeline_duration_seconds",
			Help:    "Duration of a full ingest and aggregation run",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		SnapshotPublishes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_snapshot_publishes_total",
			Help: "Snapshot publish attempts by outcome",
		}, []string{"outcome"}), // outcome: "published", "invalid", "failed"

		StoreLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tally_snapshot_store_duration_seconds",
			Help:    "Duration of snapshot store operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"backend", "op"}),
	}
}

// IncrementProtocols records one ingested leaf protocol.
func (m *Metrics) IncrementProtocols(empty bool) {
	if m == nil {
		return
	}
	label := "false"
	if empty {
		label = "true"
	}
	m.ProtocolsIngested.WithLabelValues(label).Inc()
}

// IncrementAnomaly records an anomaly flag.
func (m *Metrics) IncrementAnomaly(kind, level string) {
	if m != nil {
		m.AnomaliesFlagged.WithLabelValues(kind, level).Inc()
	}
}

// ObservePipeline records a pipeline run duration.
func (m *Metrics) ObservePipeline(d time.Duration) {
	if m != nil {
		m.PipelineDuration.Observe(d.Seconds())
	}
}

// IncrementPublish records a snapshot publish outcome.
func (m *Metrics) IncrementPublish(outcome string) {
	if m != nil {
		m.SnapshotPublishes.WithLabelValues(outcome).Inc()
	}
}

// ObserveStore records the duration of a snapshot store operation.
func (m *Metrics) ObserveStore(backend, op string, d time.Duration) {
	if m != nil {
		m.StoreLatency.WithLabelValues(backend, op).Observe(d.Seconds())
	}
}
