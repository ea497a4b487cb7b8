// Package metrics exposes Prometheus instrumentation for the cache client
// and the layers above it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Cache outcome metrics
	Hits   prometheus.Counter
	Misses prometheus.Counter

	// Replica metrics
	ReplicaReads  *prometheus.CounterVec
	ReplicaWrites *prometheus.CounterVec

	// Breaker metrics
	BreakerTransitions *prometheus.CounterVec

	// Membership metrics
	NodesActive prometheus.Gauge

	// Pattern / invalidation metrics
	WriteBehindEnqueued   prometheus.Counter
	WriteBehindDropped    prometheus.Counter
	WriteBehindQueueDepth prometheus.Gauge
	RefreshesTriggered    prometheus.Counter
	InvalidationsTotal    *prometheus.CounterVec
}

// New creates the metric set on the given registerer. Tests pass their own
// prometheus.NewRegistry to avoid default-registry collisions.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachemesh_requests_total",
				Help: "Total number of client requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cachemesh_request_duration_seconds",
				Help:    "Duration of client requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		Hits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cachemesh_hits_total",
				Help: "Total number of cache hits",
			},
		),

		Misses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cachemesh_misses_total",
				Help: "Total number of cache misses",
			},
		),

		ReplicaReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachemesh_replica_reads_total",
				Help: "Total number of per-replica read attempts",
			},
			[]string{"node", "status"},
		),

		ReplicaWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachemesh_replica_writes_total",
				Help: "Total number of per-replica write attempts",
			},
			[]string{"node", "status"},
		),

		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachemesh_breaker_transitions_total",
				Help: "Total number of circuit breaker state transitions",
			},
			[]string{"node", "to"},
		),

		NodesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachemesh_nodes_active",
				Help: "Number of physical nodes in the ring",
			},
		),

		WriteBehindEnqueued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cachemesh_write_behind_enqueued_total",
				Help: "Total number of write-behind tasks enqueued",
			},
		),

		WriteBehindDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cachemesh_write_behind_dropped_total",
				Help: "Total number of write-behind tasks dropped after retry",
			},
		),

		WriteBehindQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachemesh_write_behind_queue_depth",
				Help: "Current depth of the write-behind queue",
			},
		),

		RefreshesTriggered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cachemesh_refreshes_triggered_total",
				Help: "Total number of refresh-ahead reloads triggered",
			},
		),

		InvalidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachemesh_invalidations_total",
				Help: "Total number of invalidations by strategy",
			},
			[]string{"strategy"},
		),
	}
}

// RecordRequest records a request metric
func (m *Metrics) RecordRequest(operation, outcome string, seconds float64) {
	m.RequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordReplicaRead records a per-replica read attempt
func (m *Metrics) RecordReplicaRead(node, status string) {
	m.ReplicaReads.WithLabelValues(node, status).Inc()
}

// RecordReplicaWrite records a per-replica write attempt
func (m *Metrics) RecordReplicaWrite(node, status string) {
	m.ReplicaWrites.WithLabelValues(node, status).Inc()
}

// RecordBreakerTransition records a breaker state change
func (m *Metrics) RecordBreakerTransition(node, to string) {
	m.BreakerTransitions.WithLabelValues(node, to).Inc()
}

// RecordInvalidation records an invalidation by strategy
func (m *Metrics) RecordInvalidation(strategy string) {
	m.InvalidationsTotal.WithLabelValues(strategy).Inc()
}
