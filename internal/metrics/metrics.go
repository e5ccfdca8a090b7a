package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sheetsync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations reaching a terminal status, by kind and status.",
		},
		[]string{"kind", "status"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Pending operations waiting in the queue.",
		},
	)

	drains = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drains_total",
			Help:      "Completed drain passes.",
		},
	)

	drainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Wall time of a drain pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Reconciliation runs by outcome (unchanged, propagated, read_error).",
		},
		[]string{"outcome"},
	)

	reconcileWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_write_failures_total",
			Help:      "Corrective writes issued by reconciliation that failed.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			operations,
			queueDepth,
			drains,
			drainDuration,
			reconciliations,
			reconcileWriteFailures,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveOperation counts an operation that reached a terminal status.
func ObserveOperation(kind, status string) {
	operations.WithLabelValues(kind, status).Inc()
}

// SetQueueDepth publishes the current queue length.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// ObserveDrain records a finished drain pass.
func ObserveDrain(d time.Duration) {
	drains.Inc()
	drainDuration.Observe(d.Seconds())
}

// IncReconcile counts a reconciliation run by outcome.
func IncReconcile(outcome string) {
	reconciliations.WithLabelValues(outcome).Inc()
}

// IncReconcileWriteFailure counts one failed corrective write.
func IncReconcileWriteFailure() {
	reconcileWriteFailures.Inc()
}
