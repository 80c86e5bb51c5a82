// Package metrics provides Prometheus metrics for the score engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the score engine reports to.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Score operations
	scoreOperations    *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	txLatency          prometheus.Histogram
	txAttempts         prometheus.Histogram

	// Entry lock
	lockAcquired      prometheus.Counter
	lockContention    prometheus.Counter
	lockRetryExceeded prometheus.Counter
	lockReleased      prometheus.Counter
	lockReleaseErrors prometheus.Counter
	lockBackoff       prometheus.Histogram

	// Storage
	storageConflicts prometheus.Counter
	storageErrors    prometheus.Counter
	storageLatency   *prometheus.HistogramVec

	// Queue and workers used to fan out judge commands
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerLatency      prometheus.Histogram
	workerErrors       prometheus.Counter

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scoreline",
		subsystem:        "scores",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		enabled:          true,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.scoreOperations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "operations_total",
		Help:        "Score operations by kind and outcome",
		ConstLabels: m.constLabels,
	}, []string{"operation", "outcome"})

	m.validationFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "validation_failures_total",
		Help:        "Rubric violations by rule",
		ConstLabels: m.constLabels,
	}, []string{"rule"})

	m.txLatency = m.histogram("transaction_latency_milliseconds",
		"Latency of a locked score update including retries", m.histogramBuckets)
	m.txAttempts = m.histogram("transaction_attempts",
		"Attempts needed per locked score update", []float64{1, 2, 3, 4, 5, 6, 8, 10})

	m.lockAcquired = m.counter("lock_acquired_total", "Entry locks acquired")
	m.lockContention = m.counter("lock_contention_total", "Attempts that found the entry lock held")
	m.lockRetryExceeded = m.counter("lock_retry_exceeded_total", "Updates that gave up after exhausting lock retries")
	m.lockReleased = m.counter("lock_released_total", "Entry locks explicitly released")
	m.lockReleaseErrors = m.counter("lock_release_errors_total", "Lock releases that failed and were left to expire")
	m.lockBackoff = m.histogram("lock_backoff_milliseconds", "Backoff slept after lock contention", m.histogramBuckets)

	m.storageConflicts = m.counter("storage_conflicts_total", "Optimistic write conflicts retried by the store")
	m.storageErrors = m.counter("storage_errors_total", "Storage failures surfaced to callers")
	m.storageLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "storage_latency_milliseconds",
		Help:        "Storage call latency by operation",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"operation"})

	m.queueSize = m.gauge("queue_size", "Commands waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Configured queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Commands enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Commands dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Commands rejected by the queue")
	m.workerCount = m.gauge("worker_count", "Workers executing commands")
	m.workerLatency = m.histogram("worker_latency_milliseconds", "Time a worker spent on one command", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Commands that finished with an error")

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_component_total",
		Help:        "Errors by component and kind",
		ConstLabels: m.constLabels,
	}, []string{"component", "kind"})
}

// RecordScoreOperation counts a submit, update or delete by outcome.
func RecordScoreOperation(operation, outcome string) {
	if globalManager.enabled {
		globalManager.scoreOperations.WithLabelValues(operation, outcome).Inc()
	}
}

// RecordValidationFailure counts one rubric violation.
func RecordValidationFailure(rule string) {
	if globalManager.enabled {
		globalManager.validationFailures.WithLabelValues(rule).Inc()
	}
}

// RecordTransactionLatency records the latency of a locked update in milliseconds.
func RecordTransactionLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.txLatency.Observe(latencyMs)
	}
}

// RecordTransactionAttempts records how many attempts a locked update used.
func RecordTransactionAttempts(attempts int) {
	if globalManager.enabled {
		globalManager.txAttempts.Observe(float64(attempts))
	}
}

// RecordLockAcquired counts a successful lock acquisition.
func RecordLockAcquired() {
	if globalManager.enabled {
		globalManager.lockAcquired.Inc()
	}
}

// RecordLockContention counts an attempt that found the lock held.
func RecordLockContention() {
	if globalManager.enabled {
		globalManager.lockContention.Inc()
	}
}

// RecordLockRetryExceeded counts an update that exhausted its retries.
func RecordLockRetryExceeded() {
	if globalManager.enabled {
		globalManager.lockRetryExceeded.Inc()
	}
}

// RecordLockReleased counts an explicit release.
func RecordLockReleased() {
	if globalManager.enabled {
		globalManager.lockReleased.Inc()
	}
}

// RecordLockReleaseError counts a failed release.
func RecordLockReleaseError() {
	if globalManager.enabled {
		globalManager.lockReleaseErrors.Inc()
	}
}

// RecordLockBackoff records a backoff sleep in milliseconds.
func RecordLockBackoff(delayMs float64) {
	if globalManager.enabled {
		globalManager.lockBackoff.Observe(delayMs)
	}
}

// RecordStorageConflict counts an optimistic write conflict.
func RecordStorageConflict() {
	if globalManager.enabled {
		globalManager.storageConflicts.Inc()
	}
}

// RecordStorageError counts a storage failure surfaced to a caller.
func RecordStorageError() {
	if globalManager.enabled {
		globalManager.storageErrors.Inc()
	}
}

// RecordStorageLatency records a storage call latency in milliseconds.
func RecordStorageLatency(operation string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.storageLatency.WithLabelValues(operation).Observe(latencyMs)
	}
}

// UpdateQueueSize sets the queue backlog gauge.
func UpdateQueueSize(size int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue counts an enqueued command.
func RecordQueueEnqueue() {
	if globalManager.enabled {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue counts a dequeued command.
func RecordQueueDequeue() {
	if globalManager.enabled {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	if globalManager.enabled {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// UpdateWorkerCount sets the worker gauge.
func UpdateWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(count))
	}
}

// RecordWorkerLatency records how long a worker spent on one command.
func RecordWorkerLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.workerLatency.Observe(latencyMs)
	}
}

// RecordWorkerError counts a command that failed.
func RecordWorkerError() {
	if globalManager.enabled {
		globalManager.workerErrors.Inc()
	}
}

// RecordErrorByComponent counts an error by component and kind.
func RecordErrorByComponent(component, kind string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
