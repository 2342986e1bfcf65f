// Package metrics provides Prometheus metrics for the grade service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Grade business metrics
	operations         *prometheus.CounterVec
	statusChanges      *prometheus.CounterVec
	storedGrades       prometheus.Gauge
	aggregationLatency *prometheus.HistogramVec

	// Storage and cache
	storeLatency  *prometheus.HistogramVec
	cacheRequests *prometheus.CounterVec

	// Collaborator services
	upstreamLatency *prometheus.HistogramVec

	// Events
	events          *prometheus.CounterVec
	eventsDuplicate prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Outbox queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Publisher workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "distrischool",
		subsystem:        "grade",
		histogramBuckets: prometheus.ExponentialBuckets(1, 2, 14), // 1ms .. ~8s
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.operations = m.counterVec("operations_total", "Grade service operations by outcome", "operation", "outcome")
	m.statusChanges = m.counterVec("status_changes_total", "Grade status transitions by target status", "status")
	m.storedGrades = m.gauge("stored_grades", "Live grades held by the in-memory store")
	m.aggregationLatency = m.histogramVec("aggregation_duration_milliseconds",
		"Time to load and aggregate a summary in milliseconds", m.histogramBuckets, "kind")

	m.storeLatency = m.histogramVec("store_operation_duration_milliseconds",
		"Grade store operation latency in milliseconds", m.histogramBuckets, "operation")
	m.cacheRequests = m.counterVec("cache_requests_total", "Grade cache lookups by result", "result")

	m.upstreamLatency = m.histogramVec("upstream_request_duration_milliseconds",
		"Collaborator service call latency in milliseconds, retries included", m.histogramBuckets, "service", "outcome")

	m.events = m.counterVec("events_total", "Domain events by direction and outcome", "direction", "event_type", "outcome")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Redelivered events skipped by deduplication")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.queueSize = m.gauge("outbox_queue_size", "Events waiting to be published")
	m.queueCapacity = m.gauge("outbox_queue_capacity", "Outbox queue capacity")
	m.queueUtilization = m.gauge("outbox_queue_utilization", "Outbox queue fill ratio")
	m.queueEnqueueRate = m.counter("outbox_enqueued_total", "Events enqueued for publishing")
	m.queueDequeueRate = m.counter("outbox_dequeued_total", "Events taken by publisher workers")
	m.queueEnqueueErrors = m.counter("outbox_enqueue_errors_total", "Events dropped because the outbox was full or closed")

	m.workerCount = m.gauge("publisher_workers", "Configured publisher workers")
	m.workerActiveCount = m.gauge("publisher_workers_active", "Publisher workers currently publishing")
	m.workerIdleCount = m.gauge("publisher_workers_idle", "Publisher workers waiting for events")
	m.workerProcessingLatency = m.histogram("publisher_latency_milliseconds",
		"Time to publish one event in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("publisher_errors_total", "Publish attempts that failed")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Most recent GC pause in milliseconds", m.histogramBuckets)
}

// Grade metrics.

// RecordGradeOperation counts one service operation and its outcome.
func RecordGradeOperation(operation, outcome string) {
	globalManager.operations.WithLabelValues(operation, outcome).Inc()
}

// RecordStatusChange counts a grade moving to status.
func RecordStatusChange(status string) {
	globalManager.statusChanges.WithLabelValues(status).Inc()
}

// UpdateStoredGrades sets the number of grades held in memory.
func UpdateStoredGrades(count int) {
	globalManager.storedGrades.Set(float64(count))
}

// RecordAggregation records the time spent building a summary of kind.
func RecordAggregation(kind string, latencyMs float64) {
	globalManager.aggregationLatency.WithLabelValues(kind).Observe(latencyMs)
}

// Storage and cache metrics.

// RecordStoreLatency records one store operation.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordCacheResult counts a cache lookup as hit, miss or error.
func RecordCacheResult(result string) {
	globalManager.cacheRequests.WithLabelValues(result).Inc()
}

// RecordUpstreamRequest records a call to a collaborator service.
func RecordUpstreamRequest(service, outcome string, latencyMs float64) {
	globalManager.upstreamLatency.WithLabelValues(service, outcome).Observe(latencyMs)
}

// Event metrics.

// RecordEvent counts an inbound or outbound event and its outcome.
func RecordEvent(direction, eventType, outcome string) {
	globalManager.events.WithLabelValues(direction, eventType, outcome).Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueRate.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueRate.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// Worker metrics.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) { globalManager.workerIdleCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrorRate.Inc() }

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
