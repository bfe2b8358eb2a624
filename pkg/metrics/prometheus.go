// Package metrics provides Prometheus metrics for the place badge service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultLatencyBuckets are millisecond bounds from 1ms to about 16s. Every
// latency histogram records milliseconds.
var DefaultLatencyBuckets = prometheus.ExponentialBuckets(1, 2, 15) //nolint:gochecknoglobals // shared bucket layout

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Location tracking
	readingsObserved prometheus.Counter
	readingsAccepted prometheus.Counter
	readingsRejected prometheus.Counter

	// Badge triggers and fetches
	triggers        *prometheus.CounterVec
	fetchStarted    prometheus.Counter
	fetchSucceeded  prometheus.Counter
	fetchFailed     *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	badgesStored    prometheus.Gauge
	fetchesInFlight prometheus.Gauge
	cacheLookups    *prometheus.CounterVec

	// Fetch queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueRejected    prometheus.Counter
	workerCount      prometheus.Gauge
	workerLatency    prometheus.Histogram
	errorByComponent *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "placebadge",
		subsystem:        "core",
		histogramBuckets: DefaultLatencyBuckets,
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
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	m.readingsObserved = m.counter("readings_observed_total", "Total number of location readings offered to the tracker")
	m.readingsAccepted = m.counter("readings_accepted_total", "Total number of readings that became the current reading")
	m.readingsRejected = m.counter("readings_rejected_total", "Total number of readings dropped as not fresher than the current one")

	m.triggers = m.counterVec("badge_triggers_total", "Badge trigger outcomes", "outcome")
	m.fetchStarted = m.counter("badge_fetch_started_total", "Total number of badge fetches launched")
	m.fetchSucceeded = m.counter("badge_fetch_succeeded_total", "Total number of badge fetches that produced a stored badge")
	m.fetchFailed = m.counterVec("badge_fetch_failed_total", "Total number of failed badge fetches by reason", "reason")
	m.fetchLatency = m.histogram("badge_fetch_latency_milliseconds", "Badge fetch latency in milliseconds")
	m.badgesStored = m.gauge("badges_stored", "Number of badges currently stored")
	m.fetchesInFlight = m.gauge("badge_fetches_in_flight", "Number of cells with an outstanding fetch")
	m.cacheLookups = m.counterVec("badge_cache_lookups_total", "Badge cache lookups by result", "result")

	m.queueSize = m.gauge("fetch_queue_size", "Current number of queued fetch jobs")
	m.queueCapacity = m.gauge("fetch_queue_capacity", "Maximum number of queued fetch jobs")
	m.queueEnqueued = m.counter("fetch_queue_enqueued_total", "Total number of fetch jobs enqueued")
	m.queueRejected = m.counter("fetch_queue_rejected_total", "Total number of fetch jobs rejected by the queue")
	m.workerCount = m.gauge("fetch_worker_count", "Number of fetch workers")
	m.workerLatency = m.histogram("fetch_worker_latency_milliseconds", "Time a worker spends on one job in milliseconds")
	m.errorByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")

	m.httpRequests = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordReadingObserved increments the observed readings counter.
func RecordReadingObserved() { globalManager.readingsObserved.Inc() }

// RecordReadingAccepted increments the accepted readings counter.
func RecordReadingAccepted() { globalManager.readingsAccepted.Inc() }

// RecordReadingRejected increments the rejected readings counter.
func RecordReadingRejected() { globalManager.readingsRejected.Inc() }

// RecordTrigger counts a badge trigger by its outcome.
func RecordTrigger(outcome string) {
	globalManager.triggers.WithLabelValues(outcome).Inc()
}

// RecordFetchStarted increments the launched fetches counter.
func RecordFetchStarted() { globalManager.fetchStarted.Inc() }

// RecordFetchSucceeded increments the successful fetches counter.
func RecordFetchSucceeded() { globalManager.fetchSucceeded.Inc() }

// RecordFetchFailed counts a failed fetch by reason.
func RecordFetchFailed(reason string) {
	globalManager.fetchFailed.WithLabelValues(reason).Inc()
}

// RecordFetchLatency records fetch latency in milliseconds.
func RecordFetchLatency(latencyMs float64) { globalManager.fetchLatency.Observe(latencyMs) }

// UpdateBadgesStored sets the number of stored badges.
func UpdateBadgesStored(count int) { globalManager.badgesStored.Set(float64(count)) }

// UpdateFetchesInFlight sets the number of outstanding fetches.
func UpdateFetchesInFlight(count int) { globalManager.fetchesInFlight.Set(float64(count)) }

// RecordCacheLookup counts a cache lookup; result is "hit", "miss" or "error".
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueued jobs counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueRejected increments the rejected jobs counter.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerLatency records per-job worker latency in milliseconds.
func RecordWorkerLatency(latencyMs float64) { globalManager.workerLatency.Observe(latencyMs) }

// RecordErrorByComponent counts an error attributed to a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
