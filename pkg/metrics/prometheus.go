// Package metrics provides Prometheus metrics for the tally ledger service.
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
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ledger
	transactions       *prometheus.CounterVec
	transactionLatency *prometheus.HistogramVec
	accountsCreated    prometheus.Counter
	jobSwitches        *prometheus.CounterVec
	levelUps           *prometheus.CounterVec

	// Storage
	backendErrors    *prometheus.CounterVec
	backendLatency   *prometheus.HistogramVec
	documentSaves    prometheus.Counter
	documentSaveErrs prometheus.Counter
	documentSaveMs   prometheus.Histogram
	documentAccounts prometheus.Gauge

	// Leaderboard
	leaderboardRecomputes   *prometheus.CounterVec
	leaderboardRecomputeMs  *prometheus.HistogramVec
	leaderboardLastComputed *prometheus.GaugeVec
	leaderboardStaleServed  prometheus.Counter

	// Event bus
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	workerActive       prometheus.Gauge
	workerLatency      prometheus.Histogram
	handlerErrors      *prometheus.CounterVec
	eventLag           prometheus.Histogram
	moneyMoved         *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	idempotentReplays   prometheus.Counter

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry), WithHistogramBuckets(LatencyBuckets))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tally",
		subsystem:        "ledger",
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.transactions = m.counterVec("transactions_total", "Balance mutations by kind and outcome", "kind", "outcome")
	m.transactionLatency = m.histogramVec("transaction_latency_milliseconds", "Balance mutation latency in milliseconds", "kind")
	m.accountsCreated = m.counter("accounts_created_total", "Accounts created on first lookup")
	m.jobSwitches = m.counterVec("job_switches_total", "Successful job switches by target job", "job")
	m.levelUps = m.counterVec("level_ups_total", "Job level-ups by job", "job")

	m.backendErrors = m.counterVec("backend_errors_total", "Persistence failures by backend and operation", "backend", "op")
	m.backendLatency = m.histogramVec("backend_latency_milliseconds", "Persistence call latency in milliseconds", "backend", "op")
	m.documentSaves = m.counter("document_saves_total", "Document store flushes written to disk")
	m.documentSaveErrs = m.counter("document_save_errors_total", "Document store flushes that failed")
	m.documentSaveMs = m.histogram("document_save_latency_milliseconds", "Document store flush latency in milliseconds")
	m.documentAccounts = m.gauge("document_accounts", "Account records held by the document store")

	m.leaderboardRecomputes = m.counterVec("leaderboard_recomputes_total", "Leaderboard rebuilds by currency and mode", "currency", "mode")
	m.leaderboardRecomputeMs = m.histogramVec("leaderboard_recompute_latency_milliseconds", "Leaderboard rebuild latency in milliseconds", "mode")
	m.leaderboardLastComputed = m.gaugeVec("leaderboard_last_computed_unix", "Unix time of the last published leaderboard snapshot", "currency")
	m.leaderboardStaleServed = m.counter("leaderboard_stale_served_total", "Requests answered with the previous snapshot while a rebuild ran")

	m.queueSize = m.gauge("queue_size", "Current size of the event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum event queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Event queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Events enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Events dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Events dropped at enqueue by reason", "reason")
	m.workerActive = m.gauge("worker_active_count", "Number of running event workers")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Event dispatch latency in milliseconds")
	m.handlerErrors = m.counterVec("handler_errors_total", "Event handler failures by handler", "handler")
	m.eventLag = m.histogram("event_lag_milliseconds", "Time between publishing a transaction event and handling it")
	m.moneyMoved = m.counterVec("money_moved_total", "Absolute amount moved by successful mutations", "currency", "kind")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint, method and error type", "endpoint", "method", "error_type")
	m.idempotentReplays = m.counter("idempotent_replays_total", "Mutations skipped because their Idempotency-Key was already seen")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "system_gc_pause_time_milliseconds",
		Help:    "Average GC pause time in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Ledger.

// RecordTransaction counts one balance mutation and its latency.
func RecordTransaction(kind, outcome string, latencyMs float64) {
	globalManager.transactions.WithLabelValues(kind, outcome).Inc()
	globalManager.transactionLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordAccountCreated increments the created accounts counter.
func RecordAccountCreated() {
	globalManager.accountsCreated.Inc()
}

// RecordJobSwitch counts a successful job switch.
func RecordJobSwitch(job string) {
	globalManager.jobSwitches.WithLabelValues(job).Inc()
}

// RecordLevelUp counts levels gained in a job.
func RecordLevelUp(job string, levels int) {
	globalManager.levelUps.WithLabelValues(job).Add(float64(levels))
}

// Storage.

// RecordBackendCall observes one persistence call.
func RecordBackendCall(backend, op string, latencyMs float64) {
	globalManager.backendLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordBackendError counts a failed persistence call.
func RecordBackendError(backend, op string) {
	globalManager.backendErrors.WithLabelValues(backend, op).Inc()
}

// RecordDocumentSave observes a document flush.
func RecordDocumentSave(latencyMs float64, err error) {
	if err != nil {
		globalManager.documentSaveErrs.Inc()
		return
	}
	globalManager.documentSaves.Inc()
	globalManager.documentSaveMs.Observe(latencyMs)
}

// UpdateDocumentAccounts sets the number of records held in memory.
func UpdateDocumentAccounts(count int) {
	globalManager.documentAccounts.Set(float64(count))
}

// Leaderboard.

// RecordLeaderboardRecompute observes a leaderboard rebuild.
func RecordLeaderboardRecompute(currency, mode string, latencyMs float64, computedUnix int64) {
	globalManager.leaderboardRecomputes.WithLabelValues(currency, mode).Inc()
	globalManager.leaderboardRecomputeMs.WithLabelValues(mode).Observe(latencyMs)
	globalManager.leaderboardLastComputed.WithLabelValues(currency).Set(float64(computedUnix))
}

// RecordLeaderboardStaleServed counts a read served while a rebuild ran.
func RecordLeaderboardStaleServed() {
	globalManager.leaderboardStaleServed.Inc()
}

// Event bus.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size and utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a dropped event.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerProcessingLatency observes one event dispatch.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordEventLag observes the delay between publish and dispatch.
func RecordEventLag(lagMs float64) {
	globalManager.eventLag.Observe(lagMs)
}

// RecordMoneyMoved adds amount to the moved total of currency.
func RecordMoneyMoved(currency, kind string, amount float64) {
	if amount < 0 {
		amount = -amount
	}
	globalManager.moneyMoved.WithLabelValues(currency, kind).Add(amount)
}

// RecordHandlerError counts a failed event handler.
func RecordHandlerError(handler string) {
	globalManager.handlerErrors.WithLabelValues(handler).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordIdempotentReplay counts a request short-circuited by its Idempotency-Key.
func RecordIdempotentReplay() {
	globalManager.idempotentReplays.Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
