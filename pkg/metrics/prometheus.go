// Package metrics provides Prometheus metrics for the pickle analytics service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// DefaultLatencyBuckets are the millisecond buckets of latency histograms
// that are not given their own.
var DefaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000} //nolint:gochecknoglobals // read-only defaults

// Manager manages all Prometheus metrics for the pickle service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Job lifecycle
	jobsSubmitted prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsActive    prometheus.Gauge
	jobDuration   prometheus.Histogram

	// Match analytics
	framesProcessed prometheus.Counter
	frameLatency    prometheus.Histogram
	bouncesDetected prometheus.Counter
	ralliesClosed   prometheus.Counter
	pointsAwarded   *prometheus.CounterVec

	// Job store
	storeJobs          prometheus.Gauge
	storeUpdateLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram

	// Archive
	archiveWrites  prometheus.Counter
	archiveLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	streamClients       prometheus.Gauge
	streamFrames        prometheus.Counter

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    prometheus.Counter
	queueWait        prometheus.Histogram

	// Worker
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	workerPanics            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

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
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the global manager and its registry. Call it once at
// startup, before handlers capture GetRegistry.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pickle",
		subsystem:        "analytics",
		histogramBuckets: DefaultLatencyBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics. A disabled manager
// still creates them so callers never see nil collectors, it just does not
// register them.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	var reg prometheus.Registerer
	if m.enabled {
		reg = m.registry
	}
	auto := promauto.With(reg)

	m.jobsSubmitted = auto.NewCounter(m.counterOpts("jobs_submitted_total", "Total number of accepted uploads"))
	m.jobsCompleted = auto.NewCounter(m.counterOpts("jobs_completed_total", "Total number of jobs that completed"))
	m.jobsFailed = auto.NewCounter(m.counterOpts("jobs_failed_total", "Total number of jobs that failed"))
	m.jobsActive = auto.NewGauge(m.gaugeOpts("jobs_active", "Jobs currently being processed"))
	m.jobDuration = auto.NewHistogram(m.histogramOpts("job_duration_seconds", "Wall time from dequeue to terminal state",
		[]float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}))

	m.framesProcessed = auto.NewCounter(m.counterOpts("frames_processed_total", "Total number of analysed frames"))
	m.frameLatency = auto.NewHistogram(m.histogramOpts("frame_latency_milliseconds", "Per-frame analysis and publish latency",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}))
	m.bouncesDetected = auto.NewCounter(m.counterOpts("bounces_detected_total", "Total number of detected bounces"))
	m.ralliesClosed = auto.NewCounter(m.counterOpts("rallies_total", "Total number of closed rallies"))
	m.pointsAwarded = auto.NewCounterVec(m.counterOpts("points_awarded_total", "Points awarded by winning side"),
		[]string{"winner"})

	m.storeJobs = auto.NewGauge(m.gaugeOpts("store_jobs", "Job records held by the job store"))
	m.storeUpdateLatency = auto.NewHistogram(m.histogramOpts("store_update_latency_milliseconds", "Job store publish latency", nil))
	m.storeQueryLatency = auto.NewHistogram(m.histogramOpts("store_query_latency_milliseconds", "Job store read latency", nil))

	m.archiveWrites = auto.NewCounter(m.counterOpts("archive_writes_total", "Completed jobs written to the archive"))
	m.archiveLatency = auto.NewHistogram(m.histogramOpts("archive_latency_milliseconds", "Archive statement latency", nil))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"})
	m.streamClients = auto.NewGauge(m.gaugeOpts("stream_clients", "Open live frame streams"))
	m.streamFrames = auto.NewCounter(m.counterOpts("stream_frames_total", "JPEG parts written to live streams"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Jobs waiting for a worker"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Admission queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Admission queue fill ratio"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Jobs admitted to the queue"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Jobs taken by workers"))
	m.queueRejected = auto.NewCounter(m.counterOpts("queue_rejected_total", "Uploads rejected because the queue was full"))
	m.queueWait = auto.NewHistogram(m.histogramOpts("queue_wait_milliseconds", "Time a job waited before a worker took it", nil))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers running a job"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Workers waiting for a job"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Time a worker spent on one job",
		[]float64{100, 500, 1000, 5000, 15000, 60000, 300000}))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs a worker finished in the failed state"))
	m.workerPanics = auto.NewCounter(m.counterOpts("worker_panics_total", "Panics recovered at the worker boundary"))

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Job lifecycle.

// RecordJobSubmitted increments the accepted uploads counter.
func RecordJobSubmitted() { globalManager.jobsSubmitted.Inc() }

// RecordJobStarted marks a job as in progress.
func RecordJobStarted() { globalManager.jobsActive.Inc() }

// RecordJobCompleted records a completed job and its duration.
func RecordJobCompleted(d time.Duration) {
	globalManager.jobsActive.Dec()
	globalManager.jobsCompleted.Inc()
	globalManager.jobDuration.Observe(d.Seconds())
}

// RecordJobFailed records a failed job and its duration.
func RecordJobFailed(d time.Duration) {
	globalManager.jobsActive.Dec()
	globalManager.jobsFailed.Inc()
	globalManager.jobDuration.Observe(d.Seconds())
}

// Match analytics.

// RecordFrameProcessed counts one frame and its latency in milliseconds.
func RecordFrameProcessed(latencyMs float64) {
	globalManager.framesProcessed.Inc()
	globalManager.frameLatency.Observe(latencyMs)
}

// RecordBounce increments the bounce counter.
func RecordBounce() { globalManager.bouncesDetected.Inc() }

// RecordRally increments the closed rallies counter.
func RecordRally() { globalManager.ralliesClosed.Inc() }

// RecordPoint counts a point for the winning side.
func RecordPoint(winner string) {
	globalManager.pointsAwarded.WithLabelValues(winner).Inc()
}

// Job store.

// UpdateStoreJobs sets the number of records in the job store.
func UpdateStoreJobs(count int) { globalManager.storeJobs.Set(float64(count)) }

// RecordStoreUpdateLatency records a publish latency in milliseconds.
func RecordStoreUpdateLatency(latencyMs float64) { globalManager.storeUpdateLatency.Observe(latencyMs) }

// RecordStoreQueryLatency records a read latency in milliseconds.
func RecordStoreQueryLatency(latencyMs float64) { globalManager.storeQueryLatency.Observe(latencyMs) }

// Archive.

// RecordArchiveWrite counts one archived job and the write latency.
func RecordArchiveWrite(latencyMs float64) {
	globalManager.archiveWrites.Inc()
	globalManager.archiveLatency.Observe(latencyMs)
}

// RecordArchiveLatency records the latency of an archive read.
func RecordArchiveLatency(latencyMs float64) { globalManager.archiveLatency.Observe(latencyMs) }

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// AddStreamClients adjusts the number of open live streams.
func AddStreamClients(delta int) { globalManager.streamClients.Add(float64(delta)) }

// RecordStreamFrame counts one part written to a live stream.
func RecordStreamFrame() { globalManager.streamFrames.Inc() }

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueRejected increments the rejected uploads counter.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// RecordQueueWait records how long a job sat in the queue.
func RecordQueueWait(latencyMs float64) { globalManager.queueWait.Observe(latencyMs) }

// Worker.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) { globalManager.workerIdleCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records the time spent on one job.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordWorkerPanic increments the recovered panic counter.
func RecordWorkerPanic() { globalManager.workerPanics.Inc() }

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// RefreshInterval returns how often periodic gauges should be refreshed, as
// set by WithRefreshInterval on the global manager.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
