package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scriptbridge"

var (
	latencyBuckets = []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	sizeBuckets    = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
)

// Metrics holds every collector on a registry of its own
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Job queue metrics
	JobsEnqueued *prometheus.CounterVec
	JobsTotal    *prometheus.CounterVec
	JobWait      *prometheus.HistogramVec
	JobRun       *prometheus.HistogramVec
	QueueLength  prometheus.Gauge

	// Event and module metrics
	EventsDispatched *prometheus.CounterVec
	EventDuration    *prometheus.HistogramVec
	ModulesResolved  *prometheus.CounterVec
	ModuleDuration   *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the health endpoint
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	EventsVetoed   int64   `json:"events_vetoed"`
	EventsFailed   int64   `json:"events_failed"`
	QueueDepth     int64   `json:"queue_depth"`
	AverageLatency float64 `json:"average_latency_seconds"`
	UptimeSeconds  float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   latencyBuckets,
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"method", "path"},
		),

		JobsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_enqueued_total",
				Help:      "Jobs accepted by the execution queue",
			},
			[]string{"kind"},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_completed_total",
				Help:      "Jobs completed by the execution queue",
			},
			[]string{"kind", "status"},
		),
		JobWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_wait_seconds",
				Help:      "Time jobs spent queued before running",
				Buckets:   latencyBuckets,
			},
			[]string{"kind"},
		),
		JobRun: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_run_seconds",
				Help:      "Time jobs spent running",
				Buckets:   latencyBuckets,
			},
			[]string{"kind"},
		),
		QueueLength: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Jobs waiting in the execution queue",
			},
		),

		EventsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dispatched_total",
				Help:      "Events dispatched to script listeners",
			},
			[]string{"event", "outcome"},
		),
		EventDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_dispatch_seconds",
				Help:      "Time from enqueue to dispatch completion",
				Buckets:   latencyBuckets,
			},
			[]string{"event"},
		),
		ModulesResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "modules_resolved_total",
				Help:      "Module source resolutions by loader",
			},
			[]string{"loader", "status"},
		),
		ModuleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "module_resolve_seconds",
				Help:      "Module source resolution time",
				Buckets:   latencyBuckets,
			},
			[]string{"loader"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry holding every collector
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// JobEnqueued counts a job accepted by the queue
func (m *Metrics) JobEnqueued(kind string) {
	m.JobsEnqueued.WithLabelValues(kind).Inc()
}

// JobCompleted records a finished job
func (m *Metrics) JobCompleted(kind, status string, wait, run time.Duration) {
	m.JobsTotal.WithLabelValues(kind, status).Inc()
	m.JobWait.WithLabelValues(kind).Observe(wait.Seconds())
	m.JobRun.WithLabelValues(kind).Observe(run.Seconds())
}

// QueueDepth sets the queue gauge
func (m *Metrics) QueueDepth(depth int) {
	m.QueueLength.Set(float64(depth))
	m.mu.Lock()
	m.snapshot.QueueDepth = int64(depth)
	m.mu.Unlock()
}

// EventDispatched records a dispatch outcome: delivered, vetoed or error
func (m *Metrics) EventDispatched(event, outcome string, elapsed time.Duration) {
	m.EventsDispatched.WithLabelValues(event, outcome).Inc()
	m.EventDuration.WithLabelValues(event).Observe(elapsed.Seconds())

	switch outcome {
	case "vetoed":
		m.mu.Lock()
		m.snapshot.EventsVetoed++
		m.mu.Unlock()
	case "error":
		m.mu.Lock()
		m.snapshot.EventsFailed++
		m.mu.Unlock()
	}
}

// ModuleResolved records a resolution attempt
func (m *Metrics) ModuleResolved(loader, status string, elapsed time.Duration) {
	m.ModulesResolved.WithLabelValues(loader, status).Inc()
	m.ModuleDuration.WithLabelValues(loader).Observe(elapsed.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns the running totals
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AverageLatency = s.totalDuration / float64(s.TotalRequests)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
