package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec

	// Message metrics
	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	MessageBytes     *prometheus.HistogramVec
	BlockedTasks     *prometheus.GaugeVec

	// Capability metrics
	CapabilitiesLive    prometheus.Gauge
	CapabilityRevokes   prometheus.Counter
	CapabilityTransfers prometheus.Counter

	// Object metrics
	ProcessesActive prometheus.Gauge
	EndpointsActive prometheus.Gauge
	RegionsActive   prometheus.Gauge
	QueueDepth      prometheus.Gauge

	// Event metrics
	EventsEmitted *prometheus.CounterVec

	// HTTP metrics (monitor API)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON stats API
type Snapshot struct {
	TotalSyscalls int64
	TotalDenied   int64
	TotalSent     int64
	TotalReceived int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		SyscallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_syscalls_total",
				Help: "Total number of syscalls by operation and result",
			},
			[]string{"op", "result"},
		),
		SyscallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_syscall_duration_seconds",
				Help:    "Syscall duration in seconds",
				Buckets: []float64{.000001, .00001, .0001, .001, .01, .1, 1, 10},
			},
			[]string{"op"},
		),

		MessagesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_messages_sent_total",
				Help: "Total number of messages enqueued",
			},
		),
		MessagesReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_messages_received_total",
				Help: "Total number of messages delivered",
			},
		),
		MessageBytes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_message_bytes",
				Help:    "Message payload size in bytes",
				Buckets: []float64{16, 64, 256, 4096, 65536, 1048576, 16777216},
			},
			[]string{"payload"},
		),
		BlockedTasks: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kernel_blocked_tasks",
				Help: "Number of tasks blocked on queues by direction",
			},
			[]string{"direction"},
		),

		CapabilitiesLive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_capabilities_live",
				Help: "Number of live capability table entries",
			},
		),
		CapabilityRevokes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_capability_revokes_total",
				Help: "Total number of capability revocations including cascades",
			},
		),
		CapabilityTransfers: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_capability_transfers_total",
				Help: "Total number of capabilities moved through messages",
			},
		),

		ProcessesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_processes_active",
				Help: "Number of registered processes",
			},
		),
		EndpointsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_endpoints_active",
				Help: "Number of live endpoints",
			},
		),
		RegionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_regions_active",
				Help: "Number of live shared memory regions",
			},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_queue_depth",
				Help: "Total number of in-flight messages across all queues",
			},
		),

		EventsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_events_emitted_total",
				Help: "Total number of observability events by kind and result",
			},
			[]string{"kind", "result"},
		),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_http_requests_total",
				Help: "Total number of monitor API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_http_request_duration_seconds",
				Help:    "Monitor API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_uptime_seconds",
				Help: "Kernel uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordSyscall records a completed syscall
func (m *Metrics) RecordSyscall(op, result string, duration time.Duration) {
	m.SyscallsTotal.WithLabelValues(op, result).Inc()
	m.SyscallDuration.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalSyscalls++
	if result == "denied" {
		m.snapshot.TotalDenied++
	}
	m.mu.Unlock()
}

// RecordEvent records an emitted observability event
func (m *Metrics) RecordEvent(kind, result string) {
	m.EventsEmitted.WithLabelValues(kind, result).Inc()
}

// RecordSent records an enqueued message and its payload size
func (m *Metrics) RecordSent(payload string, bytes int) {
	m.MessagesSent.Inc()
	m.MessageBytes.WithLabelValues(payload).Observe(float64(bytes))

	m.mu.Lock()
	m.snapshot.TotalSent++
	m.mu.Unlock()
}

// RecordReceived records a delivered message
func (m *Metrics) RecordReceived() {
	m.MessagesReceived.Inc()

	m.mu.Lock()
	m.snapshot.TotalReceived++
	m.mu.Unlock()
}

// RecordHTTPRequest records a monitor API request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetProcessesActive sets the number of registered processes
func (m *Metrics) SetProcessesActive(count int) {
	m.ProcessesActive.Set(float64(count))
}

// SetEndpointsActive sets the number of live endpoints
func (m *Metrics) SetEndpointsActive(count int) {
	m.EndpointsActive.Set(float64(count))
}

// SetRegionsActive sets the number of live shared memory regions
func (m *Metrics) SetRegionsActive(count int) {
	m.RegionsActive.Set(float64(count))
}

// SetCapabilitiesLive sets the number of live capability entries
func (m *Metrics) SetCapabilitiesLive(count int) {
	m.CapabilitiesLive.Set(float64(count))
}

// SetQueueDepth sets the total number of in-flight messages
func (m *Metrics) SetQueueDepth(count int) {
	m.QueueDepth.Set(float64(count))
}

// SetBlockedTasks sets the number of blocked tasks for a direction
func (m *Metrics) SetBlockedTasks(direction string, count int) {
	m.BlockedTasks.WithLabelValues(direction).Set(float64(count))
}

// GetSnapshot returns current counter values for the JSON stats API
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
