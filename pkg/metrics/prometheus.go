// Package metrics provides Prometheus metrics for the rolloff engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Draw source labels.
const (
	DrawLocal           = "local"
	DrawRemote          = "remote"
	DrawFallbackTimeout = "fallback_timeout"
	DrawFallbackError   = "fallback_error"
)

// Manager manages all Prometheus metrics for the rolloff service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Resolution lifecycle
	tieGroupsDetected    prometheus.Counter
	resolutionsStarted   prometheus.Counter
	resolutionsCompleted prometheus.Counter
	resolutionsAbandoned prometheus.Counter
	activeResolutions    prometheus.Gauge

	// Contest metrics
	contestsStarted prometheus.Counter
	contestDuration prometheus.Histogram
	rerolls         prometheus.Counter
	draws           *prometheus.CounterVec

	// Broadcast / event queue
	eventsPublished prometheus.Counter
	eventsDropped   prometheus.Counter
	eventQueueSize  prometheus.Gauge

	// Observer connections
	wsClients        prometheus.Gauge
	wsClientsDropped prometheus.Counter

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rolloff",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Handler returns an HTTP handler serving the custom registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.tieGroupsDetected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tie_groups_detected_total",
		Help:      "Total number of tie groups found by detection",
	})
	m.resolutionsStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolutions_started_total",
		Help:      "Total number of tie group resolutions started",
	})
	m.resolutionsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolutions_completed_total",
		Help:      "Total number of resolutions that produced a winner",
	})
	m.resolutionsAbandoned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolutions_abandoned_total",
		Help:      "Total number of resolutions abandoned after an internal failure",
	})
	m.activeResolutions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_resolutions",
		Help:      "Number of tie group resolutions currently in flight",
	})

	m.contestsStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "contests_started_total",
		Help:      "Total number of contests run, including rerolls",
	})
	m.contestDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "contest_duration_milliseconds",
		Help:      "Histogram of contest duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})
	m.rerolls = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rerolls_total",
		Help:      "Total number of recursive rerolls triggered by tied maxima",
	})
	m.draws = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "draws_total",
			Help:      "Total accepted draws by source",
		},
		[]string{"source"},
	)

	m.eventsPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_published_total",
		Help:      "Total number of observer events published",
	})
	m.eventsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_dropped_total",
		Help:      "Total number of observer events dropped under backpressure",
	})
	m.eventQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "event_queue_size",
		Help:      "Current size of the observer event queue",
	})

	m.wsClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ws_clients",
		Help:      "Number of connected websocket observers",
	})
	m.wsClientsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ws_clients_dropped_total",
		Help:      "Total number of websocket observers dropped for being slow",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// Package-level helpers recording against the global manager.

// RecordTieGroupsDetected counts tie groups found in one detection scan.
func RecordTieGroupsDetected(n int) {
	if n > 0 {
		globalManager.tieGroupsDetected.Add(float64(n))
	}
}

// RecordResolutionStarted counts a resolution entering flight.
func RecordResolutionStarted() { globalManager.resolutionsStarted.Inc() }

// RecordResolutionCompleted counts a resolution producing a winner.
func RecordResolutionCompleted() { globalManager.resolutionsCompleted.Inc() }

// RecordResolutionAbandoned counts a resolution abandoned after an error.
func RecordResolutionAbandoned() { globalManager.resolutionsAbandoned.Inc() }

// UpdateActiveResolutions sets the in-flight resolution gauge.
func UpdateActiveResolutions(n int) { globalManager.activeResolutions.Set(float64(n)) }

// RecordContestStarted counts one contest invocation.
func RecordContestStarted() { globalManager.contestsStarted.Inc() }

// RecordContestDuration observes one contest's wall time in milliseconds.
func RecordContestDuration(ms float64) { globalManager.contestDuration.Observe(ms) }

// RecordReroll counts a recursive reroll.
func RecordReroll() { globalManager.rerolls.Inc() }

// RecordDraw counts an accepted draw by source.
func RecordDraw(source string) { globalManager.draws.WithLabelValues(source).Inc() }

// RecordEventPublished counts an observer event accepted by the queue.
func RecordEventPublished() { globalManager.eventsPublished.Inc() }

// RecordEventDropped counts an observer event dropped under backpressure.
func RecordEventDropped() { globalManager.eventsDropped.Inc() }

// UpdateEventQueueSize sets the observer event queue gauge.
func UpdateEventQueueSize(n int) { globalManager.eventQueueSize.Set(float64(n)) }

// UpdateWSClients sets the connected observer gauge.
func UpdateWSClients(n int) { globalManager.wsClients.Set(float64(n)) }

// RecordWSClientDropped counts a slow observer being disconnected.
func RecordWSClientDropped() { globalManager.wsClientsDropped.Inc() }

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes one HTTP request duration in
// milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}
