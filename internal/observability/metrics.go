package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	simCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackerctl",
			Subsystem: "sim",
			Name:      "commands_total",
			Help:      "Device commands dispatched by the simulator.",
		},
		[]string{"verb", "outcome"},
	)
	simCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackerctl",
			Subsystem: "sim",
			Name:      "command_duration_seconds",
			Help:      "Device command handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"verb"},
	)
	simBusyRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackerctl",
			Subsystem: "sim",
			Name:      "busy_rejections_total",
			Help:      "Commands rejected with the busy code.",
		},
	)
	simPoseUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackerctl",
			Subsystem: "sim",
			Name:      "pose_updates_total",
			Help:      "Pose telemetry updates applied per body.",
		},
		[]string{"body"},
	)
	simConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackerctl",
			Subsystem: "sim",
			Name:      "connections_total",
			Help:      "Device connections accepted.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackerctl",
			Subsystem: "admin_http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackerctl",
			Subsystem: "admin_http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			simCommands, simCommandDuration, simBusyRejections,
			simPoseUpdates, simConnections, httpRequests, httpDuration,
		)
	})
}

// MetricsHandler returns the scrape handler for the default registry.
func MetricsHandler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordSimCommand(verb, outcome string, duration time.Duration) {
	RegisterMetrics()
	simCommands.WithLabelValues(verb, outcome).Inc()
	simCommandDuration.WithLabelValues(verb).Observe(duration.Seconds())
}

func RecordBusyRejection() {
	RegisterMetrics()
	simBusyRejections.Inc()
}

func RecordPoseUpdate(body string) {
	RegisterMetrics()
	simPoseUpdates.WithLabelValues(body).Inc()
}

func RecordConnection() {
	RegisterMetrics()
	simConnections.Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
