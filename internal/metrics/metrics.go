// Package metrics exposes process-wide Prometheus collectors for the bridge
// service: HTTP traffic, action submissions, attached event streams and stage
// admission delays. Per-session lifecycle metrics live in the progress sinks.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	bridgeSubmissionsTotal      *prometheus.CounterVec
	bridgeAttachedStreams       prometheus.Gauge
	bridgeAdmissionDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		bridgeSubmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_submissions_total",
				Help: "Action submissions, labeled by action and outcome.",
			},
			[]string{"action", "outcome"},
		)

		bridgeAttachedStreams = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_attached_streams",
				Help: "Number of event streams currently attached to a remote consumer.",
			},
		)

		bridgeAdmissionDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_stage_admission_delay_seconds",
				Help:    "Time a stage waited for rate-limited admission.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"stage"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SanitizeAction bounds label cardinality for client-supplied action names.
func SanitizeAction(name string) string {
	switch name {
	case "start_stage_a", "start_stage_b", "cleanup":
		return name
	default:
		return "unknown"
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSubmission counts one Submit call and its outcome.
func ObserveSubmission(action, outcome string) {
	Init()
	bridgeSubmissionsTotal.WithLabelValues(SanitizeAction(action), outcome).Inc()
}

// IncAttachedStreams increments the attached streams gauge.
func IncAttachedStreams() {
	Init()
	bridgeAttachedStreams.Inc()
}

// DecAttachedStreams decrements the attached streams gauge.
func DecAttachedStreams() {
	Init()
	bridgeAttachedStreams.Dec()
}

// ObserveAdmissionDelay records how long a stage waited for admission.
func ObserveAdmissionDelay(stage string, duration time.Duration) {
	Init()
	bridgeAdmissionDelaySeconds.WithLabelValues(stage).Observe(duration.Seconds())
}
