// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beehive_http_requests_total",
			Help: "HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beehive_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	photoOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beehive_photo_operations_total",
			Help: "Photo operations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	photoOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beehive_photo_operation_duration_seconds",
			Help:    "Photo operation latency, store round trips included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		},
		[]string{"op"},
	)

	uploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beehive_upload_size_bytes",
			Help:    "Size of verified uploads.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDurationSeconds)
	prometheus.MustRegister(photoOperationsTotal)
	prometheus.MustRegister(photoOperationDurationSeconds)
	prometheus.MustRegister(uploadBytes)
	prometheus.MustRegister(prometheus.NewBuildInfoCollector())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(method, route, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveOperation records one photo operation. outcome is "ok" or an error class.
func ObserveOperation(op, outcome string, elapsed time.Duration) {
	photoOperationsTotal.WithLabelValues(op, outcome).Inc()
	photoOperationDurationSeconds.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveUpload records the size of a verified upload.
func ObserveUpload(size int64) {
	uploadBytes.Observe(float64(size))
}
