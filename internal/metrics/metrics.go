// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagevault_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagevault_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagevault_uploads_total",
			Help: "Upload attempts after authentication, by outcome and target format.",
		},
		[]string{"outcome", "format"},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imagevault_upload_stored_bytes",
			Help:    "Size of encoded images written to storage.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8),
		},
	)

	ActivityFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imagevault_activity_log_failures_total",
			Help: "Activity log writes that failed and were dropped.",
		},
	)

	TempFilesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imagevault_temp_files_swept_total",
			Help: "Stale temporary upload files removed by the sweeper.",
		},
	)
)
