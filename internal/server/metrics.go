package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinscan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vinscan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Scan metrics
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinscan_scans_total",
			Help: "Total number of scan requests by outcome",
		},
		[]string{"status"}, // found, empty, invalid, no_image, too_large, detect_error, save_error
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vinscan_scan_duration_seconds",
			Help:    "Scan pipeline duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	barcodesPerScan = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vinscan_barcodes_per_scan",
			Help:    "Number of barcodes decoded per scan",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
		},
	)

	artifactsSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vinscan_artifacts_saved_total",
			Help: "Total number of barcode crops saved",
		},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vinscan_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 32 * 1024 * 1024},
		},
	)

	panicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vinscan_handler_panics_total",
			Help: "Total number of recovered handler panics",
		},
	)
)
