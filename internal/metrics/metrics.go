package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Upload Metrics
	AssetUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_asset_uploads_total",
			Help: "Total number of source assets uploaded",
		},
	)

	AssetUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_asset_upload_size_bytes",
			Help:    "Size of uploaded source assets in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 15), // 1MB to 16GB
		},
	)

	// Job Metrics
	JobSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_job_submissions_total",
			Help: "Total number of transcode submissions by outcome",
		},
		[]string{"outcome"},
	)

	JobSubmitAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_job_submit_attempts",
			Help:    "Encoder calls needed per submission",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	JobTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_job_transitions_total",
			Help: "Total number of job status transitions",
		},
		[]string{"from", "to"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_jobs_completed_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_jobs_active",
			Help: "Number of non-terminal transcode jobs",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_job_duration_seconds",
			Help:    "Time from job creation to terminal status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		},
		[]string{"status"},
	)

	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_job_polls_total",
			Help: "Total number of encoder status polls by result",
		},
		[]string{"result"},
	)

	RenditionsRegisteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_renditions_registered_total",
			Help: "Total number of renditions marked ready",
		},
		[]string{"quality"},
	)

	// Delivery Metrics
	ResolvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_resolves_total",
			Help: "Total number of playback resolutions by outcome",
		},
		[]string{"format", "outcome"},
	)

	ResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_resolve_duration_seconds",
			Help:    "Playback resolution latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)

	SignedURLsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_signed_urls_total",
			Help: "Total number of signed URLs issued",
		},
		[]string{"status"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Worker Metrics
	EncodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_encodes_total",
			Help: "Total number of per-quality encodes run by the reference worker",
		},
		[]string{"quality", "status"},
	)

	EncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_worker_encode_duration_seconds",
			Help:    "Per-quality encode duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"quality"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordUpload records an accepted source upload
func RecordUpload(size int64) {
	AssetUploadsTotal.Inc()
	AssetUploadSizeBytes.Observe(float64(size))
}

// RecordSubmission records the outcome of a transcode submission
func RecordSubmission(outcome string, attempts int) {
	JobSubmissionsTotal.WithLabelValues(outcome).Inc()
	JobSubmitAttempts.Observe(float64(attempts))
}

// RecordTransition records a job status change
func RecordTransition(from, to string) {
	JobTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordJobCompleted records a job reaching a terminal status
func RecordJobCompleted(status string, duration float64) {
	JobsCompletedTotal.WithLabelValues(status).Inc()
	JobDuration.WithLabelValues(status).Observe(duration)
}

// UpdateActiveJobs sets the number of non-terminal jobs
func UpdateActiveJobs(active int) {
	JobsActive.Set(float64(active))
}

// RecordPoll records the result of a status poll
func RecordPoll(result string) {
	PollsTotal.WithLabelValues(result).Inc()
}

// RecordRendition records a rendition becoming ready
func RecordRendition(qualityID string) {
	RenditionsRegisteredTotal.WithLabelValues(qualityID).Inc()
}

// RecordResolve records a playback resolution
func RecordResolve(format, outcome string, duration float64) {
	ResolvesTotal.WithLabelValues(format, outcome).Inc()
	ResolveDuration.Observe(duration)
}

// RecordSignedURL records a signing attempt
func RecordSignedURL(status string) {
	SignedURLsTotal.WithLabelValues(status).Inc()
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordEncode records one per-quality encode
func RecordEncode(qualityID, status string, duration float64) {
	EncodesTotal.WithLabelValues(qualityID, status).Inc()
	EncodeDuration.WithLabelValues(qualityID).Observe(duration)
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// Status returns the conventional label for an operation result
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
