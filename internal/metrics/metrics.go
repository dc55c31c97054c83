package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challenge_media_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Auth metrics
var (
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_admin_auth_attempts_total",
			Help: "Admin authentication attempts by result",
		},
		[]string{"result"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challenge_media_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Upload metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_uploads_total",
			Help: "Total number of completed upload attempts by mode and status",
		},
		[]string{"mode", "status"}, // mode: "single", "chunked"
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "challenge_media_upload_bytes",
			Help:    "Size of accepted uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)

	UploadSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_upload_sessions_active",
			Help: "Number of chunked upload sessions that are created or receiving",
		},
	)

	UploadSessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_upload_session_transitions_total",
			Help: "Upload session state transitions by target state",
		},
		[]string{"state"},
	)

	UploadChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_upload_chunks_total",
			Help: "Chunk writes by outcome",
		},
		[]string{"status"}, // "accepted", "duplicate", "rejected", "failed"
	)

	UploadChunkRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_media_upload_chunk_retries_total",
			Help: "Retried chunk writes after transient storage errors",
		},
	)
)

// Variant metrics
var (
	VariantGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_variant_generations_total",
			Help: "Variant generations by preset and status",
		},
		[]string{"variant", "status"},
	)

	VariantGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challenge_media_variant_generation_duration_seconds",
			Help:    "Time to resize, encode and store one variant",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"variant"},
	)

	VariantRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_variant_rejected_total",
			Help: "Originals rejected before decode",
		},
		[]string{"reason"},
	)
)

// Codec metrics
var (
	CodecOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_codec_operations_total",
			Help: "Codec operations by kind and status",
		},
		[]string{"operation", "status"},
	)

	CodecOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challenge_media_codec_operation_duration_seconds",
			Help:    "Codec operation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	CodecInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_codec_in_flight",
			Help: "Codec operations currently holding a concurrency slot",
		},
	)

	CodecQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_codec_queued",
			Help: "Codec operations waiting for a concurrency slot",
		},
	)

	CodecRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_codec_rejected_total",
			Help: "Codec operations shed instead of queued",
		},
		[]string{"reason"}, // "queue_full", "memory_critical"
	)

	CodecCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_media_codec_cache_hits_total",
			Help: "Decoded bitmap cache hits",
		},
	)

	CodecCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_media_codec_cache_misses_total",
			Help: "Decoded bitmap cache misses",
		},
	)

	CodecCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_codec_cache_bytes",
			Help: "Estimated bytes held by the decoded bitmap cache",
		},
	)

	CodecCacheEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_codec_cache_enabled",
			Help: "Whether the codec cache is enabled (1) or disabled by the memory governor (0)",
		},
	)
)

// Memory metrics
var (
	MemoryHeapRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_memory_heap_ratio",
			Help: "Heap in use divided by heap obtained from the OS (0.0-1.0)",
		},
	)

	MemoryRSSRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_memory_rss_ratio",
			Help: "Resident set size divided by the configured limit (0 when no limit)",
		},
	)

	MemoryPressureLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_memory_pressure_level",
			Help: "Current memory pressure level (0=low, 1=medium, 2=high, 3=critical)",
		},
	)

	MemoryReclaimTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_memory_reclaim_total",
			Help: "Reclaim actions taken by the memory governor",
		},
		[]string{"action"},
	)

	MemorySampleErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_media_memory_sample_errors_total",
			Help: "Failed memory samples",
		},
	)
)

// Resolver metrics
var (
	ResolverRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_resolver_requests_total",
			Help: "Image resolutions by requested variant and result",
		},
		[]string{"variant", "result"}, // result: "hit", "fallback", "not_found", "error"
	)
)

// Storage metrics
var (
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challenge_media_storage_operation_duration_seconds",
			Help:    "Blob storage operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "operation"},
	)

	StorageRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_storage_retry_attempts_total",
			Help: "Storage operations retried after a transient error",
		},
		[]string{"operation"},
	)

	StorageRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_storage_retry_failures_total",
			Help: "Storage operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)
)

// Event metrics
var (
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_media_events_published_total",
			Help: "Image events published by type and status",
		},
		[]string{"type", "status"},
	)
)

// Library metrics
var (
	ImagesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_images_total",
			Help: "Total number of image records",
		},
	)

	VariantsStoredTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_media_variants_stored_total",
			Help: "Total number of stored variants",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "challenge_media_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
