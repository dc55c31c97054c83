// Package metrics provides Prometheus instrumentation for challenge-media.
//
// All metrics are registered on the default registry with promauto and are
// prefixed with "challenge_media_". They are served by promhttp.Handler() on
// the separate metrics port.
//
// # Metric Categories
//
// ## HTTP
//   - HTTPRequestsTotal, HTTPRequestDuration: by method, route template and status
//   - HTTPRequestsInFlight
//   - AuthAttempts: admin Basic auth results (success, failure, disabled)
//
// ## Uploads
//   - UploadsTotal: by mode (single, chunked) and status (success, rejected, error)
//   - UploadBytes: size histogram of accepted uploads
//   - UploadSessionsActive, UploadSessionTransitions: chunked session lifecycle
//   - UploadChunksTotal, UploadChunkRetries: chunk outcomes and staging retries
//
// ## Variants and codec
//   - VariantGenerationsTotal, VariantGenerationDuration: per variant name
//   - VariantRejectedTotal: originals refused by the size limits
//   - CodecOperationsTotal, CodecOperationDuration: probe, decode, resize, encode
//   - CodecInFlight, CodecQueued, CodecRejected: admission control
//   - CodecCacheHits, CodecCacheMisses, CodecCacheBytes, CodecCacheEnabled
//
// ## Memory
//   - MemoryHeapRatio, MemoryRSSRatio, MemoryPressureLevel (0 low .. 3 critical)
//   - MemoryReclaimTotal: by action (preventive, standard, aggressive, cache_restored)
//   - MemorySampleErrors
//
// ## Delivery, storage and records
//   - ResolverRequestsTotal: by requested variant and result (hit, fallback, not_found, error)
//   - StorageOperationDuration, StorageRetryAttempts, StorageRetryFailures
//   - DBQueryTotal, DBQueryDuration, DBConnectionsOpen
//   - EventsPublishedTotal
//   - ImagesTotal, VariantsStoredTotal: refreshed by the [Collector]
//   - AppInfo: version, commit and Go version labels
//
// Call [InitializeMetrics] once at startup so every expected label
// combination is exported from the first scrape.
//
// # Collector
//
// [Collector] polls a [StatsProvider] on an interval and updates the library
// gauges. A provider that also implements [DBMetricsUpdater] has its
// connection metrics refreshed on the same tick:
//
//	collector := metrics.NewCollector(db, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Fallback rate (variants served from a larger rendition or the original):
//
//	sum(rate(challenge_media_resolver_requests_total{result="fallback"}[5m]))
//	/ sum(rate(challenge_media_resolver_requests_total[5m]))
//
// Chunked sessions that did not complete:
//
//	sum(rate(challenge_media_upload_session_transitions_total{state=~"expired|failed"}[1h]))
//
// Load shedding:
//
//	sum(rate(challenge_media_codec_rejected_total[5m])) by (reason)
package metrics
