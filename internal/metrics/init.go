package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, mode := range []string{"single", "chunked"} {
		for _, status := range []string{"success", "rejected", "error"} {
			UploadsTotal.WithLabelValues(mode, status)
		}
	}

	for _, state := range []string{"created", "receiving", "completed", "expired", "cancelled", "failed"} {
		UploadSessionTransitions.WithLabelValues(state)
	}

	for _, status := range []string{"accepted", "duplicate", "rejected", "failed"} {
		UploadChunksTotal.WithLabelValues(status)
	}

	variantNames := []string{"thumbnail", "small", "medium", "large"}
	for _, v := range variantNames {
		VariantGenerationsTotal.WithLabelValues(v, "success")
		VariantGenerationsTotal.WithLabelValues(v, "error")
		VariantGenerationDuration.WithLabelValues(v)
	}
	for _, reason := range []string{"bytes", "dimensions", "pixels"} {
		VariantRejectedTotal.WithLabelValues(reason)
	}

	for _, op := range []string{"probe", "decode", "resize", "encode"} {
		CodecOperationsTotal.WithLabelValues(op, "success")
		CodecOperationsTotal.WithLabelValues(op, "error")
		CodecOperationDuration.WithLabelValues(op)
	}
	for _, reason := range []string{"queue_full", "memory_critical"} {
		CodecRejected.WithLabelValues(reason)
	}
	CodecCacheEnabled.Set(1)

	for _, action := range []string{"preventive", "standard", "aggressive", "cache_restored"} {
		MemoryReclaimTotal.WithLabelValues(action)
	}

	for _, v := range append([]string{"original"}, variantNames...) {
		for _, result := range []string{"hit", "fallback", "not_found", "error"} {
			ResolverRequestsTotal.WithLabelValues(v, result)
		}
	}

	for _, op := range []string{"put", "get", "stat", "delete"} {
		StorageRetryAttempts.WithLabelValues(op)
		StorageRetryFailures.WithLabelValues(op)
		for _, backend := range []string{"local", "s3", "memory"} {
			StorageOperationDuration.WithLabelValues(backend, op)
		}
	}

	for _, op := range []string{"create_image", "get_image_by_path", "get_image_by_id", "list_images",
		"set_variants", "update_image_metadata", "delete_image", "count_images"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"image.created", "image.deleted", "variants.generated"} {
		EventsPublishedTotal.WithLabelValues(t, "success")
		EventsPublishedTotal.WithLabelValues(t, "error")
	}
}
