// Package memory governs process memory while images are decoded and resized.
//
// A Governor samples heap usage (HeapAlloc relative to HeapSys) and resident
// set size (relative to a configured limit) on a fixed interval, classifies the
// more severe of the two signals into a pressure Level, and reclaims in tiers:
//
//	low      no action
//	medium   one GC cycle
//	high     GC and a codec cache flush
//	critical several GC cycles, FreeOSMemory, cache flush, and the codec
//	         cache disabled until a cooldown has passed
//
// Reclaim steps are best effort. A failing step is logged and skipped.
//
// # Usage
//
//	memory.ConfigureFromEnv() // set GOMEMLIMIT from MEMORY_LIMIT early in main
//
//	gov := memory.NewGovernor(memory.DefaultConfig(), codecAdapter)
//	gov.Start()
//	defer gov.Stop()
//
//	if gov.IsCritical() {
//	    // shed load
//	}
//
// # Environment Variables
//
//   - GOMEMLIMIT: standard Go soft memory limit, takes precedence
//   - MEMORY_LIMIT: container memory limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO: fraction of MEMORY_LIMIT given to the Go heap (default 0.85)
//
// # Metrics
//
//   - challenge_media_memory_heap_ratio
//   - challenge_media_memory_rss_ratio
//   - challenge_media_memory_pressure_level
//   - challenge_media_memory_reclaim_total{action}
package memory
