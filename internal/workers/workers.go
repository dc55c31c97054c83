package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Environment variables that override computed worker counts.
const (
	CodecEnv  = "CODEC_CONCURRENCY"
	IngestEnv = "INGEST_WORKERS"
)

// Count returns the number of workers for a task type.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks such as decode and resize
//   - 2.0 for I/O-bound tasks such as storage writes
//
// The limit parameter caps the worker count to prevent resource exhaustion.
// Use 0 for no limit. A positive integer in envVar overrides the computed
// value but is still capped by limit.
func Count(envVar string, multiplier float64, limit int) int {
	if envVar != "" {
		if override := os.Getenv(envVar); override != "" {
			if count, err := strconv.Atoi(override); err == nil && count > 0 {
				if limit > 0 && count > limit {
					return limit
				}
				return count
			}
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCodec returns the codec concurrency cap (1 per CPU, capped by limit).
// CODEC_CONCURRENCY overrides it.
func ForCodec(limit int) int {
	return Count(CodecEnv, 1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
// INGEST_WORKERS overrides it.
func ForIO(limit int) int {
	return Count(IngestEnv, 2.0, limit)
}
