package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"challenge-media/internal/memory"
	"challenge-media/internal/startup"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

const healthCheckTimeout = 2 * time.Second

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`

	MemoryLevel   string `json:"memoryLevel,omitempty"`
	ActiveUploads int    `json:"activeUploads"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Stats summary
	TotalImages   int `json:"totalImages"`
	TotalVariants int `json:"totalVariants"`
}

// HealthCheck returns the health status of the service. It answers 503
// only when the database is unreachable; critical memory pressure reports
// degraded.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:        statusHealthy,
		Ready:         true,
		Version:       startup.Version,
		Uptime:        time.Since(h.started).Round(time.Second).String(),
		Database:      "ok",
		ActiveUploads: h.uploads.Active(),
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
	}

	if err := h.library.Ping(ctx); err != nil {
		response.Status = statusUnhealthy
		response.Ready = false
		response.Database = err.Error()
	} else if stats, err := h.library.GetStats(ctx); err == nil {
		response.TotalImages = stats.TotalImages
		response.TotalVariants = stats.TotalVariants
	}

	if h.memory != nil {
		level := h.memory.Level()
		response.MemoryLevel = level.String()
		if level == memory.LevelCritical && response.Status == statusHealthy {
			response.Status = statusDegraded
			response.Ready = false
		}
	}

	status := http.StatusOK
	if response.Status == statusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	// For HEAD requests, only send headers (no body)
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessCheck returns 200 only when the database answers and memory
// pressure is below critical, so a load balancer stops sending uploads to
// an instance that would refuse them.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	ready := h.library.Ping(ctx) == nil
	if ready && h.memory != nil && h.memory.Level() == memory.LevelCritical {
		ready = false
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
