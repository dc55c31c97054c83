package handlers

import (
	"context"
	"time"

	"challenge-media/internal/database"
	"challenge-media/internal/ingest"
	"challenge-media/internal/memory"
	"challenge-media/internal/metrics"
	"challenge-media/internal/resolver"
	"challenge-media/internal/upload"
)

// Library is the part of the metadata store the handlers query directly.
type Library interface {
	GetImageByPath(ctx context.Context, path string) (*database.ImageRecord, error)
	ListImages(ctx context.Context, opts database.ListOptions) (*database.ImagePage, error)
	UpdateImageMetadata(ctx context.Context, path string, update database.MetadataUpdate) (*database.ImageRecord, error)
	GetStats(ctx context.Context) (metrics.Stats, error)
	Ping(ctx context.Context) error
}

// MemoryStatus reports the current memory pressure level.
type MemoryStatus interface {
	Level() memory.Level
}

// Config holds handler settings.
type Config struct {
	// RetryAfter is sent with 503 responses.
	RetryAfter time.Duration
	// MaxBulkDelete caps the number of paths in one bulk delete request.
	MaxBulkDelete int
}

// DefaultConfig returns the default handler configuration.
func DefaultConfig() Config {
	return Config{
		RetryAfter:    5 * time.Second,
		MaxBulkDelete: 500,
	}
}

type Handlers struct {
	library  Library
	ingest   *ingest.Service
	uploads  *upload.Manager
	resolver *resolver.Resolver
	memory   MemoryStatus
	config   Config
	started  time.Time
}

// New creates the HTTP handlers. memory may be nil.
func New(library Library, svc *ingest.Service, uploads *upload.Manager, res *resolver.Resolver, mem MemoryStatus, config Config) *Handlers {
	d := DefaultConfig()
	if config.RetryAfter <= 0 {
		config.RetryAfter = d.RetryAfter
	}
	if config.MaxBulkDelete <= 0 {
		config.MaxBulkDelete = d.MaxBulkDelete
	}
	return &Handlers{
		library:  library,
		ingest:   svc,
		uploads:  uploads,
		resolver: res,
		memory:   mem,
		config:   config,
		started:  time.Now(),
	}
}
