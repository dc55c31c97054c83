package upload

import (
	"fmt"
	"time"

	"challenge-media/internal/codec"
	"challenge-media/internal/storage"
)

// Config holds the upload tunables.
type Config struct {
	// MaxFileSize is the largest accepted upload in bytes.
	MaxFileSize int64
	// ChunkSize is the default chunk size for new sessions.
	ChunkSize int64
	// MaxChunks bounds the number of chunks in one session.
	MaxChunks int
	// ChunkTimeout bounds a single chunk write including retries.
	ChunkTimeout time.Duration
	// RetryAttempts is the number of retries after a transient staging error.
	RetryAttempts int
	// RetryDelay is the initial backoff between retries; it doubles per attempt.
	RetryDelay time.Duration
	// ProgressiveThreshold is the size above which uploads must be chunked.
	ProgressiveThreshold int64
	// SessionTimeout is the absolute lifetime of a session.
	SessionTimeout time.Duration
	// SweepInterval is how often expired sessions are collected.
	SweepInterval time.Duration
	// TombstoneTTL is how long terminal sessions are remembered.
	TombstoneTTL time.Duration
	// Retriable classifies completion failures. Defaults to storage.IsTransient.
	Retriable func(error) bool
}

// DefaultConfig returns the default upload configuration.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:          50 * 1024 * 1024,
		ChunkSize:            2 * 1024 * 1024,
		MaxChunks:            100,
		ChunkTimeout:         5 * time.Minute,
		RetryAttempts:        3,
		RetryDelay:           time.Second,
		ProgressiveThreshold: 25 * 1024 * 1024,
		SessionTimeout:       30 * time.Minute,
		SweepInterval:        time.Minute,
		TombstoneTTL:         10 * time.Minute,
		Retriable:            storage.IsTransient,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = d.MaxChunks
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = d.ChunkTimeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.ProgressiveThreshold <= 0 {
		c.ProgressiveThreshold = d.ProgressiveThreshold
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = d.SessionTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.TombstoneTTL <= 0 {
		c.TombstoneTTL = d.TombstoneTTL
	}
	if c.Retriable == nil {
		c.Retriable = d.Retriable
	}
	return c
}

func (c Config) retryConfig() storage.RetryConfig {
	return storage.RetryConfig{
		MaxRetries:     c.RetryAttempts,
		InitialBackoff: c.RetryDelay,
		MaxBackoff:     c.RetryDelay * 8,
	}
}

// ShouldChunk reports whether an upload of size bytes must use the chunked
// path.
func (c Config) ShouldChunk(size int64) bool {
	return size > c.ProgressiveThreshold
}

// PlanChunks returns the number of chunks needed for size bytes at
// chunkSize (the configured chunk size when zero).
func (c Config) PlanChunks(size, chunkSize int64) (int, error) {
	if chunkSize <= 0 {
		chunkSize = c.ChunkSize
	}
	if size <= 0 || chunkSize <= 0 {
		return 0, fmt.Errorf("%w: size %d, chunk size %d", ErrInvalidSession, size, chunkSize)
	}
	if size > c.MaxFileSize {
		return 0, fmt.Errorf("%w: %d bytes exceeds limit of %d", codec.ErrImageTooLarge, size, c.MaxFileSize)
	}
	n := (size + chunkSize - 1) / chunkSize
	if n > int64(c.MaxChunks) {
		return 0, fmt.Errorf("%w: %d chunks exceeds limit of %d", ErrTooManyChunks, n, c.MaxChunks)
	}
	return int(n), nil
}
