package storage

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"challenge-media/internal/logging"
	"challenge-media/internal/metrics"
)

// RetryConfig configures retry behavior for storage operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS and object store hiccups
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	initial := c.InitialBackoff
	if initial <= 0 {
		initial = time.Millisecond
	}
	b := retry.NewExponential(initial)
	if c.MaxBackoff > 0 {
		b = retry.WithCappedDuration(c.MaxBackoff, b)
	}
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), b)
}

// Do runs fn, retrying transient errors with exponential backoff.
// Non-transient errors are returned immediately. op labels metrics and logs.
func Do(ctx context.Context, op string, config RetryConfig, fn func(ctx context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, config.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logging.Info("Storage %s succeeded on attempt %d", op, attempt)
			}
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt <= config.MaxRetries {
			metrics.StorageRetryAttempts.WithLabelValues(op).Inc()
			logging.Debug("Storage %s transient error, retrying (attempt %d/%d): %v", op, attempt, config.MaxRetries, err)
		}
		return retry.RetryableError(err)
	})

	if err != nil && IsTransient(err) {
		logging.Warn("Storage %s failed after %d attempts: %v", op, attempt, err)
		metrics.StorageRetryFailures.WithLabelValues(op).Inc()
	}
	return err
}
