package storage

import (
	"context"
	"errors"
	"net"
	"path"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrNotExist is returned when a key has no stored object.
	ErrNotExist = errors.New("object does not exist")

	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTransient marks an error as safe to retry.
	ErrTransient = errors.New("transient storage error")
)

// Object describes a stored blob.
type Object struct {
	Key         string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// Store is a flat key/value blob store. Keys use forward slashes.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Stat(ctx context.Context, key string) (Object, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// IsTransient reports whether err is worth retrying: explicitly marked
// errors, stale NFS handles, interrupted or busy syscalls, and network timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ESTALE, syscall.EAGAIN, syscall.EBUSY, syscall.EINTR:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// CleanKey normalizes key and rejects keys that could escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
