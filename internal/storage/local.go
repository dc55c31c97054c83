package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"challenge-media/internal/mediatypes"
	"challenge-media/internal/metrics"
)

// LocalStore keeps blobs as files under a root directory.
type LocalStore struct {
	root  string
	retry RetryConfig
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string, retry RetryConfig) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: abs, retry: retry}, nil
}

// Root returns the absolute storage root.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) pathFor(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

// Put writes data atomically: temp file in the target directory, then rename.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, _ string) error {
	full, err := s.pathFor(key)
	if err != nil {
		return err
	}
	defer observe("local", "put", time.Now())

	return Do(ctx, "put", s.retry, func(context.Context) error {
		dir := filepath.Dir(full)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		tmp, err := os.CreateTemp(dir, ".tmp-*")
		if err != nil {
			return err
		}
		tmpName := tmp.Name()

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return err
		}
		if err := os.Rename(tmpName, full); err != nil {
			os.Remove(tmpName)
			return err
		}
		return nil
	})
}

// Get reads the whole object.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	defer observe("local", "get", time.Now())

	var data []byte
	err = Do(ctx, "get", s.retry, func(context.Context) error {
		var readErr error
		data, readErr = os.ReadFile(full)
		return readErr
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	return data, err
}

// Stat returns object metadata; the content type is derived from the extension.
func (s *LocalStore) Stat(ctx context.Context, key string) (Object, error) {
	full, err := s.pathFor(key)
	if err != nil {
		return Object{}, err
	}
	defer observe("local", "stat", time.Now())

	var info os.FileInfo
	err = Do(ctx, "stat", s.retry, func(context.Context) error {
		var statErr error
		info, statErr = os.Stat(full)
		return statErr
	})
	if errors.Is(err, fs.ErrNotExist) {
		return Object{}, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	if err != nil {
		return Object{}, err
	}

	return Object{
		Key:         key,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: mediatypes.GetMimeType(strings.ToLower(filepath.Ext(full))),
	}, nil
}

// Delete removes the file and any parent directories it leaves empty.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	full, err := s.pathFor(key)
	if err != nil {
		return err
	}
	defer observe("local", "delete", time.Now())

	err = Do(ctx, "delete", s.retry, func(context.Context) error {
		return os.Remove(full)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	for dir := filepath.Dir(full); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

func observe(backend, op string, start time.Time) {
	metrics.StorageOperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
