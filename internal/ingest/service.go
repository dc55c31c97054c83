package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"challenge-media/internal/codec"
	"challenge-media/internal/database"
	"challenge-media/internal/events"
	"challenge-media/internal/logging"
	"challenge-media/internal/mediatypes"
	"challenge-media/internal/metrics"
	"challenge-media/internal/storage"
	"challenge-media/internal/tracing"
	"challenge-media/internal/upload"
	"challenge-media/internal/variants"
	"challenge-media/internal/workers"
)

// Records is the slice of the metadata store the pipeline writes to.
type Records interface {
	CreateImage(ctx context.Context, img database.NewImage) (*database.ImageRecord, error)
	GetImageByPath(ctx context.Context, path string) (*database.ImageRecord, error)
	SetVariants(ctx context.Context, imageID string, variants []database.VariantRecord) error
	DeleteImage(ctx context.Context, id string) error
}

// Config holds pipeline settings.
type Config struct {
	// MaxFileSize is the largest accepted original in bytes.
	MaxFileSize int64
	// BulkDeleteDelay is the pause between items of a bulk delete.
	BulkDeleteDelay time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:     50 * 1024 * 1024,
		BulkDeleteDelay: 100 * time.Millisecond,
	}
}

// Upload is a complete file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Title       string
	AltText     string
	Tags        []string
	Category    string
}

// Result is the outcome of an accepted upload. VariantErr is set when some
// or all variants could not be generated; the upload itself still succeeded
// and the resolver falls back to the original.
type Result struct {
	Record     *database.ImageRecord
	VariantErr error
}

// Service runs the ingestion pipeline: validate and decode, store the
// original, create the record, generate variants and record them.
type Service struct {
	codec     codec.Codec
	generator *variants.Generator
	store     storage.Store
	records   Records
	publisher events.Publisher
	config    Config

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService wires the pipeline.
func NewService(c codec.Codec, generator *variants.Generator, store storage.Store, records Records, publisher events.Publisher, config Config) *Service {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultConfig().MaxFileSize
	}
	if config.BulkDeleteDelay < 0 {
		config.BulkDeleteDelay = 0
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		codec:     c,
		generator: generator,
		store:     store,
		records:   records,
		publisher: publisher,
		config:    config,
		now:       time.Now,
		newID:     uuid.NewString,
		sleep:     sleepContext,
	}
}

// Ingest accepts a single-shot upload. Undecodable input is rejected with
// codec.ErrCorruptImage or codec.ErrUnsupportedFormat before anything is
// stored, so no record exists for it.
func (s *Service) Ingest(ctx context.Context, up Upload) (*Result, error) {
	result, err := s.ingest(ctx, up)
	status := "success"
	switch {
	case err == nil:
		metrics.UploadBytes.Observe(float64(len(up.Data)))
	case IsRetriable(err):
		status = "error"
	default:
		status = "rejected"
	}
	metrics.UploadsTotal.WithLabelValues("single", status).Inc()
	return result, err
}

// Complete implements upload.Completer for chunked uploads.
func (s *Service) Complete(ctx context.Context, done upload.Completed) (string, error) {
	result, err := s.ingest(ctx, Upload{
		Filename:    done.Session.Filename,
		ContentType: done.Session.ContentType,
		Data:        done.Data,
	})
	if err != nil {
		return "", err
	}
	return result.Record.Path, nil
}

func (s *Service) ingest(ctx context.Context, up Upload) (*Result, error) {
	ctx, span := tracing.Tracer("ingest").Start(ctx, "ingest.upload")
	defer span.End()
	span.SetAttributes(attribute.String("upload.filename", up.Filename), attribute.Int("upload.bytes", len(up.Data)))

	info, err := s.validate(ctx, up)
	if err != nil {
		tracing.RecordError(span, err)
		logging.Info("Rejected upload %q (%d bytes): %v", up.Filename, len(up.Data), err)
		return nil, err
	}

	id := s.newID()
	key := fmt.Sprintf("originals/%s/%s%s", s.now().UTC().Format("2006/01"), id, info.Format.Extension())

	if err := s.store.Put(ctx, key, up.Data, info.Format.MimeType()); err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to store original: %w", err)
	}

	width, height := info.Width, info.Height
	title := up.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(up.Filename), filepath.Ext(up.Filename))
	}

	rec, err := s.records.CreateImage(ctx, database.NewImage{
		ID:        id,
		Path:      key,
		Size:      int64(len(up.Data)),
		MimeType:  info.Format.MimeType(),
		Extension: info.Format.Extension(),
		Width:     &width,
		Height:    &height,
		Title:     title,
		AltText:   up.AltText,
		Tags:      up.Tags,
		Category:  up.Category,
	})
	if err != nil {
		tracing.RecordError(span, err)
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			logging.Warn("Failed to remove original %s after record error: %v", key, delErr)
		}
		return nil, fmt.Errorf("failed to create image record: %w", err)
	}
	span.SetAttributes(attribute.String("image.id", rec.ID), attribute.String("image.path", rec.Path))

	s.publish(ctx, events.Event{Type: events.TypeImageCreated, ImageID: rec.ID, Path: rec.Path, Size: rec.Size})

	updated, verr := s.generateAndRecord(ctx, rec, up.Data, info.Format)
	if verr != nil {
		tracing.RecordError(span, verr)
	}

	logging.Info("Ingested %s as %s (%dx%d, %d bytes, variants: %v)",
		up.Filename, updated.Path, width, height, len(up.Data), updated.VariantNames())
	return &Result{Record: updated, VariantErr: verr}, nil
}

// validate checks size, probes dimensions against the generator ceilings and
// fully decodes the input. The decoded bitmap stays in the codec cache for
// the variant run that follows. The returned dimensions are those of the
// decoded bitmap, after EXIF orientation, so they match the variants.
func (s *Service) validate(ctx context.Context, up Upload) (codec.Info, error) {
	size := int64(len(up.Data))
	if size == 0 {
		return codec.Info{}, fmt.Errorf("%w: empty upload", codec.ErrCorruptImage)
	}
	if size > s.config.MaxFileSize {
		return codec.Info{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", codec.ErrImageTooLarge, size, s.config.MaxFileSize)
	}

	hint := formatHint(up.Filename, up.ContentType)
	info, err := s.codec.Probe(up.Data, hint)
	if err != nil {
		return codec.Info{}, err
	}
	if err := s.generator.CheckLimits(size, info); err != nil {
		return codec.Info{}, err
	}
	bitmap, err := s.codec.Decode(ctx, up.Data, info.Format)
	if err != nil {
		return codec.Info{}, err
	}
	info.Width, info.Height = bitmap.Width(), bitmap.Height()
	return info, nil
}

// generateAndRecord runs the generator and stores the successful variant
// set. It returns the refreshed record and the generation error, if any.
func (s *Service) generateAndRecord(ctx context.Context, rec *database.ImageRecord, data []byte, format codec.Format) (*database.ImageRecord, error) {
	result, err := s.generator.Generate(ctx, variants.Original{Key: rec.Path, Data: data, Hint: format})
	if err != nil && !variants.IsPartialFailure(err) {
		logging.Warn("Variant generation for %s failed, serving original only: %v", rec.Path, err)
		return rec, err
	}
	if err != nil {
		logging.Warn("Variant generation for %s partially failed: %v", rec.Path, err)
	}

	if setErr := s.records.SetVariants(ctx, rec.ID, toRecords(result)); setErr != nil {
		logging.Error("Failed to record variants for %s: %v", rec.Path, setErr)
		return rec, errors.Join(err, setErr)
	}

	s.publish(ctx, events.Event{
		Type:     events.TypeVariantsGenerated,
		ImageID:  rec.ID,
		Path:     rec.Path,
		Variants: variantNames(result.Names()),
		Failed:   failedNames(err),
	})

	updated, getErr := s.records.GetImageByPath(ctx, rec.Path)
	if getErr != nil {
		logging.Warn("Failed to reload %s after variant update: %v", rec.Path, getErr)
		return rec, err
	}
	return updated, err
}

// Regenerate rebuilds the variant set of an existing image from its stored
// original. Variants that are no longer part of the set are removed from
// storage.
func (s *Service) Regenerate(ctx context.Context, path string) (*Result, error) {
	ctx, span := tracing.Tracer("ingest").Start(ctx, "ingest.regenerate")
	defer span.End()
	span.SetAttributes(attribute.String("image.path", path))

	rec, err := s.records.GetImageByPath(ctx, path)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	data, err := s.store.Get(ctx, rec.Path)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to read original %s: %w", rec.Path, err)
	}

	hint, _ := codec.ParseFormat(rec.Extension)
	updated, verr := s.generateAndRecord(ctx, rec, data, hint)
	if verr != nil && !variants.IsPartialFailure(verr) {
		tracing.RecordError(span, verr)
		return nil, verr
	}

	current := make(map[string]bool, len(updated.Variants))
	for _, v := range updated.Variants {
		current[v.Path] = true
	}
	var stale []string
	for _, old := range rec.Variants {
		if !current[old.Path] {
			stale = append(stale, old.Path)
		}
	}
	s.removeBlobs(ctx, rec.Path, stale)

	logging.Info("Regenerated variants for %s: %v", rec.Path, updated.VariantNames())
	return &Result{Record: updated, VariantErr: verr}, nil
}

// Delete removes an image record, then its stored original and variants.
// Blob removal failures are logged; the record is already gone.
func (s *Service) Delete(ctx context.Context, path string) error {
	rec, err := s.records.GetImageByPath(ctx, path)
	if err != nil {
		return err
	}

	if err := s.records.DeleteImage(ctx, rec.ID); err != nil {
		return err
	}

	// Variants before the original.
	keys := make([]string, 0, len(rec.Variants))
	for _, v := range rec.Variants {
		keys = append(keys, v.Path)
	}
	s.removeBlobs(ctx, rec.Path, keys)
	s.removeBlobs(ctx, rec.Path, []string{rec.Path})

	s.publish(ctx, events.Event{Type: events.TypeImageDeleted, ImageID: rec.ID, Path: rec.Path})
	logging.Info("Deleted image %s", rec.Path)
	return nil
}

// removeBlobs deletes keys concurrently. The record is already gone or
// no longer points at them, so failures only leave orphans and are logged.
func (s *Service) removeBlobs(ctx context.Context, owner string, keys []string) {
	if len(keys) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(workers.ForIO(8))
	for _, key := range keys {
		g.Go(func() error {
			if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotExist) {
				logging.Warn("Failed to remove %s of %s: %v", key, owner, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// BulkResult reports the outcome of a bulk delete.
type BulkResult struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// BulkDelete deletes paths one at a time, pausing BulkDeleteDelay between
// items. Failures are collected per path and do not stop the batch;
// cancelling ctx does, and the remaining paths are reported as failed.
func (s *Service) BulkDelete(ctx context.Context, paths []string) (*BulkResult, error) {
	result := &BulkResult{Deleted: []string{}, Failed: map[string]string{}}

	for i, path := range paths {
		if i > 0 {
			if err := s.sleep(ctx, s.config.BulkDeleteDelay); err != nil {
				for _, rest := range paths[i:] {
					result.Failed[rest] = err.Error()
				}
				return result, err
			}
		}

		if err := s.Delete(ctx, path); err != nil {
			result.Failed[path] = err.Error()
			continue
		}
		result.Deleted = append(result.Deleted, path)
	}

	logging.Info("Bulk delete finished: %d deleted, %d failed", len(result.Deleted), len(result.Failed))
	return result, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logging.Warn("Event publish failed: %v", err)
	}
}

// IsRetriable reports whether a failed operation is worth retrying as is.
// Corrupt, unsupported or oversized input never is; overload and transient
// storage errors are.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var failed *upload.FailedError
	if errors.As(err, &failed) {
		return failed.Retriable
	}

	switch {
	case errors.Is(err, codec.ErrCorruptImage),
		errors.Is(err, codec.ErrUnsupportedFormat),
		errors.Is(err, codec.ErrImageTooLarge),
		errors.Is(err, database.ErrNotFound),
		errors.Is(err, database.ErrDuplicatePath):
		return false
	case errors.Is(err, codec.ErrOverloaded),
		errors.Is(err, context.DeadlineExceeded),
		storage.IsTransient(err):
		return true
	}
	return false
}

func formatHint(filename, contentType string) codec.Format {
	if f, ok := codec.ParseFormat(contentType); ok {
		return f
	}
	if f, ok := codec.ParseFormat(filepath.Ext(filename)); ok {
		return f
	}
	return codec.FormatUnknown
}

func toRecords(result *variants.Result) []database.VariantRecord {
	if result == nil {
		return nil
	}
	out := make([]database.VariantRecord, 0, len(result.Variants))
	for _, v := range result.Variants {
		out = append(out, database.VariantRecord{
			Name:    v.Name,
			Path:    v.Key,
			Format:  string(v.Format),
			Width:   v.Width,
			Height:  v.Height,
			Size:    v.Size,
			Version: v.Version,
		})
	}
	return out
}

func variantNames(names []mediatypes.VariantName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

func failedNames(err error) []string {
	var perr *variants.PartialFailureError
	if !errors.As(err, &perr) {
		return nil
	}
	var names []string
	for _, name := range mediatypes.Variants {
		if _, ok := perr.Failed[name]; ok {
			names = append(names, string(name))
		}
	}
	return names
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
