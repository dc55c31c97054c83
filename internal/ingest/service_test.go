package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"challenge-media/internal/codec"
	"challenge-media/internal/database"
	"challenge-media/internal/events"
	"challenge-media/internal/mediatypes"
	"challenge-media/internal/storage"
	"challenge-media/internal/upload"
	"challenge-media/internal/variants"
)

func createTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

// withOrientation inserts an EXIF APP1 segment carrying only the
// orientation tag directly after the JPEG SOI marker.
func withOrientation(t *testing.T, data []byte, orientation uint16) []byte {
	t.Helper()
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatal("not a JPEG")
	}

	var tiff bytes.Buffer
	tiff.WriteString("MM")
	_ = binary.Write(&tiff, binary.BigEndian, uint16(0x002A))
	_ = binary.Write(&tiff, binary.BigEndian, uint32(8)) // IFD0 offset
	_ = binary.Write(&tiff, binary.BigEndian, uint16(1)) // one entry
	_ = binary.Write(&tiff, binary.BigEndian, uint16(0x0112))
	_ = binary.Write(&tiff, binary.BigEndian, uint16(3)) // SHORT
	_ = binary.Write(&tiff, binary.BigEndian, uint32(1))
	_ = binary.Write(&tiff, binary.BigEndian, orientation)
	_ = binary.Write(&tiff, binary.BigEndian, uint16(0))
	_ = binary.Write(&tiff, binary.BigEndian, uint32(0)) // no next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write(data[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(data[2:])
	return out.Bytes()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// overloadedCodec refuses every decode.
type overloadedCodec struct {
	codec.Codec
}

func (overloadedCodec) Decode(context.Context, []byte, codec.Format) (*codec.Bitmap, error) {
	return nil, fmt.Errorf("%w: queue full", codec.ErrOverloaded)
}

type fixture struct {
	svc       *Service
	db        *database.Database
	store     *storage.MemoryStore
	publisher *recordingPublisher
	sleeps    []time.Duration
}

func newFixture(t *testing.T, wrap func(codec.Codec) codec.Codec) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var c codec.Codec = codec.NewAdapter(codec.Config{MaxConcurrency: 2, MaxQueued: 8, CacheBytes: 32 * 1024 * 1024}, nil)
	if wrap != nil {
		c = wrap(c)
	}

	f := &fixture{db: db, store: storage.NewMemoryStore(), publisher: &recordingPublisher{}}
	gen := variants.NewGenerator(c, f.store, variants.DefaultConfig())
	f.svc = NewService(c, gen, f.store, db, f.publisher, DefaultConfig())
	f.svc.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	return f
}

func TestIngestStoresOriginalAndVariants(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	data := createTestJPEG(t, 1000, 600)

	result, err := f.svc.Ingest(ctx, Upload{Filename: "sunset.jpg", ContentType: "image/jpeg", Data: data, Tags: []string{"sky"}})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.VariantErr != nil {
		t.Fatalf("unexpected variant error: %v", result.VariantErr)
	}

	rec := result.Record
	if !strings.HasPrefix(rec.Path, "originals/") || !strings.HasSuffix(rec.Path, ".jpg") {
		t.Errorf("unexpected original key %q", rec.Path)
	}
	if rec.Title != "sunset" {
		t.Errorf("Title = %q, want sunset", rec.Title)
	}
	if rec.Width == nil || *rec.Width != 1000 || rec.Height == nil || *rec.Height != 600 {
		t.Errorf("unexpected dimensions %v x %v", rec.Width, rec.Height)
	}

	wantSizes := map[mediatypes.VariantName][2]int{
		mediatypes.VariantThumbnail: {150, 90},
		mediatypes.VariantSmall:     {400, 240},
		mediatypes.VariantMedium:    {800, 480},
		mediatypes.VariantLarge:     {1000, 600},
	}
	if len(rec.Variants) != len(wantSizes) {
		t.Fatalf("got %d variants, want %d", len(rec.Variants), len(wantSizes))
	}
	for name, size := range wantSizes {
		v, ok := rec.Variant(name)
		if !ok {
			t.Errorf("variant %s missing", name)
			continue
		}
		if v.Width != size[0] || v.Height != size[1] {
			t.Errorf("%s is %dx%d, want %dx%d", name, v.Width, v.Height, size[0], size[1])
		}
		if _, err := f.store.Get(ctx, v.Path); err != nil {
			t.Errorf("variant blob %s: %v", v.Path, err)
		}
	}

	stored, err := f.store.Get(ctx, rec.Path)
	if err != nil || !bytes.Equal(stored, data) {
		t.Errorf("original not stored intact: %v", err)
	}

	if got := f.publisher.types(); len(got) != 2 || got[0] != events.TypeImageCreated || got[1] != events.TypeVariantsGenerated {
		t.Errorf("published %v", got)
	}
}

func TestIngestRecordsOrientedDimensions(t *testing.T) {
	f := newFixture(t, nil)
	// Orientation 6: stored landscape, displayed portrait.
	data := withOrientation(t, createTestJPEG(t, 400, 200), 6)

	result, err := f.svc.Ingest(context.Background(), Upload{Filename: "phone.jpg", ContentType: "image/jpeg", Data: data})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	rec := result.Record
	if rec.Width == nil || *rec.Width != 200 || rec.Height == nil || *rec.Height != 400 {
		t.Fatalf("record dimensions %v x %v, want 200 x 400", rec.Width, rec.Height)
	}

	wantSizes := map[mediatypes.VariantName][2]int{
		mediatypes.VariantThumbnail: {75, 150},
		mediatypes.VariantSmall:     {200, 400},
	}
	for name, size := range wantSizes {
		v, ok := rec.Variant(name)
		if !ok {
			t.Errorf("variant %s missing", name)
			continue
		}
		if v.Width != size[0] || v.Height != size[1] {
			t.Errorf("%s is %dx%d, want %dx%d", name, v.Width, v.Height, size[0], size[1])
		}
		// Same orientation as the record.
		if (v.Width < v.Height) != (*rec.Width < *rec.Height) {
			t.Errorf("%s orientation differs from the record", name)
		}
	}
}

func TestIngestRejectsUndecodableInput(t *testing.T) {
	tests := []struct {
		name    string
		upload  Upload
		wantErr error
	}{
		{
			name: "truncated jpeg",
			upload: Upload{
				Filename:    "broken.jpg",
				ContentType: "image/jpeg",
				Data:        []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'},
			},
			wantErr: codec.ErrCorruptImage,
		},
		{
			name:    "text file",
			upload:  Upload{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("hello, world")},
			wantErr: codec.ErrUnsupportedFormat,
		},
		{
			name:    "empty",
			upload:  Upload{Filename: "empty.png", ContentType: "image/png"},
			wantErr: codec.ErrCorruptImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()

			_, err := f.svc.Ingest(ctx, tt.upload)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if IsRetriable(err) {
				t.Error("undecodable input must not be retriable")
			}

			stats, err := f.db.GetStats(ctx)
			if err != nil {
				t.Fatalf("GetStats: %v", err)
			}
			if stats.TotalImages != 0 || stats.TotalVariants != 0 {
				t.Errorf("rejected upload left %d images and %d variants", stats.TotalImages, stats.TotalVariants)
			}
			if f.store.Len() != 0 {
				t.Errorf("rejected upload left blobs: %v", f.store.Keys())
			}
			if len(f.publisher.types()) != 0 {
				t.Errorf("rejected upload published %v", f.publisher.types())
			}
		})
	}
}

func TestIngestRejectsOversizedInput(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.config.MaxFileSize = 100

	_, err := f.svc.Ingest(context.Background(), Upload{Filename: "big.jpg", Data: createTestJPEG(t, 64, 64)})
	if !errors.Is(err, codec.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if f.store.Len() != 0 {
		t.Error("oversized upload must not be stored")
	}
}

func TestIngestOverloadedIsRetriable(t *testing.T) {
	f := newFixture(t, func(c codec.Codec) codec.Codec { return overloadedCodec{Codec: c} })
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, Upload{Filename: "a.jpg", Data: createTestJPEG(t, 64, 64)})
	if !errors.Is(err, codec.ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}
	if !IsRetriable(err) {
		t.Error("overload must be retriable")
	}
	if stats, _ := f.db.GetStats(ctx); stats.TotalImages != 0 {
		t.Error("overloaded upload must not create a record")
	}
}

func TestChunkedUploadCompletesThroughPipeline(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	data := createTestJPEG(t, 320, 200)

	chunkSize := int64(len(data)/4 + 1)
	mgr := upload.NewManager(upload.Config{ChunkSize: chunkSize}, storage.NewMemoryStore(), f.svc)

	sess, err := mgr.Create(ctx, upload.CreateRequest{
		Filename:    "chunked.jpg",
		ContentType: "image/jpeg",
		TotalSize:   int64(len(data)),
		ChunkSize:   chunkSize,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var ack upload.Ack
	for i := sess.TotalChunks - 1; i >= 0; i-- {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		ack, err = mgr.WriteChunk(ctx, sess.ID, i, data[start:end])
		if err != nil {
			t.Fatalf("WriteChunk(%d): %v", i, err)
		}
	}
	if !ack.Complete || ack.Path == "" {
		t.Fatalf("final ack not complete: %+v", ack)
	}

	rec, err := f.db.GetImageByPath(ctx, ack.Path)
	if err != nil {
		t.Fatalf("record for %s: %v", ack.Path, err)
	}
	if rec.Size != int64(len(data)) || len(rec.Variants) != 4 {
		t.Errorf("unexpected record: size %d, variants %v", rec.Size, rec.VariantNames())
	}
}

func TestRegenerateRestoresMissingVariants(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.svc.Ingest(ctx, Upload{Filename: "a.jpg", Data: createTestJPEG(t, 500, 500)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	small, _ := result.Record.Variant(mediatypes.VariantSmall)
	if err := f.store.Delete(ctx, small.Path); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	regen, err := f.svc.Regenerate(ctx, result.Record.Path)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if _, err := f.store.Get(ctx, small.Path); err != nil {
		t.Errorf("small variant not restored: %v", err)
	}
	if !regen.Record.UpdatedAt.After(result.Record.UpdatedAt) {
		t.Error("regeneration must advance the update time")
	}

	if _, err := f.svc.Regenerate(ctx, "originals/missing.jpg"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesRecordAndBlobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.svc.Ingest(ctx, Upload{Filename: "a.jpg", Data: createTestJPEG(t, 300, 200)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := f.svc.Delete(ctx, result.Record.Path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.db.GetImageByPath(ctx, result.Record.Path); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("record still present: %v", err)
	}
	if f.store.Len() != 0 {
		t.Errorf("blobs left behind: %v", f.store.Keys())
	}
	types := f.publisher.types()
	if types[len(types)-1] != events.TypeImageDeleted {
		t.Errorf("last event %q, want %q", types[len(types)-1], events.TypeImageDeleted)
	}

	if err := f.svc.Delete(ctx, result.Record.Path); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("second Delete: expected ErrNotFound, got %v", err)
	}
}

func TestBulkDeleteThrottlesAndReportsPerPath(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	data := createTestJPEG(t, 200, 200)

	var paths []string
	for i := 0; i < 2; i++ {
		result, err := f.svc.Ingest(ctx, Upload{Filename: fmt.Sprintf("%d.jpg", i), Data: data})
		if err != nil {
			t.Fatalf("Ingest: %v", err)
		}
		paths = append(paths, result.Record.Path)
	}

	result, err := f.svc.BulkDelete(ctx, []string{paths[0], "originals/missing.jpg", paths[1]})
	if err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if len(result.Deleted) != 2 || result.Deleted[0] != paths[0] || result.Deleted[1] != paths[1] {
		t.Errorf("Deleted = %v", result.Deleted)
	}
	if _, ok := result.Failed["originals/missing.jpg"]; !ok || len(result.Failed) != 1 {
		t.Errorf("Failed = %v", result.Failed)
	}

	want := DefaultConfig().BulkDeleteDelay
	if len(f.sleeps) != 2 || f.sleeps[0] != want || f.sleeps[1] != want {
		t.Errorf("sleeps = %v, want two of %v", f.sleeps, want)
	}
}

func TestBulkDeleteStopsWhenCancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := f.svc.Ingest(ctx, Upload{Filename: "a.jpg", Data: createTestJPEG(t, 100, 100)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	f.svc.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	bulk, err := f.svc.BulkDelete(ctx, []string{result.Record.Path, "b", "c"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(bulk.Deleted) != 1 || len(bulk.Failed) != 2 {
		t.Errorf("Deleted = %v, Failed = %v", bulk.Deleted, bulk.Failed)
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"corrupt", fmt.Errorf("wrap: %w", codec.ErrCorruptImage), false},
		{"unsupported", codec.ErrUnsupportedFormat, false},
		{"too large", codec.ErrImageTooLarge, false},
		{"overloaded", codec.ErrOverloaded, true},
		{"deadline", context.DeadlineExceeded, true},
		{"transient storage", fmt.Errorf("put: %w", storage.ErrTransient), true},
		{"not found", database.ErrNotFound, false},
		{"retriable session failure", &upload.FailedError{SessionID: "s", Err: storage.ErrTransient, Retriable: true}, true},
		{"fatal session failure", &upload.FailedError{SessionID: "s", Err: upload.ErrChunkMismatch}, false},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetriable(tt.err); got != tt.want {
				t.Errorf("IsRetriable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
