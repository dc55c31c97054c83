package codec

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync/atomic"
	"testing"
	"time"
)

func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func createTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createTestImage(width, height), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func createTestPNGWithAlpha(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: uint8(x % 256)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func newTestAdapter() *Adapter {
	return NewAdapter(Config{MaxConcurrency: 2, MaxQueued: 4, CacheBytes: 10 * 1024 * 1024}, nil)
}

type staticLoad struct{ critical atomic.Bool }

func (s *staticLoad) IsCritical() bool { return s.critical.Load() }

func TestDecodeResizeEncode(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()

	bitmap, err := a.Decode(ctx, createTestJPEG(t, 800, 400), FormatUnknown)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if bitmap.Source != FormatJPEG || bitmap.Width() != 800 || bitmap.Height() != 400 {
		t.Fatalf("decoded %s %dx%d", bitmap.Source, bitmap.Width(), bitmap.Height())
	}

	small, err := a.Resize(ctx, bitmap, 150)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if small.Width() != 150 || small.Height() != 75 {
		t.Errorf("resized to %dx%d, want 150x75", small.Width(), small.Height())
	}

	out, err := a.Encode(ctx, small, FormatJPEG, 70)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("DecodeConfig of output: %v", err)
	}
	if format != "jpeg" || cfg.Width != 150 || cfg.Height != 75 {
		t.Errorf("output %s %dx%d, want jpeg 150x75", format, cfg.Width, cfg.Height)
	}
}

func TestResizeNeverUpscales(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()

	bitmap, err := a.Decode(ctx, createTestJPEG(t, 120, 90), FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, err := a.Resize(ctx, bitmap, 400)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if out.Width() != 120 || out.Height() != 90 {
		t.Errorf("resized to %dx%d, want unchanged 120x90", out.Width(), out.Height())
	}
}

func TestResizePortrait(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()

	bitmap := &Bitmap{Image: createTestImage(300, 1200), Source: FormatPNG}
	out, err := a.Resize(ctx, bitmap, 400)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if out.Height() != 400 || out.Width() != 100 {
		t.Errorf("resized to %dx%d, want 100x400", out.Width(), out.Height())
	}
}

func TestDecodeErrors(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()

	heif := append([]byte{0, 0, 0, 0x18}, []byte("ftypheic0000")...)

	tests := []struct {
		name string
		data []byte
		hint Format
		want error
	}{
		{name: "Truncated JPEG", data: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}, want: ErrCorruptImage},
		{name: "Garbage declared as JPEG", data: []byte("0123456789"), hint: FormatJPEG, want: ErrCorruptImage},
		{name: "Plain text", data: []byte("just some text, not an image"), want: ErrUnsupportedFormat},
		{name: "Empty", data: nil, want: ErrUnsupportedFormat},
		{name: "Unknown hint", data: []byte("%PDF-1.7"), hint: Format("pdf"), want: ErrUnsupportedFormat},
		{name: "HEIF without libvips", data: heif, want: ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Decode(ctx, tt.data, tt.hint)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProbe(t *testing.T) {
	a := newTestAdapter()

	info, err := a.Probe(createTestJPEG(t, 64, 48), FormatUnknown)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Format != FormatJPEG || info.Width != 64 || info.Height != 48 || info.Pixels() != 64*48 {
		t.Errorf("Probe = %+v", info)
	}

	if _, err := a.Probe([]byte{0x89, 'P', 'N', 'G', 0, 0, 0, 0}, FormatUnknown); !errors.Is(err, ErrCorruptImage) {
		t.Errorf("Probe truncated PNG: %v, want ErrCorruptImage", err)
	}
	if _, err := a.Probe([]byte("0123456789"), FormatJPEG); !errors.Is(err, ErrCorruptImage) {
		t.Errorf("Probe garbage declared as JPEG: %v, want ErrCorruptImage", err)
	}
}

func TestEncodeFormats(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()

	bitmap, err := a.Decode(ctx, createTestPNGWithAlpha(t, 40, 20), FormatUnknown)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bitmap.HasAlpha() {
		t.Fatal("expected decoded PNG to report alpha")
	}

	tests := []struct {
		format Format
	}{
		{FormatPNG},
		{FormatJPEG},
		{FormatGIF},
		{FormatWebP},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out, err := a.Encode(ctx, bitmap, tt.format, 80)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got := Sniff(out); got != tt.format {
				t.Errorf("Sniff(output) = %q, want %q", got, tt.format)
			}
		})
	}

	if _, err := a.Encode(ctx, bitmap, FormatHEIF, 80); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Encode HEIF: %v, want ErrUnsupportedFormat", err)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()
	bitmap := &Bitmap{Image: createTestImage(50, 30), Source: FormatPNG}

	first, err := a.Encode(ctx, bitmap, FormatJPEG, 75)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := a.Encode(ctx, bitmap, FormatJPEG, 75)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("encoding the same bitmap twice produced different bytes")
	}
}

func TestOverloadedUnderCriticalPressure(t *testing.T) {
	ctx := context.Background()
	load := &staticLoad{}
	a := NewAdapter(Config{MaxConcurrency: 1, MaxQueued: 1}, nil)
	a.SetLoadSignal(load)

	data := createTestJPEG(t, 32, 32)
	load.critical.Store(true)
	if _, err := a.Decode(ctx, data, FormatJPEG); !errors.Is(err, ErrOverloaded) {
		t.Fatalf("Decode under critical pressure: %v, want ErrOverloaded", err)
	}

	load.critical.Store(false)
	if _, err := a.Decode(ctx, data, FormatJPEG); err != nil {
		t.Fatalf("Decode after recovery: %v", err)
	}
}

func TestQueueIsBounded(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(Config{MaxConcurrency: 1, MaxQueued: 1}, nil)

	release, err := a.acquire(ctx)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	queuedDone := make(chan error, 1)
	go func() {
		rel, err := a.acquire(ctx)
		if err == nil {
			rel()
		}
		queuedDone <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for a.queued.Load() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if a.queued.Load() != 1 {
		t.Fatal("second caller never queued")
	}

	if _, err := a.acquire(ctx); !errors.Is(err, ErrOverloaded) {
		t.Errorf("third acquire: %v, want ErrOverloaded", err)
	}

	release()
	if err := <-queuedDone; err != nil {
		t.Errorf("queued acquire: %v", err)
	}
}

func TestQueuedCallerHonoursContext(t *testing.T) {
	a := NewAdapter(Config{MaxConcurrency: 1, MaxQueued: 4}, nil)
	release, err := a.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("acquire with expired context: %v, want DeadlineExceeded", err)
	}
	if a.queued.Load() != 0 {
		t.Errorf("queue not drained after timeout: %d", a.queued.Load())
	}
}
