package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/webp" // WebP decoding
	"golang.org/x/sync/semaphore"

	"challenge-media/internal/logging"
	"challenge-media/internal/metrics"
	"challenge-media/internal/workers"
)

// Config bounds codec resource use.
type Config struct {
	// MaxConcurrency is the number of decode/resize/encode operations that may run at once
	MaxConcurrency int

	// MaxQueued is how many operations may wait for a slot before new ones are rejected
	MaxQueued int

	// CacheBytes bounds the decoded bitmap cache (0 disables it)
	CacheBytes int64
}

// DefaultConfig returns conservative limits for a small container.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: workers.ForCodec(2),
		MaxQueued:      32,
		CacheBytes:     50 * 1024 * 1024,
	}
}

// Adapter implements Codec on the pure Go imaging stack, with libvips as a
// decoder of last resort for HEIF and AVIF.
type Adapter struct {
	config Config
	sem    *semaphore.Weighted
	queued atomic.Int64
	cache  *bitmapCache

	loadMu sync.RWMutex
	load   LoadSignal
}

// NewAdapter creates an Adapter. load may be nil and set later with SetLoadSignal.
func NewAdapter(config Config, load LoadSignal) *Adapter {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	if config.MaxQueued < 0 {
		config.MaxQueued = 0
	}

	logging.Info("Image codec: concurrency=%d, queue=%d, cache=%d bytes",
		config.MaxConcurrency, config.MaxQueued, config.CacheBytes)

	return &Adapter{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrency)),
		cache:  newBitmapCache(config.CacheBytes),
		load:   load,
	}
}

// SetLoadSignal installs the memory pressure signal used for load shedding.
func (a *Adapter) SetLoadSignal(load LoadSignal) {
	a.loadMu.Lock()
	a.load = load
	a.loadMu.Unlock()
}

func (a *Adapter) critical() bool {
	a.loadMu.RLock()
	defer a.loadMu.RUnlock()
	return a.load != nil && a.load.IsCritical()
}

// acquire takes a concurrency slot, waiting in a bounded queue when all are
// busy. Under critical memory pressure or with a full queue it fails fast.
func (a *Adapter) acquire(ctx context.Context) (func(), error) {
	if a.critical() {
		metrics.CodecRejected.WithLabelValues("memory_critical").Inc()
		return nil, fmt.Errorf("%w: memory pressure critical", ErrOverloaded)
	}

	if !a.sem.TryAcquire(1) {
		if a.queued.Add(1) > int64(a.config.MaxQueued) {
			a.queued.Add(-1)
			metrics.CodecRejected.WithLabelValues("queue_full").Inc()
			return nil, fmt.Errorf("%w: %d operations already queued", ErrOverloaded, a.config.MaxQueued)
		}
		metrics.CodecQueued.Inc()
		err := a.sem.Acquire(ctx, 1)
		a.queued.Add(-1)
		metrics.CodecQueued.Dec()
		if err != nil {
			return nil, err
		}
	}

	metrics.CodecInFlight.Inc()
	return func() {
		metrics.CodecInFlight.Dec()
		a.sem.Release(1)
	}, nil
}

func observeOp(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.CodecOperationsTotal.WithLabelValues(op, status).Inc()
	metrics.CodecOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// resolveFormat decides what data claims to be. Magic bytes win over the hint.
func resolveFormat(data []byte, hint Format) (Format, error) {
	if sniffed := Sniff(data); sniffed != FormatUnknown {
		return sniffed, nil
	}
	if _, ok := ParseFormat(string(hint)); ok {
		return hint, nil
	}
	return FormatUnknown, ErrUnsupportedFormat
}

// Probe reads format and dimensions without decoding pixels. hint is used
// the same way as in Decode.
func (a *Adapter) Probe(data []byte, hint Format) (info Info, err error) {
	defer func(start time.Time) { observeOp("probe", start, err) }(time.Now())

	format, err := resolveFormat(data, hint)
	if err != nil {
		return Info{}, err
	}

	if format.needsVips() {
		if !IsVipsAvailable() {
			return Info{}, fmt.Errorf("%w: %s requires libvips", ErrUnsupportedFormat, format)
		}
		w, h, err := probeWithVips(data)
		if err != nil {
			return Info{}, fmt.Errorf("%w: %v", ErrCorruptImage, err)
		}
		return Info{Format: format, Width: w, Height: h}, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Decode decodes data into a Bitmap. hint is the declared format and is only
// used when the magic bytes are not recognised.
func (a *Adapter) Decode(ctx context.Context, data []byte, hint Format) (bitmap *Bitmap, err error) {
	format, err := resolveFormat(data, hint)
	if err != nil {
		observeOp("decode", time.Now(), err)
		return nil, err
	}

	key := keyFor(data)
	if cached, ok := a.cache.get(key); ok {
		return cached, nil
	}

	release, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	defer func(start time.Time) { observeOp("decode", start, err) }(time.Now())

	var img image.Image
	if format.needsVips() {
		if !IsVipsAvailable() {
			return nil, fmt.Errorf("%w: %s requires libvips", ErrUnsupportedFormat, format)
		}
		img, err = decodeWithVips(data)
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		logging.Debug("Decode of %d byte %s input failed: %v", len(data), format, err)
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptImage, format, err)
	}

	bitmap = &Bitmap{Image: img, Source: format}
	a.cache.add(key, bitmap)
	return bitmap, nil
}

// Resize scales bitmap so its longer edge is at most maxEdge, preserving the
// aspect ratio. Bitmaps already within bounds are returned unchanged.
func (a *Adapter) Resize(ctx context.Context, bitmap *Bitmap, maxEdge int) (resized *Bitmap, err error) {
	if bitmap == nil || bitmap.Image == nil {
		return nil, fmt.Errorf("resize: nil bitmap")
	}
	if maxEdge <= 0 {
		return nil, fmt.Errorf("resize: invalid max edge %d", maxEdge)
	}
	if bitmap.Width() <= maxEdge && bitmap.Height() <= maxEdge {
		return bitmap, nil
	}

	release, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	defer func(start time.Time) { observeOp("resize", start, err) }(time.Now())

	img := imaging.Fit(bitmap.Image, maxEdge, maxEdge, imaging.Lanczos)
	return &Bitmap{Image: img, Source: bitmap.Source}, nil
}

// Encode writes bitmap in format. quality (1-100) applies to JPEG and WebP.
func (a *Adapter) Encode(ctx context.Context, bitmap *Bitmap, format Format, quality int) (out []byte, err error) {
	if bitmap == nil || bitmap.Image == nil {
		return nil, fmt.Errorf("encode: nil bitmap")
	}
	quality = min(max(quality, 1), 100)

	release, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	defer func(start time.Time) { observeOp("encode", start, err) }(time.Now())

	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		err = imaging.Encode(&buf, bitmap.Image, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		err = imaging.Encode(&buf, bitmap.Image, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case FormatGIF:
		err = imaging.Encode(&buf, bitmap.Image, imaging.GIF)
	case FormatWebP:
		var options *encoder.Options
		options, err = encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
		if err == nil {
			err = webp.Encode(&buf, bitmap.Image, options)
		}
	default:
		return nil, fmt.Errorf("%w: cannot encode %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// ClearCache drops every cached bitmap and the libvips operation cache.
func (a *Adapter) ClearCache() {
	a.cache.clear()
	clearVipsCache()
	logging.Debug("Codec cache cleared")
}

// SetCacheEnabled turns the decoded bitmap cache on or off.
func (a *Adapter) SetCacheEnabled(enabled bool) {
	a.cache.setEnabled(enabled)
}

// CacheEnabled reports whether decoded bitmaps are being cached.
func (a *Adapter) CacheEnabled() bool {
	return a.cache.isEnabled()
}

// CacheUsage returns the estimated bytes and number of cached bitmaps.
func (a *Adapter) CacheUsage() (size int64, entries int) {
	return a.cache.usage()
}

var _ Codec = (*Adapter)(nil)
