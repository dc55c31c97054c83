package variants

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"challenge-media/internal/codec"
	"challenge-media/internal/logging"
	"challenge-media/internal/mediatypes"
	"challenge-media/internal/metrics"
	"challenge-media/internal/storage"
	"challenge-media/internal/tracing"
)

// Config holds generator limits and output settings.
type Config struct {
	Presets []Preset

	// MaxBytes, MaxDimension and MaxPixels are checked before decode
	MaxBytes     int64
	MaxDimension int
	MaxPixels    int64

	// OutputFormat forces an output format; empty picks JPEG for opaque
	// sources and PNG for sources with transparency
	OutputFormat codec.Format
}

// DefaultConfig returns the fixed presets and ceilings sized for a 50MB upload.
func DefaultConfig() Config {
	return Config{
		Presets:      DefaultPresets(),
		MaxBytes:     50 * 1024 * 1024,
		MaxDimension: 12000,
		MaxPixels:    50_000_000,
	}
}

// Original is the stored source image.
type Original struct {
	Key  string
	Data []byte
	Hint codec.Format
}

// Variant is one generated rendition.
type Variant struct {
	Name    mediatypes.VariantName
	Key     string
	Format  codec.Format
	Width   int
	Height  int
	Size    int64
	Quality int
	Version string
}

// Result is the outcome of a generation run.
type Result struct {
	Source   codec.Info
	Variants []Variant
}

// Names returns the names of generated variants, smallest first.
func (r *Result) Names() []mediatypes.VariantName {
	names := make([]mediatypes.VariantName, 0, len(r.Variants))
	for _, v := range r.Variants {
		names = append(names, v.Name)
	}
	return names
}

// PartialFailureError reports presets that failed while others succeeded.
// Successful variants are kept.
type PartialFailureError struct {
	Failed map[mediatypes.VariantName]error
}

func (e *PartialFailureError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, string(name))
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[mediatypes.VariantName(name)]))
	}
	return "variant generation partially failed: " + strings.Join(parts, "; ")
}

func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// Generator derives the fixed variant set from an original.
type Generator struct {
	codec  codec.Codec
	store  storage.Store
	config Config
}

// NewGenerator creates a generator writing variants to store.
func NewGenerator(c codec.Codec, store storage.Store, config Config) *Generator {
	if len(config.Presets) == 0 {
		config.Presets = DefaultPresets()
	}
	return &Generator{codec: c, store: store, config: config}
}

// Presets returns the configured presets.
func (g *Generator) Presets() []Preset {
	return append([]Preset(nil), g.config.Presets...)
}

// CheckLimits returns codec.ErrImageTooLarge if the input exceeds a ceiling.
func (g *Generator) CheckLimits(size int64, info codec.Info) error {
	switch {
	case g.config.MaxBytes > 0 && size > g.config.MaxBytes:
		metrics.VariantRejectedTotal.WithLabelValues("bytes").Inc()
		return fmt.Errorf("%w: %d bytes exceeds %d", codec.ErrImageTooLarge, size, g.config.MaxBytes)
	case g.config.MaxDimension > 0 && (info.Width > g.config.MaxDimension || info.Height > g.config.MaxDimension):
		metrics.VariantRejectedTotal.WithLabelValues("dimensions").Inc()
		return fmt.Errorf("%w: %dx%d exceeds %d px", codec.ErrImageTooLarge, info.Width, info.Height, g.config.MaxDimension)
	case g.config.MaxPixels > 0 && info.Pixels() > g.config.MaxPixels:
		metrics.VariantRejectedTotal.WithLabelValues("pixels").Inc()
		return fmt.Errorf("%w: %d pixels exceeds %d", codec.ErrImageTooLarge, info.Pixels(), g.config.MaxPixels)
	}
	return nil
}

// Generate produces every preset from orig. The original is decoded once.
// Inputs over the configured ceilings are rejected before decode. When some
// presets fail the successful ones are returned with a *PartialFailureError.
func (g *Generator) Generate(ctx context.Context, orig Original) (*Result, error) {
	ctx, span := tracing.Tracer("variants").Start(ctx, "variants.generate")
	defer span.End()
	span.SetAttributes(attribute.String("original.key", orig.Key), attribute.Int("original.bytes", len(orig.Data)))

	if err := g.CheckLimits(int64(len(orig.Data)), codec.Info{}); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	info, err := g.codec.Probe(orig.Data, orig.Hint)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if err := g.CheckLimits(int64(len(orig.Data)), info); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	bitmap, err := g.codec.Decode(ctx, orig.Data, orig.Hint)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	format := g.outputFormat(bitmap)
	result := &Result{Source: info}
	failed := make(map[mediatypes.VariantName]error)

	for _, preset := range g.config.Presets {
		v, err := g.generateOne(ctx, orig.Key, bitmap, preset, format)
		if err != nil {
			logging.Warn("Variant %s for %s failed: %v", preset.Name, orig.Key, err)
			metrics.VariantGenerationsTotal.WithLabelValues(string(preset.Name), "error").Inc()
			failed[preset.Name] = err
			continue
		}
		metrics.VariantGenerationsTotal.WithLabelValues(string(preset.Name), "success").Inc()
		result.Variants = append(result.Variants, v)
	}

	span.SetAttributes(attribute.Int("variants.generated", len(result.Variants)))
	if len(failed) > 0 {
		perr := &PartialFailureError{Failed: failed}
		tracing.RecordError(span, perr)
		return result, perr
	}

	logging.Debug("Generated %d variants for %s (%dx%d %s)", len(result.Variants), orig.Key, info.Width, info.Height, info.Format)
	return result, nil
}

func (g *Generator) generateOne(ctx context.Context, originalKey string, bitmap *codec.Bitmap, preset Preset, format codec.Format) (Variant, error) {
	start := time.Now()
	defer func() {
		metrics.VariantGenerationDuration.WithLabelValues(string(preset.Name)).Observe(time.Since(start).Seconds())
	}()

	resized, err := g.codec.Resize(ctx, bitmap, preset.MaxEdge)
	if err != nil {
		return Variant{}, fmt.Errorf("resize: %w", err)
	}

	data, err := g.codec.Encode(ctx, resized, format, preset.Quality)
	if err != nil {
		return Variant{}, fmt.Errorf("encode: %w", err)
	}

	key := Key(originalKey, preset.Name, format)
	if err := g.store.Put(ctx, key, data, format.MimeType()); err != nil {
		return Variant{}, fmt.Errorf("store %s: %w", key, err)
	}

	return Variant{
		Name:    preset.Name,
		Key:     key,
		Format:  format,
		Width:   resized.Width(),
		Height:  resized.Height(),
		Size:    int64(len(data)),
		Quality: preset.Quality,
		Version: GeneratorVersion,
	}, nil
}

func (g *Generator) outputFormat(bitmap *codec.Bitmap) codec.Format {
	if g.config.OutputFormat != codec.FormatUnknown {
		return g.config.OutputFormat
	}
	if bitmap.HasAlpha() {
		return codec.FormatPNG
	}
	return codec.FormatJPEG
}

// IsPartialFailure reports whether err only describes failed presets.
func IsPartialFailure(err error) bool {
	var perr *PartialFailureError
	return errors.As(err, &perr)
}
