package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"challenge-media/internal/codec"
	"challenge-media/internal/database"
	"challenge-media/internal/logging"
	"challenge-media/internal/mediatypes"
	"challenge-media/internal/metrics"
	"challenge-media/internal/storage"
)

// ErrNotFound is returned when no image record backs the requested path.
var ErrNotFound = errors.New("image not found")

// ImmutableCacheControl is served when the request carries the current
// version token, so the URL can never refer to other bytes.
const ImmutableCacheControl = "public, max-age=31536000, immutable"

// Records looks up image records by stored path.
type Records interface {
	GetImageByPath(ctx context.Context, path string) (*database.ImageRecord, error)
}

// Config holds resolver cache settings.
type Config struct {
	// MaxAge is the client cache lifetime for unversioned requests.
	MaxAge time.Duration
	// FallbackMaxAge is used when a requested variant was missing, so the
	// client picks up the variant once it is regenerated.
	FallbackMaxAge time.Duration
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		MaxAge:         24 * time.Hour,
		FallbackMaxAge: time.Minute,
	}
}

// Asset is a resolved image ready to be written to a client.
type Asset struct {
	Data         []byte
	ContentType  string
	CacheControl string
	ETag         string
	LastModified time.Time
	// Version is the cache-busting token derived from the record update time.
	Version string
	// Requested is the variant the caller asked for; Served is what was found.
	Requested mediatypes.VariantName
	Served    mediatypes.VariantName
	Fallback  bool
}

// Resolver maps (path, variant) to bytes and cache headers.
type Resolver struct {
	records Records
	store   storage.Store
	config  Config
}

// New creates a resolver.
func New(records Records, store storage.Store, config Config) *Resolver {
	d := DefaultConfig()
	if config.MaxAge <= 0 {
		config.MaxAge = d.MaxAge
	}
	if config.FallbackMaxAge <= 0 {
		config.FallbackMaxAge = d.FallbackMaxAge
	}
	return &Resolver{records: records, store: store, config: config}
}

// Resolve returns the bytes for filePath at the requested variant. An empty
// variant or "original" selects the original. A missing or unknown variant
// falls back to the nearest larger stored variant, then to the original;
// the miss is logged and counted but never an error. An unknown path fails
// with ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, filePath, variant string) (*Asset, error) {
	requested, known := mediatypes.ParseVariant(variant)
	label := string(requested)
	if !known {
		label = "unknown"
	}

	rec, err := r.records.GetImageByPath(ctx, filePath)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			metrics.ResolverRequestsTotal.WithLabelValues(label, "not_found").Inc()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filePath)
		}
		metrics.ResolverRequestsTotal.WithLabelValues(label, "error").Inc()
		return nil, fmt.Errorf("failed to look up %s: %w", filePath, err)
	}

	asset := &Asset{
		LastModified: rec.UpdatedAt.UTC().Truncate(time.Second),
		Version:      CacheToken(rec.UpdatedAt),
		Requested:    requested,
	}

	for _, name := range candidates(rec, requested, known) {
		v, _ := rec.Variant(name)
		data, err := r.store.Get(ctx, v.Path)
		if err != nil {
			if errors.Is(err, storage.ErrNotExist) {
				logging.Warn("Variant %s of %s is recorded but missing from storage (%s)", name, rec.Path, v.Path)
				continue
			}
			metrics.ResolverRequestsTotal.WithLabelValues(label, "error").Inc()
			return nil, fmt.Errorf("failed to read variant %s of %s: %w", name, rec.Path, err)
		}

		format, _ := codec.ParseFormat(v.Format)
		asset.Data = data
		asset.ContentType = format.MimeType()
		asset.Served = name
		return r.finish(asset, rec, label), nil
	}

	data, err := r.store.Get(ctx, rec.Path)
	if err != nil {
		metrics.ResolverRequestsTotal.WithLabelValues(label, "error").Inc()
		if errors.Is(err, storage.ErrNotExist) {
			logging.Error("Original of %s is missing from storage", rec.Path)
			return nil, fmt.Errorf("%w: original of %s is missing", ErrNotFound, rec.Path)
		}
		return nil, fmt.Errorf("failed to read original %s: %w", rec.Path, err)
	}

	asset.Data = data
	asset.ContentType = originalContentType(rec)
	asset.Served = mediatypes.VariantOriginal
	return r.finish(asset, rec, label), nil
}

func (r *Resolver) finish(asset *Asset, rec *database.ImageRecord, label string) *Asset {
	asset.Fallback = asset.Served != asset.Requested
	asset.ETag = fmt.Sprintf(`"%s-%s-%s"`, shortID(rec.ID), asset.Version, asset.Served)

	if asset.Fallback {
		asset.CacheControl = cacheControl(r.config.FallbackMaxAge)
		metrics.ResolverRequestsTotal.WithLabelValues(label, "fallback").Inc()
		logging.Info("Variant %q of %s not available, serving %s", asset.Requested, rec.Path, asset.Served)
	} else {
		asset.CacheControl = cacheControl(r.config.MaxAge)
		metrics.ResolverRequestsTotal.WithLabelValues(label, "hit").Inc()
	}
	return asset
}

// candidates lists the stored variants to try, in order: the requested one,
// then larger ones from nearest to largest. Unknown names and the original
// yield no candidates.
func candidates(rec *database.ImageRecord, requested mediatypes.VariantName, known bool) []mediatypes.VariantName {
	if !known || requested == mediatypes.VariantOriginal {
		return nil
	}

	var out []mediatypes.VariantName
	for _, name := range mediatypes.Variants[mediatypes.Rank(requested):] {
		if _, ok := rec.Variant(name); ok {
			out = append(out, name)
		}
	}
	return out
}

// CacheToken is the cache-busting token for a record: its update time in
// milliseconds, base 36. It only changes when the record does.
func CacheToken(updatedAt time.Time) string {
	return strconv.FormatInt(updatedAt.UnixMilli(), 36)
}

// URL builds the stable, versioned URL for an image variant.
func URL(rec *database.ImageRecord, variant mediatypes.VariantName) string {
	u := "/images/" + rec.Path + "?v=" + CacheToken(rec.UpdatedAt)
	if variant != "" && variant != mediatypes.VariantOriginal {
		u += "&variant=" + string(variant)
	}
	return u
}

// MatchesETag reports whether an If-None-Match header value matches etag.
func MatchesETag(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func originalContentType(rec *database.ImageRecord) string {
	if rec.MimeType != "" {
		return rec.MimeType
	}
	return mediatypes.GetMimeType(strings.ToLower(rec.Extension))
}

func cacheControl(maxAge time.Duration) string {
	return fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
