// Package codec decodes, resizes and re-encodes raster images behind the
// Codec interface.
//
// Adapter is the production implementation. Decoding uses
// github.com/disintegration/imaging with the golang.org/x/image decoders,
// and falls back to libvips (github.com/davidbyttow/govips) for HEIF and AVIF
// when InitVips has been called. WebP output is produced with
// github.com/kolesa-team/go-webp.
//
// # Resource Bounds
//
// Every decode, resize and encode holds one slot of a weighted semaphore
// (Config.MaxConcurrency). Callers beyond that wait in a queue of at most
// Config.MaxQueued; further callers get ErrOverloaded instead of spawning more
// work. While the installed LoadSignal reports critical memory pressure every
// new operation is rejected with ErrOverloaded.
//
// Decoded bitmaps are cached by the SHA-256 of their input, bounded by
// Config.CacheBytes. ClearCache and SetCacheEnabled are idempotent and are how
// the memory governor reclaims from the codec.
//
// # Errors
//
//   - ErrUnsupportedFormat: input is not a supported raster image
//   - ErrCorruptImage: input looks like (or was declared as) a raster image but does not decode
//   - ErrImageTooLarge: input exceeds a configured ceiling
//   - ErrOverloaded: work shed under load
package codec
