package codec

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrUnsupportedFormat is returned when the input is not a supported raster image.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrCorruptImage is returned when a recognised or declared raster format fails to decode.
	ErrCorruptImage = errors.New("corrupt image")

	// ErrImageTooLarge is returned when an input exceeds a byte or dimension ceiling.
	ErrImageTooLarge = errors.New("image too large")

	// ErrOverloaded is returned when work is shed instead of queued.
	ErrOverloaded = errors.New("image codec overloaded")
)

// Info is what can be learned about an image without decoding pixels.
type Info struct {
	Format Format
	Width  int
	Height int
}

// Pixels returns Width*Height.
func (i Info) Pixels() int64 {
	return int64(i.Width) * int64(i.Height)
}

// Bitmap is a decoded image. Bitmaps are shared through the decode cache and
// must not be mutated.
type Bitmap struct {
	Image  image.Image
	Source Format
}

// Width returns the pixel width.
func (b *Bitmap) Width() int {
	return b.Image.Bounds().Dx()
}

// Height returns the pixel height.
func (b *Bitmap) Height() int {
	return b.Image.Bounds().Dy()
}

// HasAlpha reports whether any pixel is not fully opaque.
func (b *Bitmap) HasAlpha() bool {
	if o, ok := b.Image.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	bounds := b.Image.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := b.Image.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// Codec decodes, resizes and re-encodes raster images.
type Codec interface {
	Probe(data []byte, hint Format) (Info, error)
	Decode(ctx context.Context, data []byte, hint Format) (*Bitmap, error)
	Resize(ctx context.Context, bitmap *Bitmap, maxEdge int) (*Bitmap, error)
	Encode(ctx context.Context, bitmap *Bitmap, format Format, quality int) ([]byte, error)
}

// LoadSignal reports memory pressure severe enough to shed codec work.
type LoadSignal interface {
	IsCritical() bool
}
