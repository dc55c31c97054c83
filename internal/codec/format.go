package codec

import "strings"

// Format is a raster container format.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatHEIF    Format = "heif"
	FormatAVIF    Format = "avif"
)

// Extension returns the canonical file extension including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatUnknown:
		return ""
	default:
		return "." + string(f)
	}
}

// MimeType returns the MIME type served for f.
func (f Format) MimeType() string {
	if f == FormatUnknown {
		return "application/octet-stream"
	}
	return "image/" + string(f)
}

// needsVips reports formats the pure Go decoders cannot read.
func (f Format) needsVips() bool {
	return f == FormatHEIF || f == FormatAVIF
}

// ParseFormat maps a name, extension or MIME type to a Format.
func ParseFormat(s string) (Format, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "image/")
	s = strings.TrimPrefix(s, ".")
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	switch s {
	case "jpeg", "jpg", "pjpeg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "gif":
		return FormatGIF, true
	case "webp":
		return FormatWebP, true
	case "bmp", "x-ms-bmp":
		return FormatBMP, true
	case "tiff", "tif":
		return FormatTIFF, true
	case "heif", "heic":
		return FormatHEIF, true
	case "avif":
		return FormatAVIF, true
	default:
		return FormatUnknown, false
	}
}

// Sniff identifies the format from magic bytes. It returns FormatUnknown for
// anything that is not a supported raster image.
func Sniff(header []byte) Format {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return FormatJPEG

	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47:
		return FormatPNG

	case len(header) >= 4 && header[0] == 0x47 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x38:
		return FormatGIF

	case len(header) >= 12 && header[0] == 0x52 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x46 &&
		header[8] == 0x57 && header[9] == 0x45 && header[10] == 0x42 && header[11] == 0x50:
		return FormatWebP

	case len(header) >= 2 && header[0] == 0x42 && header[1] == 0x4D:
		return FormatBMP

	case len(header) >= 4 && ((header[0] == 0x49 && header[1] == 0x49 && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 0x4D && header[1] == 0x4D && header[2] == 0x00 && header[3] == 0x2A)):
		return FormatTIFF

	case len(header) >= 12 && header[4] == 0x66 && header[5] == 0x74 && header[6] == 0x79 && header[7] == 0x70:
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return FormatHEIF
		case "avif", "avis":
			return FormatAVIF
		}
	}

	return FormatUnknown
}
