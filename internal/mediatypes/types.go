package mediatypes

import (
	"path/filepath"
	"strings"
)

// VariantName identifies one of the fixed derived renditions of an image.
type VariantName string

const (
	// VariantOriginal refers to the stored original rather than a derived rendition.
	VariantOriginal VariantName = "original"
	// VariantThumbnail is the smallest rendition, used in lists and grids.
	VariantThumbnail VariantName = "thumbnail"
	// VariantSmall is used for cards and profile avatars.
	VariantSmall VariantName = "small"
	// VariantMedium is used for inline article images.
	VariantMedium VariantName = "medium"
	// VariantLarge is used for hero banners and full-width images.
	VariantLarge VariantName = "large"
)

// Variants lists the derived variant names ordered from smallest to largest.
var Variants = []VariantName{VariantThumbnail, VariantSmall, VariantMedium, VariantLarge}

// IsVariant reports whether name is one of the fixed derived variant names.
// The original is not a variant.
func IsVariant(name VariantName) bool {
	for _, v := range Variants {
		if v == name {
			return true
		}
	}
	return false
}

// ParseVariant converts user input to a VariantName. Empty input and
// "original" map to VariantOriginal. ok is false for unknown names.
func ParseVariant(s string) (VariantName, bool) {
	name := VariantName(strings.ToLower(strings.TrimSpace(s)))
	if name == "" || name == VariantOriginal {
		return VariantOriginal, true
	}
	return name, IsVariant(name)
}

// Rank returns the position of name in Variants, or -1 when it is not a variant.
func Rank(name VariantName) int {
	for i, v := range Variants {
		if v == name {
			return i
		}
	}
	return -1
}

// ImageExtensions maps file extensions to whether they are accepted image uploads.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
	".avif": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsImageFile reports whether filename has an accepted image extension.
func IsImageFile(filename string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ExtensionForMime returns the canonical extension for a MIME type, or "" if unknown.
func ExtensionForMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/tiff":
		return ".tiff"
	}
	for ext, m := range MimeTypes {
		if m == mime && ext != ".jpeg" && ext != ".tif" {
			return ext
		}
	}
	return ""
}
