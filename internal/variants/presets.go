package variants

import (
	"path"
	"strings"

	"challenge-media/internal/codec"
	"challenge-media/internal/mediatypes"
)

// GeneratorVersion changes whenever presets or encoding change in a way that
// alters output. Stored variants record the version that produced them.
const GeneratorVersion = "1"

// Preset is one fixed rendition: longer edge at most MaxEdge, encoded at Quality.
type Preset struct {
	Name    mediatypes.VariantName
	MaxEdge int
	Quality int
}

// DefaultPresets returns the fixed preset set, smallest first.
func DefaultPresets() []Preset {
	return []Preset{
		{Name: mediatypes.VariantThumbnail, MaxEdge: 150, Quality: 70},
		{Name: mediatypes.VariantSmall, MaxEdge: 400, Quality: 75},
		{Name: mediatypes.VariantMedium, MaxEdge: 800, Quality: 80},
		{Name: mediatypes.VariantLarge, MaxEdge: 1600, Quality: 85},
	}
}

// Key returns the storage key of a variant. It depends only on the original
// key, the variant name and the output format, so regeneration overwrites.
//
//	originals/2026/10/abc.png + thumbnail + jpeg -> variants/2026/10/abc-thumbnail.jpg
func Key(originalKey string, name mediatypes.VariantName, format codec.Format) string {
	base := strings.TrimPrefix(originalKey, "originals/")
	base = strings.TrimSuffix(base, path.Ext(base))
	return "variants/" + base + "-" + string(name) + format.Extension()
}
