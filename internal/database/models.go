package database

import (
	"time"

	"challenge-media/internal/mediatypes"
)

// ImageRecord is the durable description of one uploaded image.
type ImageRecord struct {
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	Size      int64           `json:"size"`
	MimeType  string          `json:"mimeType"`
	Extension string          `json:"extension"`
	Width     *int            `json:"width,omitempty"`
	Height    *int            `json:"height,omitempty"`
	Variants  []VariantRecord `json:"variants"`
	Title     string          `json:"title,omitempty"`
	AltText   string          `json:"altText,omitempty"`
	Tags      []string        `json:"tags"`
	Category  string          `json:"category,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// VariantRecord is one stored rendition of an image.
type VariantRecord struct {
	Name    mediatypes.VariantName `json:"name"`
	Path    string                 `json:"path"`
	Format  string                 `json:"format"`
	Width   int                    `json:"width"`
	Height  int                    `json:"height"`
	Size    int64                  `json:"size"`
	Version string                 `json:"version"`
}

// Variant returns the stored variant with the given name.
func (r *ImageRecord) Variant(name mediatypes.VariantName) (VariantRecord, bool) {
	for _, v := range r.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return VariantRecord{}, false
}

// VariantNames lists the stored variant names, smallest first.
func (r *ImageRecord) VariantNames() []mediatypes.VariantName {
	names := make([]mediatypes.VariantName, 0, len(r.Variants))
	for _, name := range mediatypes.Variants {
		if _, ok := r.Variant(name); ok {
			names = append(names, name)
		}
	}
	return names
}

// NewImage holds the fields needed to create a record.
type NewImage struct {
	ID        string
	Path      string
	Size      int64
	MimeType  string
	Extension string
	Width     *int
	Height    *int
	Title     string
	AltText   string
	Tags      []string
	Category  string
}

// MetadataUpdate describes an admin edit. Nil fields are left unchanged.
type MetadataUpdate struct {
	Title    *string   `json:"title,omitempty"`
	AltText  *string   `json:"altText,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	Category *string   `json:"category,omitempty"`
}

// ListOptions controls ListImages paging and filtering.
type ListOptions struct {
	Category string
	Page     int
	PageSize int
}

// ImagePage is a page of image records.
type ImagePage struct {
	Items      []ImageRecord `json:"items"`
	TotalItems int           `json:"totalItems"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}
