// Package mediatypes provides shared type definitions for image handling
// across the challenge-media service.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles. It contains primitive types, constants,
// and pure utility functions with no external dependencies beyond the standard library.
//
// # Variants
//
// Every stored image may carry a fixed set of derived renditions:
//
//	mediatypes.VariantThumbnail // <=150px on the longer edge
//	mediatypes.VariantSmall     // <=400px
//	mediatypes.VariantMedium    // <=800px
//	mediatypes.VariantLarge     // <=1600px
//
// Variants is ordered from smallest to largest, so Rank can be used to find the
// nearest larger rendition when one is missing.
//
// # MIME Types
//
// Use GetMimeType to get the appropriate MIME type for HTTP responses:
//
//	ext := strings.ToLower(filepath.Ext(filename))
//	mimeType := mediatypes.GetMimeType(ext) // e.g., "image/jpeg"
package mediatypes
