// Package variants derives the fixed set of resized renditions of an image.
//
// Each preset bounds the longer edge and keeps the aspect ratio:
//
//	thumbnail  150px  q70
//	small      400px  q75
//	medium     800px  q80
//	large     1600px  q85
//
// Sources smaller than a preset are re-encoded at their own size, never
// upscaled. Output is a pure function of the input bytes, the preset set and
// GeneratorVersion, so variants are a cache that can be regenerated at any time.
//
// A failing preset does not stop the others. Generate returns what succeeded
// together with a *PartialFailureError naming what did not.
package variants
