// Package ingest turns accepted uploads into stored images.
//
// The pipeline for one upload is:
//
//	probe + limits -> full decode -> store original -> create record
//	  -> generate variants -> record variant set -> publish events
//
// Everything before "store original" can reject the upload, and a rejected
// upload leaves no record and no blobs behind. Once the record exists the
// upload has succeeded; variant failures are reported alongside the record
// and the resolver serves the original until Regenerate fills the gaps.
//
// The same pipeline completes chunked uploads through Service.Complete,
// which satisfies upload.Completer.
package ingest
