// Package upload manages resumable chunked uploads.
//
// A session moves through created → receiving → {completed | expired |
// cancelled | failed}. Completion is decided purely by index coverage: the
// session completes when every index in [0, totalChunks) has been staged,
// whatever order the chunks arrived in. Chunks are staged in a
// storage.Store, writes are retried with exponential backoff on transient
// errors, and the reassembled file is handed to a Completer.
//
// Sessions have an absolute expiry. Terminal sessions are kept as
// tombstones for a while so late chunks get a precise error rather than
// "not found".
package upload
