// Package storage persists original and variant image bytes.
//
// Two backends implement Store:
//
//   - LocalStore writes files under a root directory with atomic
//     temp-file-and-rename writes, rejecting keys that escape the root.
//   - S3Store writes objects to an S3 compatible bucket.
//
// Both retry transient failures (stale NFS handles, busy or interrupted
// syscalls, throttling and 5xx responses) with exponential backoff through Do,
// which other packages also use for their own retried writes.
package storage
