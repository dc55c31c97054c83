// Package database stores image metadata records for challenge-media.
//
// It handles storage and retrieval of:
//   - Image records (path, size, MIME type, dimensions, descriptive metadata)
//   - The set of generated variants per image
//
// SQLite (WAL mode) is the default backend; PostgreSQL is used when the
// driver is "pgx". The schema is managed by embedded goose migrations that
// run on startup.
package database
