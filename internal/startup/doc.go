// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] starts from [DefaultConfig], overlays the YAML file named by
// CONFIG_FILE when set, then applies environment variables, which always
// win. YAML keys are the lower-case forms of the variables below (S3
// settings nest under "s3:"). Sizes accept KB/MB/GB suffixes, durations use
// Go syntax.
//
// Server and observability:
//   - PORT (8080), METRICS_PORT (9090), METRICS_ENABLED (true)
//   - LOG_LEVEL, LOG_FORMAT, LOG_HEALTH_CHECKS (false), LOG_IMAGE_HITS (true)
//   - TRACING_ENABLED (false)
//
// Storage and records:
//   - STORAGE_BACKEND: local, s3 or memory (local)
//   - STORAGE_DIR (/data/images), STAGING_DIR (/data/staging)
//   - S3_BUCKET, S3_PREFIX, S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY_ID,
//     S3_SECRET_ACCESS_KEY, S3_USE_PATH_STYLE
//   - DATABASE_DRIVER: sqlite3 or pgx (sqlite3)
//   - DATABASE_DSN: PostgreSQL connection string, or a SQLite file path
//   - DATABASE_DIR: SQLite directory when DATABASE_DSN is unset (/database)
//   - KAFKA_BROKERS (comma separated, events disabled when empty), KAFKA_TOPIC
//
// Uploads:
//   - MAX_FILE_SIZE (50MB), CHUNK_SIZE (2MB), MAX_CHUNKS (100)
//   - UPLOAD_TIMEOUT (5m), RETRY_ATTEMPTS (3), RETRY_DELAY (1s)
//   - PROGRESSIVE_UPLOAD_THRESHOLD (25MB), SESSION_TIMEOUT (30m)
//
// Codec and memory:
//   - CODEC_CACHE_MEMORY (256MB), CODEC_CONCURRENCY (auto)
//   - MAX_IMAGE_DIMENSION (12000), MAX_IMAGE_PIXELS (50000000): checked
//     before decode, together with MAX_FILE_SIZE
//   - MEMORY_CHECK_INTERVAL (30s), MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT
//
// Admin:
//   - ADMIN_USERNAME (admin)
//   - ADMIN_PASSWORD_HASH: bcrypt hash, see cmd/hashpw; the admin API
//     answers 403 while it is unset
//   - BULK_DELETE_DELAY (100ms)
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//
//	go build -ldflags "-X challenge-media/internal/startup.Version=1.2.0"
//
// # Lifecycle Logging
//
// The Log* functions print the section banners seen at startup and
// shutdown, so the log of every instance reads the same:
//
//	config, err := startup.LoadConfig()
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//	startup.LogDatabaseInit(config.DatabaseDriver, time.Since(dbStart))
//	startup.LogServerStarted(startup.ServerConfig{Port: config.Port})
package startup
