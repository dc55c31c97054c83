// Package main is the entry point for challenge-media, the image service
// behind challenge pages: it accepts uploads, renders size variants and
// serves them with cache headers tied to each image's last update.
//
// # Application Lifecycle
//
//  1. Memory configuration: GOMEMLIMIT from the environment or MEMORY_LIMIT
//  2. Configuration: defaults, the optional CONFIG_FILE, then environment
//  3. Observability: Prometheus metrics and optional OpenTelemetry tracing
//  4. Components:
//     - Codec adapter with bounded concurrency and a bitmap cache
//     - Memory governor, which sheds codec work under critical pressure
//     - Database (SQLite or PostgreSQL) with migrations applied
//     - Blob store (local disk, S3 or memory)
//     - Event publisher (Kafka when brokers are set)
//     - Ingest pipeline, chunked upload manager and image resolver
//  5. HTTP servers: the application and, when enabled, metrics
//  6. Graceful shutdown on SIGINT/SIGTERM, stopping components in order
//
// # Background Services
//
//   - Upload manager sweep: expires stale chunked sessions
//   - Memory governor: samples heap and RSS, reclaims in tiers
//   - Metrics collector: refreshes library gauges every minute
//
// # HTTP Servers
//
//  1. Main server (default port 8080): image delivery under /images,
//     uploads under /api, the admin API under /api/admin and health checks
//  2. Metrics server (default port 9090): /metrics
//
// See package startup for the full list of environment variables and
// cmd/hashpw for creating the admin password hash.
package main
