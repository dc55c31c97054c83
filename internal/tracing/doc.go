// Package tracing configures OpenTelemetry for the ingest pipeline.
//
// With TRACING_ENABLED=true spans for ingest, variant generation and chunk
// completion are exported to stdout. Otherwise the global no-op provider is
// used and spans cost almost nothing.
package tracing
