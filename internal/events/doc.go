// Package events publishes image library events (image.created,
// image.deleted, variants.generated) to Kafka when a broker is configured.
// Publishing is best effort: the ingest pipeline logs failures and carries on.
package events
