package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"challenge-media/internal/logging"
	"challenge-media/internal/metrics"
)

// Event types
const (
	TypeImageCreated      = "image.created"
	TypeImageDeleted      = "image.deleted"
	TypeVariantsGenerated = "variants.generated"
)

// Event describes a change to the image library.
type Event struct {
	Type      string    `json:"type"`
	ImageID   string    `json:"imageId"`
	Path      string    `json:"path"`
	Size      int64     `json:"size,omitempty"`
	Variants  []string  `json:"variants,omitempty"`
	Failed    []string  `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers library events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error { return nil }

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes JSON events to a Kafka topic, keyed by image id
// so events for one image stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher for the configured brokers.
func NewKafkaPublisher(config KafkaConfig) (*KafkaPublisher, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher needs at least one broker")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka publisher needs a topic")
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           config.WriteTimeout,
		AllowAutoTopicCreation: true,
	}

	logging.Info("Kafka publisher configured: brokers=%v topic=%s", config.Brokers, config.Topic)
	return newKafkaPublisher(writer, config.Topic, config.WriteTimeout), nil
}

func newKafkaPublisher(writer messageWriter, topic string, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic, timeout: timeout}
}

// Publish encodes and writes one event. Failures are returned for the
// caller to log; they never affect the image pipeline.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ImageID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("failed to publish %s event to %s: %w", event.Type, p.topic, err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(event.Type, "success").Inc()
	logging.Debug("Published %s event for %s", event.Type, event.Path)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
