// Package kafkasink relays audit records to a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/tallyhq/tally/audit"
)

// compile-time interface check
var _ audit.Sink = (*Sink)(nil)

// DefaultTopic is the topic audit records are published to when none is
// configured.
const DefaultTopic = "tally_audit_events"

// Sink publishes audit records to Kafka. Records are keyed by tenant so a
// tenant's audit trail lands on one partition in order.
type Sink struct {
	writer *kafka.Writer
}

// New creates a Sink writing to the given brokers and topic. An empty topic
// selects DefaultTopic.
func New(brokers []string, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}

	return &Sink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Emit implements audit.Sink.
func (s *Sink) Emit(ctx context.Context, event *audit.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafkasink: marshal audit event %s: %w", event.ID, err)
	}

	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TenantID),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
