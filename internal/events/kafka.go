package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the minimal writer surface used by KafkaPublisher.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher appends settlement events to a Kafka topic, keyed by
// correlation id so redeliveries of the same saga land on one partition.
type KafkaPublisher struct {
	writer KafkaWriter
}

// NewKafkaPublisher constructs a publisher writing to the given brokers and
// topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// NewKafkaPublisherWithWriter constructs a publisher over an existing writer.
func NewKafkaPublisherWithWriter(writer KafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish appends the event to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, event SettlementEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CorrelationID),
		Value: data,
	})
}

// Close releases the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
