package events

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/whisper-subtitle/kafka"
)

// messageWriter is satisfied by *kafka.Producer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// KafkaPublisher writes events to the producer's topic, keyed by subject so
// every event of a video lands on the same partition.
type KafkaPublisher struct {
	w messageWriter
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher wraps a producer.
func NewKafkaPublisher(p *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{w: p}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := ev.JSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := ev.Subject
	if key == "" {
		key = ev.ID
	}
	msg := kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Time:  ev.Timestamp,
		Headers: []kafkago.Header{
			{Key: "event-id", Value: []byte(ev.ID)},
			{Key: "event-type", Value: []byte(ev.Type)},
			{Key: "event-source", Value: []byte(ev.Source)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	return p.w.WriteMessages(ctx, msg)
}
