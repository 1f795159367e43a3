package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/whisper-subtitle/logger"
)

// ErrProducerClosed is returned by writes after Close.
var ErrProducerClosed = errors.New("kafka: producer is closed")

// messageWriter is the subset of *kafkago.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Stats() kafkago.WriterStats
	Close() error
}

// Producer wraps a kafka-go Writer with retries and logging.
type Producer struct {
	writer messageWriter
	cfg    Config
	log    *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewProducer creates a producer. kafka-go dials lazily, so an unreachable
// broker surfaces on the first write.
func NewProducer(cfg Config, log *logger.Logger) (*Producer, error) {
	cfg.ApplyDefaults()
	if !cfg.Enabled {
		return nil, errors.New("kafka is disabled")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}

	transport, err := newTransport(&cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer transport: %w", err)
	}
	l := log.WithComponent("kafka.producer")
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Transport:              transport,
		Balancer:               &kafkago.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           parseDuration(cfg.BatchTimeout),
		RequiredAcks:           kafkago.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression(cfg.Compression),
		WriteTimeout:           parseDuration(cfg.WriteTimeout),
		AllowAutoTopicCreation: true,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			l.Error("writer: " + fmt.Sprintf(msg, args...))
		}),
	}
	l.Info("kafka producer initialized", logger.Fields("brokers", cfg.Brokers, "topic", cfg.Topic))
	return newProducer(w, cfg, l), nil
}

func newProducer(w messageWriter, cfg Config, log *logger.Logger) *Producer {
	return &Producer{writer: w, cfg: cfg, log: log}
}

// Topic returns the configured topic.
func (p *Producer) Topic() string { return p.cfg.Topic }

// WriteMessages sends msgs, retrying transient failures with linear backoff.
func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrProducerClosed
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retries; attempt++ {
		lastErr = p.writer.WriteMessages(ctx, msgs...)
		if lastErr == nil {
			return nil
		}
		if !IsRetryableError(lastErr) || attempt == p.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return FromKafka(lastErr, p.cfg.Topic)
}

// Stats returns writer statistics.
func (p *Producer) Stats() kafkago.WriterStats {
	return p.writer.Stats()
}

// Close flushes pending messages and shuts the writer down.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.log.Info("kafka producer closing")
	return p.writer.Close()
}
