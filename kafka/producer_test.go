package kafka

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	apperrors "github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/logger"
)

type fakeWriter struct {
	errs   []error
	calls  int
	msgs   []kafkago.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.calls++
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return err
		}
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Stats() kafkago.WriterStats { return kafkago.WriterStats{Writes: int64(w.calls)} }
func (w *fakeWriter) Close() error               { w.closed = true; return nil }

func testProducer(w *fakeWriter) *Producer {
	cfg := Config{Enabled: true}
	cfg.ApplyDefaults()
	return newProducer(w, cfg, logger.Nop())
}

func TestWriteRetriesConnectionErrors(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("dial tcp 127.0.0.1:9092: connection refused")}}
	p := testProducer(w)
	if err := p.WriteMessages(context.Background(), kafkago.Message{Value: []byte("x")}); err != nil {
		t.Fatalf("WriteMessages: %v", err)
	}
	if w.calls != 2 || len(w.msgs) != 1 {
		t.Errorf("calls = %d, msgs = %d", w.calls, len(w.msgs))
	}
}

func TestWriteDoesNotRetryPermanentErrors(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("message too large")}}
	p := testProducer(w)
	err := p.WriteMessages(context.Background(), kafkago.Message{})
	if err == nil {
		t.Fatal("expected error")
	}
	if w.calls != 1 {
		t.Errorf("calls = %d, want 1", w.calls)
	}
	if !apperrors.IsCode(err, apperrors.ErrCodeExternalService) {
		t.Errorf("err = %v", err)
	}
}

func TestWriteAfterClose(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(w)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
	if err := p.WriteMessages(context.Background()); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("err = %v", err)
	}
}

func TestFromKafkaConnection(t *testing.T) {
	err := FromKafka(errors.New("broker not available"), "t")
	if err.Code != apperrors.ErrCodeServiceUnavailable || !err.Retryable {
		t.Errorf("err = %+v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Enabled: true, EnableSASL: true, SASLMechanism: "GSSAPI", Username: "u"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("unsupported mechanism accepted")
	}
	cfg = Config{Enabled: true}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	if cfg.Topic != DefaultTopic {
		t.Errorf("topic = %q", cfg.Topic)
	}
}

func TestComponentNotStarted(t *testing.T) {
	c := NewComponent(Config{}, logger.Nop())
	if h := c.Health(context.Background()); h.Status != "unhealthy" {
		t.Errorf("health = %+v", h)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("disabled kafka should fail to start")
	}
}
