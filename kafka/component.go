package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/whisper-subtitle/component"
	"github.com/kbukum/whisper-subtitle/logger"
)

// Component owns the producer lifecycle.
type Component struct {
	cfg Config
	log *logger.Logger

	mu       sync.Mutex
	producer *Producer
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a Kafka component.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	return &Component{cfg: cfg, log: log.WithComponent("kafka")}
}

// Producer returns the producer, or nil before Start.
func (c *Component) Producer() *Producer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producer
}

func (c *Component) Name() string { return "kafka" }

func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.producer != nil {
		return nil
	}
	p, err := NewProducer(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("kafka start: %w", err)
	}
	c.producer = p
	return nil
}

func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.producer == nil {
		return nil
	}
	err := c.producer.Close()
	c.producer = nil
	return err
}

// Health reports degraded once the writer has recorded errors. Brokers are
// not dialled here.
func (c *Component) Health(_ context.Context) component.Health {
	p := c.Producer()
	if p == nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "kafka not started"}
	}
	st := p.Stats()
	if st.Errors > 0 {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusDegraded,
			Message: fmt.Sprintf("%d write errors of %d writes", st.Errors, st.Writes),
		}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: p.Topic()}
}
