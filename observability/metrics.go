package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records service events to Prometheus and OpenTelemetry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	prom     *promCollectors
	otel     *otelInstruments
}

// NewMetrics creates the collectors on a fresh Prometheus registry, which
// also carries the Go runtime and process collectors. OTel instruments are
// created on the global meter provider.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom, err := newPromCollectors(reg)
	if err != nil {
		return nil, err
	}
	in, err := newOtelInstruments(otel.Meter(tracerName))
	if err != nil {
		return nil, err
	}
	return &Metrics{registry: reg, prom: prom, otel: in}, nil
}

// Registry returns the Prometheus registry served on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Register adds an extra collector, e.g. a task-status gauge.
func (m *Metrics) Register(c prometheus.Collector) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(c)
}

// RecordTask records one task execution. kind is the task family
// ("download", "transcribe", "youtube_check", ...), outcome one of
// "completed", "retry", "failed", "cancelled".
func (m *Metrics) RecordTask(ctx context.Context, kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.prom.taskTotal.WithLabelValues(kind, outcome).Inc()
	m.prom.taskDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.otel.taskTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind), attribute.String("outcome", outcome)))
	m.otel.taskDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTranscription records one engine call.
func (m *Metrics) RecordTranscription(ctx context.Context, engine, model string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeLabel(success)
	m.prom.transcriptionTotal.WithLabelValues(engine, outcome).Inc()
	m.prom.transcriptionDuration.WithLabelValues(engine, model).Observe(d.Seconds())
	m.otel.transcriptionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine), attribute.String("outcome", outcome)))
	m.otel.transcriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("engine", engine), attribute.String("model", model)))
}

// RecordDownload records one media download.
func (m *Metrics) RecordDownload(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	outcome := outcomeLabel(success)
	m.prom.downloadTotal.WithLabelValues(outcome).Inc()
	m.otel.downloadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
