package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/kbukum/whisper-subtitle/logger"
)

// InitMeter installs an OTLP/HTTP meter provider as the global provider.
func InitMeter(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	logger.Info("meter initialized", logger.Fields("endpoint", cfg.Endpoint, "interval", cfg.Interval.String()))
	return mp, nil
}

// otelInstruments are the OTLP side of Metrics.
type otelInstruments struct {
	taskTotal             metric.Int64Counter
	taskDuration          metric.Float64Histogram
	transcriptionTotal    metric.Int64Counter
	transcriptionDuration metric.Float64Histogram
	downloadTotal         metric.Int64Counter
}

func newOtelInstruments(meter metric.Meter) (*otelInstruments, error) {
	var (
		in  otelInstruments
		err error
	)
	if in.taskTotal, err = meter.Int64Counter("scheduler.task.executions",
		metric.WithDescription("Task executions by kind and outcome")); err != nil {
		return nil, fmt.Errorf("create scheduler.task.executions: %w", err)
	}
	if in.taskDuration, err = meter.Float64Histogram("scheduler.task.duration",
		metric.WithDescription("Task execution time"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create scheduler.task.duration: %w", err)
	}
	if in.transcriptionTotal, err = meter.Int64Counter("engine.transcriptions",
		metric.WithDescription("Transcriptions by engine and outcome")); err != nil {
		return nil, fmt.Errorf("create engine.transcriptions: %w", err)
	}
	if in.transcriptionDuration, err = meter.Float64Histogram("engine.transcription.duration",
		metric.WithDescription("Transcription processing time"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create engine.transcription.duration: %w", err)
	}
	if in.downloadTotal, err = meter.Int64Counter("downloader.downloads",
		metric.WithDescription("Downloads by outcome")); err != nil {
		return nil, fmt.Errorf("create downloader.downloads: %w", err)
	}
	return &in, nil
}
