package observability

import (
	"context"
	"errors"
)

// Setup initializes the exporters enabled in cfg and returns a shutdown
// function that flushes them.
func Setup(ctx context.Context, cfg Config, serviceName, version, environment string) (func(context.Context) error, error) {
	res := Resource(serviceName, version, environment)
	var shutdowns []func(context.Context) error

	if cfg.TracingEnabled {
		tp, err := InitTracer(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, tp.Shutdown)
	}
	if cfg.MetricsEnabled {
		mp, err := InitMeter(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}
