package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/kbukum/whisper-subtitle/bootstrap"
	"github.com/kbukum/whisper-subtitle/database"
	"github.com/kbukum/whisper-subtitle/downloader"
	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/engine/builtin"
	"github.com/kbukum/whisper-subtitle/events"
	"github.com/kbukum/whisper-subtitle/history"
	"github.com/kbukum/whisper-subtitle/kafka"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/monitor"
	"github.com/kbukum/whisper-subtitle/observability"
	"github.com/kbukum/whisper-subtitle/redis"
	"github.com/kbukum/whisper-subtitle/scheduler"
	"github.com/kbukum/whisper-subtitle/service"
	"github.com/kbukum/whisper-subtitle/storage"

	_ "github.com/kbukum/whisper-subtitle/storage/local"
	_ "github.com/kbukum/whisper-subtitle/storage/s3"
)

// stack holds the wired components of one process.
type stack struct {
	app     *bootstrap.App[*AppConfig]
	cfg     *AppConfig
	log     *logger.Logger
	metrics *observability.Metrics
	engines *engine.Registry
	sched   *scheduler.Scheduler

	db      *database.Component
	redis   *redis.Component
	kafka   *kafka.Component
	archive *storage.Component

	history *history.Store
	monitor *monitor.Monitor
	svc     *service.Service
}

// newStack registers components on app. With infra false only the
// engines are wired: the scheduler does not run and no external store is
// contacted. The service is built during the configure phase, after the
// components have started.
func newStack(app *bootstrap.App[*AppConfig], infra bool) (*stack, error) {
	cfg := app.Cfg
	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	st := &stack{app: app, cfg: cfg, log: app.Logger, metrics: metrics}

	st.engines = engine.NewRegistry(cfg.Engines, metrics)
	builtin.Register(st.engines, nil)
	app.OnStop(st.engines.Close)

	schedOpts := []scheduler.Option{scheduler.WithMetrics(metrics)}
	if infra {
		if cfg.Database.Enabled {
			st.db = database.NewComponent(cfg.Database, st.log).WithMigrations(history.Migrations, history.MigrationsDir)
			schedOpts = append(schedOpts, scheduler.WithArchiver(historyArchiver{st}))
		}
		if cfg.Redis.Enabled {
			st.redis = redis.NewComponent(cfg.Redis, st.log)
		}
		if cfg.Kafka.Enabled {
			st.kafka = kafka.NewComponent(cfg.Kafka, st.log)
		}
		if cfg.Storage.Enabled {
			st.archive = storage.NewComponent(cfg.Storage, st.log)
		}
	}
	st.sched = scheduler.New(cfg.Scheduler, schedOpts...)

	if infra {
		if err := st.registerInfra(); err != nil {
			return nil, err
		}
		if err := app.RegisterComponent(st.sched); err != nil {
			return nil, err
		}
	}
	app.OnConfigure(func(ctx context.Context, _ *bootstrap.App[*AppConfig]) error {
		return st.configure(ctx, infra)
	})
	return st, nil
}

func (st *stack) registerInfra() error {
	if st.db != nil {
		if err := st.app.RegisterComponent(st.db); err != nil {
			return err
		}
	}
	if st.redis != nil {
		if err := st.app.RegisterComponent(st.redis); err != nil {
			return err
		}
	}
	if st.kafka != nil {
		if err := st.app.RegisterComponent(st.kafka); err != nil {
			return err
		}
	}
	if st.archive != nil {
		if err := st.app.RegisterComponent(st.archive); err != nil {
			return err
		}
	}
	return nil
}

func (st *stack) configure(ctx context.Context, infra bool) error {
	cfg := st.cfg
	var monOpts []monitor.Option
	var svcOpts []service.Option

	if st.db != nil {
		st.history = history.NewStore(st.db.DB(), st.log)
		svcOpts = append(svcOpts, service.WithHistory(st.history))
	}
	if st.redis != nil {
		monOpts = append(monOpts, monitor.WithStore(monitor.NewRedisStore(st.redis.Client())))
	}
	if st.kafka != nil {
		monOpts = append(monOpts, monitor.WithPublisher(events.NewKafkaPublisher(st.kafka.Producer())))
	}
	if st.archive != nil {
		monOpts = append(monOpts, monitor.WithArchive(st.archive.Storage(), cfg.Storage.Prefix))
	}

	dl := downloader.New(cfg.Downloader, nil, st.metrics)
	st.monitor = monitor.New(cfg.Monitor, dl, st.engines, st.sched, monOpts...)
	st.svc = service.New(st.engines, st.sched, st.monitor, cfg.Engines, svcOpts...)

	for _, name := range st.engines.ListAll() {
		st.app.Summary.Note("engine %s registered", name)
	}
	if !infra {
		return nil
	}

	if err := st.svc.RegisterMetrics(st.metrics); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if err := st.svc.RegisterMaintenance(); err != nil {
		return fmt.Errorf("register maintenance: %w", err)
	}
	for _, id := range st.svc.PreloadEngines() {
		st.log.Info("engine preload scheduled", logger.Fields("task_id", id))
	}
	n, err := st.monitor.Restore(ctx)
	if err != nil {
		st.log.Warn("channel restore failed", logger.ErrorFields("restore", err))
	} else if n > 0 {
		st.log.Info("channels restored", logger.Fields("count", n))
	}
	if !dl.Available() {
		st.log.Warn("yt-dlp not found, channel monitoring will fail until it is installed")
	}
	return nil
}

// historyArchiver forwards CleanupOld batches to the history store once the
// database has started.
type historyArchiver struct{ st *stack }

func (a historyArchiver) Archive(ctx context.Context, tasks []scheduler.Task) error {
	if a.st.history == nil {
		return errors.New("history store not ready")
	}
	return a.st.history.Archive(ctx, tasks)
}
