package database

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/kbukum/whisper-subtitle/component"
	"github.com/kbukum/whisper-subtitle/database/migration"
	"github.com/kbukum/whisper-subtitle/logger"
)

// Component opens the database and applies migrations on Start.
type Component struct {
	db  *DB
	cfg Config
	log *logger.Logger

	migrations fs.FS
	migDir     string
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a database component.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	return &Component{cfg: cfg, log: log.WithComponent("database")}
}

// WithMigrations registers SQL migrations (dir inside fsys) applied on Start.
func (c *Component) WithMigrations(fsys fs.FS, dir string) *Component {
	c.migrations = fsys
	c.migDir = dir
	return c
}

// DB returns the database, or nil before Start.
func (c *Component) DB() *DB { return c.db }

func (c *Component) Name() string { return "database" }

func (c *Component) Start(ctx context.Context) error {
	db, err := Open(ctx, c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("database start: %w", err)
	}
	if c.migrations != nil {
		v, err := migration.Up(db.GormDB, c.migrations, c.migDir)
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("database migrate: %w", err)
		}
		c.log.Info("schema up to date", logger.Fields("version", v))
	}
	c.db = db
	return nil
}

func (c *Component) Stop(_ context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Component) Health(ctx context.Context) component.Health {
	if c.db == nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "database not initialized"}
	}
	if err := c.db.PingContext(ctx); err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}
