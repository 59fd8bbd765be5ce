package database

import (
	"context"
	"fmt"

	"github.com/kbukum/medscribe/component"
	"github.com/kbukum/medscribe/database/migration"
	"github.com/kbukum/medscribe/logger"
)

// Component manages the DB lifecycle.
type Component struct {
	cfg    Config
	log    *logger.Logger
	models []interface{}
	db     *DB
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a database component.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: log.WithComponent("database")}
}

// WithModels registers models auto-migrated on sqlite when Migrate is set.
func (c *Component) WithModels(models ...interface{}) *Component {
	c.models = append(c.models, models...)
	return c
}

// DB returns the connection, or nil before Start.
func (c *Component) DB() *DB {
	return c.db
}

func (c *Component) Name() string { return "database" }

// Start connects and applies migrations when configured.
func (c *Component) Start(ctx context.Context) error {
	db, err := Open(ctx, c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("database start: %w", err)
	}
	c.db = db

	if !c.cfg.Migrate {
		return nil
	}
	switch c.cfg.Driver {
	case DriverPostgres:
		if err := migration.MigrateUp(db.GormDB, migration.Schema, migration.SchemaDir, migration.Postgres); err != nil {
			return fmt.Errorf("database migrate: %w", err)
		}
		c.log.Info("Schema migrations applied")
	default:
		if err := db.AutoMigrate(c.models...); err != nil {
			return fmt.Errorf("database auto-migrate: %w", err)
		}
		c.log.Info("Auto-migration completed", map[string]interface{}{"models": len(c.models)})
	}
	return nil
}

// Stop closes the pool.
func (c *Component) Stop(_ context.Context) error {
	if c.db == nil {
		return nil
	}
	c.log.Info("Closing database connection")
	return c.db.Close()
}

// Health pings the database.
func (c *Component) Health(ctx context.Context) component.Health {
	if c.db == nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "database not initialized"}
	}
	if err := c.db.PingContext(ctx); err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

func (c *Component) Describe() component.Description {
	details := fmt.Sprintf("%s pool=%d/%d", c.cfg.Driver, c.cfg.MaxOpenConns, c.cfg.MaxIdleConns)
	if c.cfg.Migrate {
		details += " migrate=on"
	}
	return component.Description{Name: "Database", Type: "database", Details: details}
}
