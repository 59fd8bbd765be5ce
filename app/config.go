package app

import (
	"errors"

	"github.com/kbukum/medscribe/auth"
	"github.com/kbukum/medscribe/config"
	"github.com/kbukum/medscribe/database"
	"github.com/kbukum/medscribe/inference"
	"github.com/kbukum/medscribe/observability"
	"github.com/kbukum/medscribe/realtime"
	"github.com/kbukum/medscribe/redis"
	"github.com/kbukum/medscribe/server"
	"github.com/kbukum/medscribe/server/middleware"
	"github.com/kbukum/medscribe/session"
	"github.com/kbukum/medscribe/storage"
	"github.com/kbukum/medscribe/transcription"
)

// ServiceName is the config and environment prefix of the service.
const ServiceName = "medscribe"

// Config is the full service configuration.
type Config struct {
	config.ServiceConfig `mapstructure:",squash"`

	Server        server.Config              `mapstructure:"server"`
	Database      database.Config            `mapstructure:"database"`
	Redis         redis.Config               `mapstructure:"redis"`
	Cache         session.CacheConfig        `mapstructure:"cache"`
	Storage       storage.Config             `mapstructure:"storage"`
	Transcription transcription.Config       `mapstructure:"transcription"`
	Inference     inference.Config           `mapstructure:"inference"`
	Auth          auth.Config                `mapstructure:"auth"`
	Realtime      realtime.Config            `mapstructure:"realtime"`
	Observability observability.Config       `mapstructure:"observability"`
	AIRateLimit   middleware.RateLimitConfig `mapstructure:"ai_rate_limit"`
}

// ApplyDefaults fills every block.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Storage.ApplyDefaults()
	c.Transcription.ApplyDefaults()
	c.Inference.ApplyDefaults()
	c.Auth.ApplyDefaults()
	c.Realtime.ApplyDefaults()
	c.Observability.ApplyDefaults()
	if c.AIRateLimit.RequestsPerMinute <= 0 {
		c.AIRateLimit.RequestsPerMinute = 30
	}
}

// Validate checks every block and reports all failures together. Redis and
// storage settings are only checked when they are in use.
func (c *Config) Validate() error {
	errs := []error{
		c.ServiceConfig.Validate(),
		c.Server.Validate(),
		c.Database.Validate(),
		c.Cache.Validate(),
		c.Transcription.Validate(),
		c.Inference.Validate(),
		c.Auth.Validate(),
		c.Realtime.Validate(),
		c.Observability.Validate(),
	}
	if c.Cache.Provider == session.CacheRedis {
		errs = append(errs, c.Redis.Validate())
	}
	if c.Storage.Enabled {
		errs = append(errs, c.Storage.Validate())
	}
	return errors.Join(errs...)
}
