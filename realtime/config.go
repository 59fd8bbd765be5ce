package realtime

import (
	"fmt"
	"time"
)

// Config tunes the transcription protocol and its socket transport.
type Config struct {
	// FlushInterval is the minimum time between time-based flushes.
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// ReaperInterval is how often idle transcriptions are swept.
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`
	// IdleTimeout evicts transcriptions with no activity for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// Socket transport.
	Path           string        `mapstructure:"path"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

func (c *Config) ApplyDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.ReaperInterval <= 0 {
		c.ReaperInterval = 5 * time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.Path == "" {
		c.Path = "/ws/transcription"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 8 << 20
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
}

func (c *Config) Validate() error {
	if c.PingInterval >= c.PongWait {
		return fmt.Errorf("realtime: ping_interval (%s) must be shorter than pong_wait (%s)", c.PingInterval, c.PongWait)
	}
	if c.IdleTimeout < c.FlushInterval {
		return fmt.Errorf("realtime: idle_timeout must not be shorter than flush_interval")
	}
	return nil
}
