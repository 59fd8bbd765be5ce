package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Config configures bearer token verification.
type Config struct {
	// Enabled turns authentication on. When false every request is treated
	// as anonymous and protected routes reject it.
	Enabled bool `mapstructure:"enabled"`
	// Secret is the HMAC signing key.
	Secret string `mapstructure:"secret"`
	// Method is one of HS256, HS384, HS512.
	Method   string        `mapstructure:"method"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

var supportedMethods = []string{"HS256", "HS384", "HS512"}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Method == "" {
		c.Method = "HS256"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = time.Hour
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Secret == "" {
		return errors.New("auth: secret is required when auth is enabled")
	}
	if !slices.Contains(supportedMethods, c.Method) {
		return fmt.Errorf("auth: unsupported signing method %q", c.Method)
	}
	return nil
}
