package httpclient

import (
	"fmt"
	"time"

	"github.com/kbukum/medscribe/resilience"
)

const defaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// Name labels the client in logs and circuit breaker callbacks.
	Name string `mapstructure:"name"`
	// BaseURL is prepended to relative request paths.
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds each attempt, including reading the body.
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`

	Auth *AuthConfig `mapstructure:"-"`

	// Retry, CircuitBreaker and RateLimiter are disabled when nil.
	Retry          *resilience.RetryConfig          `mapstructure:"retry"`
	CircuitBreaker *resilience.CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimiter    *resilience.RateLimiterConfig    `mapstructure:"rate_limiter"`
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Retry != nil && c.Retry.RetryIf == nil {
		c.Retry.RetryIf = IsRetryable
	}
	if c.CircuitBreaker != nil {
		if c.CircuitBreaker.Name == "" {
			c.CircuitBreaker.Name = c.Name
		}
		if c.CircuitBreaker.IsFailure == nil {
			c.CircuitBreaker.IsFailure = IsRetryable
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("httpclient: timeout must be positive")
	}
	return nil
}

// DefaultRetryConfig retries only transient HTTP failures.
func DefaultRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.RetryIf = IsRetryable
	return &cfg
}
