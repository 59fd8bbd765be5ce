package transcription

import (
	"fmt"
	"time"
)

// Provider names.
const (
	ProviderHuggingFace = "huggingface"
	ProviderWhisper     = "whisper"
)

const (
	DefaultBaseURL = "https://api-inference.huggingface.co/models"
	DefaultModel   = "openai/whisper-large-v3"
	DefaultTimeout = 30 * time.Second
)

// Config selects and configures the transcription backend.
type Config struct {
	Provider string `mapstructure:"provider"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`

	// Timeout bounds a single Transcribe call, retries included.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxAttempts above 1 retries transient failures inside Timeout.
	MaxAttempts int `mapstructure:"max_attempts"`
	// BreakerFailures consecutive transient failures open the circuit.
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderHuggingFace
	}
	if c.BaseURL == "" && c.Provider == ProviderHuggingFace {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
		if c.Provider == ProviderWhisper {
			c.Model = "base"
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("transcription: base_url is required for provider %q", c.Provider)
	}
	if c.Provider == ProviderHuggingFace && c.APIKey == "" {
		return fmt.Errorf("transcription: api_key is required for provider %q", c.Provider)
	}
	return nil
}
