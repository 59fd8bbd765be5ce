package inference

import (
	"fmt"
	"time"
)

const (
	DefaultBaseURL      = "https://api-inference.huggingface.co/models"
	DefaultNERModel     = "dmis-lab/biobert-base-cased-v1.2-ner"
	DefaultSummaryModel = "facebook/bart-large-cnn"
	DefaultImageModel   = "microsoft/resnet-50"
)

// Config configures the hosted-model client.
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`

	NERModel     string `mapstructure:"ner_model"`
	SummaryModel string `mapstructure:"summary_model"`
	ImageModel   string `mapstructure:"image_model"`

	// MinEntityScore drops entities at or below this confidence.
	MinEntityScore float64 `mapstructure:"min_entity_score"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	// RequestsPerSecond throttles outbound calls; zero disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.NERModel == "" {
		c.NERModel = DefaultNERModel
	}
	if c.SummaryModel == "" {
		c.SummaryModel = DefaultSummaryModel
	}
	if c.ImageModel == "" {
		c.ImageModel = DefaultImageModel
	}
	if c.MinEntityScore <= 0 {
		c.MinEntityScore = 0.5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("inference: api_key is required")
	}
	if c.MinEntityScore >= 1 {
		return fmt.Errorf("inference: min_entity_score must be below 1")
	}
	return nil
}
