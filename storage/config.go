package storage

import (
	"errors"
	"fmt"
)

// Supported providers.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

const (
	DefaultBasePath    = "./uploads"
	DefaultRegion      = "us-east-1"
	DefaultMaxFileSize = int64(10 * 1024 * 1024)
	DefaultPublicURL   = "http://localhost:5000"
)

// Config holds storage configuration for every provider. Each provider
// reads the fields that apply to it.
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`

	// MaxFileSize caps a single upload in bytes.
	MaxFileSize int64 `mapstructure:"max_file_size"`

	// Local provider.
	BasePath   string `mapstructure:"base_path"`
	PublicURL  string `mapstructure:"public_url"`
	SigningKey string `mapstructure:"signing_key"`

	// S3 provider.
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.PublicURL == "" {
		c.PublicURL = DefaultPublicURL
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
}

// Validate checks the configuration for the selected provider.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderLocal:
		var errs []error
		if c.BasePath == "" {
			errs = append(errs, errors.New("base_path is required"))
		}
		if c.SigningKey == "" {
			errs = append(errs, errors.New("signing_key is required"))
		}
		if len(errs) > 0 {
			return fmt.Errorf("storage: invalid local config: %w", errors.Join(errs...))
		}
	case ProviderS3:
		var errs []error
		if c.Bucket == "" {
			errs = append(errs, errors.New("bucket is required"))
		}
		if c.Region == "" {
			errs = append(errs, errors.New("region is required"))
		}
		if len(errs) > 0 {
			return fmt.Errorf("storage: invalid s3 config: %w", errors.Join(errs...))
		}
	default:
		return fmt.Errorf("storage: unsupported provider %q", c.Provider)
	}
	return nil
}
