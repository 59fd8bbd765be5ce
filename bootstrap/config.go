package bootstrap

import "github.com/kbukum/medscribe/config"

// Config is satisfied by any struct embedding config.ServiceConfig that
// also fills defaults and validates itself.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
