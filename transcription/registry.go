package transcription

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kbukum/medscribe/logger"
)

// Factory builds a Provider from configuration.
type Factory func(cfg Config, log *logger.Logger) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory makes a provider available to New.
func RegisterFactory(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Registered returns the sorted names of registered providers.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the provider named by cfg.Provider.
func New(cfg Config, log *logger.Logger) (Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.RLock()
	f, ok := factories[cfg.Provider]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transcription: provider %q not registered (have %v)", cfg.Provider, Registered())
	}

	log.Info("Initializing transcription provider", map[string]interface{}{
		logger.FieldProvider: cfg.Provider,
		"model":              cfg.Model,
	})
	return f(cfg, log)
}
