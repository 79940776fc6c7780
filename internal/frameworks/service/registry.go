// Package service is the registry the HTTP services register with from
// init().
package service

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/deps"
)

// CoreServices are always built, whether or not [http.services.<name>]
// appears in the config. They are mounted in this order.
var CoreServices = []string{"desk", "feed"}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewService)
)

// Register adds a constructor under name. Duplicates are an error.
func Register(name string, newFunc NewService) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is Register for init(); it panics on error.
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor registered under name, or nil.
func Get(name string) NewService {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredServices returns the registered names, sorted.
func RegisteredServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs names in order, passing each its config map. On failure
// the services already built are closed.
func Build(names []string, d *deps.Deps, log *slog.Logger) ([]Service, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	built := make([]Service, 0, len(names))
	for _, name := range names {
		newFunc := Get(name)
		if newFunc == nil {
			closeAll(built)
			return nil, fmt.Errorf("service %q not registered", name)
		}
		svc, err := newFunc(d.Config.BuildServiceConfig(name), d, log.With("service", name))
		if err != nil {
			closeAll(built)
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		built = append(built, svc)
	}
	return built, nil
}

func closeAll(svcs []Service) {
	for i := len(svcs) - 1; i >= 0; i-- {
		svcs[i].Close()
	}
}

// resetRegistry is for tests.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]NewService)
}
