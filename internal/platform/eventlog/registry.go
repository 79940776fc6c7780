package eventlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DriverConfig holds configuration for driver selection and initialization.
type DriverConfig struct {
	// Driver is the driver name: memory, sqlite
	Driver string `json:"driver"`

	// DataDir is the directory for the sqlite database
	DataDir string `json:"data_dir"`

	// Capacity caps the number of entries kept by the memory driver
	Capacity int `json:"capacity"`
}

// DriverFactory creates a sink instance.
type DriverFactory func(cfg *DriverConfig) (Sink, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register registers a driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a sink based on the configuration.
func New(cfg *DriverConfig) (Sink, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event log driver: %s", cfg.Driver)
	}
	return factory(cfg)
}

// Open creates and initializes a sink.
func Open(ctx context.Context, cfg *DriverConfig) (Sink, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("init %s event log: %w", cfg.Driver, err)
	}
	return s, nil
}

// AvailableDrivers returns the sorted list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
