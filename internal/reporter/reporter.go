// Package reporter provides the report emission framework: a Reporter
// interface, a factory registry and a manager fanning one finished
// scenario report out to every enabled sink.
package reporter

import (
	"context"
	"fmt"
	"sync"

	"testrig/scenario-engine/pkg/types"
)

// Reporter emits finished scenario reports to one sink.
type Reporter interface {
	// Name returns the reporter name.
	Name() string

	// Init initializes the reporter with its configuration.
	Init(ctx context.Context, config map[string]any) error

	// Emit sends one finished scenario report.
	Emit(ctx context.Context, report *types.ScenarioReport) error

	// Flush flushes any buffered data.
	Flush(ctx context.Context) error

	// Close shuts the reporter down and releases resources.
	Close(ctx context.Context) error
}

// Type identifies a reporter implementation.
type Type string

const (
	// TypeConsole prints a human summary table.
	TypeConsole Type = "console"
	// TypeJSON writes the structured report to a file.
	TypeJSON Type = "json"
	// TypeWebhook posts the report to a sink URL.
	TypeWebhook Type = "webhook"
)

// Config selects and configures one reporter.
type Config struct {
	Type    Type           `yaml:"type"`
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Factory creates a reporter of a specific type.
type Factory func(config map[string]any) (Reporter, error)

// Registry manages reporter registration and creation. Reporters are an
// open set (unlike task kinds), so a registry fits here.
type Registry struct {
	factories map[Type]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty reporter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Type]Factory),
	}
}

// Register adds a factory for the type.
func (r *Registry) Register(reporterType Type, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reporterType]; exists {
		return fmt.Errorf("reporter type already registered: %s", reporterType)
	}
	r.factories[reporterType] = factory
	return nil
}

// Create builds a reporter of the type.
func (r *Registry) Create(reporterType Type, config map[string]any) (Reporter, error) {
	r.mu.RLock()
	factory, exists := r.factories[reporterType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown reporter type: %s", reporterType)
	}
	return factory(config)
}

// ListTypes returns all registered reporter types.
func (r *Registry) ListTypes() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reporterTypes := make([]Type, 0, len(r.factories))
	for t := range r.factories {
		reporterTypes = append(reporterTypes, t)
	}
	return reporterTypes
}

// HasType checks whether the type is registered.
func (r *Registry) HasType(reporterType Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[reporterType]
	return exists
}
