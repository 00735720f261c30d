package reporter

import (
	"testrig/scenario-engine/internal/reporter/console"
	"testrig/scenario-engine/internal/reporter/file"
	"testrig/scenario-engine/internal/reporter/webhook"
)

// RegisterBuiltinReporters registers all built-in reporters with the registry.
func RegisterBuiltinReporters(registry *Registry) error {
	if err := registry.Register(TypeConsole, func(config map[string]any) (Reporter, error) {
		return console.New(nil), nil
	}); err != nil {
		return err
	}

	if err := registry.Register(TypeJSON, func(config map[string]any) (Reporter, error) {
		return file.NewJSONReporter(nil), nil
	}); err != nil {
		return err
	}

	if err := registry.Register(TypeWebhook, func(config map[string]any) (Reporter, error) {
		return webhook.New(nil), nil
	}); err != nil {
		return err
	}

	return nil
}

// NewDefaultRegistry creates a registry with all built-in reporters registered.
func NewDefaultRegistry() (*Registry, error) {
	registry := NewRegistry()
	if err := RegisterBuiltinReporters(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
