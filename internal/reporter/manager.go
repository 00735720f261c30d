package reporter

import (
	"context"
	"fmt"
	"sync"

	"github.com/grafana/dskit/multierror"

	"testrig/scenario-engine/pkg/types"
)

// Manager fans a finished report out to every configured reporter.
type Manager struct {
	registry  *Registry
	reporters []Reporter
	mu        sync.RWMutex
}

// NewManager creates a reporter manager.
func NewManager(registry *Registry) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{
		registry:  registry,
		reporters: make([]Reporter, 0),
	}
}

// AddReporter adds an already constructed reporter.
func (m *Manager) AddReporter(reporter Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, reporter)
}

// AddFromConfig creates, initializes and adds a reporter from its
// configuration. Disabled entries are ignored.
func (m *Manager) AddFromConfig(ctx context.Context, config *Config) error {
	if !config.Enabled {
		return nil
	}

	reporter, err := m.registry.Create(config.Type, config.Config)
	if err != nil {
		return fmt.Errorf("create reporter %s: %w", config.Type, err)
	}
	if err := reporter.Init(ctx, config.Config); err != nil {
		return fmt.Errorf("init reporter %s: %w", config.Type, err)
	}

	m.AddReporter(reporter)
	return nil
}

// Emit sends the report to every reporter. One failing sink does not
// stop the others; all failures are folded into the returned error.
func (m *Manager) Emit(ctx context.Context, report *types.ScenarioReport) error {
	m.mu.RLock()
	reporters := make([]Reporter, len(m.reporters))
	copy(reporters, m.reporters)
	m.mu.RUnlock()

	errs := multierror.New()
	for _, reporter := range reporters {
		if err := reporter.Emit(ctx, report); err != nil {
			errs.Add(fmt.Errorf("reporter %s: %w", reporter.Name(), err))
		}
	}
	return errs.Err()
}

// Close flushes and closes every reporter.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := multierror.New()
	for _, reporter := range m.reporters {
		if err := reporter.Flush(ctx); err != nil {
			errs.Add(fmt.Errorf("flush reporter %s: %w", reporter.Name(), err))
		}
		if err := reporter.Close(ctx); err != nil {
			errs.Add(fmt.Errorf("close reporter %s: %w", reporter.Name(), err))
		}
	}
	m.reporters = m.reporters[:0]
	return errs.Err()
}
