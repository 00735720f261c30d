package reporter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrig/scenario-engine/pkg/types"
)

// fakeReporter records calls and optionally fails emission.
type fakeReporter struct {
	name    string
	emitErr error
	emitted []*types.ScenarioReport
	flushed bool
	closed  bool
}

func (f *fakeReporter) Name() string                               { return f.name }
func (f *fakeReporter) Init(context.Context, map[string]any) error { return nil }
func (f *fakeReporter) Flush(context.Context) error                { f.flushed = true; return nil }
func (f *fakeReporter) Close(context.Context) error                { f.closed = true; return nil }

func (f *fakeReporter) Emit(_ context.Context, r *types.ScenarioReport) error {
	f.emitted = append(f.emitted, r)
	return f.emitErr
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	registry := NewRegistry()
	err := registry.Register("fake", func(config map[string]any) (Reporter, error) {
		return &fakeReporter{name: "fake"}, nil
	})
	require.NoError(t, err)

	assert.True(t, registry.HasType("fake"))
	assert.False(t, registry.HasType("other"))
	assert.Equal(t, []Type{"fake"}, registry.ListTypes())

	r, err := registry.Create("fake", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", r.Name())

	_, err = registry.Create("other", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown reporter type")
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	factory := func(config map[string]any) (Reporter, error) {
		return &fakeReporter{name: "fake"}, nil
	}
	require.NoError(t, registry.Register("fake", factory))
	err := registry.Register("fake", factory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestNewDefaultRegistry(t *testing.T) {
	registry, err := NewDefaultRegistry()
	require.NoError(t, err)
	assert.True(t, registry.HasType(TypeConsole))
	assert.True(t, registry.HasType(TypeJSON))
	assert.True(t, registry.HasType(TypeWebhook))
}

func TestManager_EmitFansOut(t *testing.T) {
	manager := NewManager(nil)
	a := &fakeReporter{name: "a"}
	b := &fakeReporter{name: "b"}
	manager.AddReporter(a)
	manager.AddReporter(b)

	report := &types.ScenarioReport{RunID: "run-1", Verdict: types.VerdictPass}
	require.NoError(t, manager.Emit(context.Background(), report))

	require.Len(t, a.emitted, 1)
	require.Len(t, b.emitted, 1)
	assert.Equal(t, "run-1", a.emitted[0].RunID)
}

func TestManager_EmitOneFailureDoesNotStopOthers(t *testing.T) {
	manager := NewManager(nil)
	failing := &fakeReporter{name: "bad", emitErr: errors.New("sink down")}
	ok := &fakeReporter{name: "good"}
	manager.AddReporter(failing)
	manager.AddReporter(ok)

	err := manager.Emit(context.Background(), &types.ScenarioReport{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reporter bad")
	assert.Len(t, ok.emitted, 1)
}

func TestManager_AddFromConfig_SkipsDisabled(t *testing.T) {
	registry := NewRegistry()
	created := 0
	require.NoError(t, registry.Register("fake", func(config map[string]any) (Reporter, error) {
		created++
		return &fakeReporter{name: "fake"}, nil
	}))

	manager := NewManager(registry)
	require.NoError(t, manager.AddFromConfig(context.Background(), &Config{Type: "fake", Enabled: false}))
	assert.Equal(t, 0, created)

	require.NoError(t, manager.AddFromConfig(context.Background(), &Config{Type: "fake", Enabled: true}))
	assert.Equal(t, 1, created)
}

func TestManager_CloseFlushesAndCloses(t *testing.T) {
	manager := NewManager(nil)
	r := &fakeReporter{name: "a"}
	manager.AddReporter(r)

	require.NoError(t, manager.Close(context.Background()))
	assert.True(t, r.flushed)
	assert.True(t, r.closed)

	// Closed managers hold no reporters.
	require.NoError(t, manager.Emit(context.Background(), &types.ScenarioReport{}))
	assert.Len(t, r.emitted, 0)
}
