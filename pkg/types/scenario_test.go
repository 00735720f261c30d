package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Kind(t *testing.T) {
	tests := []struct {
		role Role
		kind string
	}{
		{"mon.a", "mon"},
		{"osd.12", "osd"},
		{"mds.a-s", "mds"},
		{"client.0", "client"},
		{"osd", "osd"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, tt.role.Kind(), string(tt.role))
	}
}

func TestRole_Qualified(t *testing.T) {
	assert.True(t, Role("mon.a").Qualified())
	assert.True(t, Role("mds.a-s").Qualified())
	assert.False(t, Role("mon").Qualified())
}

func TestScenario_BindTargets(t *testing.T) {
	scenario := &Scenario{Groups: []RoleGroup{
		{Roles: []Role{"mon.a"}},
		{Roles: []Role{"client.0"}},
	}}
	assert.False(t, scenario.Bound())

	require.NoError(t, scenario.BindTargets([]string{"host1", "host2"}))
	assert.True(t, scenario.Bound())
	assert.Equal(t, "host1", scenario.Groups[0].Target)
	assert.Equal(t, "host2", scenario.Groups[1].Target)
}

func TestScenario_BindTargets_CountMismatch(t *testing.T) {
	scenario := &Scenario{Groups: []RoleGroup{{Roles: []Role{"mon.a"}}}}
	err := scenario.BindTargets([]string{"host1", "host2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 targets given for 1 role groups")
}

func TestScenario_BindTargets_KeepsExistingBindings(t *testing.T) {
	scenario := &Scenario{Groups: []RoleGroup{
		{Roles: []Role{"mon.a"}, Target: "pinned"},
		{Roles: []Role{"client.0"}},
	}}
	require.NoError(t, scenario.BindTargets([]string{"host1", "host2"}))
	assert.Equal(t, "pinned", scenario.Groups[0].Target)
	assert.Equal(t, "host2", scenario.Groups[1].Target)
}

func TestTaskOutcome_FirstFailingTarget(t *testing.T) {
	outcome := NewTaskOutcome(0, TaskKindInstall)
	outcome.Targets["host2"] = &TargetResult{Target: "host2", ExitCode: 1, Failure: FailureExec}
	outcome.Targets["host1"] = &TargetResult{Target: "host1", ExitCode: 1, Failure: FailureExec}
	outcome.Targets["host0"] = &TargetResult{Target: "host0"}

	first := outcome.FirstFailingTarget()
	require.NotNil(t, first)
	assert.Equal(t, "host1", first.Target)
}

func TestTaskOutcome_FirstFailingTarget_NoneFailed(t *testing.T) {
	outcome := NewTaskOutcome(0, TaskKindInstall)
	outcome.Targets["host1"] = &TargetResult{Target: "host1"}
	assert.Nil(t, outcome.FirstFailingTarget())
}

func TestTaskOutcome_Lifecycle(t *testing.T) {
	outcome := NewTaskOutcome(3, TaskKindWorkUnit)
	assert.Equal(t, TaskStatusRunning, outcome.Status)

	outcome.Finish()
	assert.Equal(t, TaskStatusSucceeded, outcome.Status)
	assert.True(t, outcome.Succeeded())
	assert.False(t, outcome.EndTime.Before(outcome.StartTime))

	failed := NewTaskOutcome(4, TaskKindServiceRestart)
	failed.Fail(FailureTimeout, assert.AnError)
	failed.Finish()
	assert.Equal(t, TaskStatusFailed, failed.Status)
	assert.Equal(t, FailureTimeout, failed.Failure)
	assert.NotEmpty(t, failed.Error)
}

func TestServiceRestartTask_EffectivePolicy(t *testing.T) {
	assert.Equal(t, RestartRolling, (&ServiceRestartTask{}).EffectivePolicy())
	assert.Equal(t, RestartParallel, (&ServiceRestartTask{Policy: RestartParallel}).EffectivePolicy())
}
