package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrig/scenario-engine/pkg/types"
)

func finishedOutcome(index int, kind types.TaskKind, status types.TaskStatus, end time.Time) *types.TaskOutcome {
	return &types.TaskOutcome{
		Index:     index,
		Kind:      kind,
		Status:    status,
		StartTime: end.Add(-time.Second),
		EndTime:   end,
		Duration:  time.Second,
	}
}

func TestAggregate_AllSucceeded(t *testing.T) {
	start := time.Now()
	outcomes := []*types.TaskOutcome{
		finishedOutcome(0, types.TaskKindInstall, types.TaskStatusSucceeded, start.Add(time.Second)),
		finishedOutcome(1, types.TaskKindServiceStart, types.TaskStatusSucceeded, start.Add(3*time.Second)),
	}

	result := Aggregate("run-1", "upgrade", start, outcomes)

	assert.Equal(t, types.VerdictPass, result.Verdict)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "upgrade", result.Scenario)
	assert.Equal(t, start.Add(3*time.Second), result.EndTime)
	assert.Equal(t, 3*time.Second, result.Duration)
	assert.Len(t, result.Outcomes, 2)
}

func TestAggregate_AnyFailureFailsVerdict(t *testing.T) {
	start := time.Now()
	outcomes := []*types.TaskOutcome{
		finishedOutcome(0, types.TaskKindInstall, types.TaskStatusSucceeded, start.Add(time.Second)),
		finishedOutcome(1, types.TaskKindWorkUnit, types.TaskStatusFailed, start.Add(2*time.Second)),
		finishedOutcome(2, types.TaskKindServiceRestart, types.TaskStatusSkipped, start.Add(2*time.Second)),
	}

	result := Aggregate("run-1", "upgrade", start, outcomes)
	assert.Equal(t, types.VerdictFail, result.Verdict)
	assert.False(t, result.Passed())
}

func TestAggregate_SkippedOutcomesDoNotPassOrFail(t *testing.T) {
	start := time.Now()

	// A run where every recorded task succeeded but the tail was
	// skipped still passes on its own merits only if nothing failed.
	outcomes := []*types.TaskOutcome{
		finishedOutcome(0, types.TaskKindInstall, types.TaskStatusSucceeded, start.Add(time.Second)),
		finishedOutcome(1, types.TaskKindWorkUnit, types.TaskStatusSkipped, start.Add(time.Second)),
	}
	result := Aggregate("run-1", "short", start, outcomes)
	assert.Equal(t, types.VerdictPass, result.Verdict)
}

func TestBuild_ReportShape(t *testing.T) {
	start := time.Now()

	ok := finishedOutcome(0, types.TaskKindInstall, types.TaskStatusSucceeded, start.Add(2*time.Second))
	ok.Targets = map[string]*types.TargetResult{
		"host1": {Target: "host1", Duration: 800 * time.Millisecond},
		"host2": {Target: "host2", Duration: 1200 * time.Millisecond},
	}

	failed := finishedOutcome(1, types.TaskKindWorkUnit, types.TaskStatusFailed, start.Add(4*time.Second))
	failed.Failure = types.FailureExec
	failed.Error = "test failure: client.0/a.sh"
	failed.Targets = map[string]*types.TargetResult{
		"client.0": {
			Target:    "host3",
			Role:      "client.0",
			ExitCode:  1,
			Failure:   types.FailureExec,
			Error:     "a.sh: script exited 1",
			StderrRef: "/archive/0003-task1.stderr.log",
			Duration:  500 * time.Millisecond,
		},
	}

	skipped := types.NewSkippedOutcome(2, types.TaskKindServiceRestart)

	result := Aggregate("run-1", "upgrade", start, []*types.TaskOutcome{ok, failed, skipped})
	rep := Build(result)

	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, types.VerdictFail, rep.Verdict)
	require.Len(t, rep.Tasks, 3)

	assert.Equal(t, map[types.TaskStatus]int{
		types.TaskStatusSucceeded: 1,
		types.TaskStatusFailed:    1,
		types.TaskStatusSkipped:   1,
	}, rep.TaskCounts)

	// Targets come out in stable sorted order.
	require.Len(t, rep.Tasks[0].Targets, 2)
	assert.Equal(t, "host1", rep.Tasks[0].Targets[0].Target)
	assert.Equal(t, "host2", rep.Tasks[0].Targets[1].Target)

	// The failed task headlines its first failing target.
	require.NotNil(t, rep.Tasks[1].FirstFailing)
	assert.Equal(t, "host3", rep.Tasks[1].FirstFailing.Target)
	assert.Equal(t, 1, rep.Tasks[1].FirstFailing.ExitCode)

	// Skipped tasks appear with no detail, never omitted.
	assert.Equal(t, types.TaskStatusSkipped, rep.Tasks[2].Status)
	assert.Nil(t, rep.Tasks[2].Durations)
	assert.Empty(t, rep.Tasks[2].Targets)
}

func TestBuild_DurationStats(t *testing.T) {
	start := time.Now()

	outcome := finishedOutcome(0, types.TaskKindInstall, types.TaskStatusSucceeded, start.Add(time.Second))
	outcome.Targets = map[string]*types.TargetResult{
		"host1": {Target: "host1", Duration: 100 * time.Millisecond},
		"host2": {Target: "host2", Duration: 200 * time.Millisecond},
		"host3": {Target: "host3", Duration: 300 * time.Millisecond},
	}

	rep := Build(Aggregate("run-1", "timing", start, []*types.TaskOutcome{outcome}))

	stats := rep.Tasks[0].Durations
	require.NotNil(t, stats)
	assert.Equal(t, int64(3), stats.Count)
	assert.InDelta(t, 100, stats.MinMs, 1)
	assert.InDelta(t, 300, stats.MaxMs, 1)
	assert.InDelta(t, 200, stats.AvgMs, 1)
	assert.InDelta(t, 200, stats.P50Ms, 1)

	// Whole-run stats cover the same three commands.
	require.NotNil(t, rep.Commands)
	assert.Equal(t, int64(3), rep.Commands.Count)
}

func TestBuild_NoDurationsRecorded(t *testing.T) {
	start := time.Now()
	outcome := finishedOutcome(0, types.TaskKindServiceStart, types.TaskStatusSucceeded, start.Add(time.Second))

	rep := Build(Aggregate("run-1", "empty", start, []*types.TaskOutcome{outcome}))
	assert.Nil(t, rep.Tasks[0].Durations)
	assert.Nil(t, rep.Commands)
}
