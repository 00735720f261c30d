package types

import "time"

// TaskStatus represents the state of a task in the pipeline.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started yet.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusSucceeded indicates every per-target operation succeeded.
	TaskStatusSucceeded TaskStatus = "succeeded"
	// TaskStatusFailed indicates at least one per-target operation failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the task never ran because an earlier
	// task failed under the fail-fast policy.
	TaskStatusSkipped TaskStatus = "skipped"
)

// FailureKind classifies why a task or target operation failed.
type FailureKind string

const (
	// FailureNone marks a successful outcome.
	FailureNone FailureKind = ""
	// FailureExec means a command ran on the target and exited non-zero.
	FailureExec FailureKind = "exec"
	// FailureTransport means the target could not be reached or the
	// command could not be started at all.
	FailureTransport FailureKind = "transport"
	// FailureTimeout means the task exceeded its configured ceiling.
	// The verdict treats it like any other failure.
	FailureTimeout FailureKind = "timeout"
	// FailureCancelled means a hard cancellation (signal or global
	// timeout) terminated the operation.
	FailureCancelled FailureKind = "cancelled"
)

// TargetResult records the outcome of one per-target operation within a
// task: exit status, output capture references and timing. Written by
// exactly one producer and read-only afterward.
type TargetResult struct {
	Target    string        `json:"target"`
	Role      Role          `json:"role,omitempty"`
	ExitCode  int           `json:"exit_code"`
	StdoutRef string        `json:"stdout_ref,omitempty"`
	StderrRef string        `json:"stderr_ref,omitempty"`
	Duration  time.Duration `json:"duration"`
	Failure   FailureKind   `json:"failure,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// OK reports whether the operation succeeded.
func (r *TargetResult) OK() bool {
	return r.Failure == FailureNone && r.ExitCode == 0
}

// TaskOutcome is the result of executing one task. Outcomes are created
// incrementally during the run and are append-only.
type TaskOutcome struct {
	Index     int                      `json:"index"`
	Kind      TaskKind                 `json:"kind"`
	Status    TaskStatus               `json:"status"`
	Failure   FailureKind              `json:"failure,omitempty"`
	Error     string                   `json:"error,omitempty"`
	StartTime time.Time                `json:"start_time"`
	EndTime   time.Time                `json:"end_time"`
	Duration  time.Duration            `json:"duration"`
	Targets   map[string]*TargetResult `json:"targets,omitempty"`
}

// NewTaskOutcome creates a running outcome for task index with the start
// timestamp set. Fill Targets during execution and finish with Finish().
func NewTaskOutcome(index int, kind TaskKind) *TaskOutcome {
	return &TaskOutcome{
		Index:     index,
		Kind:      kind,
		Status:    TaskStatusRunning,
		StartTime: time.Now(),
		Targets:   make(map[string]*TargetResult),
	}
}

// NewSkippedOutcome creates the Skipped marker recorded for tasks that
// never ran.
func NewSkippedOutcome(index int, kind TaskKind) *TaskOutcome {
	now := time.Now()
	return &TaskOutcome{
		Index:     index,
		Kind:      kind,
		Status:    TaskStatusSkipped,
		StartTime: now,
		EndTime:   now,
	}
}

// Fail marks the task failed with the given failure kind.
func (o *TaskOutcome) Fail(kind FailureKind, err error) {
	o.Status = TaskStatusFailed
	o.Failure = kind
	if err != nil {
		o.Error = err.Error()
	}
}

// Finish sets the end timestamp and duration, and resolves a still
// running status to succeeded.
func (o *TaskOutcome) Finish() {
	o.EndTime = time.Now()
	o.Duration = o.EndTime.Sub(o.StartTime)
	if o.Status == TaskStatusRunning {
		o.Status = TaskStatusSucceeded
	}
}

// Succeeded reports whether the task completed without failure.
func (o *TaskOutcome) Succeeded() bool {
	return o.Status == TaskStatusSucceeded
}

// FirstFailingTarget returns the target result that should headline the
// diagnostics for a failed task: the lexically first failing target, so
// the choice is deterministic. Nil when no target failed.
func (o *TaskOutcome) FirstFailingTarget() *TargetResult {
	var first *TargetResult
	for _, tr := range o.Targets {
		if tr.OK() {
			continue
		}
		if first == nil || tr.Target < first.Target {
			first = tr
		}
	}
	return first
}

// Verdict is the overall pass/fail result of a scenario run.
type Verdict string

const (
	// VerdictPass means every non-skipped task succeeded.
	VerdictPass Verdict = "pass"
	// VerdictFail means at least one task failed.
	VerdictFail Verdict = "fail"
)

// ScenarioResult is the ordered sequence of task outcomes plus the
// overall verdict. len(Outcomes) always equals the task count: tasks cut
// off by fail-fast still produce Skipped markers.
type ScenarioResult struct {
	RunID     string         `json:"run_id"`
	Scenario  string         `json:"scenario"`
	Verdict   Verdict        `json:"verdict"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Duration  time.Duration  `json:"duration"`
	Outcomes  []*TaskOutcome `json:"outcomes"`
}

// Passed reports whether the run passed.
func (r *ScenarioResult) Passed() bool {
	return r.Verdict == VerdictPass
}
