package types

import "time"

// ScenarioReport is the structured, serialization-friendly form of a
// ScenarioResult handed to reporting sinks. It preserves task order,
// per-target detail and timing.
type ScenarioReport struct {
	RunID      string         `json:"run_id"`
	Scenario   string         `json:"scenario"`
	Verdict    Verdict        `json:"verdict"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
	DurationMs float64        `json:"duration_ms"`
	Tasks      []*TaskReport  `json:"tasks"`
	Commands   *DurationStats `json:"command_durations,omitempty"`

	// Counts by task status, for quick sink-side dashboards.
	TaskCounts map[TaskStatus]int `json:"task_counts"`
}

// TaskReport is the per-task section of a ScenarioReport. Failed tasks
// name the first failing target with its captured output references;
// skipped tasks are listed explicitly, never silently omitted.
type TaskReport struct {
	Index        int             `json:"index"`
	Kind         TaskKind        `json:"kind"`
	Status       TaskStatus      `json:"status"`
	Failure      FailureKind     `json:"failure,omitempty"`
	Error        string          `json:"error,omitempty"`
	DurationMs   float64         `json:"duration_ms"`
	FirstFailing *TargetResult   `json:"first_failing_target,omitempty"`
	Targets      []*TargetResult `json:"targets,omitempty"`
	Durations    *DurationStats  `json:"command_durations,omitempty"`
}

// DurationStats summarizes command durations in milliseconds.
type DurationStats struct {
	Count int64   `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P90Ms float64 `json:"p90_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}
