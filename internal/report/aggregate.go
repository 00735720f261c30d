// Package report turns recorded task outcomes into the scenario verdict
// and the structured report handed to reporting sinks. Everything here is
// a pure function over the outcome sequence.
package report

import (
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"testrig/scenario-engine/pkg/types"
)

// Histogram bounds for command durations: 1ms to 6h, 3 significant
// figures.
const (
	histMin    = 1
	histMax    = int64(6 * time.Hour / time.Millisecond)
	histSigFig = 3
)

// Aggregate merges the recorded outcomes into a ScenarioResult. The
// verdict is the logical AND of all non-skipped outcomes.
func Aggregate(runID, scenario string, start time.Time, outcomes []*types.TaskOutcome) *types.ScenarioResult {
	result := &types.ScenarioResult{
		RunID:     runID,
		Scenario:  scenario,
		Verdict:   types.VerdictPass,
		StartTime: start,
		EndTime:   start,
		Outcomes:  outcomes,
	}

	for _, outcome := range outcomes {
		if outcome.EndTime.After(result.EndTime) {
			result.EndTime = outcome.EndTime
		}
		if outcome.Status == types.TaskStatusSkipped {
			continue
		}
		if !outcome.Succeeded() {
			result.Verdict = types.VerdictFail
		}
	}
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result
}

// Build renders a ScenarioResult into the report shape consumed by
// reporting sinks: task order, per-target detail and timing preserved,
// failed tasks headlined by their first failing target, skipped tasks
// listed explicitly.
func Build(result *types.ScenarioResult) *types.ScenarioReport {
	rep := &types.ScenarioReport{
		RunID:      result.RunID,
		Scenario:   result.Scenario,
		Verdict:    result.Verdict,
		StartTime:  result.StartTime,
		EndTime:    result.EndTime,
		DurationMs: float64(result.Duration) / float64(time.Millisecond),
		TaskCounts: make(map[types.TaskStatus]int),
	}

	runHist := hdrhistogram.New(histMin, histMax, histSigFig)

	for _, outcome := range result.Outcomes {
		rep.TaskCounts[outcome.Status]++

		tr := &types.TaskReport{
			Index:        outcome.Index,
			Kind:         outcome.Kind,
			Status:       outcome.Status,
			Failure:      outcome.Failure,
			Error:        outcome.Error,
			DurationMs:   float64(outcome.Duration) / float64(time.Millisecond),
			FirstFailing: outcome.FirstFailingTarget(),
		}

		taskHist := hdrhistogram.New(histMin, histMax, histSigFig)
		for _, key := range sortedTargetKeys(outcome.Targets) {
			target := outcome.Targets[key]
			tr.Targets = append(tr.Targets, target)
			if target.Duration > 0 {
				ms := int64(target.Duration / time.Millisecond)
				_ = taskHist.RecordValue(clamp(ms))
				_ = runHist.RecordValue(clamp(ms))
			}
		}
		tr.Durations = stats(taskHist)
		rep.Tasks = append(rep.Tasks, tr)
	}

	rep.Commands = stats(runHist)
	return rep
}

// stats summarizes a histogram; nil when nothing was recorded.
func stats(h *hdrhistogram.Histogram) *types.DurationStats {
	if h.TotalCount() == 0 {
		return nil
	}
	return &types.DurationStats{
		Count: h.TotalCount(),
		MinMs: float64(h.Min()),
		MaxMs: float64(h.Max()),
		AvgMs: h.Mean(),
		P50Ms: float64(h.ValueAtQuantile(50)),
		P90Ms: float64(h.ValueAtQuantile(90)),
		P95Ms: float64(h.ValueAtQuantile(95)),
		P99Ms: float64(h.ValueAtQuantile(99)),
	}
}

func clamp(ms int64) int64 {
	if ms < histMin {
		return histMin
	}
	if ms > histMax {
		return histMax
	}
	return ms
}

// sortedTargetKeys gives the report a stable target order.
func sortedTargetKeys(targets map[string]*types.TargetResult) []string {
	keys := make([]string, 0, len(targets))
	for key := range targets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
