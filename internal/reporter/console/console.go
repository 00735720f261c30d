// Package console provides the human-readable console reporter.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"testrig/scenario-engine/pkg/types"
)

// Config holds configuration for the console reporter.
type Config struct {
	// Writer is the output writer (defaults to os.Stdout).
	Writer io.Writer `yaml:"-"`
}

// Reporter implements the console reporter.
type Reporter struct {
	writer io.Writer
}

// New creates a console reporter.
func New(config *Config) *Reporter {
	writer := io.Writer(os.Stdout)
	if config != nil && config.Writer != nil {
		writer = config.Writer
	}
	return &Reporter{writer: writer}
}

// Name implements reporter.Reporter.
func (r *Reporter) Name() string {
	return "console"
}

// Init implements reporter.Reporter.
func (r *Reporter) Init(ctx context.Context, config map[string]any) error {
	return nil
}

// Emit prints the scenario summary table: every task with its verdict,
// failed tasks with their first failing target and output references,
// skipped tasks listed explicitly.
func (r *Reporter) Emit(ctx context.Context, report *types.ScenarioReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\nScenario: %s (run %s)\n", report.Scenario, report.RunID)
	fmt.Fprintf(&b, "Verdict:  %s\n", strings.ToUpper(string(report.Verdict)))
	fmt.Fprintf(&b, "Duration: %.1fs\n\n", report.DurationMs/1000)

	fmt.Fprintf(&b, "%-5s %-17s %-10s %-9s %s\n", "TASK", "KIND", "STATUS", "TIME", "DETAIL")
	for _, task := range report.Tasks {
		detail := ""
		if task.FirstFailing != nil {
			detail = fmt.Sprintf("%s: %s", failingKey(task.FirstFailing), task.FirstFailing.Error)
			if task.FirstFailing.StderrRef != "" {
				detail += fmt.Sprintf(" (stderr: %s)", task.FirstFailing.StderrRef)
			}
		} else if task.Status == types.TaskStatusFailed && task.Error != "" {
			detail = task.Error
		}
		fmt.Fprintf(&b, "%-5d %-17s %-10s %-9s %s\n",
			task.Index, task.Kind, task.Status, formatMs(task.DurationMs), detail)
	}

	if report.Commands != nil {
		c := report.Commands
		fmt.Fprintf(&b, "\nCommand durations (%d samples): p50=%.0fms p90=%.0fms p95=%.0fms p99=%.0fms max=%.0fms\n",
			c.Count, c.P50Ms, c.P90Ms, c.P95Ms, c.P99Ms, c.MaxMs)
	}

	_, err := fmt.Fprint(r.writer, b.String())
	return err
}

// Flush implements reporter.Reporter.
func (r *Reporter) Flush(ctx context.Context) error {
	return nil
}

// Close implements reporter.Reporter.
func (r *Reporter) Close(ctx context.Context) error {
	return nil
}

func failingKey(tr *types.TargetResult) string {
	if tr.Role != "" {
		return string(tr.Role)
	}
	return tr.Target
}

func formatMs(ms float64) string {
	if ms <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1fs", ms/1000)
}
