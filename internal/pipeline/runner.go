// Package pipeline walks the ordered task list of a scenario: one
// coordinating goroutine resolves each task's targets, dispatches by
// variant, joins the per-target operations and records a TaskOutcome.
// Sequencing is the correctness contract: task N+1 never starts before
// task N's join barrier has resolved.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"testrig/scenario-engine/internal/install"
	"testrig/scenario-engine/internal/remote"
	"testrig/scenario-engine/internal/report"
	"testrig/scenario-engine/internal/roles"
	"testrig/scenario-engine/internal/service"
	"testrig/scenario-engine/internal/workunit"
	"testrig/scenario-engine/pkg/logger"
	"testrig/scenario-engine/pkg/types"
)

// FailurePolicy controls what happens after a task fails.
type FailurePolicy string

const (
	// FailFast marks all remaining tasks Skipped after the first
	// failure and returns immediately. Default: later tasks in a
	// scenario meaningfully depend on the success of earlier ones.
	FailFast FailurePolicy = "fail_fast"
	// Continue records the failure and keeps going; the verdict is
	// still Failure. Install failures abort regardless.
	Continue FailurePolicy = "continue"
)

// Config holds runner tuning.
type Config struct {
	// TaskTimeout bounds each task's execution. Zero means unbounded.
	TaskTimeout time.Duration `yaml:"task_timeout" env:"SCN_RUN_TASK_TIMEOUT"`
	// OnFailure selects the failure policy.
	OnFailure FailurePolicy `yaml:"on_failure" env:"SCN_RUN_ON_FAILURE"`
	// RestartPolicy applies to ceph.restart tasks that do not pick a
	// policy themselves.
	RestartPolicy types.RestartPolicy `yaml:"restart_policy" env:"SCN_RUN_RESTART_POLICY"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		TaskTimeout:   30 * time.Minute,
		OnFailure:     FailFast,
		RestartPolicy: types.RestartRolling,
	}
}

// Runner executes scenarios.
type Runner struct {
	reg       *roles.Registry
	installer *install.Installer
	services  *service.Controller
	harness   *workunit.Harness
	cfg       Config
}

// New creates a Runner.
func New(reg *roles.Registry, installer *install.Installer, services *service.Controller, harness *workunit.Harness, cfg Config) *Runner {
	if cfg.OnFailure == "" {
		cfg.OnFailure = FailFast
	}
	return &Runner{
		reg:       reg,
		installer: installer,
		services:  services,
		harness:   harness,
		cfg:       cfg,
	}
}

// Execute runs the scenario's tasks in file order and returns one
// outcome per task; tasks cut off by a failure are recorded as Skipped,
// never silently omitted. An empty runID gets a fresh UUID; callers that
// already named the run archive pass their own so report and archive
// share one identity.
func (r *Runner) Execute(ctx context.Context, runID string, scenario *types.Scenario) *types.ScenarioResult {
	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()

	log := logger.With(
		zap.String("run_id", runID),
		zap.String("scenario", scenario.Name))
	log.Info("scenario starting", zap.Int("tasks", len(scenario.Tasks)))

	outcomes := make([]*types.TaskOutcome, 0, len(scenario.Tasks))
	aborted := false
	cancelled := false

	for i, task := range scenario.Tasks {
		if ctx.Err() != nil {
			cancelled = true
		}
		if aborted || cancelled {
			outcomes = append(outcomes, types.NewSkippedOutcome(i, task.Kind()))
			continue
		}

		outcome := r.runTask(ctx, i, task)
		outcomes = append(outcomes, outcome)

		if outcome.Succeeded() {
			log.Info("task succeeded",
				zap.Int("task", i),
				zap.String("kind", string(task.Kind())),
				zap.Duration("duration", outcome.Duration))
			continue
		}

		log.Error("task failed",
			zap.Int("task", i),
			zap.String("kind", string(task.Kind())),
			zap.String("failure", string(outcome.Failure)),
			zap.String("error", outcome.Error))

		// A failed install leaves the cluster in no state worth testing:
		// it aborts even under the continue policy.
		if r.cfg.OnFailure == FailFast ||
			task.Kind() == types.TaskKindInstall ||
			outcome.Failure == types.FailureCancelled {
			aborted = true
		}
	}

	result := report.Aggregate(runID, scenario.Name, start, outcomes)
	// A hard-cancelled run never finished its task list; the verdict
	// must not pass on the skipped remainder alone.
	if cancelled {
		result.Verdict = types.VerdictFail
	}
	log.Info("scenario finished",
		zap.String("verdict", string(result.Verdict)),
		zap.Duration("duration", result.Duration))
	return result
}

// runTask bounds one task with the configured ceiling and classifies its
// failure. The per-target join has already happened when dispatch
// returns; this is the only suspension point the loop above sees.
func (r *Runner) runTask(ctx context.Context, index int, task types.Task) *types.TaskOutcome {
	outcome := types.NewTaskOutcome(index, task.Kind())

	taskCtx := ctx
	if r.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, r.cfg.TaskTimeout)
		defer cancel()
	}

	if err := r.dispatch(taskCtx, index, task, outcome); err != nil {
		outcome.Fail(r.classify(taskCtx, ctx, err), err)
	}
	outcome.Finish()
	return outcome
}

// classify maps a dispatch error to its failure kind. A deadline on the
// task context that the parent did not cause is a per-task timeout; a
// cancelled parent is a hard cancellation.
func (r *Runner) classify(taskCtx, parent context.Context, err error) types.FailureKind {
	switch {
	case parent.Err() != nil:
		return types.FailureCancelled
	case taskCtx.Err() == context.DeadlineExceeded:
		return types.FailureTimeout
	case remote.IsTransport(err):
		return types.FailureTransport
	default:
		return types.FailureExec
	}
}

// unhandledKindError is returned from the dispatch point when a task
// variant has no execution strategy.
func unhandledKindError(task types.Task) error {
	return fmt.Errorf("unhandled task kind %q", task.Kind())
}
