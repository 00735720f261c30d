package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/grafana/dskit/multierror"

	"testrig/scenario-engine/internal/remote"
	"testrig/scenario-engine/internal/service"
	"testrig/scenario-engine/internal/workunit"
	"testrig/scenario-engine/pkg/types"
)

// dispatch routes one task to its execution strategy. The switch is
// exhaustive over the sealed task sum; a kind without a strategy is an
// error from this point, not a silent no-op.
func (r *Runner) dispatch(ctx context.Context, index int, task types.Task, outcome *types.TaskOutcome) error {
	label := fmt.Sprintf("task%d", index)

	switch t := task.(type) {
	case *types.InstallTask:
		return r.runInstall(ctx, t, outcome, label)
	case *types.ServiceStartTask:
		return r.runServiceStart(ctx, outcome, label)
	case *types.WorkUnitTask:
		return r.runWorkUnit(ctx, t, outcome, label)
	case *types.InstallUpgradeTask:
		return r.runInstallUpgrade(ctx, t, outcome, label)
	case *types.ServiceRestartTask:
		return r.runServiceRestart(ctx, t, outcome, label)
	default:
		return unhandledKindError(task)
	}
}

// fanOut runs fn once per item on its own goroutine and joins on all of
// them; the task is complete only when every per-target operation has
// finished, even after a failure (the join waits for all).
func fanOut[T any](ctx context.Context, items []T, fn func(ctx context.Context, item T) *types.TargetResult) []*types.TargetResult {
	results := make(chan *types.TargetResult, len(items))

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			results <- fn(ctx, item)
		}(item)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var out []*types.TargetResult
	for result := range results {
		out = append(out, result)
	}
	return out
}

// record stores per-target results on the outcome and folds their errors.
// Results for role-grained tasks are keyed by role, host-grained ones by
// target, so co-located daemons never clobber each other.
func record(outcome *types.TaskOutcome, results []*types.TargetResult) error {
	errs := multierror.New()
	for _, tr := range results {
		key := tr.Target
		if tr.Role != "" {
			key = string(tr.Role)
		}
		outcome.Targets[key] = tr
		if !tr.OK() {
			errs.Add(fmt.Errorf("%s: %s", key, tr.Error))
		}
	}
	return errs.Err()
}

// failureResult builds a TargetResult from a failed operation.
func failureResult(ctx context.Context, target string, role types.Role, res *remote.CommandResult, err error) *types.TargetResult {
	tr := &types.TargetResult{Target: target, Role: role}
	if res != nil {
		tr.ExitCode = res.ExitCode
		tr.StdoutRef = res.StdoutRef
		tr.StderrRef = res.StderrRef
		tr.Duration = res.Duration
	}
	switch {
	case err == nil && res != nil && res.ExitCode != 0:
		tr.Failure = types.FailureExec
		tr.Error = fmt.Sprintf("command exited %d", res.ExitCode)
	case remote.IsCancelled(err):
		tr.Failure = types.FailureCancelled
		tr.Error = err.Error()
	case remote.IsTimeout(err):
		tr.Failure = types.FailureTimeout
		tr.Error = err.Error()
	case remote.IsTransport(err):
		tr.Failure = types.FailureTransport
		tr.Error = err.Error()
	case err != nil:
		tr.Failure = types.FailureExec
		tr.Error = err.Error()
	}
	return tr
}

// runInstall installs the branch on every target (or the targets hosting
// the subset roles) in parallel.
func (r *Runner) runInstall(ctx context.Context, task *types.InstallTask, outcome *types.TaskOutcome, label string) error {
	targets := r.reg.AllTargets()
	if len(task.Subset) > 0 {
		var err error
		targets, err = r.reg.ResolveAll(task.Subset)
		if err != nil {
			return err
		}
	}

	results := fanOut(ctx, targets, func(ctx context.Context, target string) *types.TargetResult {
		err := r.installer.Install(ctx, target, task.Branch, fmt.Sprintf("%s-%s", label, target))
		if err != nil {
			return failureResult(ctx, target, "", nil, err)
		}
		return &types.TargetResult{Target: target}
	})
	return record(outcome, results)
}

// runServiceStart brings up the default service set: kinds in
// cluster-safe order, daemons of one kind in parallel.
func (r *Runner) runServiceStart(ctx context.Context, outcome *types.TaskOutcome, label string) error {
	errs := multierror.New()
	for _, kind := range service.StartKindOrder {
		kindRoles := r.reg.RolesOfKind(kind)
		if len(kindRoles) == 0 {
			continue
		}
		results := fanOut(ctx, kindRoles, func(ctx context.Context, role types.Role) *types.TargetResult {
			target, _ := r.reg.Target(role)
			res, err := r.services.Start(ctx, role, fmt.Sprintf("%s-%s", label, role))
			if err != nil || res.ExitCode != 0 {
				return failureResult(ctx, target, role, res, err)
			}
			return &types.TargetResult{
				Target:    target,
				Role:      role,
				StdoutRef: res.StdoutRef,
				StderrRef: res.StderrRef,
				Duration:  res.Duration,
			}
		})
		errs.Add(record(outcome, results))

		// Later kinds depend on earlier ones being up; stop at the
		// first kind that failed to start.
		if errs.Err() != nil {
			break
		}
	}
	return errs.Err()
}

// runWorkUnit delegates to the workload harness and folds its per-client
// outcomes into per-target results.
func (r *Runner) runWorkUnit(ctx context.Context, task *types.WorkUnitTask, outcome *types.TaskOutcome, label string) error {
	clientOutcomes, err := r.harness.Run(ctx, task.Clients, label)

	for _, co := range clientOutcomes {
		tr := &types.TargetResult{
			Target:   co.Target,
			Role:     co.Client,
			Duration: co.Duration(),
			Failure:  co.Failure,
		}
		for _, sr := range co.Scripts {
			// The first failing script headlines the client's result.
			if sr.Status == workunit.ScriptFailed && tr.Error == "" {
				tr.ExitCode = sr.ExitCode
				tr.StdoutRef = sr.StdoutRef
				tr.StderrRef = sr.StderrRef
				tr.Error = fmt.Sprintf("%s: %s", sr.Script, sr.Error)
			}
		}
		if tr.OK() && len(co.Scripts) > 0 {
			last := co.Scripts[len(co.Scripts)-1]
			tr.StdoutRef = last.StdoutRef
			tr.StderrRef = last.StderrRef
		}
		outcome.Targets[string(co.Client)] = tr
	}
	return err
}

// runInstallUpgrade re-runs install with the new branch. Services stay
// up; nothing is stopped or restarted here. All targets upgrade in
// parallel unless the scenario restricted the set with per-role entries.
func (r *Runner) runInstallUpgrade(ctx context.Context, task *types.InstallUpgradeTask, outcome *types.TaskOutcome, label string) error {
	type upgrade struct {
		target string
		branch string
	}

	var upgrades []upgrade
	if task.All != nil {
		for _, target := range r.reg.AllTargets() {
			upgrades = append(upgrades, upgrade{target: target, branch: task.All.Branch})
		}
	} else {
		// Per-role keys may be bare kinds; Resolve expands those to every
		// target hosting the kind, matching load-time verification.
		seen := make(map[string]bool)
		for _, rb := range task.PerRole {
			targets, err := r.reg.Resolve(rb.Role)
			if err != nil {
				return err
			}
			for _, target := range targets {
				if seen[target] {
					continue
				}
				seen[target] = true
				upgrades = append(upgrades, upgrade{target: target, branch: rb.Branch})
			}
		}
	}

	results := fanOut(ctx, upgrades, func(ctx context.Context, up upgrade) *types.TargetResult {
		err := r.installer.Install(ctx, up.target, up.branch, fmt.Sprintf("%s-%s", label, up.target))
		if err != nil {
			return failureResult(ctx, up.target, "", nil, err)
		}
		return &types.TargetResult{Target: up.target}
	})
	return record(outcome, results)
}

// runServiceRestart restarts the listed roles. Rolling policy walks the
// explicit order one role at a time, waiting for health between roles;
// parallel policy bounces everything at once.
func (r *Runner) runServiceRestart(ctx context.Context, task *types.ServiceRestartTask, outcome *types.TaskOutcome, label string) error {
	policy := task.Policy
	if policy == "" {
		policy = r.cfg.RestartPolicy
	}
	if policy == "" {
		policy = types.RestartRolling
	}

	restart := func(ctx context.Context, role types.Role) *types.TargetResult {
		target, err := r.reg.Target(role)
		if err != nil {
			return failureResult(ctx, "", role, nil, err)
		}
		res, err := r.services.Restart(ctx, role, fmt.Sprintf("%s-%s", label, role))
		if err != nil || res == nil || res.ExitCode != 0 {
			return failureResult(ctx, target, role, res, err)
		}
		return &types.TargetResult{
			Target:    target,
			Role:      role,
			StdoutRef: res.StdoutRef,
			StderrRef: res.StderrRef,
			Duration:  res.Duration,
		}
	}

	if policy == types.RestartParallel {
		return record(outcome, fanOut(ctx, task.Roles, restart))
	}

	// Rolling: strictly the listed order, one at a time. The role list
	// is the ordering contract; a failure stops the walk so an unhealthy
	// cluster is not degraded further.
	var results []*types.TargetResult
	for _, role := range task.Roles {
		tr := restart(ctx, role)
		results = append(results, tr)
		if !tr.OK() {
			break
		}
	}
	return record(outcome, results)
}
