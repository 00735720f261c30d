// Package workunit executes ordered workload script lists against client
// roles. Clients run in parallel and independently; within one client,
// scripts run strictly in listed order with per-client fail-fast.
package workunit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"testrig/scenario-engine/internal/remote"
	"testrig/scenario-engine/internal/roles"
	"testrig/scenario-engine/pkg/logger"
	"testrig/scenario-engine/pkg/types"
)

// ScriptStatus is the outcome of one script invocation.
type ScriptStatus string

const (
	// ScriptSucceeded means the script exited 0.
	ScriptSucceeded ScriptStatus = "succeeded"
	// ScriptFailed means the script exited non-zero or could not run.
	ScriptFailed ScriptStatus = "failed"
	// ScriptSkipped means an earlier script of the same client failed.
	ScriptSkipped ScriptStatus = "skipped"
)

// ScriptResult records one script invocation on one client.
type ScriptResult struct {
	Script    string            `json:"script"`
	Status    ScriptStatus      `json:"status"`
	Failure   types.FailureKind `json:"failure,omitempty"`
	ExitCode  int               `json:"exit_code"`
	StdoutRef string            `json:"stdout_ref,omitempty"`
	StderrRef string            `json:"stderr_ref,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Error     string            `json:"error,omitempty"`
}

// ClientOutcome aggregates one client's script results.
type ClientOutcome struct {
	Client  types.Role      `json:"client"`
	Target  string          `json:"target"`
	Scripts []*ScriptResult `json:"scripts"`
	// Failure classifies the first failure, if any.
	Failure types.FailureKind `json:"failure,omitempty"`
}

// OK reports whether every script of this client succeeded.
func (o *ClientOutcome) OK() bool {
	return o.Failure == types.FailureNone
}

// Duration sums the client's script durations.
func (o *ClientOutcome) Duration() time.Duration {
	var total time.Duration
	for _, s := range o.Scripts {
		total += s.Duration
	}
	return total
}

// Config holds workunit execution settings.
type Config struct {
	// RunnerCmd wraps each script path into the remote command line.
	// {script} is the script path placeholder.
	RunnerCmd string `yaml:"runner_cmd"`
}

// DefaultConfig returns the default workunit settings.
func DefaultConfig() Config {
	return Config{
		RunnerCmd: "cd /var/lib/testrig/workunits && sh {script}",
	}
}

// Harness runs workunit tasks.
type Harness struct {
	exec remote.Executor
	reg  *roles.Registry
	cfg  Config
}

// New creates a Harness.
func New(exec remote.Executor, reg *roles.Registry, cfg Config) *Harness {
	return &Harness{exec: exec, reg: reg, cfg: cfg}
}

// Run executes the task's clients in parallel and joins on all of them.
// The label prefix keys capture files, so re-running an identical
// workunit produces an independent set of captures. The returned error is
// non-nil iff any client failed, naming every failing script.
func (h *Harness) Run(ctx context.Context, clients []types.ClientScripts, label string) ([]*ClientOutcome, error) {
	outcomes := make([]*ClientOutcome, len(clients))

	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func(idx int, cs types.ClientScripts) {
			defer wg.Done()
			outcomes[idx] = h.runClient(ctx, cs, fmt.Sprintf("%s-%s", label, cs.Client))
		}(i, clients[i])
	}
	wg.Wait()

	var failures []string
	for _, outcome := range outcomes {
		for _, s := range outcome.Scripts {
			if s.Status == ScriptFailed {
				failures = append(failures, fmt.Sprintf("%s/%s", outcome.Client, s.Script))
			}
		}
	}
	if len(failures) > 0 {
		return outcomes, fmt.Errorf("test failure: %s", strings.Join(failures, ", "))
	}
	return outcomes, nil
}

// runClient walks one client's scripts in order. The first failure marks
// all remaining scripts skipped; other clients are unaffected.
func (h *Harness) runClient(ctx context.Context, cs types.ClientScripts, label string) *ClientOutcome {
	outcome := &ClientOutcome{Client: cs.Client}

	target, err := h.reg.Target(cs.Client)
	if err != nil {
		// Unknown client roles are rejected at load time; this guards
		// a registry/task mismatch.
		outcome.Failure = types.FailureTransport
		script := ""
		if len(cs.Scripts) > 0 {
			script = cs.Scripts[0]
		}
		outcome.Scripts = append(outcome.Scripts, &ScriptResult{
			Script: script,
			Status: ScriptFailed,
			Error:  err.Error(),
		})
		return outcome
	}
	outcome.Target = target

	for n, script := range cs.Scripts {
		if outcome.Failure != types.FailureNone {
			outcome.Scripts = append(outcome.Scripts, &ScriptResult{
				Script: script,
				Status: ScriptSkipped,
			})
			continue
		}

		sr := h.runScript(ctx, target, script, fmt.Sprintf("%s-%d", label, n))
		outcome.Scripts = append(outcome.Scripts, sr)
		if sr.Status == ScriptFailed {
			outcome.Failure = sr.Failure
			logger.Warn("workunit script failed",
				zap.String("client", string(cs.Client)),
				zap.String("script", script),
				zap.Int("exit_code", sr.ExitCode))
		}
	}
	return outcome
}

// runScript executes one script with fresh output capture.
func (h *Harness) runScript(ctx context.Context, target, script, label string) *ScriptResult {
	sr := &ScriptResult{Script: script, Status: ScriptSucceeded}

	line := strings.ReplaceAll(h.cfg.RunnerCmd, "{script}", script)
	logger.Info("running workunit script",
		zap.String("target", target),
		zap.String("script", script))

	result, err := h.exec.Run(ctx, target, remote.Command{Line: line, Label: label})
	if result != nil {
		sr.ExitCode = result.ExitCode
		sr.StdoutRef = result.StdoutRef
		sr.StderrRef = result.StderrRef
		sr.Duration = result.Duration
	}
	if err != nil {
		sr.Status = ScriptFailed
		sr.Error = err.Error()
		switch {
		case remote.IsTimeout(err):
			sr.Failure = types.FailureTimeout
		case remote.IsCancelled(err):
			sr.Failure = types.FailureCancelled
		case remote.IsTransport(err):
			sr.Failure = types.FailureTransport
		default:
			sr.Failure = types.FailureExec
		}
		return sr
	}
	if result.ExitCode != 0 {
		sr.Status = ScriptFailed
		sr.Failure = types.FailureExec
		sr.Error = fmt.Sprintf("script exited %d", result.ExitCode)
	}
	return sr
}
