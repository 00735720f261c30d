package remote

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// LocalExecutor runs commands on the local host through the shell. Meant
// for single-host dev scenarios and tests; the target is recorded in
// diagnostics but otherwise ignored.
type LocalExecutor struct {
	capture *Capture
	shell   string
}

// NewLocalExecutor creates a local executor writing captures under the
// given archive.
func NewLocalExecutor(capture *Capture) *LocalExecutor {
	return &LocalExecutor{capture: capture, shell: "/bin/sh"}
}

// Run executes the command locally.
func (e *LocalExecutor) Run(ctx context.Context, target string, cmd Command) (*CommandResult, error) {
	stdout, stderr, err := e.capture.Create(cmd.Label)
	if err != nil {
		return nil, err
	}
	defer stdout.Close()
	defer stderr.Close()

	command := exec.CommandContext(ctx, e.shell, "-c", cmd.Line)
	command.Stdout = stdout
	command.Stderr = stderr

	result := &CommandResult{
		StdoutRef: stdout.Name(),
		StderrRef: stderr.Name(),
	}

	start := time.Now()
	err = command.Run()
	result.Duration = time.Since(start)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		// The command never started.
		return nil, &TransportError{Target: target, Cause: err}
	}
}

// Close implements Executor; the local executor holds no connections.
func (e *LocalExecutor) Close() error {
	return nil
}
