// Package remote abstracts running commands on execution targets. The
// orchestration core only consumes the Executor contract; SSH, local and
// replay implementations live alongside it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Command is one remote invocation. Stdout and stderr stream to files
// under the run archive; the result carries references, not inline bytes.
type Command struct {
	// Line is the shell command line to run on the target.
	Line string
	// Label names the capture files for this invocation,
	// e.g. "task2-client.0-0".
	Label string
}

// CommandResult is the outcome of one command that actually ran on a
// target. A non-zero exit code is not an executor error; failure to reach
// the target is.
type CommandResult struct {
	ExitCode  int
	StdoutRef string
	StderrRef string
	Duration  time.Duration
}

// Executor runs commands on execution targets.
type Executor interface {
	// Run executes the command on the target and blocks until it exits
	// or ctx is done. It returns a TransportError when the target cannot
	// be reached or the command cannot be started, and ctx.Err() (possibly
	// wrapped) on cancellation. A command that ran and exited non-zero
	// returns a result with the exit code and a nil error.
	Run(ctx context.Context, target string, cmd Command) (*CommandResult, error)

	// Close releases any held connections.
	Close() error
}

// TransportError reports that a target could not be reached or a command
// could not be started on it. Distinguished in diagnostics from a command
// that ran and returned non-zero.
type TransportError struct {
	Target string
	Cause  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s: %v", e.Target, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err stems from a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
