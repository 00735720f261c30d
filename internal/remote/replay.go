package remote

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ReplayRule matches commands by target and command-line substring and
// yields a pre-recorded outcome. Empty Target or Match matches anything.
type ReplayRule struct {
	Target   string
	Match    string
	ExitCode int
	Err      error
	Delay    time.Duration
}

// ReplayCall records one invocation seen by the replay executor.
type ReplayCall struct {
	Target string
	Line   string
	Label  string
}

// ReplayExecutor is a deterministic Executor fed by pre-recorded rules.
// Commands with no matching rule succeed with exit code 0. Used by tests
// and by dry runs that want the real pipeline without real targets.
type ReplayExecutor struct {
	mu    sync.Mutex
	rules []ReplayRule
	calls []ReplayCall
}

// NewReplayExecutor creates an empty replay executor.
func NewReplayExecutor() *ReplayExecutor {
	return &ReplayExecutor{}
}

// Rule appends a matching rule. Rules are consulted in insertion order;
// the first match wins.
func (e *ReplayExecutor) Rule(rule ReplayRule) *ReplayExecutor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	return e
}

// FailOn is shorthand for a rule failing commands that contain match on
// the given target with exit code 1.
func (e *ReplayExecutor) FailOn(target, match string) *ReplayExecutor {
	return e.Rule(ReplayRule{Target: target, Match: match, ExitCode: 1})
}

// Run records the call and replays the first matching rule.
func (e *ReplayExecutor) Run(ctx context.Context, target string, cmd Command) (*CommandResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, ReplayCall{Target: target, Line: cmd.Line, Label: cmd.Label})
	rule, matched := e.match(target, cmd.Line)
	e.mu.Unlock()

	if matched && rule.Delay > 0 {
		select {
		case <-time.After(rule.Delay):
		case <-ctx.Done():
			return &CommandResult{}, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return &CommandResult{}, err
	}

	result := &CommandResult{Duration: time.Millisecond}
	if matched {
		if rule.Err != nil {
			return nil, rule.Err
		}
		result.ExitCode = rule.ExitCode
	}
	return result, nil
}

func (e *ReplayExecutor) match(target, line string) (ReplayRule, bool) {
	for _, rule := range e.rules {
		if rule.Target != "" && rule.Target != target {
			continue
		}
		if rule.Match != "" && !strings.Contains(line, rule.Match) {
			continue
		}
		return rule, true
	}
	return ReplayRule{}, false
}

// Calls returns a copy of the recorded invocations.
func (e *ReplayExecutor) Calls() []ReplayCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]ReplayCall, len(e.calls))
	copy(calls, e.calls)
	return calls
}

// CallsOn returns recorded invocations for one target.
func (e *ReplayExecutor) CallsOn(target string) []ReplayCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	var calls []ReplayCall
	for _, call := range e.calls {
		if call.Target == target {
			calls = append(calls, call)
		}
	}
	return calls
}

// Close implements Executor.
func (e *ReplayExecutor) Close() error {
	return nil
}
