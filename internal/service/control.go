// Package service starts, stops and restarts cluster daemons on their
// targets through the remote executor. Command shapes are configurable
// templates so the engine is not tied to one init style.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grafana/dskit/backoff"
	"go.uber.org/zap"

	"testrig/scenario-engine/internal/remote"
	"testrig/scenario-engine/internal/roles"
	"testrig/scenario-engine/pkg/logger"
	"testrig/scenario-engine/pkg/types"
)

// StartKindOrder is the cluster-safe daemon bring-up order: monitors
// first so the cluster can form quorum, then metadata servers, then
// OSDs. Client roles run no daemons.
var StartKindOrder = []string{"mon", "mds", "osd"}

// Config holds daemon command templates and health-wait tuning.
// Templates may use {role}, {kind} and {id} placeholders.
type Config struct {
	StartCmd   string `yaml:"start_cmd"`
	StopCmd    string `yaml:"stop_cmd"`
	RestartCmd string `yaml:"restart_cmd"`
	// StatusCmd must exit 0 once the daemon is healthy.
	StatusCmd string `yaml:"status_cmd"`

	// Health-wait backoff between status probes.
	HealthMinBackoff time.Duration `yaml:"health_min_backoff"`
	HealthMaxBackoff time.Duration `yaml:"health_max_backoff"`
	HealthMaxRetries int           `yaml:"health_max_retries"`
}

// DefaultConfig returns systemd-flavored defaults.
func DefaultConfig() Config {
	return Config{
		StartCmd:         "sudo systemctl start ceph-{kind}@{id}",
		StopCmd:          "sudo systemctl stop ceph-{kind}@{id}",
		RestartCmd:       "sudo systemctl restart ceph-{kind}@{id}",
		StatusCmd:        "sudo systemctl is-active --quiet ceph-{kind}@{id}",
		HealthMinBackoff: time.Second,
		HealthMaxBackoff: 10 * time.Second,
		HealthMaxRetries: 30,
	}
}

// Controller drives daemon lifecycle for the scenario's roles.
type Controller struct {
	exec remote.Executor
	reg  *roles.Registry
	cfg  Config
}

// New creates a Controller.
func New(exec remote.Executor, reg *roles.Registry, cfg Config) *Controller {
	return &Controller{exec: exec, reg: reg, cfg: cfg}
}

// Start brings up the daemon of one role on its target.
func (c *Controller) Start(ctx context.Context, role types.Role, label string) (*remote.CommandResult, error) {
	return c.run(ctx, role, c.cfg.StartCmd, label+"-start")
}

// Stop brings down the daemon of one role.
func (c *Controller) Stop(ctx context.Context, role types.Role, label string) (*remote.CommandResult, error) {
	return c.run(ctx, role, c.cfg.StopCmd, label+"-stop")
}

// Restart bounces the daemon of one role and then waits for it to report
// healthy again. The health wait is what makes a rolling restart
// availability-preserving: the next role is not touched until this one
// is back.
func (c *Controller) Restart(ctx context.Context, role types.Role, label string) (*remote.CommandResult, error) {
	result, err := c.run(ctx, role, c.cfg.RestartCmd, label+"-restart")
	if err != nil || result.ExitCode != 0 {
		return result, err
	}
	if err := c.WaitHealthy(ctx, role, label); err != nil {
		return result, err
	}
	return result, nil
}

// WaitHealthy polls the role's status command with backoff until it
// exits 0, the retry budget is spent, or ctx is done.
func (c *Controller) WaitHealthy(ctx context.Context, role types.Role, label string) error {
	if c.cfg.StatusCmd == "" {
		return nil
	}

	boff := backoff.New(ctx, backoff.Config{
		MinBackoff: c.cfg.HealthMinBackoff,
		MaxBackoff: c.cfg.HealthMaxBackoff,
		MaxRetries: c.cfg.HealthMaxRetries,
	})

	target, err := c.reg.Target(role)
	if err != nil {
		return err
	}

	for boff.Ongoing() {
		result, err := c.exec.Run(ctx, target, remote.Command{
			Line:  c.render(c.cfg.StatusCmd, role),
			Label: fmt.Sprintf("%s-health-%d", label, boff.NumRetries()),
		})
		if err != nil {
			return err
		}
		if result.ExitCode == 0 {
			logger.Debug("daemon healthy",
				zap.String("role", string(role)),
				zap.Int("probes", boff.NumRetries()+1))
			return nil
		}
		boff.Wait()
	}

	if err := boff.Err(); err != nil && ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("daemon %s did not become healthy after %d probes", role, c.cfg.HealthMaxRetries)
}

// run renders the template for the role and executes it on the role's
// target.
func (c *Controller) run(ctx context.Context, role types.Role, tmpl, label string) (*remote.CommandResult, error) {
	target, err := c.reg.Target(role)
	if err != nil {
		return nil, err
	}
	return c.exec.Run(ctx, target, remote.Command{
		Line:  c.render(tmpl, role),
		Label: label,
	})
}

// render substitutes {role}, {kind} and {id} placeholders.
func (c *Controller) render(tmpl string, role types.Role) string {
	kind := role.Kind()
	id := strings.TrimPrefix(string(role), kind+".")
	return strings.NewReplacer(
		"{role}", string(role),
		"{kind}", kind,
		"{id}", id,
	).Replace(tmpl)
}
