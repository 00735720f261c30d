// Package install provisions software branches on execution targets by
// shelling package commands through the remote executor. The pipeline
// owns per-target parallelism; the installer works one target at a time.
package install

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"testrig/scenario-engine/internal/remote"
	"testrig/scenario-engine/pkg/logger"
)

// Config holds the package set and command templates. Templates may use
// {branch} and {packages} placeholders.
type Config struct {
	// Packages is the package set installed on every target.
	Packages []string `yaml:"packages"`
	// RepoCmd points the target's package repo at the branch build.
	RepoCmd string `yaml:"repo_cmd"`
	// InstallCmd installs (or up/downgrades) the package set.
	InstallCmd string `yaml:"install_cmd"`
	// VersionCmd probes the installed version; non-zero exit fails the
	// install.
	VersionCmd string `yaml:"version_cmd"`
}

// DefaultConfig returns apt-flavored defaults.
func DefaultConfig() Config {
	return Config{
		Packages:   []string{"ceph", "ceph-common", "ceph-mds"},
		RepoCmd:    "sudo install-deb-repo --branch {branch}",
		InstallCmd: "sudo apt-get update && sudo apt-get install -y --allow-downgrades {packages}",
		VersionCmd: "ceph --version",
	}
}

// Installer installs a named branch on a target.
type Installer struct {
	exec remote.Executor
	cfg  Config
}

// New creates an Installer.
func New(exec remote.Executor, cfg Config) *Installer {
	return &Installer{exec: exec, cfg: cfg}
}

// Install provisions the branch on the target: repo switch, package
// install, version probe, strictly in that order. Upgrades are the same
// operation with a different branch.
func (i *Installer) Install(ctx context.Context, target, branch, label string) error {
	steps := []struct {
		name string
		cmd  string
	}{
		{"repo", i.cfg.RepoCmd},
		{"install", i.cfg.InstallCmd},
		{"version", i.cfg.VersionCmd},
	}

	logger.Info("installing branch",
		zap.String("target", target),
		zap.String("branch", branch))

	for n, step := range steps {
		if step.cmd == "" {
			continue
		}
		line := i.render(step.cmd, branch)
		result, err := i.exec.Run(ctx, target, remote.Command{
			Line:  line,
			Label: fmt.Sprintf("%s-%s", label, step.name),
		})
		if err != nil {
			return fmt.Errorf("install step %d (%s) on %s: %w", n, step.name, target, err)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("install step %d (%s) on %s exited %d (stderr: %s)",
				n, step.name, target, result.ExitCode, result.StderrRef)
		}
	}
	return nil
}

// render substitutes template placeholders.
func (i *Installer) render(tmpl, branch string) string {
	return strings.NewReplacer(
		"{branch}", branch,
		"{packages}", strings.Join(i.cfg.Packages, " "),
	).Replace(tmpl)
}
