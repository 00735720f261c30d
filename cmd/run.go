package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"testrig/scenario-engine/internal/config"
	"testrig/scenario-engine/internal/install"
	"testrig/scenario-engine/internal/parser"
	"testrig/scenario-engine/internal/pipeline"
	"testrig/scenario-engine/internal/remote"
	"testrig/scenario-engine/internal/report"
	"testrig/scenario-engine/internal/reporter"
	"testrig/scenario-engine/internal/roles"
	"testrig/scenario-engine/internal/service"
	"testrig/scenario-engine/internal/workunit"
	"testrig/scenario-engine/pkg/logger"
	"testrig/scenario-engine/pkg/types"
)

var (
	runTargets       []string
	runExecutor      string
	runTimeout       time.Duration
	runOnFailure     string
	runRestartPolicy string
	runArchive       string
	runDryRun        bool
)

// runCmd executes a scenario file against real targets.
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Execute a scenario",
	Long: `Execute a scenario file: bind role groups to targets, run the task
pipeline in file order and emit the scenario report.

Targets come from the scenario's own targets list when present, else
from repeated --target flags (one per role group, in order).`,
	Example: `  # scenario with its own targets list
  scenario-engine run upgrade.yaml

  # bind targets on the command line
  scenario-engine run --target ubuntu@host1 --target ubuntu@host2 --target ubuntu@host3 upgrade.yaml

  # validate and show the plan without touching targets
  scenario-engine run --dry-run upgrade.yaml`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runScenario,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayVarP(&runTargets, "target", "t", nil, "execution target for role group i (repeatable, user@host[:port])")
	runCmd.Flags().StringVar(&runExecutor, "executor", "ssh", "remote executor (ssh, local)")
	runCmd.Flags().DurationVar(&runTimeout, "task-timeout", 0, "per-task timeout ceiling (overrides config)")
	runCmd.Flags().StringVar(&runOnFailure, "on-failure", "", "failure policy (fail_fast, continue)")
	runCmd.Flags().StringVar(&runRestartPolicy, "restart-policy", "", "default restart policy (rolling, parallel)")
	runCmd.Flags().StringVar(&runArchive, "archive", "", "archive directory (overrides config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "validate and print the execution plan only")
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	scenario, reg, err := loadScenario(args[0])
	if err != nil {
		return err
	}

	if runDryRun {
		printPlan(cmd, scenario, reg)
		return nil
	}

	// Flag overrides on top of config.
	if runTimeout > 0 {
		cfg.Run.TaskTimeout = runTimeout
	}
	if runOnFailure != "" {
		cfg.Run.OnFailure = pipeline.FailurePolicy(runOnFailure)
	}
	if runRestartPolicy != "" {
		cfg.Run.RestartPolicy = types.RestartPolicy(runRestartPolicy)
	}
	if runArchive != "" {
		cfg.Archive.Dir = runArchive
	}

	runID := uuid.NewString()
	runDir := filepath.Join(cfg.Archive.Dir,
		fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), runID[:8]))

	capture, err := remote.NewCapture(runDir)
	if err != nil {
		return err
	}

	executor, err := buildExecutor(cfg, capture)
	if err != nil {
		return err
	}
	defer executor.Close()

	installer := install.New(executor, cfg.Install)
	services := service.New(executor, reg, cfg.Service)
	harness := workunit.New(executor, reg, cfg.WorkUnit)
	runner := pipeline.New(reg, installer, services, harness, cfg.Run)

	// SIGINT/SIGTERM is a hard cancellation: it propagates to every
	// in-flight remote operation.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := runner.Execute(ctx, runID, scenario)
	scenarioReport := report.Build(result)

	if err := emitReports(ctx, cfg, runDir, scenarioReport); err != nil {
		logger.Error("report emission failed: " + err.Error())
	}

	if !result.Passed() {
		return fmt.Errorf("scenario %s failed (run %s, archive %s)", scenario.Name, runID, runDir)
	}
	return nil
}

// loadScenario parses the file, binds targets and verifies every task
// role reference, so anything undefined fails before the run starts.
func loadScenario(path string) (*types.Scenario, *roles.Registry, error) {
	scenario, err := parser.NewScenarioParser().ParseFile(path)
	if err != nil {
		return nil, nil, err
	}

	if !scenario.Bound() {
		if len(runTargets) == 0 {
			return nil, nil, fmt.Errorf("scenario has no targets list; pass --target once per role group (%d groups)", len(scenario.Groups))
		}
		if err := scenario.BindTargets(runTargets); err != nil {
			return nil, nil, err
		}
	}

	reg, err := roles.New(scenario.Groups)
	if err != nil {
		return nil, nil, err
	}
	if err := reg.VerifyTasks(scenario.Tasks); err != nil {
		return nil, nil, err
	}
	return scenario, reg, nil
}

// buildExecutor picks the remote executor implementation.
func buildExecutor(cfg *config.Config, capture *remote.Capture) (remote.Executor, error) {
	switch runExecutor {
	case "ssh":
		return remote.NewSSHExecutor(cfg.SSH, capture)
	case "local":
		return remote.NewLocalExecutor(capture), nil
	default:
		return nil, fmt.Errorf("unknown executor %q (want ssh or local)", runExecutor)
	}
}

// emitReports fans the finished report out to the configured sinks. The
// JSON reporter lands in the run archive unless configured elsewhere.
func emitReports(ctx context.Context, cfg *config.Config, runDir string, scenarioReport *types.ScenarioReport) error {
	registry, err := reporter.NewDefaultRegistry()
	if err != nil {
		return err
	}
	manager := reporter.NewManager(registry)
	defer manager.Close(ctx)

	for i := range cfg.Reporters {
		rc := cfg.Reporters[i]
		if rc.Type == reporter.TypeJSON {
			if rc.Config == nil {
				rc.Config = map[string]any{}
			}
			if rc.Config["file_path"] == nil && rc.Config["dir"] == nil {
				rc.Config["dir"] = runDir
			}
		}
		if err := manager.AddFromConfig(ctx, &rc); err != nil {
			return err
		}
	}
	return manager.Emit(ctx, scenarioReport)
}

// printPlan renders the dry-run execution plan.
func printPlan(cmd *cobra.Command, scenario *types.Scenario, reg *roles.Registry) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scenario: %s\n\nRole groups:\n", scenario.Name)
	for i, group := range scenario.Groups {
		fmt.Fprintf(out, "  %d. %s ->", i, group.Target)
		for _, role := range group.Roles {
			fmt.Fprintf(out, " %s", role)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "\nTasks:\n")
	for i, task := range scenario.Tasks {
		fmt.Fprintf(out, "  %d. %s%s\n", i, task.Kind(), planDetail(task, reg))
	}
}

// planDetail summarizes one task for the plan listing.
func planDetail(task types.Task, reg *roles.Registry) string {
	switch t := task.(type) {
	case *types.InstallTask:
		return fmt.Sprintf(" branch=%s targets=%d", t.Branch, planTargetCount(t, reg))
	case *types.WorkUnitTask:
		return fmt.Sprintf(" clients=%d", len(t.Clients))
	case *types.InstallUpgradeTask:
		if t.All != nil {
			return fmt.Sprintf(" all branch=%s", t.All.Branch)
		}
		return fmt.Sprintf(" overrides=%d", len(t.PerRole))
	case *types.ServiceRestartTask:
		return fmt.Sprintf(" policy=%s roles=%d", t.EffectivePolicy(), len(t.Roles))
	default:
		return ""
	}
}

func planTargetCount(t *types.InstallTask, reg *roles.Registry) int {
	if len(t.Subset) == 0 {
		return len(reg.AllTargets())
	}
	targets, err := reg.ResolveAll(t.Subset)
	if err != nil {
		return 0
	}
	return len(targets)
}
