// Package cmd implements the scenario-engine CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"testrig/scenario-engine/internal/config"
	"testrig/scenario-engine/pkg/logger"
)

const (
	// Version is the current version number.
	Version = "0.1.0"
)

var (
	cfgFile string
	debug   bool
	quiet   bool
)

// rootCmd is the root command.
var rootCmd = &cobra.Command{
	Use:   "scenario-engine",
	Short: "Cluster-test scenario orchestration engine",
	Long: `scenario-engine interprets declarative cluster-test scenarios:
it binds logical roles to execution targets, walks the ordered task
pipeline (install, service start, workunits, rolling upgrade, restart)
and aggregates per-task outcomes into one pass/fail verdict.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "engine config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the engine configuration and initializes logging with
// the CLI flag overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader().WithConfigPath(cfgFile).Load()
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	if debug {
		logCfg.Level = "debug"
	}
	if quiet {
		logCfg.Level = "error"
	}
	logger.Init(&logCfg)
	return cfg, nil
}
