package cmd

import (
	"github.com/spf13/cobra"
)

// checkCmd validates a scenario file without running it.
var checkCmd = &cobra.Command{
	Use:          "check <scenario.yaml>",
	Short:        "Parse and validate a scenario",
	Long:         `Parse a scenario file, bind targets, verify every role reference and print the execution plan. Nothing is executed.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}

		scenario, reg, err := loadScenario(args[0])
		if err != nil {
			return err
		}
		printPlan(cmd, scenario, reg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringArrayVarP(&runTargets, "target", "t", nil, "execution target for role group i (repeatable)")
}
