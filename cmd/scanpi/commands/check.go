package commands

import (
	"github.com/spf13/cobra"

	"github.com/sebastian-xyz/scanpi/cmd/scanpi/ui"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the scanner host and its scanner are reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		exec, err := newExecutor(cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		ui.Section("Scanner host " + exec.Target().Describe())

		if err := exec.CheckConnectivity(ctx); err != nil {
			return err
		}
		ui.Success("Connected to %s", exec.Target())

		if err := exec.CheckDeviceAvailable(ctx); err != nil {
			return err
		}
		ui.Success("Scanner found")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
