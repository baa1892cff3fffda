package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watcher until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Resolve the account list once and print the initial cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Inspect(cmd.Context())
	},
}
