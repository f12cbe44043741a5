package cli

import (
	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and list the enabled checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckConfig(cmd.OutOrStdout())
	},
}
