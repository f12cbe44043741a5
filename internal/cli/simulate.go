package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fuel-watchtower/internal/alerting"
)

var (
	simulateName        string
	simulateDescription string
	simulateLevel       string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a test alert to PagerDuty",
	RunE: func(cmd *cobra.Command, args []string) error {
		var level alerting.AlertLevel
		if err := level.UnmarshalText([]byte(simulateLevel)); err != nil {
			return fmt.Errorf("--level: %w", err)
		}

		alert := alerting.NewAlert(simulateName, simulateDescription, level)
		if err := getApp().SimulateAlert(cmd.Context(), alert); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %q at level %s\n", alert.Name, alert.Level)
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateName, "name", "Watchtower test alert", "Alert name")
	simulateCmd.Flags().StringVar(&simulateDescription, "description", "Simulated alert triggered from the command line", "Alert description")
	simulateCmd.Flags().StringVar(&simulateLevel, "level", "Warn", "Alert level (Warn or Error)")
}
