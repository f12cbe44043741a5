package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"fuel-watchtower/internal/alerting"
)

// SimulateAlert pushes one alert straight to PagerDuty, bypassing the dedup
// cache and the grace period.
func (a *App) SimulateAlert(ctx context.Context, alert alerting.AlertParams) error {
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("pagerduty is not enabled")
	}
	return sendAlert(ctx, notifier, alert, a.Config.PagerDuty.Source)
}

func sendAlert(ctx context.Context, notifier alerting.Notifier, alert alerting.AlertParams, source string) error {
	severity, ok := alerting.Severity(alert.Level)
	if !ok {
		return fmt.Errorf("level %s is never escalated", alert.Level)
	}
	if err := notifier.SendAlert(ctx, severity, alert.Summary(), source); err != nil {
		return fmt.Errorf("send simulated alert: %w", err)
	}
	return nil
}

// CheckConfig prints which checks are enabled.
func (a *App) CheckConfig(w io.Writer) error {
	cfg := a.Config
	eth := cfg.EthereumClientWatcher
	fl := cfg.FuelClientWatcher

	lines := []struct {
		name  string
		value any
	}{
		{"ethereum rpc", cfg.Ethereum.RPCURL},
		{"fuel graphql", cfg.Fuel.GraphQLURL},
		{"pagerduty", cfg.PagerDuty.Enabled},
		{"wallet key set", cfg.Secrets.EthereumWalletKey != ""},
		{"ethereum query alert", eth.QueryAlert.AlertLevel},
		{"ethereum connection alert", eth.ConnectionAlert.AlertLevel},
		{"ethereum block production alert", eth.BlockProductionAlert.AlertLevel},
		{"ethereum account funds alert", eth.AccountFundsAlert.AlertLevel},
		{"invalid state commit alert", eth.InvalidStateCommitAlert.AlertLevel},
		{"portal deposit alerts", len(eth.PortalDepositAlerts)},
		{"portal withdrawal alerts", len(eth.PortalWithdrawalAlerts)},
		{"gateway deposit alerts", len(eth.GatewayDepositAlerts)},
		{"gateway withdrawal alerts", len(eth.GatewayWithdrawalAlerts)},
		{"fuel query alert", fl.QueryAlert.AlertLevel},
		{"fuel connection alert", fl.ConnectionAlert.AlertLevel},
		{"fuel block production alert", fl.BlockProductionAlert.AlertLevel},
		{"fuel portal withdrawal alerts", len(fl.PortalWithdrawalAlerts)},
		{"fuel gateway withdrawal alerts", len(fl.GatewayWithdrawalAlerts)},
	}

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-32s %v\n", l.name+":", l.value); err != nil {
			return err
		}
	}
	return nil
}
