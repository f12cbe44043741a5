// Package fuelwatch is the Fuel watch loop.
package fuelwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"fuel-watchtower/internal/actions"
	"fuel-watchtower/internal/alerting"
	"fuel-watchtower/internal/config"
	"fuel-watchtower/internal/logging"
	"fuel-watchtower/internal/scheduler"
	"fuel-watchtower/internal/units"
	"fuel-watchtower/internal/watcher"
)

const fuelBaseDecimals = 9

// FuelChain is the read side of the Fuel client used by the loop.
type FuelChain interface {
	CheckConnection(ctx context.Context) error
	SecondsSinceLastBlock(ctx context.Context) (uint64, error)
	BaseAmountWithdrawn(ctx context.Context, timeFrame time.Duration) (*uint256.Int, error)
	TokenAmountWithdrawn(ctx context.Context, timeFrame time.Duration, contractID string) (*uint256.Int, error)
}

type withdrawalCheck struct {
	alert      config.GenericAlert
	asset      string
	contractID string
	decimals   uint8
	timeFrame  time.Duration
	threshold  *uint256.Int
}

// Watcher is the Fuel watch loop.
type Watcher struct {
	cfg      config.FuelClientWatcher
	interval time.Duration
	fuel     FuelChain
	emit     *watcher.Emitter
	logger   zerolog.Logger

	checks []withdrawalCheck
}

// New builds the loop. Thresholds are converted to raw units once here.
func New(cfg config.FuelClientWatcher, interval time.Duration, fuel FuelChain, alerts chan<- alerting.AlertParams, acts chan<- actions.ActionParams, logger zerolog.Logger) *Watcher {
	logger = logging.Component(logger, "fuel_watcher")

	checks := make([]withdrawalCheck, 0, len(cfg.PortalWithdrawalAlerts)+len(cfg.GatewayWithdrawalAlerts))
	for _, a := range cfg.PortalWithdrawalAlerts {
		checks = append(checks, withdrawalCheck{
			alert:     a.GenericAlert,
			asset:     "ETH",
			decimals:  fuelBaseDecimals,
			timeFrame: a.TimeFrame,
			threshold: units.Value(a.Amount, fuelBaseDecimals),
		})
	}
	for _, a := range cfg.GatewayWithdrawalAlerts {
		checks = append(checks, withdrawalCheck{
			alert:      a.GenericAlert,
			asset:      a.TokenName,
			contractID: a.TokenAddress,
			decimals:   a.TokenDecimals,
			timeFrame:  a.TimeFrame,
			threshold:  units.Value(a.Amount, a.TokenDecimals),
		})
	}

	return &Watcher{
		cfg:      cfg,
		interval: interval,
		fuel:     fuel,
		emit:     watcher.NewEmitter(alerts, acts, cfg.QueryAlert, logger),
		logger:   logger,
		checks:   checks,
	}
}

// Run polls until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info().Dur("interval", w.interval).Int("withdrawal_checks", len(w.checks)).Msg("fuel watcher started")
	return scheduler.New(scheduler.Options{Name: "fuel", Interval: w.interval}, w.logger).Run(ctx, w.Poll)
}

// Poll runs every check once, in order.
func (w *Watcher) Poll(ctx context.Context) {
	w.emit.Info(ctx, "Watching fuel chain", "Periodically querying the fuel chain")

	w.checkConnection(ctx)
	w.checkBlockProduction(ctx)
	for _, c := range w.checks {
		w.checkWithdrawals(ctx, c)
	}
}

func (w *Watcher) checkConnection(ctx context.Context) {
	check := w.cfg.ConnectionAlert
	if !check.Enabled() {
		return
	}

	if err := w.fuel.CheckConnection(ctx); err != nil {
		w.emit.Raise(ctx, "Failed to check fuel connection", err.Error(), check)
	}
}

func (w *Watcher) checkBlockProduction(ctx context.Context) {
	check := w.cfg.BlockProductionAlert
	if !check.Enabled() {
		return
	}

	seconds, err := w.fuel.SecondsSinceLastBlock(ctx)
	if err != nil {
		w.emit.QueryFailed(ctx, "Failed to check fuel block production", err)
		return
	}

	if seconds > check.MaxBlockTime {
		w.emit.Raise(ctx,
			fmt.Sprintf("Next fuel block is taking longer than %d seconds", check.MaxBlockTime),
			fmt.Sprintf("Last block was %d seconds ago", seconds),
			check.GenericAlert)
	}
}

func (w *Watcher) checkWithdrawals(ctx context.Context, c withdrawalCheck) {
	if !c.alert.Enabled() {
		return
	}

	var (
		amount *uint256.Int
		err    error
	)
	if c.contractID == "" {
		amount, err = w.fuel.BaseAmountWithdrawn(ctx, c.timeFrame)
	} else {
		amount, err = w.fuel.TokenAmountWithdrawn(ctx, c.timeFrame, c.contractID)
	}
	if err != nil {
		w.emit.QueryFailed(ctx, fmt.Sprintf("Failed to check fuel %s withdrawal amount", c.asset), err)
		return
	}

	if !amount.Lt(c.threshold) {
		w.emit.Raise(ctx,
			fmt.Sprintf("Fuel Chain: %s withdrawal threshold exceeded", c.asset),
			fmt.Sprintf("%s withdrawal amount of %s over the last %s reached the threshold of %s",
				c.asset, units.Format(amount, c.decimals), c.timeFrame, units.Format(c.threshold, c.decimals)),
			c.alert)
	}
}
