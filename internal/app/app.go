package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fuel-watchtower/internal/actions"
	"fuel-watchtower/internal/alerting"
	"fuel-watchtower/internal/config"
	"fuel-watchtower/internal/ethereum"
	"fuel-watchtower/internal/fuel"
	"fuel-watchtower/internal/logging"
	"fuel-watchtower/internal/retry"
	"fuel-watchtower/internal/telemetry"
	"fuel-watchtower/internal/watcher/ethwatch"
	"fuel-watchtower/internal/watcher/fuelwatch"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.PagerDuty
	if !cfg.Enabled {
		return nil
	}
	return alerting.NewPagerDutyNotifier(a.Config.Secrets.PagerDutyAPIKey, cfg.Endpoint, cfg.RequestTimeout, a.Logger)
}

func (a *App) dialEthereum(ctx context.Context) (*ethereum.Chain, error) {
	cfg := a.Config.Ethereum
	return ethereum.Dial(ctx, ethereum.Options{
		RPCURL:         cfg.RPCURL,
		RequestTimeout: cfg.RequestTimeout,
		BlockTime:      cfg.BlockTime,
		WalletKey:      a.Config.Secrets.EthereumWalletKey,
		Retry: retry.New(
			retry.WithAttempts(cfg.Retry.Attempts),
			retry.WithDelay(cfg.Retry.Delay),
			retry.WithMaxDelay(cfg.Retry.MaxDelay),
		),
	}, a.Logger)
}

func (a *App) newFuelClient() (*fuel.Client, error) {
	cfg := a.Config.Fuel
	return fuel.NewClient(fuel.Options{
		GraphQLURL: cfg.GraphQLURL,
		BlockTime:  cfg.BlockTime,
		PageSize:   cfg.PageSize,
		Timeout:    cfg.RequestTimeout,
		RetryMax:   cfg.RetryMax,

		RetryWaitMin: cfg.RetryWaitMin,
		RetryWaitMax: cfg.RetryWaitMax,
	}, a.Logger)
}

// Run wires the adapters and runs the alerter, the action dispatcher and both
// watch loops until one of them stops. Any task stopping while the process
// is not shutting down is returned as an error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.Config.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, a.Config.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				a.Logger.Warn().Err(err).Msg("telemetry shutdown failed")
			}
		}()
	}

	chain, err := a.dialEthereum(ctx)
	if err != nil {
		return err
	}
	defer chain.Close()

	fuelClient, err := a.newFuelClient()
	if err != nil {
		return err
	}

	ethCfg := a.Config.Ethereum
	state := ethereum.NewStateContract(chain, common.HexToAddress(ethCfg.StateContractAddress))
	portal := ethereum.NewPortalContract(chain, common.HexToAddress(ethCfg.PortalContractAddress))
	gateway := ethereum.NewGatewayContract(chain, common.HexToAddress(ethCfg.GatewayContractAddress))

	wt := a.Config.Watchtower
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("pagerduty disabled; alerts are only logged")
	}
	if _, ok := chain.WalletAddress(); !ok {
		a.Logger.Warn().Msg("no ethereum wallet key; pause actions will fail")
	}

	alerter := alerting.NewAlerter(notifier, alerting.AlerterOptions{
		CacheTTL:    wt.AlertCacheExpiry,
		GracePeriod: wt.MinDurationFromStartToErr,
		BufferSize:  wt.ChannelBufferSize,
		Source:      a.Config.PagerDuty.Source,
	}, a.Logger)

	dispatcher := actions.NewDispatcher(state, portal, gateway, alerter.Sender(), actions.DispatcherOptions{
		Timeout:    wt.ActionTimeout,
		BufferSize: wt.ChannelBufferSize,
	}, a.Logger)

	ethWatcher := ethwatch.New(a.Config.EthereumClientWatcher, wt.EthereumPollInterval, ethwatch.Deps{
		Ethereum: chain,
		Fuel:     fuelClient,
		State:    state,
		Portal:   portal,
		Gateway:  gateway,
	}, alerter.Sender(), dispatcher.Sender(), a.Logger)

	fuelWatcher := fuelwatch.New(a.Config.FuelClientWatcher, wt.FuelPollInterval, fuelClient,
		alerter.Sender(), dispatcher.Sender(), a.Logger)

	a.Logger.Info().Msg("starting watchtower")
	err = runTasks(ctx, a.Logger,
		task{name: "alerter", run: alerter.Run},
		task{name: "action dispatcher", run: dispatcher.Run},
		task{name: "ethereum watcher", run: ethWatcher.Run},
		task{name: "fuel watcher", run: fuelWatcher.Run},
	)
	if err != nil {
		a.Logger.Error().Err(err).Msg("watchtower terminated")
		return err
	}

	a.Logger.Info().Msg("watchtower stopped")
	return nil
}

// errTaskExited marks a task that returned without an error.
var errTaskExited = errors.New("task exited")

type task struct {
	name string
	run  func(ctx context.Context) error
}

// runTasks runs every task until the first one stops, then cancels the rest.
// Tasks stopping because of that cancellation are not reported. It returns
// nil only when ctx itself was canceled.
func runTasks(ctx context.Context, logger zerolog.Logger, tasks ...task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			err := t.run(gctx)
			if gctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errTaskExited
			}
			logger.Error().Err(err).Str("task", t.name).Msg("task stopped")
			return fmt.Errorf("%s stopped: %w", t.name, err)
		})
	}
	return g.Wait()
}

var (
	_ ethwatch.EthereumChain   = (*ethereum.Chain)(nil)
	_ ethwatch.CommitVerifier  = (*fuel.Client)(nil)
	_ ethwatch.StateContract   = (*ethereum.StateContract)(nil)
	_ ethwatch.PortalContract  = (*ethereum.PortalContract)(nil)
	_ ethwatch.GatewayContract = (*ethereum.GatewayContract)(nil)
	_ fuelwatch.FuelChain      = (*fuel.Client)(nil)
	_ actions.Pauser           = (*ethereum.StateContract)(nil)
	_ actions.Pauser           = (*ethereum.PortalContract)(nil)
	_ actions.Pauser           = (*ethereum.GatewayContract)(nil)
)
