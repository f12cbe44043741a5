// Package ethwatch is the Ethereum watch loop: every poll it checks the
// Ethereum client, the signer balance, the commits posted to the state
// contract and the bridge volumes against their thresholds.
package ethwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
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

const ethDecimals = 18

// EthereumChain is the read side of the Ethereum client.
type EthereumChain interface {
	CheckConnection(ctx context.Context) error
	SecondsSinceLastBlock(ctx context.Context) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	AccountBalance(ctx context.Context, address common.Address) (*uint256.Int, error)
	// WalletAddress is the signer address, false when no key is configured.
	WalletAddress() (common.Address, bool)
}

// CommitVerifier checks state commits against the Fuel chain.
type CommitVerifier interface {
	VerifyBlockCommit(ctx context.Context, blockHash common.Hash) (bool, error)
}

// StateContract lists the block hashes committed on Ethereum.
type StateContract interface {
	LatestCommits(ctx context.Context, fromBlock uint64) ([]common.Hash, error)
}

// PortalContract reports base asset volumes in wei.
type PortalContract interface {
	BaseAmountDeposited(ctx context.Context, timeFrame time.Duration, lastBlock uint64) (*uint256.Int, error)
	BaseAmountWithdrawn(ctx context.Context, timeFrame time.Duration, lastBlock uint64) (*uint256.Int, error)
}

// GatewayContract reports ERC-20 volumes in token units.
type GatewayContract interface {
	TokenAmountDeposited(ctx context.Context, timeFrame time.Duration, token common.Address, lastBlock uint64) (*uint256.Int, error)
	TokenAmountWithdrawn(ctx context.Context, timeFrame time.Duration, token common.Address, lastBlock uint64) (*uint256.Int, error)
}

// Deps are the collaborators of the loop.
type Deps struct {
	Ethereum EthereumChain
	Fuel     CommitVerifier
	State    StateContract
	Portal   PortalContract
	Gateway  GatewayContract
}

type thresholdCheck struct {
	alert     config.GenericAlert
	asset     string
	token     common.Address
	decimals  uint8
	timeFrame time.Duration
	threshold *uint256.Int
}

// Watcher is the Ethereum watch loop. The checkpoint is only touched from Run.
type Watcher struct {
	cfg      config.EthereumClientWatcher
	interval time.Duration
	deps     Deps
	emit     *watcher.Emitter
	logger   zerolog.Logger

	portalDeposits     []thresholdCheck
	portalWithdrawals  []thresholdCheck
	gatewayDeposits    []thresholdCheck
	gatewayWithdrawals []thresholdCheck

	lastCommitCheckBlock uint64
}

// New builds the loop. Thresholds are converted to raw units once here.
func New(cfg config.EthereumClientWatcher, interval time.Duration, deps Deps, alerts chan<- alerting.AlertParams, acts chan<- actions.ActionParams, logger zerolog.Logger) *Watcher {
	logger = logging.Component(logger, "ethereum_watcher")

	return &Watcher{
		cfg:                cfg,
		interval:           interval,
		deps:               deps,
		emit:               watcher.NewEmitter(alerts, acts, cfg.QueryAlert, logger),
		logger:             logger,
		portalDeposits:     portalChecks(cfg.PortalDepositAlerts),
		portalWithdrawals:  portalChecks(cfg.PortalWithdrawalAlerts),
		gatewayDeposits:    tokenChecks(cfg.GatewayDepositAlerts),
		gatewayWithdrawals: tokenChecks(cfg.GatewayWithdrawalAlerts),
	}
}

func portalChecks(alerts []config.PortalAlert) []thresholdCheck {
	checks := make([]thresholdCheck, 0, len(alerts))
	for _, a := range alerts {
		checks = append(checks, thresholdCheck{
			alert:     a.GenericAlert,
			asset:     "ETH",
			decimals:  ethDecimals,
			timeFrame: a.TimeFrame,
			threshold: units.Value(a.Amount, ethDecimals),
		})
	}
	return checks
}

func tokenChecks(alerts []config.TokenAlert) []thresholdCheck {
	checks := make([]thresholdCheck, 0, len(alerts))
	for _, a := range alerts {
		checks = append(checks, thresholdCheck{
			alert:     a.GenericAlert,
			asset:     a.TokenName,
			token:     common.HexToAddress(a.TokenAddress),
			decimals:  a.TokenDecimals,
			timeFrame: a.TimeFrame,
			threshold: units.Value(a.Amount, a.TokenDecimals),
		})
	}
	return checks
}

// Run seeds the checkpoint from the chain tip and then polls until ctx is
// canceled.
func (w *Watcher) Run(ctx context.Context) error {
	latest, err := w.deps.Ethereum.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch initial ethereum block number: %w", err)
	}
	w.lastCommitCheckBlock = latest
	w.logger.Info().Uint64("block", latest).Dur("interval", w.interval).Msg("ethereum watcher started")

	return scheduler.New(scheduler.Options{Name: "ethereum", Interval: w.interval}, w.logger).Run(ctx, w.Poll)
}

// Poll runs every check once, in order.
func (w *Watcher) Poll(ctx context.Context) {
	w.emit.Info(ctx, "Watching ethereum chain", "Periodically querying the ethereum chain")

	w.checkConnection(ctx)
	w.checkBlockProduction(ctx)
	w.checkAccountFunds(ctx)
	w.checkInvalidCommits(ctx)
	for _, c := range w.portalDeposits {
		w.checkThreshold(ctx, c, "deposit", w.portalDeposited)
	}
	for _, c := range w.portalWithdrawals {
		w.checkThreshold(ctx, c, "withdrawal", w.portalWithdrawn)
	}
	for _, c := range w.gatewayDeposits {
		w.checkThreshold(ctx, c, "deposit", w.gatewayDeposited)
	}
	for _, c := range w.gatewayWithdrawals {
		w.checkThreshold(ctx, c, "withdrawal", w.gatewayWithdrawn)
	}
}

// LastCommitCheckBlock is the block the next commit scan starts from.
func (w *Watcher) LastCommitCheckBlock() uint64 {
	return w.lastCommitCheckBlock
}

func (w *Watcher) checkConnection(ctx context.Context) {
	check := w.cfg.ConnectionAlert
	if !check.Enabled() {
		return
	}

	if err := w.deps.Ethereum.CheckConnection(ctx); err != nil {
		w.emit.Raise(ctx, "Failed to check ethereum connection", err.Error(), check)
	}
}

func (w *Watcher) checkBlockProduction(ctx context.Context) {
	check := w.cfg.BlockProductionAlert
	if !check.Enabled() {
		return
	}

	seconds, err := w.deps.Ethereum.SecondsSinceLastBlock(ctx)
	if err != nil {
		w.emit.QueryFailed(ctx, "Failed to check ethereum block production", err)
		return
	}

	if seconds > check.MaxBlockTime {
		w.emit.Raise(ctx,
			fmt.Sprintf("Next ethereum block is taking longer than %d seconds", check.MaxBlockTime),
			fmt.Sprintf("Last block was %d seconds ago", seconds),
			check.GenericAlert)
	}
}

func (w *Watcher) checkAccountFunds(ctx context.Context) {
	check := w.cfg.AccountFundsAlert
	if !check.Enabled() {
		return
	}

	address, ok := w.deps.Ethereum.WalletAddress()
	if !ok {
		return
	}

	balance, err := w.deps.Ethereum.AccountBalance(ctx, address)
	if err != nil {
		w.emit.QueryFailed(ctx, "Failed to check ethereum account funds", err)
		return
	}

	minimum := units.Value(check.MinBalance, ethDecimals)
	if balance.Lt(minimum) {
		w.emit.Raise(ctx,
			"Ethereum account funds are low",
			fmt.Sprintf("Account %s has %s ETH, below the minimum of %s ETH",
				address.Hex(), units.Format(balance, ethDecimals), units.Format(minimum, ethDecimals)),
			check.GenericAlert)
	}
}

// checkInvalidCommits verifies every commit since the checkpoint and then
// moves the checkpoint to the chain tip. A failed log fetch or tip fetch
// keeps the checkpoint so the same range is scanned again next poll.
func (w *Watcher) checkInvalidCommits(ctx context.Context) {
	check := w.cfg.InvalidStateCommitAlert
	if !check.Enabled() {
		return
	}

	hashes, err := w.deps.State.LatestCommits(ctx, w.lastCommitCheckBlock)
	if err != nil {
		w.emit.QueryFailed(ctx, "Failed to check state contract commits", err)
		return
	}

	for _, hash := range hashes {
		valid, err := w.deps.Fuel.VerifyBlockCommit(ctx, hash)
		if err != nil {
			w.emit.QueryFailed(ctx, "Failed to verify state contract commit", err)
			continue
		}
		if !valid {
			w.emit.Raise(ctx,
				fmt.Sprintf("Invalid commit was made on the state contract (%s)", hash.Hex()),
				fmt.Sprintf("Block with hash %s was not found on the fuel chain", hash.Hex()),
				check)
		}
	}

	latest, err := w.deps.Ethereum.LatestBlockNumber(ctx)
	if err != nil {
		w.emit.QueryFailed(ctx, "Failed to get latest ethereum block number", err)
		return
	}
	if latest > w.lastCommitCheckBlock {
		w.lastCommitCheckBlock = latest
	}
}

type amountFunc func(ctx context.Context, c thresholdCheck) (*uint256.Int, error)

func (w *Watcher) portalDeposited(ctx context.Context, c thresholdCheck) (*uint256.Int, error) {
	return w.deps.Portal.BaseAmountDeposited(ctx, c.timeFrame, w.lastCommitCheckBlock)
}

func (w *Watcher) portalWithdrawn(ctx context.Context, c thresholdCheck) (*uint256.Int, error) {
	return w.deps.Portal.BaseAmountWithdrawn(ctx, c.timeFrame, w.lastCommitCheckBlock)
}

func (w *Watcher) gatewayDeposited(ctx context.Context, c thresholdCheck) (*uint256.Int, error) {
	return w.deps.Gateway.TokenAmountDeposited(ctx, c.timeFrame, c.token, w.lastCommitCheckBlock)
}

func (w *Watcher) gatewayWithdrawn(ctx context.Context, c thresholdCheck) (*uint256.Int, error) {
	return w.deps.Gateway.TokenAmountWithdrawn(ctx, c.timeFrame, c.token, w.lastCommitCheckBlock)
}

func (w *Watcher) checkThreshold(ctx context.Context, c thresholdCheck, direction string, amountOf amountFunc) {
	if !c.alert.Enabled() {
		return
	}

	amount, err := amountOf(ctx, c)
	if err != nil {
		w.emit.QueryFailed(ctx, fmt.Sprintf("Failed to check ethereum %s %s amount", c.asset, direction), err)
		return
	}

	if !amount.Lt(c.threshold) {
		w.emit.Raise(ctx,
			fmt.Sprintf("Ethereum Chain: %s %s threshold exceeded", c.asset, direction),
			fmt.Sprintf("%s %s amount of %s over the last %s reached the threshold of %s",
				c.asset, direction, units.Format(amount, c.decimals), c.timeFrame, units.Format(c.threshold, c.decimals)),
			c.alert)
	}
}
