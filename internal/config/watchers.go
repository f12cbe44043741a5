package config

import (
	"time"

	"fuel-watchtower/internal/actions"
	"fuel-watchtower/internal/alerting"
)

// GenericAlert is the level and action shared by every check. A zero value
// disables the check.
type GenericAlert struct {
	AlertLevel  alerting.AlertLevel    `mapstructure:"alert_level"`
	AlertAction actions.EthereumAction `mapstructure:"alert_action"`
}

// Enabled reports whether the check should run.
func (g GenericAlert) Enabled() bool {
	return g.AlertLevel != alerting.None
}

// BlockProductionAlert fires when no block was produced for MaxBlockTime seconds.
type BlockProductionAlert struct {
	GenericAlert `mapstructure:",squash"`
	MaxBlockTime uint64 `mapstructure:"max_block_time"`
}

// AccountFundsAlert fires when the signer balance drops below MinBalance ETH.
type AccountFundsAlert struct {
	GenericAlert `mapstructure:",squash"`
	MinBalance   float64 `mapstructure:"min_balance"`
}

// PortalAlert is a base asset volume threshold over a trailing window.
type PortalAlert struct {
	GenericAlert `mapstructure:",squash"`
	TimeFrame    time.Duration `mapstructure:"time_frame" validate:"gt=0"`
	Amount       float64       `mapstructure:"amount" validate:"gte=0"`
}

// TokenAlert is a per-token volume threshold over a trailing window.
// TokenAddress is an ERC-20 address on Ethereum and a contract id on Fuel.
type TokenAlert struct {
	GenericAlert  `mapstructure:",squash"`
	TokenName     string        `mapstructure:"token_name" validate:"required"`
	TokenDecimals uint8         `mapstructure:"token_decimals" validate:"lte=77"`
	TokenAddress  string        `mapstructure:"token_address" validate:"required,hexadecimal"`
	TimeFrame     time.Duration `mapstructure:"time_frame" validate:"gt=0"`
	Amount        float64       `mapstructure:"amount" validate:"gte=0"`
}

// EthereumClientWatcher configures the Ethereum watch loop.
type EthereumClientWatcher struct {
	QueryAlert              GenericAlert         `mapstructure:"query_alert"`
	ConnectionAlert         GenericAlert         `mapstructure:"connection_alert"`
	BlockProductionAlert    BlockProductionAlert `mapstructure:"block_production_alert"`
	AccountFundsAlert       AccountFundsAlert    `mapstructure:"account_funds_alert"`
	InvalidStateCommitAlert GenericAlert         `mapstructure:"invalid_state_commit_alert"`
	PortalDepositAlerts     []PortalAlert        `mapstructure:"portal_deposit_alerts" validate:"dive"`
	PortalWithdrawalAlerts  []PortalAlert        `mapstructure:"portal_withdrawal_alerts" validate:"dive"`
	GatewayDepositAlerts    []TokenAlert         `mapstructure:"gateway_deposit_alerts" validate:"dive"`
	GatewayWithdrawalAlerts []TokenAlert         `mapstructure:"gateway_withdrawal_alerts" validate:"dive"`
}

// FuelClientWatcher configures the Fuel watch loop.
type FuelClientWatcher struct {
	QueryAlert              GenericAlert         `mapstructure:"query_alert"`
	ConnectionAlert         GenericAlert         `mapstructure:"connection_alert"`
	BlockProductionAlert    BlockProductionAlert `mapstructure:"block_production_alert"`
	PortalWithdrawalAlerts  []PortalAlert        `mapstructure:"portal_withdrawal_alerts" validate:"dive"`
	GatewayWithdrawalAlerts []TokenAlert         `mapstructure:"gateway_withdrawal_alerts" validate:"dive"`
}
