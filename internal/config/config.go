package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"fuel-watchtower/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Watchtower WatchtowerConfig `mapstructure:"watchtower"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Fuel       FuelConfig       `mapstructure:"fuel"`
	PagerDuty  PagerDutyConfig  `mapstructure:"pagerduty"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`

	EthereumClientWatcher EthereumClientWatcher `mapstructure:"ethereum_client_watcher"`
	FuelClientWatcher     FuelClientWatcher     `mapstructure:"fuel_client_watcher"`

	Secrets Secrets `mapstructure:"-"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment"`
}

// WatchtowerConfig tunes the alert pipeline and the poll loops.
type WatchtowerConfig struct {
	AlertCacheExpiry          time.Duration `mapstructure:"alert_cache_expiry" validate:"gt=0"`
	MinDurationFromStartToErr time.Duration `mapstructure:"min_duration_from_start_to_err" validate:"gte=0"`
	EthereumPollInterval      time.Duration `mapstructure:"ethereum_poll_interval" validate:"gt=0"`
	FuelPollInterval          time.Duration `mapstructure:"fuel_poll_interval" validate:"gt=0"`
	ActionTimeout             time.Duration `mapstructure:"action_timeout" validate:"gt=0"`
	ChannelBufferSize         int           `mapstructure:"channel_buffer_size" validate:"gt=0"`
}

// RetryConfig is the transient-failure policy of a chain adapter.
type RetryConfig struct {
	Attempts uint          `mapstructure:"attempts" validate:"gte=1"`
	Delay    time.Duration `mapstructure:"delay" validate:"gte=0"`
	MaxDelay time.Duration `mapstructure:"max_delay" validate:"gte=0"`
}

// EthereumConfig covers Ethereum RPC access and the bridge contracts.
type EthereumConfig struct {
	RPCURL                 string        `mapstructure:"rpc_url" validate:"required,url"`
	StateContractAddress   string        `mapstructure:"state_contract_address" validate:"required,eth_addr"`
	PortalContractAddress  string        `mapstructure:"portal_contract_address" validate:"required,eth_addr"`
	GatewayContractAddress string        `mapstructure:"gateway_contract_address" validate:"required,eth_addr"`
	BlockTime              time.Duration `mapstructure:"block_time" validate:"gt=0"`
	RequestTimeout         time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	Retry                  RetryConfig   `mapstructure:"retry"`
}

// FuelConfig covers Fuel GraphQL access.
type FuelConfig struct {
	GraphQLURL     string        `mapstructure:"graphql_url" validate:"required,url"`
	BlockTime      time.Duration `mapstructure:"block_time" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	RetryMax       int           `mapstructure:"retry_max" validate:"gte=0"`
	RetryWaitMin   time.Duration `mapstructure:"retry_wait_min" validate:"gte=0"`
	RetryWaitMax   time.Duration `mapstructure:"retry_wait_max" validate:"gtefield=RetryWaitMin"`
	PageSize       int           `mapstructure:"page_size" validate:"gt=0"`
}

// PagerDutyConfig routes escalations.
type PagerDutyConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Endpoint       string        `mapstructure:"endpoint" validate:"omitempty,url"`
	Source         string        `mapstructure:"source"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// TelemetryConfig toggles OTLP metrics export.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Secrets are read from the environment only, never from config files.
type Secrets struct {
	EthereumWalletKey string `envconfig:"ETHEREUM_WALLET_KEY"`
	PagerDutyAPIKey   string `envconfig:"PAGERDUTY_API_KEY"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WATCHTOWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Secrets); err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fuel-watchtower")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("watchtower.alert_cache_expiry", "10m")
	v.SetDefault("watchtower.min_duration_from_start_to_err", "1m")
	v.SetDefault("watchtower.ethereum_poll_interval", "6s")
	v.SetDefault("watchtower.fuel_poll_interval", "4s")
	v.SetDefault("watchtower.action_timeout", "30s")
	v.SetDefault("watchtower.channel_buffer_size", 1024)

	v.SetDefault("ethereum.block_time", "12s")
	v.SetDefault("ethereum.request_timeout", "10s")
	v.SetDefault("ethereum.retry.attempts", 3)
	v.SetDefault("ethereum.retry.delay", "500ms")
	v.SetDefault("ethereum.retry.max_delay", "4s")

	v.SetDefault("fuel.block_time", "1s")
	v.SetDefault("fuel.request_timeout", "10s")
	v.SetDefault("fuel.retry_max", 2)
	v.SetDefault("fuel.retry_wait_min", "500ms")
	v.SetDefault("fuel.retry_wait_max", "4s")
	v.SetDefault("fuel.page_size", 40)

	v.SetDefault("pagerduty.enabled", false)
	v.SetDefault("pagerduty.source", "fuel-watchtower")
	v.SetDefault("pagerduty.request_timeout", "10s")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "fuel-watchtower")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the rules that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		errs := make([]error, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			errs = append(errs, fmt.Errorf("%s: failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return errors.Join(errs...)
	}

	if c.PagerDuty.Enabled && c.Secrets.PagerDutyAPIKey == "" {
		return fmt.Errorf("pagerduty.enabled requires PAGERDUTY_API_KEY")
	}
	if c.EthereumClientWatcher.AccountFundsAlert.MinBalance < 0 {
		return fmt.Errorf("ethereum_client_watcher.account_funds_alert.min_balance cannot be negative")
	}
	return nil
}
