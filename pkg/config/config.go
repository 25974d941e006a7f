package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App       AppConfig
	Wallet    WalletConfig
	Token     TokenConfig
	Tatum     TatumConfig
	Queue     QueueConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Wallet.validateNativeAmount(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAYOUT_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYOUT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PAYOUT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAYOUT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// WalletConfig holds the treasury credentials. Absence is not a boot error:
// processing checks these per payout and fails the record instead (the status
// surface must stay up even when the wallet is not provisioned).
type WalletConfig struct {
	SigningKey   string `envconfig:"PAYOUT_WALLET_SIGNING_KEY"`
	NativeAmount string `envconfig:"PAYOUT_NATIVE_AMOUNT"`
}

// NativeAmountDecimal parses the per-payout native coin amount.
func (w WalletConfig) NativeAmountDecimal() (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(w.NativeAmount)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%s is not set", EnvNativeAmount)
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvNativeAmount, err)
	}
	return amount, nil
}

func (w WalletConfig) validateNativeAmount() error {
	if strings.TrimSpace(w.NativeAmount) == "" {
		return nil
	}
	amount, err := w.NativeAmountDecimal()
	if err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%s must be positive", EnvNativeAmount)
	}
	return nil
}

type TokenConfig struct {
	ContractAddress string `envconfig:"PAYOUT_TOKEN_CONTRACT" default:"0x69eFD833288605f320d77eB2aB99DDE62919BbC1"`
	Decimals        int32  `envconfig:"PAYOUT_TOKEN_DECIMALS" default:"2"`
	Chain           string `envconfig:"PAYOUT_CHAIN" default:"BASE"`
}

type TatumConfig struct {
	APIKey         string `envconfig:"PAYOUT_TATUM_API_KEY"`
	BaseURL        string `envconfig:"PAYOUT_TATUM_BASE_URL" default:"https://api.tatum.io"`
	TokenGasLimit  string `envconfig:"PAYOUT_TOKEN_GAS_LIMIT" default:"100000"`
	NativeGasLimit string `envconfig:"PAYOUT_NATIVE_GAS_LIMIT" default:"21000"`
	GasPrice       string `envconfig:"PAYOUT_GAS_PRICE" default:"1000000000"`
}

type QueueConfig struct {
	ConfirmAttempts uint          `envconfig:"PAYOUT_CONFIRM_ATTEMPTS" default:"5"`
	ConfirmDelay    time.Duration `envconfig:"PAYOUT_CONFIRM_DELAY" default:"2s"`
	DrainInterval   time.Duration `envconfig:"PAYOUT_DRAIN_INTERVAL" default:"15s"`
	HistoryLimit    int           `envconfig:"PAYOUT_HISTORY_LIMIT" default:"10"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYOUT_REDIS_URL"`
	Address      string        `envconfig:"PAYOUT_REDIS_ADDR"`
	Password     string        `envconfig:"PAYOUT_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYOUT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYOUT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYOUT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYOUT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYOUT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYOUT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis connection is configured at all.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type RateLimitConfig struct {
	Window       time.Duration `envconfig:"PAYOUT_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit      int           `envconfig:"PAYOUT_RATE_LIMIT_IP_LIMIT" default:"20"`
	AddressLimit int           `envconfig:"PAYOUT_RATE_LIMIT_ADDRESS_LIMIT" default:"5"`
}
