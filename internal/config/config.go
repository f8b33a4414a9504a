// Package config defines the top-level configuration for the perp arbitrage
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPARB_* environment variables.
type Config struct {
	Trading  TradingConfig `toml:"trading"`
	Chain    ChainConfig   `toml:"chain"`
	Cex      CexConfig     `toml:"cex"`
	Redis    RedisConfig   `toml:"redis"`
	Notify   NotifyConfig  `toml:"notify"`
	Mode     string        `toml:"mode"`
	LogLevel string        `toml:"log_level"`
}

// TradingConfig holds the arbitrage engine parameters.
type TradingConfig struct {
	// Market is the perp symbol traded on both venues, e.g. "SOL-PERP".
	Market      string   `toml:"market"`
	MinProfit   float64  `toml:"min_profit"`
	OrderSize   float64  `toml:"order_size"`
	MaxNotional float64  `toml:"max_notional"`
	Interval    duration `toml:"interval"`
	// ShortShave and LongPad scale the mark price for the short and long leg
	// respectively so both limit orders rest inside the spread.
	ShortShave float64 `toml:"short_shave"`
	LongPad    float64 `toml:"long_pad"`
}

// ChainConfig holds the on-chain venue connection and risk parameters.
type ChainConfig struct {
	RpcURL             string  `toml:"rpc_url"`
	ContractAddress    string  `toml:"contract_address"`
	ChainID            int64   `toml:"chain_id"`
	PrivateKey         string  `toml:"private_key"`
	EncryptedKeyPath   string  `toml:"encrypted_key_path"`
	KeyPassword        string  `toml:"key_password"`
	CollateralDecimals int     `toml:"collateral_decimals"`
	NotionalBuffer     float64 `toml:"notional_buffer"`
	BookDepth          int     `toml:"book_depth"`
}

// CexConfig holds the centralized exchange API credentials and risk
// parameters.
type CexConfig struct {
	BaseURL        string  `toml:"base_url"`
	ApiKey         string  `toml:"api_key"`
	ApiSecret      string  `toml:"api_secret"`
	Subaccount     string  `toml:"subaccount"`
	NotionalBuffer float64 `toml:"notional_buffer"`
	BookDepth      int     `toml:"book_depth"`
}

// RedisConfig holds Redis connection parameters for the per-market instance
// lock. Leaving Addr empty disables the lock entirely.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "1m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "1m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			Market:      "SOL-PERP",
			MinProfit:   0.05,
			OrderSize:   1.0,
			MaxNotional: 100.0,
			Interval:    duration{time.Second},
			ShortShave:  0.999,
			LongPad:     1.001,
		},
		Chain: ChainConfig{
			ChainID:            1,
			CollateralDecimals: 6,
			NotionalBuffer:     0,
			BookDepth:          32,
		},
		Cex: CexConfig{
			BaseURL:        "https://ftx.com/api",
			NotionalBuffer: 10.0,
			BookDepth:      100,
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			TLSEnabled: false,
			LockTTL:    duration{0},
		},
		Notify: NotifyConfig{
			Events: []string{"arb_detected", "leg_failed", "error"},
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"watch": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, watch)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading
	if c.Trading.Market == "" {
		errs = append(errs, "trading: market must not be empty")
	}
	if c.Trading.MinProfit <= 0 {
		errs = append(errs, "trading: min_profit must be > 0")
	}
	if c.Trading.OrderSize <= 0 {
		errs = append(errs, "trading: order_size must be > 0")
	}
	if c.Trading.MaxNotional <= 0 {
		errs = append(errs, "trading: max_notional must be > 0")
	}
	if c.Trading.Interval.Duration <= 0 {
		errs = append(errs, "trading: interval must be positive")
	}
	if c.Trading.ShortShave <= 0 || c.Trading.ShortShave > 1 {
		errs = append(errs, fmt.Sprintf("trading: short_shave must be in (0, 1], got %g", c.Trading.ShortShave))
	}
	if c.Trading.LongPad < 1 {
		errs = append(errs, fmt.Sprintf("trading: long_pad must be >= 1, got %g", c.Trading.LongPad))
	}

	// Chain
	if c.Chain.RpcURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ContractAddress == "" {
		errs = append(errs, "chain: contract_address must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.CollateralDecimals < 0 || c.Chain.CollateralDecimals > 18 {
		errs = append(errs, fmt.Sprintf("chain: collateral_decimals must be 0-18, got %d", c.Chain.CollateralDecimals))
	}
	if c.Chain.NotionalBuffer < 0 {
		errs = append(errs, "chain: notional_buffer must be >= 0")
	}

	// Chain key — at least one credential source must be specified for trade
	// mode. Watch mode never signs transactions but the client still needs a
	// key to derive its account address.
	if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
		errs = append(errs, "chain: either private_key or encrypted_key_path must be set")
	}
	if c.Chain.EncryptedKeyPath != "" && c.Chain.KeyPassword == "" {
		errs = append(errs, "chain: key_password is required when encrypted_key_path is set")
	}

	// Cex
	if c.Cex.BaseURL == "" {
		errs = append(errs, "cex: base_url must not be empty")
	}
	if c.Mode == "trade" {
		if c.Cex.ApiKey == "" {
			errs = append(errs, "cex: api_key is required for trade mode")
		}
		if c.Cex.ApiSecret == "" {
			errs = append(errs, "cex: api_secret is required for trade mode")
		}
	}
	if c.Cex.NotionalBuffer < 0 {
		errs = append(errs, "cex: notional_buffer must be >= 0")
	}

	// Redis — only validated when the lock is enabled.
	if c.Redis.Addr != "" {
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration < 0 {
			errs = append(errs, "redis: lock_ttl must be >= 0")
		}
	}

	// Notify — Telegram fields must be set together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
