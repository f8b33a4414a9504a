package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setStr(&cfg.Trading.Market, "PERPARB_TRADING_MARKET")
	setFloat64(&cfg.Trading.MinProfit, "PERPARB_TRADING_MIN_PROFIT")
	setFloat64(&cfg.Trading.OrderSize, "PERPARB_TRADING_ORDER_SIZE")
	setFloat64(&cfg.Trading.MaxNotional, "PERPARB_TRADING_MAX_NOTIONAL")
	setDuration(&cfg.Trading.Interval, "PERPARB_TRADING_INTERVAL")
	setFloat64(&cfg.Trading.ShortShave, "PERPARB_TRADING_SHORT_SHAVE")
	setFloat64(&cfg.Trading.LongPad, "PERPARB_TRADING_LONG_PAD")

	// ── Chain ──
	setStr(&cfg.Chain.RpcURL, "PERPARB_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ContractAddress, "PERPARB_CHAIN_CONTRACT_ADDRESS")
	setInt64(&cfg.Chain.ChainID, "PERPARB_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.PrivateKey, "PERPARB_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "PERPARB_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "PERPARB_CHAIN_KEY_PASSWORD")
	setInt(&cfg.Chain.CollateralDecimals, "PERPARB_CHAIN_COLLATERAL_DECIMALS")
	setFloat64(&cfg.Chain.NotionalBuffer, "PERPARB_CHAIN_NOTIONAL_BUFFER")
	setInt(&cfg.Chain.BookDepth, "PERPARB_CHAIN_BOOK_DEPTH")

	// ── Cex ──
	setStr(&cfg.Cex.BaseURL, "PERPARB_CEX_BASE_URL")
	setStr(&cfg.Cex.ApiKey, "PERPARB_CEX_API_KEY")
	setStr(&cfg.Cex.ApiSecret, "PERPARB_CEX_API_SECRET")
	setStr(&cfg.Cex.Subaccount, "PERPARB_CEX_SUBACCOUNT")
	setFloat64(&cfg.Cex.NotionalBuffer, "PERPARB_CEX_NOTIONAL_BUFFER")
	setInt(&cfg.Cex.BookDepth, "PERPARB_CEX_BOOK_DEPTH")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PERPARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PERPARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PERPARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PERPARB_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "PERPARB_REDIS_LOCK_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PERPARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PERPARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PERPARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PERPARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PERPARB_MODE")
	setStr(&cfg.LogLevel, "PERPARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
