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
// built-in defaults, applies KALSHIBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known KALSHIBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Sim ──
	setFloat64(&cfg.Sim.InitialCapital, "KALSHIBOT_SIM_INITIAL_CAPITAL")
	setDuration(&cfg.Sim.Interval, "KALSHIBOT_SIM_INTERVAL")
	setInt(&cfg.Sim.MaxCycles, "KALSHIBOT_SIM_MAX_CYCLES")
	setDuration(&cfg.Sim.MaxDuration, "KALSHIBOT_SIM_MAX_DURATION")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxPositionSize, "KALSHIBOT_RISK_MAX_POSITION_SIZE")
	setFloat64(&cfg.Risk.MaxPortfolioRisk, "KALSHIBOT_RISK_MAX_PORTFOLIO_RISK")
	setStr(&cfg.Risk.MinConfidence, "KALSHIBOT_RISK_MIN_CONFIDENCE")
	setStr(&cfg.Risk.MinStrength, "KALSHIBOT_RISK_MIN_STRENGTH")
	setStr(&cfg.Risk.SizingMethod, "KALSHIBOT_RISK_SIZING_METHOD")
	setFloat64(&cfg.Risk.BasePositionSize, "KALSHIBOT_RISK_BASE_POSITION_SIZE")
	setInt(&cfg.Risk.MaxPositions, "KALSHIBOT_RISK_MAX_POSITIONS")

	// ── Quoter ──
	setStringSlice(&cfg.Quoter.Markets, "KALSHIBOT_QUOTER_MARKETS")
	setFloat64(&cfg.Quoter.BaseSpread, "KALSHIBOT_QUOTER_BASE_SPREAD")
	setInt(&cfg.Quoter.QuoteSize, "KALSHIBOT_QUOTER_QUOTE_SIZE")
	setDuration(&cfg.Quoter.RequoteInterval, "KALSHIBOT_QUOTER_REQUOTE_INTERVAL")
	setInt(&cfg.Quoter.MaxPosition, "KALSHIBOT_QUOTER_MAX_POSITION")
	setInt(&cfg.Quoter.RateLimit, "KALSHIBOT_QUOTER_RATE_LIMIT")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "KALSHIBOT_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "KALSHIBOT_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "KALSHIBOT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "KALSHIBOT_KALSHI_WS_URL")
	setStr(&cfg.Kalshi.SeriesTicker, "KALSHIBOT_KALSHI_SERIES_TICKER")
	setInt64(&cfg.Kalshi.MinVolume, "KALSHIBOT_KALSHI_MIN_VOLUME")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "KALSHIBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "KALSHIBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "KALSHIBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "KALSHIBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "KALSHIBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "KALSHIBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "KALSHIBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "KALSHIBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "KALSHIBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "KALSHIBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "KALSHIBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "KALSHIBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KALSHIBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KALSHIBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KALSHIBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KALSHIBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KALSHIBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.BookTTL, "KALSHIBOT_REDIS_BOOK_TTL")
	setDuration(&cfg.Redis.LockTTL, "KALSHIBOT_REDIS_LOCK_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KALSHIBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KALSHIBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KALSHIBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KALSHIBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "KALSHIBOT_MODE")
	setStr(&cfg.LogLevel, "KALSHIBOT_LOG_LEVEL")
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
