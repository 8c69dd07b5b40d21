// Package config defines the top-level configuration for the kalshi bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KALSHIBOT_* environment variables.
type Config struct {
	Sim      SimConfig      `toml:"sim"`
	Risk     RiskConfig     `toml:"risk"`
	Quoter   QuoterConfig   `toml:"quoter"`
	Kalshi   KalshiConfig   `toml:"kalshi"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// SimConfig bounds the paper-trading loop and seeds the ledger.
type SimConfig struct {
	InitialCapital float64         `toml:"initial_capital"` // cents
	Interval       duration        `toml:"interval"`
	MaxCycles      int             `toml:"max_cycles"`   // 0 = unbounded
	MaxDuration    duration        `toml:"max_duration"` // 0 = unbounded
	SnapshotEvery  int             `toml:"snapshot_every"`
	Analyzers      AnalyzersConfig `toml:"analyzers"`
}

// AnalyzersConfig toggles the opportunity analyzers.
type AnalyzersConfig struct {
	Spread     bool `toml:"spread"`
	Mispricing bool `toml:"mispricing"`
}

// RiskConfig holds the decision-pipeline thresholds and sizing policy.
// Confidence, strength and sizing method are stored as their lowercase config
// names and parsed during wiring.
type RiskConfig struct {
	MaxPositionSize   float64           `toml:"max_position_size"` // cents
	MaxPortfolioRisk  float64           `toml:"max_portfolio_risk"`
	MinConfidence     string            `toml:"min_confidence"`
	MinStrength       string            `toml:"min_strength"`
	MinEdgeCents      float64           `toml:"min_edge_cents"`
	MinEdgePercent    float64           `toml:"min_edge_percent"`
	StopLossPercent   float64           `toml:"stop_loss_percent"`
	TakeProfitPercent float64           `toml:"take_profit_percent"`
	MaxPositions      int               `toml:"max_positions"`
	SizingMethod      string            `toml:"sizing_method"`
	BasePositionSize  float64           `toml:"base_position_size"` // cents
	Multipliers       MultipliersConfig `toml:"multipliers"`
}

// MultipliersConfig scales the base position size per confidence level for the
// confidence_scaled sizing method.
type MultipliersConfig struct {
	Low    float64 `toml:"low"`
	Medium float64 `toml:"medium"`
	High   float64 `toml:"high"`
}

// QuoterConfig tunes the inventory market maker.
type QuoterConfig struct {
	Markets          []string `toml:"markets"`
	BaseSpread       float64  `toml:"base_spread"` // cents
	QuoteSize        int      `toml:"quote_size"`
	RequoteInterval  duration `toml:"requote_interval"`
	SkewThreshold    float64  `toml:"skew_threshold"`
	SpreadWidening   float64  `toml:"spread_widening"`
	MaxPosition      int      `toml:"max_position"`
	MaxInventorySkew float64  `toml:"max_inventory_skew"`
	StaleAfter       duration `toml:"stale_after"`
	RateLimit        int      `toml:"rate_limit"` // orders per second, 0 disables pacing
}

// KalshiConfig holds exchange API credentials and feed parameters.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
	WsURL             string `toml:"ws_url"`
	SeriesTicker      string `toml:"series_ticker"`
	PageLimit         int    `toml:"page_limit"`
	MaxMarkets        int    `toml:"max_markets"`
	MinVolume         int64  `toml:"min_volume"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	BookTTL    duration `toml:"book_ttl"` // 0 disables expiry
	LockTTL    duration `toml:"lock_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
		Sim: SimConfig{
			InitialCapital: 100_000, // 1000 dollars in cents
			Interval:       duration{30 * time.Second},
			MaxCycles:      0,
			MaxDuration:    duration{0},
			SnapshotEvery:  1,
			Analyzers: AnalyzersConfig{
				Spread:     true,
				Mispricing: true,
			},
		},
		Risk: RiskConfig{
			MaxPositionSize:   5_000,
			MaxPortfolioRisk:  0.05,
			MinConfidence:     "medium",
			MinStrength:       "soft",
			MinEdgeCents:      2,
			MinEdgePercent:    5,
			StopLossPercent:   20,
			TakeProfitPercent: 30,
			MaxPositions:      10,
			SizingMethod:      "confidence_scaled",
			BasePositionSize:  2_000,
			Multipliers: MultipliersConfig{
				Low:    0.5,
				Medium: 1.0,
				High:   1.5,
			},
		},
		Quoter: QuoterConfig{
			BaseSpread:       4,
			QuoteSize:        10,
			RequoteInterval:  duration{15 * time.Second},
			SkewThreshold:    0.3,
			SpreadWidening:   1.5,
			MaxPosition:      200,
			MaxInventorySkew: 0.6,
			StaleAfter:       duration{30 * time.Second},
			RateLimit:        5,
		},
		Kalshi: KalshiConfig{
			BaseURL:    "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:      "wss://api.elections.kalshi.com/trade-api/ws/v2",
			PageLimit:  100,
			MaxMarkets: 200,
			MinVolume:  0,
		},
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "kalshibot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			BookTTL:    duration{5 * time.Minute},
			LockTTL:    duration{time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "run_summary", "quoter_halted", "error"},
		},
		Mode:     "simulate",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"simulate": true,
	"quote":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validConfidences enumerates the accepted values for risk.min_confidence.
var validConfidences = map[string]bool{
	"low":    true,
	"medium": true,
	"high":   true,
}

// validStrengths enumerates the accepted values for risk.min_strength.
var validStrengths = map[string]bool{
	"soft": true,
	"hard": true,
}

// validSizingMethods enumerates the accepted values for risk.sizing_method.
var validSizingMethods = map[string]bool{
	"fixed":             true,
	"confidence_scaled": true,
	"kelly":             true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: simulate, quote)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Sim
	if c.Sim.InitialCapital <= 0 {
		errs = append(errs, "sim: initial_capital must be > 0")
	}
	if c.Sim.Interval.Duration <= 0 {
		errs = append(errs, "sim: interval must be > 0")
	}
	if c.Sim.MaxCycles < 0 || c.Sim.MaxDuration.Duration < 0 || c.Sim.SnapshotEvery < 0 {
		errs = append(errs, "sim: max_cycles, max_duration and snapshot_every must not be negative")
	}

	// Risk
	if !validConfidences[strings.ToLower(c.Risk.MinConfidence)] {
		errs = append(errs, fmt.Sprintf("risk: unknown min_confidence %q (valid: low, medium, high)", c.Risk.MinConfidence))
	}
	if !validStrengths[strings.ToLower(c.Risk.MinStrength)] {
		errs = append(errs, fmt.Sprintf("risk: unknown min_strength %q (valid: soft, hard)", c.Risk.MinStrength))
	}
	if !validSizingMethods[strings.ToLower(c.Risk.SizingMethod)] {
		errs = append(errs, fmt.Sprintf("risk: unknown sizing_method %q (valid: fixed, confidence_scaled, kelly)", c.Risk.SizingMethod))
	}
	if c.Risk.MaxPositionSize <= 0 {
		errs = append(errs, "risk: max_position_size must be > 0")
	}
	if c.Risk.BasePositionSize <= 0 {
		errs = append(errs, "risk: base_position_size must be > 0")
	}
	if c.Risk.MaxPortfolioRisk <= 0 || c.Risk.MaxPortfolioRisk > 1 {
		errs = append(errs, "risk: max_portfolio_risk must be in (0, 1]")
	}
	if c.Risk.StopLossPercent <= 0 {
		errs = append(errs, "risk: stop_loss_percent must be > 0")
	}
	if c.Risk.TakeProfitPercent <= 0 {
		errs = append(errs, "risk: take_profit_percent must be > 0")
	}
	if c.Risk.MaxPositions < 1 {
		errs = append(errs, "risk: max_positions must be >= 1")
	}

	// Quoter — only enforced when quote mode is selected; simulate runs never
	// touch the quoter so its market list may stay empty.
	if strings.ToLower(c.Mode) == "quote" {
		if len(c.Quoter.Markets) == 0 {
			errs = append(errs, "quoter: at least one market is required for quote mode")
		}
		if c.Quoter.BaseSpread <= 0 {
			errs = append(errs, "quoter: base_spread must be > 0")
		}
		if c.Quoter.QuoteSize < 1 {
			errs = append(errs, "quoter: quote_size must be >= 1")
		}
		if c.Quoter.RequoteInterval.Duration <= 0 {
			errs = append(errs, "quoter: requote_interval must be > 0")
		}
		if c.Quoter.RateLimit < 0 {
			errs = append(errs, "quoter: rate_limit must not be negative")
		}
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required for quote mode")
		}
		if c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: rsa_private_key_path is required for quote mode")
		}
		if c.Kalshi.WsURL == "" {
			errs = append(errs, "kalshi: ws_url must not be empty for quote mode")
		}
	}

	// Kalshi
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.PageLimit < 0 || c.Kalshi.MaxMarkets < 0 || c.Kalshi.MinVolume < 0 {
		errs = append(errs, "kalshi: page_limit, max_markets and min_volume must not be negative")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis: lock_ttl must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
