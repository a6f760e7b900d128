// Package config loads and validates the operator-facing Config, grounded
// on 0xtitan6-polymarket-mm/internal/config/config.go's viper-based
// Load/Validate shape. A .env file is pre-loaded via joho/godotenv (as
// ChoSanghyuk-blackholedex and uhyunpark-hyperlicked both do) before viper
// reads the process environment, so secrets can live outside the YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dundas/truex-mm/internal/model"
)

// Config is the top-level configuration, loaded from YAML with TRUEX_*
// environment overrides for sensitive fields.
type Config struct {
	SessionID string `mapstructure:"session_id"`
	DryRun    bool   `mapstructure:"dry_run"`

	Fix       FixConfig       `mapstructure:"fix"`
	Quote     QuoteConfig     `mapstructure:"quote"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SQL       SQLConfig       `mapstructure:"sql"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// FixConfig parameterizes the destination-venue FIX session.
type FixConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	SenderCompID    string        `mapstructure:"sender_comp_id"`
	TargetCompID    string        `mapstructure:"target_comp_id"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Secret          string        `mapstructure:"secret"`
	AccessKey       string        `mapstructure:"access_key"`
	ResetSeqNumFlag bool          `mapstructure:"reset_seq_num_flag"`
	HeartBtInt      time.Duration `mapstructure:"heart_bt_int"`
}

// QuoteConfig tunes the QuoteEngine ladder and rate limiter.
type QuoteConfig struct {
	Symbol                string  `mapstructure:"symbol"`
	Levels                int     `mapstructure:"levels"`
	BaseSpreadBps         float64 `mapstructure:"base_spread_bps"`
	LevelSpacingTicks     float64 `mapstructure:"level_spacing_ticks"`
	RepriceThresholdTicks float64 `mapstructure:"reprice_threshold_ticks"`
	BaseSize              string  `mapstructure:"base_size"`
	SizeDecay             float64 `mapstructure:"size_decay"`
	MinNotional           string  `mapstructure:"min_notional"`
	PriceBandPct          float64 `mapstructure:"price_band_pct"`
	ConfidenceThreshold   float64 `mapstructure:"confidence_threshold"`
	MaxOrdersPerSecond    int     `mapstructure:"max_orders_per_second"`
	DupGuardMs            int     `mapstructure:"dup_guard_ms"`
}

// RedisConfig points at the KV tier.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Venue    string `mapstructure:"venue"`
	Strategy string `mapstructure:"strategy"`
}

// SQLConfig points at the relational warehouse (gorm + MySQL).
type SQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// AuditConfig locates the append-only JSONL audit log.
type AuditConfig struct {
	Dir string `mapstructure:"dir"`
}

// FeedConfig points at the reference venue's normalized WebSocket feed.
type FeedConfig struct {
	URL    string `mapstructure:"url"`
	Symbol string `mapstructure:"symbol"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file, pre-seeding the environment from a
// .env file if present, and applies TRUEX_* overrides for secrets.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, model.Wrap(model.ConfigError, "failed to load .env", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TRUEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, model.Wrap(model.ConfigError, "read config", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, model.Wrap(model.ConfigError, "unmarshal config", err)
	}

	if v := os.Getenv("TRUEX_FIX_PASSWORD"); v != "" {
		cfg.Fix.Password = v
	}
	if v := os.Getenv("TRUEX_FIX_SECRET"); v != "" {
		cfg.Fix.Secret = v
	}
	if v := os.Getenv("TRUEX_SQL_DSN"); v != "" {
		cfg.SQL.DSN = v
	}
	if v := os.Getenv("TRUEX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if os.Getenv("TRUEX_DRY_RUN") == "true" || os.Getenv("TRUEX_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks required fields and value ranges, returning a
// ConfigError (fatal at startup) on the first problem found.
func (c *Config) Validate() error {
	if c.SessionID == "" {
		return model.New(model.ConfigError, "session_id is required")
	}
	if c.Fix.SenderCompID == "" || c.Fix.TargetCompID == "" {
		return model.New(model.ConfigError, "fix.sender_comp_id and fix.target_comp_id are required")
	}
	if c.Fix.Host == "" || c.Fix.Port == 0 {
		return model.New(model.ConfigError, "fix.host and fix.port are required")
	}
	if c.Quote.Symbol == "" {
		return model.New(model.ConfigError, "quote.symbol is required")
	}
	if c.Quote.Levels <= 0 {
		return model.New(model.ConfigError, "quote.levels must be > 0")
	}
	if c.Quote.MaxOrdersPerSecond <= 0 {
		return model.New(model.ConfigError, "quote.max_orders_per_second must be > 0")
	}
	if c.Audit.Dir == "" {
		return model.New(model.ConfigError, "audit.dir is required")
	}
	if c.Feed.URL == "" {
		return model.New(model.ConfigError, fmt.Sprintf("feed.url is required for symbol %s", c.Quote.Symbol))
	}
	return nil
}
