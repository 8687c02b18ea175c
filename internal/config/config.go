// Package config loads the bot configuration from a YAML or JSON file,
// CONFLUENCE_* environment overrides and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // venue time zones on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/indicators"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/internal/safety"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// EnvPrefix prefixes environment overrides, e.g. CONFLUENCE_ORDERS_RISK_PERCENT
const EnvPrefix = "CONFLUENCE"

// Config is the complete, immutable bot configuration
type Config struct {
	Symbol       string          `mapstructure:"symbol"`
	StrategyID   string          `mapstructure:"strategy_id"`
	Primary      types.Timeframe `mapstructure:"primary_timeframe"`
	Higher       types.Timeframe `mapstructure:"higher_timeframe"`
	Timezone     string          `mapstructure:"timezone"` // venue day boundary and session hours
	TickInterval time.Duration   `mapstructure:"tick_interval"`

	Signals       SignalConfig       `mapstructure:"signals"`
	Confirmation  ConfirmationConfig `mapstructure:"confirmation"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Session       risk.SessionConfig `mapstructure:"session"`
	Orders        orders.Config      `mapstructure:"orders"`
	Lifecycle     lifecycle.Config   `mapstructure:"lifecycle"`
	Exchange      ExchangeConfig     `mapstructure:"exchange"`
	Safety        SafetyConfig       `mapstructure:"safety"`
	Monitoring    MonitoringConfig   `mapstructure:"monitoring"`
	Journal       JournalConfig      `mapstructure:"journal"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`

	location *time.Location
}

// SignalConfig selects and tunes the signal source
type SignalConfig struct {
	// Source is "csv" or "http".
	Source      string        `mapstructure:"source"`
	CSVPath     string        `mapstructure:"csv_path"`
	URL         string        `mapstructure:"url"`
	Token       string        `mapstructure:"token"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	MaxDataSize int           `mapstructure:"max_data_size"`
	Attempts    int           `mapstructure:"attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// ConfirmationConfig holds the pipeline parameters
type ConfirmationConfig struct {
	Confidence        int               `mapstructure:"confidence"`
	ATRPeriod         int               `mapstructure:"atr_period"`
	SLMultiplier      float64           `mapstructure:"sl_multiplier"`
	TPMultiplier      float64           `mapstructure:"tp_multiplier"`
	MTFFilter         bool              `mapstructure:"mtf_filter"`
	MAKind            indicators.MAKind `mapstructure:"ma_kind"`
	FastMAPeriod      int               `mapstructure:"fast_ma_period"`
	SlowMAPeriod      int               `mapstructure:"slow_ma_period"`
	TrendlineLookback int               `mapstructure:"trendline_lookback"`
}

// RiskConfig holds the account breakers and the spread limit
type RiskConfig struct {
	MaxDailyLossPercent float64 `mapstructure:"max_daily_loss_percent"`
	MaxDrawdownPercent  float64 `mapstructure:"max_drawdown_percent"`
	DrawdownPolicy      string  `mapstructure:"drawdown_policy"`
	MaxSpreadPoints     float64 `mapstructure:"max_spread_points"`
}

// ExchangeConfig holds venue settings. Credentials never come from the file.
type ExchangeConfig struct {
	Name         string  `mapstructure:"name"`
	Demo         bool    `mapstructure:"demo"`
	Testnet      bool    `mapstructure:"testnet"`
	Category     string  `mapstructure:"category"`
	MinStopTicks float64 `mapstructure:"min_stop_ticks"`

	APIKey    string `mapstructure:"-"`
	APISecret string `mapstructure:"-"`
}

// SafetyConfig tunes the venue wrapper
type SafetyConfig struct {
	RateLimit safety.RateLimitConfig      `mapstructure:"rate_limit"`
	Breaker   safety.CircuitBreakerConfig `mapstructure:"breaker"`
}

// MonitoringConfig controls the metrics and health listener
type MonitoringConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// JournalConfig controls the SQLite decision journal
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NotificationConfig holds Telegram alert settings. The token may also come
// from TELEGRAM_BOT_TOKEN.
type NotificationConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	TelegramToken string `mapstructure:"telegram_token"`
	TelegramChat  string `mapstructure:"telegram_chat"`
}

// LoggingConfig controls the file logger
type LoggingConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// Identity is the tag carried by every order and position of this engine
func (c *Config) Identity() exchange.Identity {
	return exchange.Identity{Symbol: c.Symbol, StrategyID: c.StrategyID}
}

// Location returns the venue time zone
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// RiskLimits returns the gate limits. Call only on a validated config.
func (c *Config) RiskLimits() risk.Limits {
	policy, _ := risk.ParseDrawdownPolicy(c.Risk.DrawdownPolicy)
	return risk.Limits{
		MaxDailyLossPercent: c.Risk.MaxDailyLossPercent,
		MaxDrawdownPercent:  c.Risk.MaxDrawdownPercent,
		DrawdownPolicy:      policy,
	}
}

// LoadEnv loads a .env file if it exists
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration file, applies environment overrides and
// defaults, and validates the result
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, boterrors.WrapError(err, boterrors.ErrorCategoryConfiguration, "config", "read").
				WithContext("path", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, boterrors.WrapError(err, boterrors.ErrorCategoryConfiguration, "config", "decode")
	}

	cfg.Exchange.APIKey = os.Getenv("BYBIT_API_KEY")
	cfg.Exchange.APISecret = os.Getenv("BYBIT_API_SECRET")
	if cfg.Notifications.TelegramToken == "" {
		cfg.Notifications.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	cfg.Lifecycle.Timeframe = cfg.Primary

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbol", "BTCUSDT")
	v.SetDefault("strategy_id", "confluence")
	v.SetDefault("primary_timeframe", "15m")
	v.SetDefault("higher_timeframe", "1h")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("tick_interval", 5*time.Second)

	v.SetDefault("signals.source", "csv")
	v.SetDefault("signals.csv_path", "data/signals.csv")
	v.SetDefault("signals.http_timeout", 10*time.Second)
	v.SetDefault("signals.max_data_size", 10)
	v.SetDefault("signals.attempts", 3)
	v.SetDefault("signals.retry_delay", 2*time.Second)

	v.SetDefault("confirmation.confidence", 3)
	v.SetDefault("confirmation.atr_period", 14)
	v.SetDefault("confirmation.sl_multiplier", 1.5)
	v.SetDefault("confirmation.tp_multiplier", 3.0)
	v.SetDefault("confirmation.mtf_filter", true)
	v.SetDefault("confirmation.ma_kind", string(indicators.MAKindEMA))
	v.SetDefault("confirmation.fast_ma_period", 20)
	v.SetDefault("confirmation.slow_ma_period", 50)
	v.SetDefault("confirmation.trendline_lookback", 20)

	v.SetDefault("risk.max_daily_loss_percent", 3.0)
	v.SetDefault("risk.max_drawdown_percent", 10.0)
	v.SetDefault("risk.drawdown_policy", string(risk.DrawdownPolicyManual))
	v.SetDefault("risk.max_spread_points", 30.0)

	v.SetDefault("session.enabled", false)
	v.SetDefault("session.start_hour", 7)
	v.SetDefault("session.end_hour", 20)
	v.SetDefault("session.avoid_friday", false)
	v.SetDefault("session.friday_cutoff_hour", 18)

	v.SetDefault("orders.entry_offset_points", 10.0)
	v.SetDefault("orders.risk_percent", 1.0)

	v.SetDefault("lifecycle.partial_trigger_r", 1.0)
	v.SetDefault("lifecycle.partial_close_percent", 50.0)
	v.SetDefault("lifecycle.trailing_min_bars", 3)
	v.SetDefault("lifecycle.trailing_atr_multiplier", 2.0)

	v.SetDefault("exchange.name", "bybit")
	v.SetDefault("exchange.demo", true)
	v.SetDefault("exchange.category", "linear")
	v.SetDefault("exchange.min_stop_ticks", 10.0)

	rl := safety.DefaultRateLimitConfig()
	v.SetDefault("safety.rate_limit.requests_per_second", rl.RequestsPerSecond)
	v.SetDefault("safety.rate_limit.burst", rl.Burst)
	cb := safety.DefaultCircuitBreakerConfig()
	v.SetDefault("safety.breaker.max_failures", cb.MaxFailures)
	v.SetDefault("safety.breaker.interval", cb.Interval)
	v.SetDefault("safety.breaker.timeout", cb.Timeout)

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.addr", ":9102")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "data/journal.db")
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
}

// Validate checks the configuration and resolves the time zone
func (c *Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return boterrors.NewConfigurationError("config", "validate", fmt.Sprintf(format, args...))
	}

	if c.Symbol == "" {
		return fail("symbol is required")
	}
	if c.StrategyID == "" || strings.Contains(c.StrategyID, "-") {
		return fail("strategy_id must be set and contain no '-' (got %q)", c.StrategyID)
	}
	if c.Primary.Duration() <= 0 {
		return fail("unsupported primary_timeframe %q", c.Primary)
	}
	if c.Higher.Duration() <= c.Primary.Duration() {
		return fail("higher_timeframe %q must be longer than primary_timeframe %q", c.Higher, c.Primary)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fail("invalid timezone %q: %v", c.Timezone, err)
	}
	c.location = loc

	switch c.Signals.Source {
	case "csv":
		if c.Signals.CSVPath == "" {
			return fail("signals.csv_path is required for the csv source")
		}
	case "http":
		if c.Signals.URL == "" {
			return fail("signals.url is required for the http source")
		}
	default:
		return fail("unknown signals.source %q (want csv or http)", c.Signals.Source)
	}
	if c.Signals.MaxDataSize < 1 {
		return fail("signals.max_data_size must be at least 1")
	}
	if c.Signals.Attempts < 1 {
		return fail("signals.attempts must be at least 1")
	}

	cf := c.Confirmation
	// a run of confidence matches spans confidence+1 records
	if cf.Confidence < 1 || cf.Confidence >= c.Signals.MaxDataSize {
		return fail("confirmation.confidence must be in [1, %d]", c.Signals.MaxDataSize-1)
	}
	if cf.ATRPeriod < 1 {
		return fail("confirmation.atr_period must be positive")
	}
	if cf.SLMultiplier <= 0 || cf.TPMultiplier <= 0 {
		return fail("confirmation sl/tp multipliers must be positive")
	}
	if _, err := indicators.ParseMAKind(string(cf.MAKind)); err != nil {
		return fail("%v", err)
	}
	if cf.MTFFilter && (cf.FastMAPeriod < 1 || cf.SlowMAPeriod <= cf.FastMAPeriod) {
		return fail("confirmation needs 0 < fast_ma_period < slow_ma_period")
	}

	if c.Risk.MaxDailyLossPercent <= 0 || c.Risk.MaxDrawdownPercent <= 0 {
		return fail("risk limits must be positive")
	}
	if _, err := risk.ParseDrawdownPolicy(c.Risk.DrawdownPolicy); err != nil {
		return fail("%v", err)
	}
	if c.Orders.RiskPercent <= 0 {
		return fail("orders.risk_percent must be positive")
	}
	if c.Orders.EntryOffsetPoints < 0 {
		return fail("orders.entry_offset_points must not be negative")
	}

	s := c.Session
	if s.Enabled && (s.StartHour < 0 || s.StartHour > 23 || s.EndHour < 0 || s.EndHour > 24) {
		return fail("session hours out of range")
	}

	l := c.Lifecycle
	if l.PartialClosePercent < 0 || l.PartialClosePercent >= 100 {
		return fail("lifecycle.partial_close_percent must be in [0, 100)")
	}
	if l.TrailingATRMultiplier < 0 || l.TrailingMinBars < 0 {
		return fail("lifecycle trailing settings must not be negative")
	}

	if c.Exchange.Name != "bybit" {
		return fail("unsupported exchange %q", c.Exchange.Name)
	}
	if c.Notifications.Enabled && (c.Notifications.TelegramToken == "" || c.Notifications.TelegramChat == "") {
		return fail("notifications need a telegram token and chat")
	}
	return nil
}

// Warnings lists settings that are accepted but will not behave as written
func (c *Config) Warnings() []string {
	var out []string
	if c.Orders.RiskPercent > risk.HardRiskCapPercent {
		out = append(out, fmt.Sprintf("orders.risk_percent %.2f exceeds the %.0f%% hard cap; lots are sized at the cap",
			c.Orders.RiskPercent, risk.HardRiskCapPercent))
	}
	if !c.Exchange.Demo && !c.Exchange.Testnet {
		out = append(out, "exchange.demo and exchange.testnet are off: orders go to the LIVE account")
	}
	if c.Signals.MaxDataSize < c.Confirmation.Confidence*2 {
		out = append(out, "signals.max_data_size is small relative to confirmation.confidence; one opposite record resets the streak")
	}
	return out
}

// RequireCredentials checks that live trading credentials are present
func (c *Config) RequireCredentials() error {
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return boterrors.NewCredentialsError("config", "credentials",
			"BYBIT_API_KEY and BYBIT_API_SECRET must be set in the environment")
	}
	return nil
}
