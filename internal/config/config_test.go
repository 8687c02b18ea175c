package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/indicators"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
symbol: ETHUSDT
strategy_id: eth5
primary_timeframe: 5m
higher_timeframe: 1h
timezone: Europe/London
confirmation:
  confidence: 4
  ma_kind: sma
risk:
  max_daily_loss_percent: 2.5
  drawdown_policy: daily
safety:
  breaker:
    timeout: 45s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, types.Timeframe("5m"), cfg.Primary)
	assert.Equal(t, types.Timeframe("5m"), cfg.Lifecycle.Timeframe)
	assert.Equal(t, 4, cfg.Confirmation.Confidence)
	assert.Equal(t, indicators.MAKindSMA, cfg.Confirmation.MAKind)
	assert.Equal(t, 45*time.Second, cfg.Safety.Breaker.Timeout)
	assert.Equal(t, "Europe/London", cfg.Location().String())

	limits := cfg.RiskLimits()
	assert.Equal(t, 2.5, limits.MaxDailyLossPercent)
	assert.Equal(t, 10.0, limits.MaxDrawdownPercent)
	assert.Equal(t, risk.DrawdownPolicyDaily, limits.DrawdownPolicy)

	// untouched sections keep their defaults
	assert.Equal(t, 14, cfg.Confirmation.ATRPeriod)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, 3, cfg.Signals.Attempts)
	assert.Equal(t, "eth5", cfg.Identity().StrategyID)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CONFLUENCE_ORDERS_RISK_PERCENT", "0.5")
	t.Setenv("CONFLUENCE_SESSION_ENABLED", "true")
	t.Setenv("BYBIT_API_KEY", "key")
	t.Setenv("BYBIT_API_SECRET", "secret")

	cfg, err := Load(writeConfig(t, "symbol: BTCUSDT\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Orders.RiskPercent)
	assert.True(t, cfg.Session.Enabled)
	assert.NoError(t, cfg.RequireCredentials())
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "btc_15m.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "conf15", cfg.StrategyID)
	assert.True(t, cfg.Session.AvoidFriday)
	assert.Equal(t, uint32(5), cfg.Safety.Breaker.MaxFailures)
	assert.Empty(t, cfg.Warnings())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryConfiguration))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"higher not longer", "primary_timeframe: 1h\nhigher_timeframe: 15m\n"},
		{"unknown timeframe", "primary_timeframe: 7m\n"},
		{"dash in strategy id", "strategy_id: a-b\n"},
		{"bad timezone", "timezone: Mars/Olympus\n"},
		{"confidence above buffer", "confirmation:\n  confidence: 11\n"},
		{"confidence equal to buffer", "confirmation:\n  confidence: 10\n"},
		{"bad drawdown policy", "risk:\n  drawdown_policy: weekly\n"},
		{"http without url", "signals:\n  source: http\n"},
		{"unknown source", "signals:\n  source: kafka\n"},
		{"fast not below slow", "confirmation:\n  fast_ma_period: 50\n  slow_ma_period: 20\n"},
		{"partial close of everything", "lifecycle:\n  partial_close_percent: 100\n"},
		{"notifications without chat", "notifications:\n  enabled: true\n  telegram_token: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryConfiguration), "got %v", err)
		})
	}
}

func TestValidate_ConfidenceNeedsSpareRecord(t *testing.T) {
	_, err := Load(writeConfig(t, "signals:\n  max_data_size: 3\nconfirmation:\n  confidence: 3\n"))
	require.Error(t, err)
	assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryConfiguration))
	assert.Contains(t, err.Error(), "[1, 2]")

	cfg, err := Load(writeConfig(t, "signals:\n  max_data_size: 3\nconfirmation:\n  confidence: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Confirmation.Confidence)
}

func TestWarnings(t *testing.T) {
	cfg, err := Load(writeConfig(t, "orders:\n  risk_percent: 8\nexchange:\n  demo: false\n"))
	require.NoError(t, err)
	assert.Len(t, cfg.Warnings(), 2)
}

func TestRequireCredentials(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")
	cfg, err := Load("")
	require.NoError(t, err)
	err = cfg.RequireCredentials()
	require.Error(t, err)
	assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryCredentials))
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CONFLUENCE_TEST_ONLY=42\n"), 0o644))
	t.Setenv("CONFLUENCE_TEST_ONLY", "")
	os.Unsetenv("CONFLUENCE_TEST_ONLY")
	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "42", os.Getenv("CONFLUENCE_TEST_ONLY"))
}
