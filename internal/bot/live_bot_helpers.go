package bot

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// environment is implemented by venues that know where they trade
type environment interface {
	GetEnvironment() string
	IsDemo() bool
	IsTestnet() bool
}

// printStartupInfo prints initial startup information
func (b *LiveBot) printStartupInfo() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("BOT INITIALIZATION")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 Symbol", b.cfg.Symbol},
		{"🏷️ Strategy", b.cfg.StrategyID},
		{"⏰ Timeframes", fmt.Sprintf("%s / %s", b.cfg.Primary, b.cfg.Higher)},
		{"🏪 Exchange", b.client.GetName()},
		{"🔧 Environment", b.environmentString()},
		{"📡 Signals", b.signalString()},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, WidthMax: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// printBotConfiguration prints the risk and order settings with the account
// and instrument as the venue reports them
func (b *LiveBot) printBotConfiguration(ctx context.Context) {
	balanceInfo := "⚠️ Could not fetch"
	if acct, err := b.venue.Snapshot(ctx); err == nil {
		balanceInfo = fmt.Sprintf("%.2f %s", acct.Balance, acct.Currency)
	} else {
		b.log.LogWarning("Could not read account", "%v", err)
	}
	minQtyInfo, stopInfo := "⚠️ Could not fetch", "⚠️ Could not fetch"
	if inst, err := b.venue.Instrument(ctx); err == nil {
		minQtyInfo = fmt.Sprintf("%g (step %g)", inst.MinVolume, inst.VolumeStep)
		stopInfo = fmt.Sprintf("%g", inst.MinStopDistance)
	} else {
		b.log.LogWarning("Could not read instrument", "%v", err)
	}

	c := b.cfg
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("BOT CONFIGURATION")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"💰 Balance", balanceInfo},
		{"🎯 Risk Per Trade", fmt.Sprintf("%.2f%%", c.Orders.RiskPercent)},
		{"🛑 Daily Loss Halt", fmt.Sprintf("%.2f%%", c.Risk.MaxDailyLossPercent)},
		{"📉 Drawdown Halt", fmt.Sprintf("%.2f%% (%s)", c.Risk.MaxDrawdownPercent, c.Risk.DrawdownPolicy)},
		{"↔️ Max Spread", fmt.Sprintf("%.0f points", c.Risk.MaxSpreadPoints)},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"🔢 Confidence", c.Confirmation.Confidence},
		{"📏 ATR", fmt.Sprintf("%d × SL %.2f / TP %.2f", c.Confirmation.ATRPeriod, c.Confirmation.SLMultiplier, c.Confirmation.TPMultiplier)},
		{"🧭 MTF Filter", mtfString(c.Confirmation.MTFFilter, string(c.Confirmation.MAKind), c.Confirmation.FastMAPeriod, c.Confirmation.SlowMAPeriod)},
		{"🕐 Session", sessionString(c.Session.Enabled, c.Session.StartHour, c.Session.EndHour, c.Timezone)},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"📏 Min Order Qty", minQtyInfo},
		{"🧱 Min Stop Dist", stopInfo},
		{"🚨 Trading Mode", b.tradingModeString()},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

func (b *LiveBot) environmentString() string {
	env, ok := b.client.(environment)
	if !ok {
		return b.client.GetName()
	}
	if env.IsDemo() || env.IsTestnet() {
		return fmt.Sprintf("%s (paper trading)", env.GetEnvironment())
	}
	return fmt.Sprintf("%s (live trading)", env.GetEnvironment())
}

func (b *LiveBot) tradingModeString() string {
	if env, ok := b.client.(environment); ok && !env.IsDemo() && !env.IsTestnet() {
		return "💰 LIVE TRADING MODE (Real Money!)"
	}
	return "🧪 DEMO MODE (Paper Trading)"
}

func (b *LiveBot) signalString() string {
	if b.cfg.Signals.Source == "http" {
		return b.cfg.Signals.URL
	}
	return "csv " + b.cfg.Signals.CSVPath
}

func mtfString(enabled bool, kind string, fast, slow int) string {
	if !enabled {
		return "off"
	}
	return fmt.Sprintf("%s %d/%d", kind, fast, slow)
}

func sessionString(enabled bool, start, end int, tz string) string {
	if !enabled {
		return "all day"
	}
	return fmt.Sprintf("%02d:00-%02d:00 %s", start, end, tz)
}
