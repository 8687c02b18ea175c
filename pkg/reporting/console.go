package reporting

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/confluence-bot/internal/replay"
)

// consoleTradeRows caps the trade table; the workbook has all of them
const consoleTradeRows = 20

// DefaultConsoleReporter implements console output functionality
type DefaultConsoleReporter struct{}

// NewDefaultConsoleReporter creates a new console reporter
func NewDefaultConsoleReporter() *DefaultConsoleReporter {
	return &DefaultConsoleReporter{}
}

// OutputResults prints the summary, decision reasons and latest trades
func (r *DefaultConsoleReporter) OutputResults(w io.Writer, res *replay.Result) {
	r.printSummary(w, res)
	r.printReasons(w, res)
	r.printTrades(w, res)
}

func (r *DefaultConsoleReporter) printSummary(w io.Writer, res *replay.Result) {
	stats := res.Stats()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("REPLAY RESULTS")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 Symbol", fmt.Sprintf("%s (%s)", res.Symbol, res.StrategyID)},
		{"⏰ Timeframes", fmt.Sprintf("%s / %s", res.Primary, res.Higher)},
		{"📅 Period", fmt.Sprintf("%s → %s", res.Start.Format("2006-01-02 15:04"), res.End.Format("2006-01-02 15:04"))},
		{"🕯️ Bars", res.Bars},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"💰 Initial Balance", fmt.Sprintf("$%.2f", res.InitialBalance)},
		{"💰 Final Balance", fmt.Sprintf("$%.2f", res.FinalBalance)},
		{"📈 Return", fmt.Sprintf("%.2f%%", res.ReturnPercent())},
		{"📉 Max Drawdown", fmt.Sprintf("%.2f%%", res.MaxDrawdownPercent)},
		{"🚨 Halted At End", haltedString(res.Halted)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"📝 Orders", fmt.Sprintf("%d placed, %d rejected, %d expired", placed(res), len(res.Orders)-placed(res), res.Expired)},
		{"🎯 Fills", len(res.Fills)},
		{"🔄 Exits", stats.Exits},
		{"✅ Winning", fmt.Sprintf("%d (%.1f%%)", stats.Wins, stats.WinRate)},
		{"❌ Losing", stats.Losses},
		{"💹 Profit Factor", fmt.Sprintf("%.2f", stats.ProfitFactor)},
		{"🛠️ Lifecycle Actions", len(res.Actions)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, WidthMax: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 45, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(w)
}

func (r *DefaultConsoleReporter) printReasons(w io.Writer, res *replay.Result) {
	counts := res.ReasonCounts()
	if len(counts) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("BAR DECISIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Reason", "Bars", "Share"})
	for _, rc := range counts {
		t.AppendRow(table.Row{rc.Reason, rc.Count, fmt.Sprintf("%.1f%%", float64(rc.Count)/float64(len(res.Decisions))*100)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(w)
}

func (r *DefaultConsoleReporter) printTrades(w io.Writer, res *replay.Result) {
	if len(res.Trades) == 0 {
		fmt.Fprintln(w, "ℹ️ No trades were closed during the replay")
		return
	}

	trades := res.Trades
	title := "TRADES"
	if len(trades) > consoleTradeRows {
		trades = trades[len(trades)-consoleTradeRows:]
		title = fmt.Sprintf("LAST %d OF %d TRADES", consoleTradeRows, len(res.Trades))
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Closed", "Side", "Volume", "Entry", "Exit", "PnL", "Reason"})
	for _, tr := range trades {
		t.AppendRow(table.Row{
			tr.CloseTime.Format("2006-01-02 15:04"),
			tr.Side.String(),
			fmt.Sprintf("%.6g", tr.Volume),
			fmt.Sprintf("%.8g", tr.EntryPrice),
			fmt.Sprintf("%.8g", tr.ExitPrice),
			fmt.Sprintf("%+.2f", tr.PnL),
			tr.Reason,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Net", fmt.Sprintf("%+.2f", res.NetPnL()), ""})
	t.Render()
	fmt.Fprintln(w)
}

func placed(res *replay.Result) int {
	n := 0
	for _, o := range res.Orders {
		if o.Error == "" {
			n++
		}
	}
	return n
}

func haltedString(halted bool) string {
	if halted {
		return "⛔ yes"
	}
	return "no"
}
