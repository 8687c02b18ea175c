package risk

import (
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Gate evaluates the daily-loss and drawdown breakers once per tick.
type Gate struct {
	limits Limits
	loc    *time.Location
	log    *logger.Logger
}

// NewGate creates a gate. loc is the venue clock used for day boundaries;
// nil means UTC.
func NewGate(limits Limits, loc *time.Location, log *logger.Logger) *Gate {
	if loc == nil {
		loc = time.UTC
	}
	if limits.DrawdownPolicy == "" {
		limits.DrawdownPolicy = DrawdownPolicyManual
	}
	return &Gate{limits: limits, loc: loc, log: log}
}

// Evaluate applies the breakers to the current account snapshot and returns
// the next state together with the verdict for this tick. It never fails;
// open positions keep being managed whatever the verdict says.
func (g *Gate) Evaluate(state RiskState, acct types.AccountSnapshot, now time.Time) (RiskState, Verdict) {
	var v Verdict
	wasHalted := state.Halted()

	day := g.dayOf(now)
	if !day.Equal(state.LastDayBoundary) {
		first := state.LastDayBoundary.IsZero()
		v.DayRolled = !first
		state.LastDayBoundary = day
		state.DailyStartBalance = acct.Balance
		state.DailyLossHalt = false
		if first || g.limits.DrawdownPolicy == DrawdownPolicyDaily {
			state.TradingEnabled = true
			state.PeakEquity = acct.Equity
		}
		if v.DayRolled {
			g.log.Info("New trading day %s: start balance %.2f", day.Format("2006-01-02"), acct.Balance)
		}
	}

	if acct.Equity > state.PeakEquity {
		state.PeakEquity = acct.Equity
	}

	if state.DailyStartBalance > 0 {
		v.DailyLossPercent = (state.DailyStartBalance - acct.Balance) / state.DailyStartBalance * 100
	}
	if !state.DailyLossHalt && v.DailyLossPercent >= g.limits.MaxDailyLossPercent {
		state.DailyLossHalt = true
		v.DailyHaltTripped = true
		g.log.Warning("Daily loss halt: %.2f%% >= %.2f%% (start %.2f, balance %.2f)",
			v.DailyLossPercent, g.limits.MaxDailyLossPercent, state.DailyStartBalance, acct.Balance)
	}

	if state.PeakEquity > 0 {
		v.DrawdownPercent = (state.PeakEquity - acct.Equity) / state.PeakEquity * 100
	}
	if state.TradingEnabled && v.DrawdownPercent >= g.limits.MaxDrawdownPercent {
		state.TradingEnabled = false
		v.DrawdownHaltTripped = true
		g.log.Warning("Drawdown halt: %.2f%% >= %.2f%% (peak %.2f, equity %.2f, policy %s)",
			v.DrawdownPercent, g.limits.MaxDrawdownPercent, state.PeakEquity, acct.Equity, g.limits.DrawdownPolicy)
	}

	v.DailyLossHalt = state.DailyLossHalt
	v.DrawdownHalt = !state.TradingEnabled
	v.Admit = !state.Halted()
	if wasHalted && v.Admit {
		v.Resumed = true
		g.log.Info("Trading resumed after day boundary")
	}
	return state, v
}

// Resume clears a drawdown halt and re-bases the peak to the current equity.
// A daily-loss halt is left alone: only a day boundary clears it.
func (g *Gate) Resume(state RiskState, equity float64) RiskState {
	if !state.TradingEnabled {
		g.log.Info("Drawdown halt cleared by operator, peak re-based %.2f -> %.2f", state.PeakEquity, equity)
	}
	state.TradingEnabled = true
	state.PeakEquity = equity
	return state
}

// Limits returns the configured limits.
func (g *Gate) Limits() Limits {
	return g.limits
}

func (g *Gate) dayOf(t time.Time) time.Time {
	y, m, d := t.In(g.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, g.loc)
}
