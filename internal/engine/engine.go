// Package engine runs the per-tick decision flow: risk gate, position
// management, pending order expiry, bar detection and, once signals for a
// closed bar arrive, confirmation and placement.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Reasons reported for bars that never reached the pipeline
const (
	ReasonTradingHalted = "trading_halted"
	ReasonSessionClosed = "session_closed"
	ReasonSpreadTooWide = "spread_too_wide"
)

// Config holds engine parameters
type Config struct {
	Identity    exchange.Identity
	Primary     types.Timeframe
	Higher      types.Timeframe
	MaxDataSize int
	// BarLookback is the number of bars handed to the pipeline.
	BarLookback int
	ATRPeriod   int
}

// Deps are the collaborators of an engine
type Deps struct {
	Venue      exchange.Venue
	Indicators confirmation.Indicators
	Pipeline   *confirmation.Pipeline
	Gate       *risk.Gate
	Session    risk.SessionFilter
	Spread     risk.SpreadFilter
	Lifecycle  *lifecycle.Manager
	Placer     *orders.Placer
	Observer   Observer
	Log        *logger.Logger
}

// lane is the per-timeframe state
type lane struct {
	tf      types.Timeframe
	primary bool
	buffer  *signal.Buffer

	// barTime is the close time of the latest closed bar, the open time of
	// the forming one.
	barTime       time.Time
	inFlight      bool
	lastEvaluated time.Time
}

// Engine carries all mutable decision state. It is driven from one
// goroutine; see Runner.
type Engine struct {
	cfg   Config
	deps  Deps
	log   *logger.Logger
	lanes []*lane

	state   risk.RiskState
	verdict risk.Verdict
	account types.AccountSnapshot
	inst    types.InstrumentSpec
}

// New creates an engine
func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Primary.Duration() <= 0 || cfg.Higher.Duration() <= 0 {
		return nil, boterrors.NewConfigurationError("engine", "new",
			fmt.Sprintf("unsupported timeframes %q/%q", cfg.Primary, cfg.Higher))
	}
	if cfg.Higher.Duration() <= cfg.Primary.Duration() {
		return nil, boterrors.NewConfigurationError("engine", "new",
			fmt.Sprintf("higher timeframe %s must be longer than %s", cfg.Higher, cfg.Primary))
	}
	if cfg.BarLookback < 3 {
		cfg.BarLookback = confirmation.DefaultTrendlineLookback + 2
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}

	e := &Engine{
		cfg:   cfg,
		deps:  deps,
		log:   deps.Log.With("engine"),
		state: risk.NewRiskState(),
	}
	for _, tf := range []types.Timeframe{cfg.Primary, cfg.Higher} {
		buf, err := signal.NewBuffer(cfg.MaxDataSize)
		if err != nil {
			return nil, boterrors.NewConfigurationError("engine", "new", err.Error())
		}
		e.lanes = append(e.lanes, &lane{tf: tf, primary: tf == cfg.Primary, buffer: buf})
	}
	return e, nil
}

// State returns the current risk state
func (e *Engine) State() risk.RiskState {
	return e.state
}

// Verdict returns the verdict of the last tick
func (e *Engine) Verdict() risk.Verdict {
	return e.verdict
}

// Buffer returns the signal buffer of a timeframe
func (e *Engine) Buffer(tf types.Timeframe) *signal.Buffer {
	if l := e.lane(tf); l != nil {
		return l.buffer
	}
	return nil
}

func (e *Engine) lane(tf types.Timeframe) *lane {
	for _, l := range e.lanes {
		if l.tf == tf {
			return l
		}
	}
	return nil
}

// OnTick runs the per-tick flow and returns the signal fetches of newly
// closed bars. Position management runs whatever the gate says.
func (e *Engine) OnTick(ctx context.Context, now time.Time) []signal.FetchRequest {
	e.evaluateRisk(ctx, now)
	e.managePositions(ctx, now)
	e.sweepExpired(ctx, now)
	return e.detectBars(ctx, now)
}

func (e *Engine) evaluateRisk(ctx context.Context, now time.Time) {
	acct, err := e.deps.Venue.Snapshot(ctx)
	if err != nil {
		e.log.LogError("account snapshot", err)
		e.verdict = risk.Verdict{Admit: false, DailyLossHalt: e.state.DailyLossHalt, DrawdownHalt: !e.state.TradingEnabled}
		return
	}
	e.account = acct
	e.state, e.verdict = e.deps.Gate.Evaluate(e.state, acct, now)
	e.deps.Observer.RiskEvaluated(now, e.state, e.verdict)
}

func (e *Engine) managePositions(ctx context.Context, now time.Time) {
	inst, err := e.deps.Venue.Instrument(ctx)
	if err != nil {
		e.log.LogError("instrument", err)
		return
	}
	e.inst = inst

	positions, err := e.deps.Venue.OpenPositions(ctx)
	if err != nil {
		e.log.LogError("open positions", err)
		return
	}
	if len(positions) == 0 && e.deps.Lifecycle.Tracked() == 0 {
		return
	}

	q, err := e.deps.Venue.Quote(ctx)
	if err != nil {
		e.log.LogError("quote", err)
		return
	}

	atr, err := e.deps.Indicators.ATR(ctx, e.cfg.Primary, e.cfg.ATRPeriod, 1)
	if err != nil {
		e.log.Debug("ATR unavailable, trailing paused: %v", err)
		atr = 0
	}

	for _, a := range e.deps.Lifecycle.Manage(ctx, now, positions, q, inst, atr) {
		e.deps.Observer.PositionManaged(now, a)
	}
}

func (e *Engine) sweepExpired(ctx context.Context, now time.Time) {
	ids, err := e.deps.Placer.SweepExpired(ctx, now)
	if err != nil {
		e.log.LogError("expiry sweep", err)
	}
	if len(ids) > 0 {
		e.log.Info("Cancelled %d expired pending order(s)", len(ids))
		e.deps.Observer.OrdersExpired(now, ids)
	}
}

// detectBars compares the forming bar of each lane with the last one seen.
// The first observation only records the bar.
func (e *Engine) detectBars(ctx context.Context, now time.Time) []signal.FetchRequest {
	var reqs []signal.FetchRequest
	for _, l := range e.lanes {
		bars, err := e.deps.Venue.Bars(ctx, l.tf, 2)
		if err != nil || len(bars) == 0 {
			e.log.LogWarning("bars", "no %s bars: %v", l.tf, err)
			continue
		}
		forming := bars[0].Timestamp
		if !forming.After(l.barTime) {
			continue
		}
		first := l.barTime.IsZero()
		l.barTime = forming
		if first {
			e.log.Info("Watching %s bars from %s", l.tf, forming.Format(time.RFC3339))
			continue
		}
		e.log.Debug("New %s bar closed at %s", l.tf, forming.Format(time.RFC3339))
		if l.inFlight {
			// the result of the running fetch will be re-requested
			continue
		}
		reqs = append(reqs, e.request(l, now))
	}
	return reqs
}

func (e *Engine) request(l *lane, now time.Time) signal.FetchRequest {
	l.inFlight = true
	return signal.FetchRequest{
		Timeframe: l.tf,
		After:     l.buffer.LastProcessed(),
		Until:     now,
		BarTime:   l.barTime,
	}
}

// OnSignals applies a fetch result and, if it belongs to the latest closed
// bar, evaluates that bar. A result for an older bar is applied and the
// latest bar re-requested.
func (e *Engine) OnSignals(ctx context.Context, res signal.FetchResult, now time.Time) []signal.FetchRequest {
	l := e.lane(res.Request.Timeframe)
	if l == nil {
		e.log.Warning("Signals for untraded timeframe %s dropped", res.Request.Timeframe)
		return nil
	}
	l.inFlight = false

	if res.Err != nil {
		e.log.LogError(fmt.Sprintf("signals %s (%d attempts), skipping bar", l.tf, res.Attempts), res.Err)
		e.deps.Observer.SignalsFetched(now, res, 0)
		if !res.Request.BarTime.Equal(l.barTime) {
			return []signal.FetchRequest{e.request(l, now)}
		}
		return nil
	}

	accepted, collapsed := l.buffer.Apply(res.Records, res.Request.Until)
	e.deps.Observer.SignalsFetched(now, res, accepted)
	e.log.Debug("Applied %d/%d %s signal(s), buffer %d/%d", accepted, len(res.Records), l.tf, l.buffer.Len(), l.buffer.Cap())
	if collapsed > 0 {
		e.log.Debug("%d %s signal(s) shared an instant with an earlier one and were dropped", collapsed, l.tf)
	}

	if !res.Request.BarTime.Equal(l.barTime) {
		return []signal.FetchRequest{e.request(l, now)}
	}
	if !l.lastEvaluated.Before(l.barTime) {
		return nil
	}
	l.lastEvaluated = l.barTime
	e.evaluate(ctx, l, now)
	return nil
}

func (e *Engine) evaluate(ctx context.Context, l *lane, now time.Time) {
	if !e.verdict.Admit {
		e.deps.Observer.BarEvaluated(now, l.tf, confirmation.Result{Reason: ReasonTradingHalted}, nil)
		e.log.Debug("Trading halted (%s), %s bar not evaluated", e.verdict.Reason(), l.tf)
		return
	}
	if !e.deps.Session.Allows(now) {
		e.deps.Observer.BarEvaluated(now, l.tf, confirmation.Result{Reason: ReasonSessionClosed}, nil)
		return
	}

	q, err := e.deps.Venue.Quote(ctx)
	if err != nil {
		e.log.LogError("quote", err)
		e.deps.Observer.BarEvaluated(now, l.tf, confirmation.Result{}, err)
		return
	}
	if !e.deps.Spread.Allows(q, e.inst.Point) {
		e.log.Info("Spread %.0f points above %.0f, %s bar skipped",
			risk.SpreadPoints(q, e.inst.Point), e.deps.Spread.MaxSpreadPoints, l.tf)
		e.deps.Observer.BarEvaluated(now, l.tf, confirmation.Result{Reason: ReasonSpreadTooWide}, nil)
		return
	}

	bars, err := e.deps.Venue.Bars(ctx, l.tf, e.cfg.BarLookback)
	if err != nil {
		e.log.LogError("bars "+l.tf.String(), err)
		e.deps.Observer.BarEvaluated(now, l.tf, confirmation.Result{}, err)
		return
	}

	res, err := e.deps.Pipeline.Evaluate(ctx, confirmation.Input{
		Timeframe:       l.tf,
		Primary:         l.primary,
		HigherTimeframe: e.cfg.Higher,
		Records:         l.buffer.Records(),
		Bars:            bars,
		BarTime:         l.barTime,
	})
	e.deps.Observer.BarEvaluated(now, l.tf, res, err)
	if err != nil {
		e.log.LogError("confirmation "+l.tf.String(), err)
		return
	}
	if res.Decision == nil {
		e.log.Debug("%s bar %s rejected: %s (candidate %s, strength %.2f)",
			l.tf, l.barTime.Format(time.RFC3339), res.Reason, res.Candidate, res.Strength)
		return
	}

	d := *res.Decision
	e.log.Status("%s %s decision: stop %.8g target %.8g strength %.2f structural %t",
		l.tf, d.Direction, d.StopDistance, d.TakeProfitDistance, d.Strength, d.StructuralConfirmation)

	placement, err := e.deps.Placer.Place(ctx, d, q, e.inst, e.account.Equity, now)
	e.deps.Observer.OrderPlaced(now, d, placement, err)
}

// ResumeTrading clears a drawdown halt. A daily loss halt still waits for
// the day boundary.
func (e *Engine) ResumeTrading(ctx context.Context) error {
	acct, err := e.deps.Venue.Snapshot(ctx)
	if err != nil {
		return boterrors.NewExecutionError("engine", "resume", err)
	}
	e.state = e.deps.Gate.Resume(e.state, acct.Equity)
	e.log.Status("Trading resumed by operator at equity %.2f", acct.Equity)
	return nil
}
