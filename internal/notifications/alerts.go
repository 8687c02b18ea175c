package notifications

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

type alert struct {
	level   string
	message string
}

// Alerter forwards breaker transitions, placements and failed venue calls
// to a Notifier. Engine callbacks only enqueue; Run delivers. Alerts beyond
// the queue are dropped and logged.
type Alerter struct {
	notifier Notifier
	symbol   string
	queue    chan alert
	limiter  *rate.Limiter
	log      *logger.Logger
}

// NewAlerter creates an alerter with a queue of size queue
func NewAlerter(n Notifier, symbol string, queue int, log *logger.Logger) *Alerter {
	if queue < 1 {
		queue = 32
	}
	// Telegram allows about one message per second per chat
	limiter := rate.NewLimiter(rate.Every(time.Second), 3)
	return &Alerter{
		notifier: n,
		symbol:   symbol,
		queue:    make(chan alert, queue),
		limiter:  limiter,
		log:      log.With("alerts"),
	}
}

// Run delivers queued alerts until ctx is cancelled
func (a *Alerter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case al := <-a.queue:
			if err := a.limiter.Wait(ctx); err != nil {
				return
			}
			if err := a.notifier.SendAlert(ctx, al.level, al.message); err != nil {
				a.log.LogWarning("alert", "delivery failed: %v", err)
			}
		}
	}
}

func (a *Alerter) enqueue(level, format string, args ...interface{}) {
	msg := fmt.Sprintf("`%s` ", a.symbol) + fmt.Sprintf(format, args...)
	select {
	case a.queue <- alert{level: level, message: msg}:
	default:
		a.log.Warning("Alert queue full, dropped: %s", msg)
	}
}

func (a *Alerter) RiskEvaluated(now time.Time, state risk.RiskState, v risk.Verdict) {
	if v.DailyHaltTripped {
		a.enqueue(LevelError, "Daily loss halt: %.2f%% lost since start of day (start balance %.2f). Trading resumes at the next day boundary.",
			v.DailyLossPercent, state.DailyStartBalance)
	}
	if v.DrawdownHaltTripped {
		a.enqueue(LevelError, "Drawdown halt: %.2f%% below peak equity %.2f. Operator resume required unless the daily policy is set.",
			v.DrawdownPercent, state.PeakEquity)
	}
	if v.Resumed {
		a.enqueue(LevelSuccess, "Trading resumed at %s", now.Format(time.RFC3339))
	}
}

func (a *Alerter) SignalsFetched(time.Time, signal.FetchResult, int) {}

func (a *Alerter) BarEvaluated(time.Time, types.Timeframe, confirmation.Result, error) {}

func (a *Alerter) OrderPlaced(now time.Time, d confirmation.Decision, p orders.Placement, err error) {
	if err != nil {
		a.enqueue(LevelWarning, "%s %s entry not placed: %v", d.Timeframe, d.Direction, err)
		return
	}
	r := p.Request
	a.enqueue(LevelInfo, "%s %s stop entry %.8g, SL %.8g, TP %.8g, volume %.8g, risk %.2f",
		d.Timeframe, d.Direction, r.Price, r.StopLoss, r.TakeProfit, r.Volume, p.RiskValue)
}

func (a *Alerter) PositionManaged(now time.Time, act lifecycle.Action) {
	if act.Err != nil {
		a.enqueue(LevelWarning, "%s on position %s failed: %v", act.Kind, act.PositionID, act.Err)
		return
	}
	if act.Kind == lifecycle.ActionPartialClose {
		a.enqueue(LevelInfo, "Partial close of %.8g on position %s at %.8g", act.Volume, act.PositionID, act.Price)
	}
}

func (a *Alerter) OrdersExpired(time.Time, []string) {}
