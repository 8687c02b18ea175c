package engine

import (
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Observer receives what the engine did. Calls happen on the engine loop
// and must return quickly; anything slower than a local write belongs on a
// queue.
type Observer interface {
	RiskEvaluated(now time.Time, state risk.RiskState, v risk.Verdict)
	SignalsFetched(now time.Time, res signal.FetchResult, accepted int)
	BarEvaluated(now time.Time, tf types.Timeframe, res confirmation.Result, err error)
	OrderPlaced(now time.Time, d confirmation.Decision, p orders.Placement, err error)
	PositionManaged(now time.Time, a lifecycle.Action)
	OrdersExpired(now time.Time, ids []string)
}

// NopObserver ignores everything; embed it to implement only some methods
type NopObserver struct{}

func (NopObserver) RiskEvaluated(time.Time, risk.RiskState, risk.Verdict) {}
func (NopObserver) SignalsFetched(time.Time, signal.FetchResult, int) {}
func (NopObserver) BarEvaluated(time.Time, types.Timeframe, confirmation.Result, error) {}
func (NopObserver) OrderPlaced(time.Time, confirmation.Decision, orders.Placement, error) {}
func (NopObserver) PositionManaged(time.Time, lifecycle.Action) {}
func (NopObserver) OrdersExpired(time.Time, []string) {}

// Observers fans out to several observers in order
type Observers []Observer

func (o Observers) RiskEvaluated(now time.Time, state risk.RiskState, v risk.Verdict) {
	for _, obs := range o {
		obs.RiskEvaluated(now, state, v)
	}
}

func (o Observers) SignalsFetched(now time.Time, res signal.FetchResult, accepted int) {
	for _, obs := range o {
		obs.SignalsFetched(now, res, accepted)
	}
}

func (o Observers) BarEvaluated(now time.Time, tf types.Timeframe, res confirmation.Result, err error) {
	for _, obs := range o {
		obs.BarEvaluated(now, tf, res, err)
	}
}

func (o Observers) OrderPlaced(now time.Time, d confirmation.Decision, p orders.Placement, err error) {
	for _, obs := range o {
		obs.OrderPlaced(now, d, p, err)
	}
}

func (o Observers) PositionManaged(now time.Time, a lifecycle.Action) {
	for _, obs := range o {
		obs.PositionManaged(now, a)
	}
}

func (o Observers) OrdersExpired(now time.Time, ids []string) {
	for _, obs := range o {
		obs.OrdersExpired(now, ids)
	}
}
