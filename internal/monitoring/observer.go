package monitoring

import (
	"fmt"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Observer turns engine events into Prometheus metrics and health state
type Observer struct {
	symbol string
	health *HealthChecker
}

// NewObserver creates an observer for one symbol. health may be nil.
func NewObserver(symbol string, health *HealthChecker) *Observer {
	return &Observer{symbol: symbol, health: health}
}

func (o *Observer) RiskEvaluated(now time.Time, state risk.RiskState, v risk.Verdict) {
	dailyLossPercent.WithLabelValues(o.symbol).Set(v.DailyLossPercent)
	drawdownPercent.WithLabelValues(o.symbol).Set(v.DrawdownPercent)
	// equity is implied by the peak and the drawdown
	equity.WithLabelValues(o.symbol).Set(state.PeakEquity * (1 - v.DrawdownPercent/100))
	tradingHalted.WithLabelValues(o.symbol, "daily_loss").Set(boolGauge(v.DailyLossHalt))
	tradingHalted.WithLabelValues(o.symbol, "drawdown").Set(boolGauge(v.DrawdownHalt))

	for name, happened := range map[string]bool{
		"day_rolled":    v.DayRolled,
		"daily_halt":    v.DailyHaltTripped,
		"drawdown_halt": v.DrawdownHaltTripped,
		"resumed":       v.Resumed,
	} {
		if happened {
			haltTransitions.WithLabelValues(o.symbol, name).Inc()
		}
	}

	if o.health != nil {
		o.health.Tick(now, v.Reason())
	}
}

func (o *Observer) SignalsFetched(now time.Time, res signal.FetchResult, accepted int) {
	tf := res.Request.Timeframe.String()
	signalAttempts.WithLabelValues(o.symbol, tf).Observe(float64(res.Attempts))
	if res.Err != nil {
		signalFetches.WithLabelValues(o.symbol, tf, "failed").Inc()
		o.recordError(res.Err)
		return
	}
	signalFetches.WithLabelValues(o.symbol, tf, "ok").Inc()
	signalRecords.WithLabelValues(o.symbol, tf).Add(float64(accepted))
}

func (o *Observer) BarEvaluated(now time.Time, tf types.Timeframe, res confirmation.Result, err error) {
	reason := res.Reason
	if err != nil {
		reason = "error"
		o.recordError(err)
	}
	barEvaluations.WithLabelValues(o.symbol, tf.String(), reason).Inc()
	if res.Candidate != 0 {
		decisionStrength.WithLabelValues(o.symbol, tf.String()).Set(res.Strength)
	}
	if o.health != nil {
		o.health.Bar(now)
	}
}

func (o *Observer) OrderPlaced(now time.Time, d confirmation.Decision, p orders.Placement, err error) {
	side := d.Direction.String()
	if err != nil {
		ordersTotal.WithLabelValues(o.symbol, side, "rejected").Inc()
		o.recordError(err)
		return
	}
	ordersTotal.WithLabelValues(o.symbol, side, "placed").Inc()
	orderRisk.WithLabelValues(o.symbol).Observe(p.RiskValue)
}

func (o *Observer) PositionManaged(now time.Time, a lifecycle.Action) {
	result := "ok"
	if a.Err != nil {
		result = "failed"
		o.recordError(a.Err)
	}
	lifecycleActions.WithLabelValues(o.symbol, string(a.Kind), result).Inc()
}

func (o *Observer) OrdersExpired(now time.Time, ids []string) {
	ordersExpired.WithLabelValues(o.symbol).Add(float64(len(ids)))
}

func (o *Observer) recordError(err error) {
	be := boterrors.CategorizeError(err, "engine", "observe")
	errorsTotal.WithLabelValues(o.symbol, string(be.Category)).Inc()
	if o.health != nil {
		o.health.Error(fmt.Sprintf("%s: %v", be.Category, err))
	}
}
