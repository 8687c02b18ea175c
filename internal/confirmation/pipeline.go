// Package confirmation turns the signal buffer and recent bars into a single
// trade decision per closed bar.
package confirmation

import (
	"context"
	"fmt"
	"time"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

const (
	// MinStrength is the weighted strength a candidate needs to proceed.
	MinStrength = 0.5
	// StructuralTightening scales the stop distance of a structurally
	// confirmed decision.
	StructuralTightening = 0.85
	// DefaultTrendlineLookback is the number of closed bars scanned for swings.
	DefaultTrendlineLookback = 20
)

// Rejection reasons reported in Result.Reason.
const (
	ReasonAccepted          = "accepted"
	ReasonNoStreak          = "no_streak"
	ReasonWeakStrength      = "weak_strength"
	ReasonNoRejection       = "no_rejection_candle"
	ReasonRejectionMismatch = "rejection_mismatch"
	ReasonTrendOpposed      = "higher_tf_opposed"
)

// Indicators is the indicator engine the pipeline reads. shift 0 is the
// forming bar, 1 the last closed bar.
type Indicators interface {
	ATR(ctx context.Context, tf types.Timeframe, period, shift int) (float64, error)
	MA(ctx context.Context, tf types.Timeframe, period, shift int) (float64, error)
}

// Config holds the pipeline parameters.
type Config struct {
	Confidence        int
	ATRPeriod         int
	SLMultiplier      float64
	TPMultiplier      float64
	MTFFilter         bool
	FastMAPeriod      int
	SlowMAPeriod      int
	TrendlineLookback int
}

// Decision is an accepted entry.
type Decision struct {
	Direction              types.Side
	StopDistance           float64
	TakeProfitDistance     float64
	StructuralConfirmation bool
	Strength               float64
	Timeframe              types.Timeframe
	BarTime                time.Time
}

// Input is what one evaluation looks at.
type Input struct {
	Timeframe types.Timeframe
	// Primary is true when Timeframe is the shorter of the two traded
	// timeframes; only then does the higher timeframe filter apply.
	Primary         bool
	HigherTimeframe types.Timeframe
	Records         []signal.Record // newest first
	Bars            []types.OHLCV   // newest first, index 0 forming
	BarTime         time.Time
}

// Result carries the outcome of one evaluation. Decision is nil on rejection.
type Result struct {
	Decision  *Decision
	Candidate types.Side
	Strength  float64
	Trend     Trend
	Reason    string
}

// Pipeline composes the confirmation checks.
type Pipeline struct {
	cfg        Config
	indicators Indicators
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config, indicators Indicators) *Pipeline {
	if cfg.TrendlineLookback <= 0 {
		cfg.TrendlineLookback = DefaultTrendlineLookback
	}
	return &Pipeline{cfg: cfg, indicators: indicators}
}

// Evaluate runs the gating checks in order and stops at the first failure.
// An error means the inputs were unusable (missing bars, indicator failure,
// non-positive ATR); the bar is skipped either way.
func (p *Pipeline) Evaluate(ctx context.Context, in Input) (Result, error) {
	side, ok := Streak(in.Records, p.cfg.Confidence)
	if !ok {
		return Result{Reason: ReasonNoStreak}, nil
	}
	res := Result{Candidate: side}

	res.Strength = Strength(in.Records, side)
	if res.Strength < MinStrength {
		res.Reason = ReasonWeakStrength
		return res, nil
	}

	if len(in.Bars) < 2 {
		return res, boterrors.NewValidationError("confirmation", "evaluate",
			fmt.Sprintf("need at least 2 bars on %s, have %d", in.Timeframe, len(in.Bars)))
	}
	closed := in.Bars[1]

	candle, ok := RejectionSide(closed)
	if !ok {
		res.Reason = ReasonNoRejection
		return res, nil
	}
	if candle != side {
		res.Reason = ReasonRejectionMismatch
		return res, nil
	}

	if in.Primary && p.cfg.MTFFilter {
		trend, err := p.higherTrend(ctx, in.HigherTimeframe)
		if err != nil {
			return res, err
		}
		res.Trend = trend
		if trend.Opposes(side) {
			res.Reason = ReasonTrendOpposed
			return res, nil
		}
	}

	structural := OrderBlock(closed, side) || Trendline(in.Bars, side, p.cfg.TrendlineLookback)

	atr, err := p.indicators.ATR(ctx, in.Timeframe, p.cfg.ATRPeriod, 1)
	if err != nil {
		return res, boterrors.NewMarketDataError("confirmation", "atr", err)
	}
	if atr <= 0 {
		return res, boterrors.NewValidationError("confirmation", "atr",
			fmt.Sprintf("non-positive ATR %.8f on %s", atr, in.Timeframe))
	}

	stop := atr * p.cfg.SLMultiplier
	if structural {
		stop *= StructuralTightening
	}

	res.Reason = ReasonAccepted
	res.Decision = &Decision{
		Direction:              side,
		StopDistance:           stop,
		TakeProfitDistance:     atr * p.cfg.TPMultiplier,
		StructuralConfirmation: structural,
		Strength:               res.Strength,
		Timeframe:              in.Timeframe,
		BarTime:                in.BarTime,
	}
	return res, nil
}

func (p *Pipeline) higherTrend(ctx context.Context, tf types.Timeframe) (Trend, error) {
	var v [4]float64
	reads := []struct {
		period, shift int
	}{
		{p.cfg.FastMAPeriod, 1}, {p.cfg.SlowMAPeriod, 1},
		{p.cfg.FastMAPeriod, 2}, {p.cfg.SlowMAPeriod, 2},
	}
	for i, r := range reads {
		val, err := p.indicators.MA(ctx, tf, r.period, r.shift)
		if err != nil {
			return TrendNeutral, boterrors.NewMarketDataError("confirmation", "higher tf ma", err)
		}
		v[i] = val
	}
	return TrendFromMAs(v[0], v[1], v[2], v[3]), nil
}
