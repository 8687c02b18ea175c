package confirmation

import (
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Trend is the higher-timeframe bias. It is deliberately separate from
// signal.Direction: a neutral trend is an answer, not a missing value.
type Trend int

const (
	TrendNeutral Trend = iota
	TrendBullish
	TrendBearish
)

func (t Trend) String() string {
	switch t {
	case TrendBullish:
		return "BULLISH"
	case TrendBearish:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

// Opposes reports whether a defined trend points against side.
func (t Trend) Opposes(side types.Side) bool {
	switch t {
	case TrendBullish:
		return side == types.SideSell
	case TrendBearish:
		return side == types.SideBuy
	default:
		return false
	}
}

// TrendFromMAs classifies the trend from the fast/slow averages at the two
// most recent closed bars.
func TrendFromMAs(fast1, slow1, fast2, slow2 float64) Trend {
	switch {
	case fast1 > slow1 && fast2 > slow2:
		return TrendBullish
	case fast1 < slow1 && fast2 < slow2:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// Streak scans records newest first for a run of same-direction records.
// None records are skipped without breaking the run. The first record of a
// run counts zero and every following match adds one; an opposite record
// starts a new run. The direction whose count first reaches confidence wins.
func Streak(records []signal.Record, confidence int) (types.Side, bool) {
	var (
		running signal.Direction
		count   int
	)
	for _, r := range records {
		if r.Direction == signal.DirectionNone {
			continue
		}
		if r.Direction == running {
			count++
		} else {
			running = r.Direction
			count = 0
		}
		if count >= confidence {
			return running.Side()
		}
	}
	return 0, false
}

// Strength is the mean of weight x recency over the records matching side.
// Recency of index i in a buffer of n records is 1 - i/n.
func Strength(records []signal.Record, side types.Side) float64 {
	n := len(records)
	if n == 0 {
		return 0
	}
	var (
		sum     float64
		matched int
	)
	for i, r := range records {
		s, ok := r.Direction.Side()
		if !ok || s != side {
			continue
		}
		sum += r.Weight.Multiplier() * (1 - float64(i)/float64(n))
		matched++
	}
	if matched == 0 {
		return 0
	}
	return sum / float64(matched)
}

// RejectionSide reads a rejection candle: a long lower tail rejects lower
// prices (buy), a long upper tail rejects higher prices (sell).
func RejectionSide(bar types.OHLCV) (types.Side, bool) {
	body := bar.Body()
	if bar.Range() <= 0 || body <= 0 {
		return 0, false
	}

	var upper, lower float64
	if bar.Bullish() {
		upper = bar.High - bar.Close
		lower = bar.Open - bar.Low
	} else {
		upper = bar.High - bar.Open
		lower = bar.Close - bar.Low
	}

	switch {
	case lower > 2*upper && lower > body/2:
		return types.SideBuy, true
	case upper > 2*lower && upper > body/2:
		return types.SideSell, true
	}
	return 0, false
}

// OrderBlock reports a dominant-body candle whose polarity matches side.
func OrderBlock(bar types.OHLCV, side types.Side) bool {
	rng := bar.Range()
	if rng <= 0 || bar.Body() <= 0.5*rng {
		return false
	}
	if side == types.SideBuy {
		return bar.Close > bar.Open
	}
	return bar.Close < bar.Open
}

// Trendline looks at the lookback closed bars (bars newest first, index 0
// forming) and reports whether the two most recent swing lows are rising for
// a buy, or the two most recent swing highs are falling for a sell.
func Trendline(bars []types.OHLCV, side types.Side, lookback int) bool {
	last := lookback
	if last > len(bars)-1 {
		last = len(bars) - 1
	}
	var swings []float64
	// a swing point needs a closed neighbour on both sides inside the window
	for i := 2; i < last && len(swings) < 2; i++ {
		prev, cur, next := bars[i+1], bars[i], bars[i-1]
		switch side {
		case types.SideBuy:
			if cur.Low < prev.Low && cur.Low < next.Low {
				swings = append(swings, cur.Low)
			}
		case types.SideSell:
			if cur.High > prev.High && cur.High > next.High {
				swings = append(swings, cur.High)
			}
		}
	}
	if len(swings) < 2 {
		return false
	}
	if side == types.SideBuy {
		return swings[0] > swings[1]
	}
	return swings[0] < swings[1]
}
