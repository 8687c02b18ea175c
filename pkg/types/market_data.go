package types

import (
	"fmt"
	"strings"
	"time"
)

// OHLCV is a single bar. Timestamp is the bar open time.
type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Body returns the absolute distance between open and close.
func (b OHLCV) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Range returns high minus low.
func (b OHLCV) Range() float64 {
	return b.High - b.Low
}

// Bullish reports whether the bar closed at or above its open.
func (b OHLCV) Bullish() bool {
	return b.Close >= b.Open
}

// Quote is the current top of book for the traded instrument.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Spread returns ask minus bid in price units.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// InstrumentSpec carries the venue metadata the engine needs for sizing and
// price validation.
type InstrumentSpec struct {
	Symbol          string
	TickSize        float64 // minimum price movement used for risk math
	TickValue       float64 // account-currency value of one tick per unit volume
	Point           float64 // price increment used for offsets and buffers
	Digits          int
	MinVolume       float64
	MaxVolume       float64
	VolumeStep      float64
	MinStopDistance float64 // in price units, 0 when the venue has no rule
}

// AccountSnapshot is the account state at one instant.
type AccountSnapshot struct {
	Balance  float64
	Equity   float64
	Currency string
}

// Side is the direction of an order, a position or a trading decision.
type Side int

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Timeframe is a bar duration label such as "15m" or "1h".
type Timeframe string

var timeframeDurations = map[Timeframe]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseTimeframe normalises and validates a timeframe label.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the bar duration, or 0 for an unknown label.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

func (tf Timeframe) String() string {
	return string(tf)
}
