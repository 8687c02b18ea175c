package signal

import (
	"fmt"
	"strings"
	"time"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Direction is the directional content of one signal record. DirectionNone
// means the source had no opinion for that instant.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionBuy
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "BUY"
	case DirectionSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Side maps a directional record onto an order side. ok is false for
// DirectionNone.
func (d Direction) Side() (side types.Side, ok bool) {
	switch d {
	case DirectionBuy:
		return types.SideBuy, true
	case DirectionSell:
		return types.SideSell, true
	default:
		return 0, false
	}
}

// ParseDirection accepts BUY/SELL/NONE (any case) as well as 1/-1/0.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG", "1":
		return DirectionBuy, nil
	case "SELL", "SHORT", "-1":
		return DirectionSell, nil
	case "NONE", "", "0":
		return DirectionNone, nil
	}
	return DirectionNone, fmt.Errorf("unknown signal direction %q", s)
}

// Weight is the conviction a source attaches to a record.
type Weight int

const (
	WeightNone Weight = iota
	WeightLow
	WeightHigh
)

func (w Weight) String() string {
	switch w {
	case WeightHigh:
		return "HIGH"
	case WeightLow:
		return "LOW"
	default:
		return "NONE"
	}
}

// Multiplier is the factor a weight contributes to signal strength.
func (w Weight) Multiplier() float64 {
	switch w {
	case WeightHigh:
		return 2.0
	case WeightLow:
		return 1.0
	default:
		return 0.5
	}
}

// ParseWeight accepts HIGH/LOW/NONE (any case) as well as 2/1/0.
func ParseWeight(s string) (Weight, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH", "2":
		return WeightHigh, nil
	case "LOW", "1":
		return WeightLow, nil
	case "NONE", "", "0":
		return WeightNone, nil
	}
	return WeightNone, fmt.Errorf("unknown signal weight %q", s)
}

// Record is one timestamped signal. Records are values and never mutated.
type Record struct {
	Timestamp time.Time
	Direction Direction
	Weight    Weight
}
