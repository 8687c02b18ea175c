// Package numeric holds decimal-safe helpers for venue quantisation.
package numeric

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FloorToStep rounds v down to a whole multiple of step. A non-positive step
// returns v unchanged.
func FloorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	dv := decimal.NewFromFloat(v)
	ds := decimal.NewFromFloat(step)
	f, _ := dv.Div(ds).Floor().Mul(ds).Float64()
	return f
}

// RoundToStep rounds v to the nearest multiple of step.
func RoundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	dv := decimal.NewFromFloat(v)
	ds := decimal.NewFromFloat(step)
	f, _ := dv.Div(ds).Round(0).Mul(ds).Float64()
	return f
}

// StepDecimals returns the number of decimals a step implies, e.g. 0.001 -> 3.
func StepDecimals(step float64) int32 {
	if step <= 0 {
		return 0
	}
	s := decimal.NewFromFloat(step).String()
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return 0
	}
	return int32(len(s) - idx - 1)
}

// Format renders v with exactly as many decimals as step implies, which is
// what venues expect for qty and price strings.
func Format(v, step float64) string {
	return decimal.NewFromFloat(v).StringFixed(StepDecimals(step))
}

// Sub returns a-b without binary float drift.
func Sub(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Float64()
	return f
}
