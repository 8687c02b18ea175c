package risk

import (
	"fmt"
	"strings"
	"time"
)

// RiskState is the circuit-breaker state carried between gate evaluations.
// It is a plain value: the gate returns a new one and the caller stores it.
type RiskState struct {
	DailyStartBalance float64
	PeakEquity        float64
	TradingEnabled    bool
	DailyLossHalt     bool
	LastDayBoundary   time.Time // midnight of the current venue day
}

// NewRiskState returns the state of an engine that has not traded yet.
func NewRiskState() RiskState {
	return RiskState{TradingEnabled: true}
}

// Halted reports whether either breaker blocks new trades.
func (s RiskState) Halted() bool {
	return s.DailyLossHalt || !s.TradingEnabled
}

// DrawdownPolicy decides when a tripped drawdown breaker clears.
type DrawdownPolicy string

const (
	// DrawdownPolicyManual keeps the halt until an operator resumes trading.
	DrawdownPolicyManual DrawdownPolicy = "manual"
	// DrawdownPolicyDaily clears the halt and re-bases the peak at each day
	// boundary.
	DrawdownPolicyDaily DrawdownPolicy = "daily"
)

// ParseDrawdownPolicy validates a policy name. Empty means manual.
func ParseDrawdownPolicy(s string) (DrawdownPolicy, error) {
	switch DrawdownPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DrawdownPolicyManual:
		return DrawdownPolicyManual, nil
	case DrawdownPolicyDaily:
		return DrawdownPolicyDaily, nil
	}
	return "", fmt.Errorf("unknown drawdown policy %q (want manual or daily)", s)
}

// Limits configures the gate.
type Limits struct {
	MaxDailyLossPercent float64
	MaxDrawdownPercent  float64
	DrawdownPolicy      DrawdownPolicy
}

// Verdict is the outcome of one gate evaluation.
type Verdict struct {
	Admit            bool
	DailyLossHalt    bool
	DrawdownHalt     bool
	DailyLossPercent float64
	DrawdownPercent  float64

	// Transitions observed during this evaluation.
	DayRolled           bool
	DailyHaltTripped    bool
	DrawdownHaltTripped bool
	Resumed             bool
}

// Reason names the breaker that blocked trading, or "" when admitted.
func (v Verdict) Reason() string {
	switch {
	case v.Admit:
		return ""
	case v.DailyLossHalt && v.DrawdownHalt:
		return "daily loss and drawdown"
	case v.DrawdownHalt:
		return "drawdown"
	default:
		return "daily loss"
	}
}
