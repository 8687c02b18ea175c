package exchange

import (
	"context"
	"time"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// MarketData provides bars, quotes and instrument metadata for the traded
// instrument.
type MarketData interface {
	Quote(ctx context.Context) (types.Quote, error)
	// Bars returns up to count bars newest first; index 0 is the forming bar.
	Bars(ctx context.Context, tf types.Timeframe, count int) ([]types.OHLCV, error)
	Instrument(ctx context.Context) (types.InstrumentSpec, error)
}

// Account provides balance and equity.
type Account interface {
	Snapshot(ctx context.Context) (types.AccountSnapshot, error)
}

// Gateway executes orders. Positions and orders carry an Identity so an
// engine only ever touches its own.
type Gateway interface {
	PlacePending(ctx context.Context, req PendingOrderRequest) (string, error)
	// ModifyPosition sets the stop-loss and take-profit of an open position;
	// zero clears a level.
	ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit float64) error
	// ClosePosition closes volume of a position; volume <= 0 closes it fully.
	ClosePosition(ctx context.Context, positionID string, volume float64) error
	CancelPending(ctx context.Context, orderID string) error
	OpenPositions(ctx context.Context) ([]Position, error)
	PendingOrders(ctx context.Context) ([]PendingOrder, error)
}

// Venue is a full trading venue.
type Venue interface {
	MarketData
	Account
	Gateway
	GetName() string
}

// Identity tags the owner of a position or order.
type Identity struct {
	Symbol     string `json:"symbol"`
	StrategyID string `json:"strategy_id"`
}

// Owns reports whether other belongs to the same engine.
func (id Identity) Owns(other Identity) bool {
	return id.Symbol == other.Symbol && id.StrategyID == other.StrategyID
}

// Position represents an open position
type Position struct {
	ID string `json:"id"`
	Identity
	Side         types.Side `json:"side"`
	Volume       float64    `json:"volume"`
	EntryPrice   float64    `json:"entry_price"`
	StopLoss     float64    `json:"stop_loss"`   // 0 when not set
	TakeProfit   float64    `json:"take_profit"` // 0 when not set
	CurrentPrice float64    `json:"current_price"`
	OpenTime     time.Time  `json:"open_time"`
}

// Profit is the direction adjusted distance from entry to the current
// price, in price units.
func (p Position) Profit() float64 {
	return (p.CurrentPrice - p.EntryPrice) * p.Side.Sign()
}

// HasStop reports whether a stop-loss is set.
func (p Position) HasStop() bool {
	return p.StopLoss > 0
}

// PendingOrder represents a resting stop-entry order
type PendingOrder struct {
	ID string `json:"id"`
	Identity
	Side       types.Side `json:"side"`
	Volume     float64    `json:"volume"`
	Price      float64    `json:"price"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Expiration time.Time  `json:"expiration"` // zero when the venue reports none
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired reports whether the order outlived its expiration at now.
func (o PendingOrder) Expired(now time.Time) bool {
	return !o.Expiration.IsZero() && !now.Before(o.Expiration)
}

// PendingOrderRequest represents parameters for placing a stop-entry order
type PendingOrderRequest struct {
	Identity
	Side       types.Side
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Expiration time.Time
}

// ExchangeError represents standardized errors from exchanges
type ExchangeError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	IsRetryable bool   `json:"is_retryable"`
}

func (e *ExchangeError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Common error types
var (
	ErrPositionNotFound = &ExchangeError{
		Code:    "POSITION_NOT_FOUND",
		Message: "Position not found",
	}

	ErrOrderNotFound = &ExchangeError{
		Code:    "ORDER_NOT_FOUND",
		Message: "Order not found",
	}

	ErrOrderSizeTooSmall = &ExchangeError{
		Code:    "ORDER_SIZE_TOO_SMALL",
		Message: "Order size below minimum requirements",
	}

	ErrRateLimitExceeded = &ExchangeError{
		Code:        "RATE_LIMIT_EXCEEDED",
		Message:     "API rate limit exceeded",
		IsRetryable: true,
	}

	ErrCircuitOpen = &ExchangeError{
		Code:        "CIRCUIT_OPEN",
		Message:     "Venue circuit breaker open",
		IsRetryable: true,
	}
)
