package safety

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// ProtectedVenue wraps a venue with rate limiting, circuit breaking and
// validation of what comes back. Reads and writes trip separately.
type ProtectedVenue struct {
	venue     exchange.Venue
	limiter   *RateLimiter
	reads     *gobreaker.CircuitBreaker
	writes    *gobreaker.CircuitBreaker
	validator *Validator
	log       *logger.Logger
	now       func() time.Time
}

var _ exchange.Venue = (*ProtectedVenue)(nil)

// NewProtectedVenue wraps v
func NewProtectedVenue(v exchange.Venue, limits RateLimitConfig, breaker CircuitBreakerConfig, log *logger.Logger) *ProtectedVenue {
	log = log.With("safety")
	return &ProtectedVenue{
		venue:     v,
		limiter:   NewRateLimiter(limits),
		reads:     NewCircuitBreaker(v.GetName()+"-reads", breaker, log),
		writes:    NewCircuitBreaker(v.GetName()+"-writes", breaker, log),
		validator: NewValidator(),
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for quote staleness
func (p *ProtectedVenue) WithClock(now func() time.Time) *ProtectedVenue {
	p.now = now
	return p
}

// GetName returns the wrapped venue name
func (p *ProtectedVenue) GetName() string {
	return p.venue.GetName()
}

// BreakerStates reports the read and write breaker states
func (p *ProtectedVenue) BreakerStates() (reads, writes gobreaker.State) {
	return p.reads.State(), p.writes.State()
}

func guard[T any](ctx context.Context, wait func(context.Context) error, cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := wait(ctx); err != nil {
		return zero, err
	}
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, breakerError(err)
	}
	return out.(T), nil
}

// Quote fetches and validates the top of book
func (p *ProtectedVenue) Quote(ctx context.Context) (types.Quote, error) {
	q, err := guard(ctx, p.limiter.WaitRead, p.reads, func() (types.Quote, error) {
		return p.venue.Quote(ctx)
	})
	if err != nil {
		return q, err
	}
	if err := p.validator.ValidateQuote(q, p.now()).Err("quote"); err != nil {
		return types.Quote{}, err
	}
	return q, nil
}

// Bars fetches bars
func (p *ProtectedVenue) Bars(ctx context.Context, tf types.Timeframe, count int) ([]types.OHLCV, error) {
	return guard(ctx, p.limiter.WaitRead, p.reads, func() ([]types.OHLCV, error) {
		return p.venue.Bars(ctx, tf, count)
	})
}

// Instrument fetches and validates instrument metadata
func (p *ProtectedVenue) Instrument(ctx context.Context) (types.InstrumentSpec, error) {
	inst, err := guard(ctx, p.limiter.WaitRead, p.reads, func() (types.InstrumentSpec, error) {
		return p.venue.Instrument(ctx)
	})
	if err != nil {
		return inst, err
	}
	if err := p.validator.ValidateInstrument(inst).Err("instrument"); err != nil {
		return types.InstrumentSpec{}, err
	}
	return inst, nil
}

// Snapshot fetches and validates the account
func (p *ProtectedVenue) Snapshot(ctx context.Context) (types.AccountSnapshot, error) {
	acct, err := guard(ctx, p.limiter.WaitRead, p.reads, func() (types.AccountSnapshot, error) {
		return p.venue.Snapshot(ctx)
	})
	if err != nil {
		return acct, err
	}
	if err := p.validator.ValidateBalance(acct).Err("snapshot"); err != nil {
		return types.AccountSnapshot{}, err
	}
	return acct, nil
}

// OpenPositions lists positions
func (p *ProtectedVenue) OpenPositions(ctx context.Context) ([]exchange.Position, error) {
	return guard(ctx, p.limiter.WaitRead, p.reads, func() ([]exchange.Position, error) {
		return p.venue.OpenPositions(ctx)
	})
}

// PendingOrders lists pending orders
func (p *ProtectedVenue) PendingOrders(ctx context.Context) ([]exchange.PendingOrder, error) {
	return guard(ctx, p.limiter.WaitRead, p.reads, func() ([]exchange.PendingOrder, error) {
		return p.venue.PendingOrders(ctx)
	})
}

// PlacePending validates the request, then places it
func (p *ProtectedVenue) PlacePending(ctx context.Context, req exchange.PendingOrderRequest) (string, error) {
	inst, err := p.Instrument(ctx)
	if err != nil {
		return "", err
	}
	if err := p.validator.ValidateOrder(req, inst).Err("place pending"); err != nil {
		p.log.Warning("Refusing order: %v", err)
		return "", err
	}
	return guard(ctx, p.limiter.WaitWrite, p.writes, func() (string, error) {
		return p.venue.PlacePending(ctx, req)
	})
}

// ModifyPosition sets SL/TP
func (p *ProtectedVenue) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit float64) error {
	_, err := guard(ctx, p.limiter.WaitWrite, p.writes, func() (struct{}, error) {
		return struct{}{}, p.venue.ModifyPosition(ctx, positionID, stopLoss, takeProfit)
	})
	return err
}

// ClosePosition closes volume of a position
func (p *ProtectedVenue) ClosePosition(ctx context.Context, positionID string, volume float64) error {
	_, err := guard(ctx, p.limiter.WaitWrite, p.writes, func() (struct{}, error) {
		return struct{}{}, p.venue.ClosePosition(ctx, positionID, volume)
	})
	return err
}

// CancelPending cancels a pending order
func (p *ProtectedVenue) CancelPending(ctx context.Context, orderID string) error {
	_, err := guard(ctx, p.limiter.WaitWrite, p.writes, func() (struct{}, error) {
		return struct{}{}, p.venue.CancelPending(ctx, orderID)
	})
	return err
}
