package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/exchange/paper"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

var owner = exchange.Identity{Symbol: "BTCUSDT", StrategyID: "conf"}

func instrument() types.InstrumentSpec {
	return types.InstrumentSpec{
		Symbol: "BTCUSDT", TickSize: 0.1, TickValue: 0.1, Point: 0.1, Digits: 1,
		MinVolume: 0.001, MaxVolume: 100, VolumeStep: 0.001, MinStopDistance: 0.5,
	}
}

// flakyVenue fails quotes with quoteErr and counts calls
type flakyVenue struct {
	*paper.Venue
	quoteErr error
	calls    int
}

func (f *flakyVenue) Quote(ctx context.Context) (types.Quote, error) {
	f.calls++
	if f.quoteErr != nil {
		return types.Quote{}, f.quoteErr
	}
	return f.Venue.Quote(ctx)
}

func newFlaky() *flakyVenue {
	v := paper.NewVenue(paper.Config{Instrument: instrument(), InitialBalance: 1000, Spread: 0.2})
	v.SetClock(time.Now(), 100)
	return &flakyVenue{Venue: v}
}

func protect(v exchange.Venue) *ProtectedVenue {
	return NewProtectedVenue(v,
		RateLimitConfig{},
		CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute},
		logger.Nop())
}

func TestProtectedVenue_OpensAfterConsecutiveOutages(t *testing.T) {
	v := newFlaky()
	v.quoteErr = errors.New("dial tcp: connection refused")
	p := protect(v)

	for i := 0; i < 3; i++ {
		_, err := p.Quote(context.Background())
		require.Error(t, err)
	}
	reads, writes := p.BreakerStates()
	assert.Equal(t, gobreaker.StateOpen, reads)
	assert.Equal(t, gobreaker.StateClosed, writes)

	_, err := p.Quote(context.Background())
	assert.ErrorIs(t, err, exchange.ErrCircuitOpen)
	assert.Equal(t, 3, v.calls)
}

func TestProtectedVenue_RejectionsDoNotTrip(t *testing.T) {
	v := newFlaky()
	v.quoteErr = boterrors.NewExecutionError("bybit", "quote", errors.New("params error")).WithCode("10001")
	p := protect(v)

	for i := 0; i < 5; i++ {
		_, err := p.Quote(context.Background())
		require.Error(t, err)
	}
	reads, _ := p.BreakerStates()
	assert.Equal(t, gobreaker.StateClosed, reads)
	assert.Equal(t, 5, v.calls)
}

func TestProtectedVenue_ValidatesQuote(t *testing.T) {
	v := newFlaky()
	p := protect(v).WithClock(func() time.Time { return time.Now().Add(2 * MaxQuoteAge) })

	_, err := p.Quote(context.Background())
	require.Error(t, err)
	assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryValidation))
}

func TestProtectedVenue_RefusesInvalidOrders(t *testing.T) {
	v := newFlaky()
	p := protect(v)
	ctx := context.Background()

	req := exchange.PendingOrderRequest{
		Identity: exchange.Identity{Symbol: "BTCUSDT"}, Side: types.SideBuy,
		Volume: 0.01, Price: 101, StopLoss: 99, TakeProfit: 105,
	}
	_, err := p.PlacePending(ctx, req)
	assert.Error(t, err)

	req.Identity = owner
	req.StopLoss = 102
	_, err = p.PlacePending(ctx, req)
	assert.Error(t, err)

	req.StopLoss = 99
	id, err := p.PlacePending(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pending, err := p.PendingOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	require.NoError(t, p.CancelPending(ctx, id))
}

func TestValidator_Quote(t *testing.T) {
	v := NewValidator()
	now := time.Now()

	assert.True(t, v.ValidateQuote(types.Quote{Symbol: "X", Bid: 1, Ask: 1.1, Time: now}, now).Valid)
	r := v.ValidateQuote(types.Quote{Symbol: "X", Bid: 1.2, Ask: 1.1, Time: now}, now)
	assert.False(t, r.Valid)
	assert.Equal(t, "QUOTE_CROSSED", r.Code)
	assert.False(t, v.ValidateQuote(types.Quote{Symbol: "X", Bid: 0, Ask: 1.1}, now).Valid)
}

func TestValidator_Instrument(t *testing.T) {
	v := NewValidator()
	assert.True(t, v.ValidateInstrument(instrument()).Valid)

	bad := instrument()
	bad.TickValue = 0
	r := v.ValidateInstrument(bad)
	assert.False(t, r.Valid)
	assert.Equal(t, "INSTRUMENT_TICK_VALUE", r.Code)
	assert.Error(t, r.Err("instrument"))
}
