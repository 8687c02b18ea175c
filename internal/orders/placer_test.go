package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

type fakeGateway struct {
	pending   []exchange.PendingOrder
	placed    []exchange.PendingOrderRequest
	cancelled []string
	placeErr  error
}

func (f *fakeGateway) PlacePending(_ context.Context, req exchange.PendingOrderRequest) (string, error) {
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed = append(f.placed, req)
	return "ord-1", nil
}

func (f *fakeGateway) ModifyPosition(context.Context, string, float64, float64) error { return nil }

func (f *fakeGateway) ClosePosition(context.Context, string, float64) error { return nil }

func (f *fakeGateway) CancelPending(_ context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeGateway) OpenPositions(context.Context) ([]exchange.Position, error) { return nil, nil }

func (f *fakeGateway) PendingOrders(context.Context) ([]exchange.PendingOrder, error) {
	return f.pending, nil
}

var (
	owner = exchange.Identity{Symbol: "BTCUSDT", StrategyID: "conf"}
	now   = time.Date(2024, 6, 3, 12, 15, 3, 0, time.UTC)
)

func btc() types.InstrumentSpec {
	return types.InstrumentSpec{
		Symbol: "BTCUSDT", TickSize: 0.1, TickValue: 0.1, Point: 0.1, Digits: 1,
		MinVolume: 0.001, MaxVolume: 100, VolumeStep: 0.001, MinStopDistance: 0.5,
	}
}

func decision(side types.Side, sl, tp float64) confirmation.Decision {
	return confirmation.Decision{Direction: side, StopDistance: sl, TakeProfitDistance: tp, Timeframe: "15m", Strength: 2}
}

func newPlacer(gw *fakeGateway) *Placer {
	return NewPlacer(Config{EntryOffsetPoints: 5, RiskPercent: 1}, owner, gw, risk.NewSizer(), logger.Nop())
}

var q = types.Quote{Symbol: "BTCUSDT", Bid: 64000, Ask: 64000.2, Time: now}

func TestPlace_BuyStopEntry(t *testing.T) {
	gw := &fakeGateway{}
	p := newPlacer(gw)

	out, err := p.Place(context.Background(), decision(types.SideBuy, 300, 600), q, btc(), 10000, now)
	require.NoError(t, err)
	require.Len(t, gw.placed, 1)

	req := gw.placed[0]
	assert.Equal(t, "ord-1", out.OrderID)
	assert.Equal(t, owner, req.Identity)
	assert.InDelta(t, 64000.7, req.Price, 1e-6)
	assert.InDelta(t, 63700.7, req.StopLoss, 1e-6)
	assert.InDelta(t, 64600.7, req.TakeProfit, 1e-6)
	assert.Equal(t, 0.333, req.Volume)
	assert.True(t, req.Expiration.Equal(now.Add(30*time.Minute)))
	assert.LessOrEqual(t, out.RiskValue, 100.0)
}

func TestPlace_SellUsesBid(t *testing.T) {
	gw := &fakeGateway{}
	p := newPlacer(gw)

	_, err := p.Place(context.Background(), decision(types.SideSell, 300, 600), q, btc(), 10000, now)
	require.NoError(t, err)
	req := gw.placed[0]
	assert.InDelta(t, 63999.5, req.Price, 1e-6)
	assert.Greater(t, req.StopLoss, req.Price)
	assert.Less(t, req.TakeProfit, req.Price)
}

func TestPlace_CancelsOnlyOwnPendingFirst(t *testing.T) {
	gw := &fakeGateway{pending: []exchange.PendingOrder{
		{ID: "mine", Identity: owner},
		{ID: "manual", Identity: exchange.Identity{Symbol: "BTCUSDT"}},
		{ID: "other-symbol", Identity: exchange.Identity{Symbol: "ETHUSDT", StrategyID: "conf"}},
	}}
	p := newPlacer(gw)

	out, err := p.Place(context.Background(), decision(types.SideBuy, 300, 600), q, btc(), 10000, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, gw.cancelled)
	assert.Equal(t, []string{"mine"}, out.Cancelled)
}

func TestPlace_AbortsInsideMinStopDistance(t *testing.T) {
	gw := &fakeGateway{pending: []exchange.PendingOrder{{ID: "mine", Identity: owner}}}
	p := newPlacer(gw)

	_, err := p.Place(context.Background(), decision(types.SideBuy, 300, 0.3), q, btc(), 10000, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStopTooClose))
	assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryValidation))
	assert.Empty(t, gw.placed)
	assert.Empty(t, gw.cancelled, "the previous order survives an aborted placement")
}

func TestPlace_SizingBelowMinimumAborts(t *testing.T) {
	gw := &fakeGateway{pending: []exchange.PendingOrder{{ID: "mine", Identity: owner}}}
	p := newPlacer(gw)

	out, err := p.Place(context.Background(), decision(types.SideBuy, 300, 600), q, btc(), 1, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, risk.ErrBelowMinimum))
	assert.Empty(t, gw.placed)
	assert.Empty(t, gw.cancelled)
	assert.Empty(t, out.Cancelled)
}

func TestPlace_VenueRejectionIsExecutionError(t *testing.T) {
	gw := &fakeGateway{placeErr: errors.New("insufficient margin")}
	p := newPlacer(gw)

	_, err := p.Place(context.Background(), decision(types.SideBuy, 300, 600), q, btc(), 10000, now)
	require.Error(t, err)
	assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryExecution))
}

func TestSweepExpired(t *testing.T) {
	gw := &fakeGateway{pending: []exchange.PendingOrder{
		{ID: "stale", Identity: owner, Expiration: now.Add(-time.Second)},
		{ID: "due", Identity: owner, Expiration: now},
		{ID: "fresh", Identity: owner, Expiration: now.Add(time.Minute)},
		{ID: "no-expiry", Identity: owner},
		{ID: "foreign-stale", Identity: exchange.Identity{Symbol: "BTCUSDT", StrategyID: "x"}, Expiration: now.Add(-time.Hour)},
	}}
	p := newPlacer(gw)

	cancelled, err := p.SweepExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale", "due"}, cancelled)
}
