package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

type modifyCall struct {
	id     string
	sl, tp float64
}

type closeCall struct {
	id     string
	volume float64
}

type fakeGateway struct {
	modifies  []modifyCall
	closes    []closeCall
	modifyErr error
	closeErr  error
}

func (f *fakeGateway) PlacePending(context.Context, exchange.PendingOrderRequest) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeGateway) ModifyPosition(_ context.Context, id string, sl, tp float64) error {
	if f.modifyErr != nil {
		return f.modifyErr
	}
	f.modifies = append(f.modifies, modifyCall{id, sl, tp})
	return nil
}

func (f *fakeGateway) ClosePosition(_ context.Context, id string, volume float64) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closes = append(f.closes, closeCall{id, volume})
	return nil
}

func (f *fakeGateway) CancelPending(context.Context, string) error { return nil }

func (f *fakeGateway) OpenPositions(context.Context) ([]exchange.Position, error) { return nil, nil }

func (f *fakeGateway) PendingOrders(context.Context) ([]exchange.PendingOrder, error) {
	return nil, nil
}

var (
	owner = exchange.Identity{Symbol: "BTCUSDT", StrategyID: "conf"}
	now   = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
)

func testInstrument() types.InstrumentSpec {
	return types.InstrumentSpec{
		Symbol: "BTCUSDT", TickSize: 0.1, TickValue: 0.1, Point: 0.1, Digits: 1,
		MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01, MinStopDistance: 0.5,
	}
}

func testConfig() Config {
	return Config{
		Timeframe:             "15m",
		PartialTriggerR:       1,
		PartialClosePercent:   50,
		TrailingMinBars:       3,
		TrailingATRMultiplier: 2,
	}
}

func long(sl float64, volume float64) exchange.Position {
	return exchange.Position{
		ID: "BTCUSDT:0", Identity: owner, Side: types.SideBuy, Volume: volume,
		EntryPrice: 100, StopLoss: sl, OpenTime: now.Add(-time.Hour),
	}
}

func quote(bid, ask float64) types.Quote {
	return types.Quote{Symbol: "BTCUSDT", Bid: bid, Ask: ask, Time: now}
}

func TestManage_FullLifecycleOnFirstTrigger(t *testing.T) {
	gw := &fakeGateway{}
	m := NewManager(testConfig(), owner, gw, logger.Nop())

	actions := m.Manage(context.Background(), now, []exchange.Position{long(95, 1)}, quote(105, 105.1), testInstrument(), 1)
	require.Len(t, actions, 3)
	assert.Equal(t, ActionPartialClose, actions[0].Kind)
	assert.Equal(t, ActionBreakeven, actions[1].Kind)
	assert.Equal(t, ActionTrailing, actions[2].Kind)

	require.Len(t, gw.closes, 1)
	assert.Equal(t, 0.5, gw.closes[0].volume)
	require.Len(t, gw.modifies, 2)
	assert.Equal(t, 100.1, gw.modifies[0].sl)
	assert.Equal(t, 103.0, gw.modifies[1].sl)

	tr, ok := m.Tracker("BTCUSDT:0")
	require.True(t, ok)
	assert.True(t, tr.PartialDone)
	assert.True(t, tr.BreakevenDone)
}

func TestManage_PartialCloseAtMostOnce(t *testing.T) {
	gw := &fakeGateway{}
	m := NewManager(testConfig(), owner, gw, logger.Nop())
	inst := testInstrument()

	m.Manage(context.Background(), now, []exchange.Position{long(95, 1)}, quote(105, 105.1), inst, 0)
	m.Manage(context.Background(), now, []exchange.Position{long(100.1, 0.5)}, quote(110, 110.1), inst, 0)
	m.Manage(context.Background(), now, []exchange.Position{long(100.1, 0.5)}, quote(120, 120.1), inst, 0)

	assert.Len(t, gw.closes, 1)
}

func TestManage_TrailingOnlyRatchets(t *testing.T) {
	gw := &fakeGateway{}
	cfg := testConfig()
	cfg.PartialTriggerR = 0
	m := NewManager(cfg, owner, gw, logger.Nop())
	inst := testInstrument()
	pos := long(95, 1)

	prices := []float64{105, 104, 103, 107, 106}
	for _, p := range prices {
		m.Manage(context.Background(), now, []exchange.Position{pos}, quote(p, p+0.1), inst, 1)
		if n := len(gw.modifies); n > 0 {
			pos.StopLoss = gw.modifies[n-1].sl
		}
	}

	require.Len(t, gw.modifies, 2)
	assert.Equal(t, 103.0, gw.modifies[0].sl)
	assert.Equal(t, 105.0, gw.modifies[1].sl)
	for i := 1; i < len(gw.modifies); i++ {
		assert.Greater(t, gw.modifies[i].sl, gw.modifies[i-1].sl)
	}
}

func TestManage_TrailingWaitsForMinBars(t *testing.T) {
	gw := &fakeGateway{}
	cfg := testConfig()
	cfg.PartialTriggerR = 0
	m := NewManager(cfg, owner, gw, logger.Nop())
	pos := long(95, 1)
	pos.OpenTime = now.Add(-40 * time.Minute) // two completed bars

	m.Manage(context.Background(), now, []exchange.Position{pos}, quote(105, 105.1), testInstrument(), 1)
	assert.Empty(t, gw.modifies)

	m.Manage(context.Background(), now.Add(10*time.Minute), []exchange.Position{pos}, quote(105, 105.1), testInstrument(), 1)
	assert.Len(t, gw.modifies, 1)
}

func TestManage_PartialSkippedBelowMinLot(t *testing.T) {
	gw := &fakeGateway{}
	m := NewManager(testConfig(), owner, gw, logger.Nop())

	actions := m.Manage(context.Background(), now, []exchange.Position{long(95, 0.01)}, quote(105, 105.1), testInstrument(), 0)
	assert.Empty(t, gw.closes)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionBreakeven, actions[0].Kind)

	tr, _ := m.Tracker("BTCUSDT:0")
	assert.False(t, tr.PartialDone)
	assert.True(t, tr.BreakevenDone)
}

func TestManage_ShortBreakeven(t *testing.T) {
	gw := &fakeGateway{}
	cfg := testConfig()
	cfg.PartialClosePercent = 0
	m := NewManager(cfg, owner, gw, logger.Nop())
	pos := exchange.Position{
		ID: "BTCUSDT:0", Identity: owner, Side: types.SideSell, Volume: 1,
		EntryPrice: 100, StopLoss: 105, TakeProfit: 80, OpenTime: now,
	}

	m.Manage(context.Background(), now, []exchange.Position{pos}, quote(94.9, 95), testInstrument(), 0)
	require.Len(t, gw.modifies, 1)
	assert.Equal(t, 99.9, gw.modifies[0].sl)
	assert.Equal(t, 80.0, gw.modifies[0].tp)
}

func TestManage_BreakevenNotNeededWhenStopAlreadyTighter(t *testing.T) {
	gw := &fakeGateway{}
	cfg := testConfig()
	cfg.PartialClosePercent = 0
	cfg.PartialTriggerR = 0.1
	m := NewManager(cfg, owner, gw, logger.Nop())

	// stop already above entry: risk 1, profit 5
	m.Manage(context.Background(), now, []exchange.Position{long(101, 1)}, quote(105, 105.1), testInstrument(), 0)
	assert.Empty(t, gw.modifies)
	tr, _ := m.Tracker("BTCUSDT:0")
	assert.True(t, tr.BreakevenDone)
}

func TestManage_RejectedCallIsNotRetried(t *testing.T) {
	gw := &fakeGateway{modifyErr: errors.New("venue down"), closeErr: errors.New("venue down")}
	m := NewManager(testConfig(), owner, gw, logger.Nop())

	actions := m.Manage(context.Background(), now, []exchange.Position{long(95, 1)}, quote(105, 105.1), testInstrument(), 0)
	require.Len(t, actions, 2)
	for _, a := range actions {
		assert.Error(t, a.Err)
	}
	tr, _ := m.Tracker("BTCUSDT:0")
	assert.True(t, tr.PartialDone)
	assert.True(t, tr.BreakevenDone)

	gw.modifyErr, gw.closeErr = nil, nil
	actions = m.Manage(context.Background(), now, []exchange.Position{long(95, 1)}, quote(105, 105.1), testInstrument(), 0)
	assert.Empty(t, actions)
	assert.Empty(t, gw.closes)
	assert.Empty(t, gw.modifies)
}

func TestManage_ForeignPositionsUntouched(t *testing.T) {
	gw := &fakeGateway{}
	m := NewManager(testConfig(), owner, gw, logger.Nop())

	foreign := long(95, 1)
	foreign.StrategyID = "manual"
	other := long(95, 1)
	other.Symbol = "ETHUSDT"

	actions := m.Manage(context.Background(), now, []exchange.Position{foreign, other}, quote(105, 105.1), testInstrument(), 1)
	assert.Empty(t, actions)
	assert.Empty(t, gw.modifies)
	assert.Empty(t, gw.closes)
	assert.Equal(t, 0, m.Tracked())
}

func TestManage_DropsTrackerWhenPositionCloses(t *testing.T) {
	m := NewManager(testConfig(), owner, &fakeGateway{}, logger.Nop())

	m.Manage(context.Background(), now, []exchange.Position{long(95, 1)}, quote(100, 100.1), testInstrument(), 0)
	assert.Equal(t, 1, m.Tracked())

	m.Manage(context.Background(), now, nil, quote(100, 100.1), testInstrument(), 0)
	assert.Equal(t, 0, m.Tracked())
}
