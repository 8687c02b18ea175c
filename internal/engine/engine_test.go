package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/exchange/paper"
	"github.com/ducminhle1904/confluence-bot/internal/indicators"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

var (
	owner = exchange.Identity{Symbol: "BTCUSDT", StrategyID: "conf"}
	t0    = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	// clocks one second into bar 8 and bar 9 of the primary series
	tick8 = t0.Add(8*15*time.Minute + time.Second)
	tick9 = t0.Add(9*15*time.Minute + time.Second)
)

// account lets a test override the paper balance and equity
type account struct {
	*paper.Venue
	mu      sync.Mutex
	snap    *types.AccountSnapshot
	snapErr error
}

func (a *account) Snapshot(ctx context.Context) (types.AccountSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snapErr != nil {
		return types.AccountSnapshot{}, a.snapErr
	}
	if a.snap != nil {
		return *a.snap, nil
	}
	return a.Venue.Snapshot(ctx)
}

func (a *account) set(balance, equity float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap = &types.AccountSnapshot{Balance: balance, Equity: equity, Currency: "USDT"}
}

type recorder struct {
	NopObserver
	mu        sync.Mutex
	evaluated []confirmation.Result
	placed    []orders.Placement
	placeErrs []error
	fetches   int
}

func (r *recorder) BarEvaluated(_ time.Time, _ types.Timeframe, res confirmation.Result, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluated = append(r.evaluated, res)
}

func (r *recorder) OrderPlaced(_ time.Time, _ confirmation.Decision, p orders.Placement, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, p)
	r.placeErrs = append(r.placeErrs, err)
}

func (r *recorder) SignalsFetched(time.Time, signal.FetchResult, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
}

func (r *recorder) reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, res := range r.evaluated {
		out = append(out, res.Reason)
	}
	return out
}

func flat(ts time.Time) types.OHLCV {
	return types.OHLCV{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100}
}

// primaryBars is ten 15m bars; bar 8 is a bullish rejection candle
func primaryBars() []types.OHLCV {
	var bars []types.OHLCV
	for k := 0; k < 10; k++ {
		bars = append(bars, flat(t0.Add(time.Duration(k)*15*time.Minute)))
	}
	bars[8] = types.OHLCV{Timestamp: bars[8].Timestamp, Open: 100, High: 100.6, Low: 98, Close: 100.5}
	bars[9] = types.OHLCV{Timestamp: bars[9].Timestamp, Open: 100.5, High: 101, Low: 100, Close: 100.8}
	return bars
}

func higherBars() []types.OHLCV {
	var bars []types.OHLCV
	for h := 0; h < 4; h++ {
		bars = append(bars, flat(t0.Add(time.Duration(h)*time.Hour)))
	}
	return bars
}

func buySignals() *signal.StaticSource {
	return signal.NewStaticSource(map[types.Timeframe][]signal.Record{
		"15m": {
			{Timestamp: t0.Add(60 * time.Minute), Direction: signal.DirectionBuy, Weight: signal.WeightHigh},
			{Timestamp: t0.Add(90 * time.Minute), Direction: signal.DirectionBuy, Weight: signal.WeightHigh},
			{Timestamp: t0.Add(135 * time.Minute), Direction: signal.DirectionBuy, Weight: signal.WeightHigh},
		},
	})
}

type harness struct {
	engine *Engine
	venue  *account
	rec    *recorder
	src    signal.Source
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pv := paper.NewVenue(paper.Config{
		Instrument: types.InstrumentSpec{
			Symbol: "BTCUSDT", TickSize: 0.1, TickValue: 0.1, Point: 0.1, Digits: 1,
			MinVolume: 0.001, MaxVolume: 100, VolumeStep: 0.001, MinStopDistance: 0.5,
		},
		InitialBalance: 10000,
		Spread:         0.2,
	})
	pv.LoadBars("15m", primaryBars())
	pv.LoadBars("1h", higherBars())
	venue := &account{Venue: pv}

	log := logger.Nop()
	ind := indicators.NewProvider(venue, 50, indicators.MAKindSMA)
	rec := &recorder{}

	e, err := New(Config{
		Identity:    owner,
		Primary:     "15m",
		Higher:      "1h",
		MaxDataSize: 10,
		BarLookback: 22,
		ATRPeriod:   3,
	}, Deps{
		Venue:      venue,
		Indicators: ind,
		Pipeline: confirmation.NewPipeline(confirmation.Config{
			Confidence: 2, ATRPeriod: 3, SLMultiplier: 2, TPMultiplier: 4,
		}, ind),
		Gate:      risk.NewGate(risk.Limits{MaxDailyLossPercent: 5, MaxDrawdownPercent: 10}, time.UTC, log),
		Session:   risk.NewSessionFilter(risk.SessionConfig{}, time.UTC),
		Spread:    risk.SpreadFilter{MaxSpreadPoints: 30},
		Lifecycle: lifecycle.NewManager(lifecycle.Config{Timeframe: "15m", PartialTriggerR: 1, PartialClosePercent: 50, TrailingMinBars: 3, TrailingATRMultiplier: 2}, owner, venue, log),
		Placer:    orders.NewPlacer(orders.Config{EntryOffsetPoints: 5, RiskPercent: 1}, owner, venue, risk.NewSizer(), log),
		Observer:  rec,
		Log:       log,
	})
	require.NoError(t, err)
	return &harness{engine: e, venue: venue, rec: rec, src: buySignals()}
}

func (h *harness) at(ts time.Time, price float64) time.Time {
	h.venue.SetClock(ts, price)
	return ts
}

func forLane(reqs []signal.FetchRequest, tf types.Timeframe) []signal.FetchRequest {
	var out []signal.FetchRequest
	for _, r := range reqs {
		if r.Timeframe == tf {
			out = append(out, r)
		}
	}
	return out
}

func (h *harness) fetch(req signal.FetchRequest) signal.FetchResult {
	return signal.Retrier{Attempts: 1}.Fetch(context.Background(), h.src, req)
}

func TestEngine_PlacesOrderOnConfirmedBar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reqs := h.engine.OnTick(ctx, h.at(tick8, 100))
	assert.Empty(t, reqs, "first observation only records the bar")

	now := h.at(tick9, 100.5)
	reqs = h.engine.OnTick(ctx, now)
	require.Len(t, reqs, 1)
	assert.Equal(t, types.Timeframe("15m"), reqs[0].Timeframe)
	assert.True(t, reqs[0].BarTime.Equal(t0.Add(9*15*time.Minute)))

	assert.Empty(t, h.engine.OnSignals(ctx, h.fetch(reqs[0]), now))
	assert.Equal(t, 3, h.engine.Buffer("15m").Len())
	assert.Equal(t, []string{confirmation.ReasonAccepted}, h.rec.reasons())

	pending, err := h.venue.PendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	o := pending[0]
	assert.Equal(t, owner, o.Identity)
	assert.Equal(t, types.SideBuy, o.Side)
	assert.InDelta(t, 101.1, o.Price, 1e-9)
	assert.Less(t, o.StopLoss, o.Price)
	assert.Greater(t, o.TakeProfit, o.Price)
	assert.True(t, o.Expiration.Equal(now.Add(30*time.Minute)))

	// the same bar is never evaluated twice
	assert.Empty(t, h.engine.OnSignals(ctx, h.fetch(reqs[0]), now))
	assert.Len(t, h.rec.reasons(), 1)
}

func TestEngine_HaltSkipsEvaluationButKeepsBuffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.venue.set(10000, 10000)
	h.engine.OnTick(ctx, h.at(tick8, 100))

	h.venue.set(9400, 9400) // 6 % daily loss
	now := h.at(tick9, 100.5)
	reqs := h.engine.OnTick(ctx, now)
	require.Len(t, reqs, 1)
	assert.False(t, h.engine.Verdict().Admit)
	assert.True(t, h.engine.State().DailyLossHalt)

	h.engine.OnSignals(ctx, h.fetch(reqs[0]), now)
	assert.Equal(t, []string{ReasonTradingHalted}, h.rec.reasons())
	assert.Equal(t, 3, h.engine.Buffer("15m").Len())

	pending, _ := h.venue.PendingOrders(ctx)
	assert.Empty(t, pending)
}

func TestEngine_ResumeTradingClearsDrawdownHalt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.venue.set(10000, 10000)
	h.engine.OnTick(ctx, h.at(tick8, 100))
	h.venue.set(10000, 8900) // 11 % drawdown, balance untouched
	h.engine.OnTick(ctx, h.at(tick8.Add(time.Second), 100))
	require.False(t, h.engine.State().TradingEnabled)

	require.NoError(t, h.engine.ResumeTrading(ctx))
	assert.True(t, h.engine.State().TradingEnabled)
	assert.Equal(t, 8900.0, h.engine.State().PeakEquity)

	h.engine.OnTick(ctx, h.at(tick8.Add(2*time.Second), 100))
	assert.True(t, h.engine.Verdict().Admit)
}

func TestEngine_StaleResultIsReRequested(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.OnTick(ctx, h.at(tick8.Add(-15*time.Minute), 100))
	// 10:00 also closes an hour bar; only the 15m lane matters here
	reqs := forLane(h.engine.OnTick(ctx, h.at(tick8, 100)), "15m")
	require.Len(t, reqs, 1)

	// a new bar closes while the fetch is still running
	now := h.at(tick9, 100.5)
	assert.Empty(t, h.engine.OnTick(ctx, now))

	again := h.engine.OnSignals(ctx, h.fetch(reqs[0]), now)
	require.Len(t, again, 1)
	assert.True(t, again[0].BarTime.Equal(t0.Add(9*15*time.Minute)))
	assert.Empty(t, h.rec.reasons(), "stale result is applied, not evaluated")

	h.engine.OnSignals(ctx, h.fetch(again[0]), now)
	assert.Equal(t, []string{confirmation.ReasonAccepted}, h.rec.reasons())
}

func TestEngine_HourBoundaryRequestsBothLanes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.OnTick(ctx, h.at(tick8.Add(-15*time.Minute), 100))
	reqs := h.engine.OnTick(ctx, h.at(tick8, 100))
	require.Len(t, reqs, 2)
	assert.Len(t, forLane(reqs, "15m"), 1)
	assert.Len(t, forLane(reqs, "1h"), 1)
}

func TestEngine_FetchFailureSkipsBar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.OnTick(ctx, h.at(tick8, 100))
	now := h.at(tick9, 100.5)
	reqs := h.engine.OnTick(ctx, now)
	require.Len(t, reqs, 1)

	h.engine.OnSignals(ctx, signal.FetchResult{Request: reqs[0], Attempts: 3, Err: errors.New("source down")}, now)
	assert.Empty(t, h.rec.reasons())
	assert.Equal(t, 1, h.rec.fetches)
	assert.Equal(t, 0, h.engine.Buffer("15m").Len())

	pending, _ := h.venue.PendingOrders(ctx)
	assert.Empty(t, pending)
}

func TestEngine_SpreadFilterBlocksEntry(t *testing.T) {
	h := newHarness(t)
	h.engine.deps.Spread = risk.SpreadFilter{MaxSpreadPoints: 1}
	ctx := context.Background()

	h.engine.OnTick(ctx, h.at(tick8, 100))
	now := h.at(tick9, 100.5)
	reqs := h.engine.OnTick(ctx, now)
	require.Len(t, reqs, 1)

	h.engine.OnSignals(ctx, h.fetch(reqs[0]), now)
	assert.Equal(t, []string{ReasonSpreadTooWide}, h.rec.reasons())
}

func TestEngine_SnapshotFailureRefusesTrading(t *testing.T) {
	h := newHarness(t)
	h.venue.snapErr = errors.New("wallet endpoint down")

	h.engine.OnTick(context.Background(), h.at(tick8, 100))
	assert.False(t, h.engine.Verdict().Admit)
}

func TestNew_RejectsBadTimeframes(t *testing.T) {
	_, err := New(Config{Primary: "1h", Higher: "15m", MaxDataSize: 10}, Deps{Log: logger.Nop()})
	assert.Error(t, err)

	_, err = New(Config{Primary: "15m", Higher: "1h", MaxDataSize: 0}, Deps{Log: logger.Nop()})
	assert.Error(t, err)
}

func TestRunner_PlacesOrderThroughAsyncFetcher(t *testing.T) {
	h := newHarness(t)
	fetcher := signal.NewAsyncFetcher(h.src, signal.Retrier{Attempts: 2, Delay: time.Millisecond}, 4)
	r := NewRunner(h.engine, fetcher, 5*time.Millisecond, logger.Nop())

	var calls atomic.Int32
	r.clock = func() time.Time {
		if calls.Add(1) == 1 {
			return h.at(tick8, 100)
		}
		return h.at(tick9, 100.5)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		pending, _ := h.venue.PendingOrders(context.Background())
		return len(pending) == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Resume(ctx))

	cancel()
	require.NoError(t, <-done)
}
