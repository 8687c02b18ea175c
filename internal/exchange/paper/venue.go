// Package paper is an in-memory venue. Stop-entry orders fill against bars,
// stops and targets are checked intra-bar, and the clock is set by the
// caller, which makes it the venue of replays and engine tests.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/pkg/numeric"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Exit reasons recorded on trades
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitClose      = "close"
	ExitPartial    = "partial"
)

// Config holds the simulated account and instrument
type Config struct {
	Instrument     types.InstrumentSpec
	InitialBalance float64
	// Spread is the bid/ask distance in price units.
	Spread   float64
	Currency string
}

// Trade is a realised exit, whole or partial
type Trade struct {
	PositionID string
	Side       types.Side
	Volume     float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	PnL        float64
	Reason     string
}

// Fill is an entry executed from a pending order
type Fill struct {
	OrderID    string
	PositionID string
	Side       types.Side
	Volume     float64
	Price      float64
	Time       time.Time
}

// Venue is the paper venue
type Venue struct {
	cfg Config

	mu        sync.Mutex
	now       time.Time
	last      float64
	balance   float64
	series    map[types.Timeframe][]types.OHLCV // oldest first
	positions map[string]*exchange.Position
	pending   map[string]*exchange.PendingOrder
	trades    []Trade
	fills     []Fill
}

var _ exchange.Venue = (*Venue)(nil)

// NewVenue creates a paper venue
func NewVenue(cfg Config) *Venue {
	if cfg.Currency == "" {
		cfg.Currency = "USDT"
	}
	return &Venue{
		cfg:       cfg,
		balance:   cfg.InitialBalance,
		series:    make(map[types.Timeframe][]types.OHLCV),
		positions: make(map[string]*exchange.Position),
		pending:   make(map[string]*exchange.PendingOrder),
	}
}

// GetName returns the venue name
func (v *Venue) GetName() string {
	return "paper"
}

// LoadBars installs the bar history of a timeframe. bars may be in any
// order; they are kept oldest first.
func (v *Venue) LoadBars(tf types.Timeframe, bars []types.OHLCV) {
	sorted := make([]types.OHLCV, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	v.mu.Lock()
	defer v.mu.Unlock()
	v.series[tf] = sorted
}

// SetClock moves the simulated clock and sets the last traded price
func (v *Venue) SetClock(now time.Time, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
	if price > 0 {
		v.last = price
		v.markLocked()
	}
}

// Now returns the simulated clock
func (v *Venue) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Quote returns bid/ask around the last price
func (v *Venue) Quote(ctx context.Context) (types.Quote, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.last <= 0 {
		return types.Quote{}, fmt.Errorf("no price yet")
	}
	bid, ask := v.bidAskLocked()
	return types.Quote{Symbol: v.cfg.Instrument.Symbol, Bid: bid, Ask: ask, Time: v.now}, nil
}

func (v *Venue) bidAskLocked() (float64, float64) {
	half := v.cfg.Spread / 2
	point := v.cfg.Instrument.Point
	return numeric.RoundToStep(v.last-half, point), numeric.RoundToStep(v.last+half, point)
}

// Bars returns up to count bars newest first. Index 0 is the bar forming at
// the clock, reduced to its open so no future prices leak.
func (v *Venue) Bars(ctx context.Context, tf types.Timeframe, count int) ([]types.OHLCV, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	series := v.series[tf]
	dur := tf.Duration()
	if len(series) == 0 || dur <= 0 {
		return nil, fmt.Errorf("no %s bars loaded", tf)
	}
	i := sort.Search(len(series), func(k int) bool { return series[k].Timestamp.After(v.now) }) - 1
	if i < 0 {
		return nil, fmt.Errorf("no %s bars before %s", tf, v.now.Format(time.RFC3339))
	}

	out := make([]types.OHLCV, 0, count)
	latest := series[i]
	if v.now.Before(latest.Timestamp.Add(dur)) {
		out = append(out, forming(latest.Timestamp, latest.Open))
		i--
	} else {
		out = append(out, forming(v.now.Truncate(dur), latest.Close))
	}
	for ; i >= 0 && len(out) < count; i-- {
		out = append(out, series[i])
	}
	return out, nil
}

func forming(ts time.Time, price float64) types.OHLCV {
	return types.OHLCV{Timestamp: ts, Open: price, High: price, Low: price, Close: price}
}

// Instrument returns the simulated instrument
func (v *Venue) Instrument(ctx context.Context) (types.InstrumentSpec, error) {
	return v.cfg.Instrument, nil
}

// Snapshot returns balance and mark-to-market equity
func (v *Venue) Snapshot(ctx context.Context) (types.AccountSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return types.AccountSnapshot{Balance: v.balance, Equity: v.equityLocked(), Currency: v.cfg.Currency}, nil
}

func (v *Venue) equityLocked() float64 {
	equity := v.balance
	for _, p := range v.positions {
		equity += v.pnl(p.Side, p.EntryPrice, p.CurrentPrice, p.Volume)
	}
	return equity
}

// pnl converts a price move into account currency
func (v *Venue) pnl(side types.Side, entry, exit, volume float64) float64 {
	inst := v.cfg.Instrument
	if inst.TickSize <= 0 {
		return 0
	}
	return (exit - entry) * side.Sign() / inst.TickSize * inst.TickValue * volume
}

// markLocked revalues positions at the side they would close on
func (v *Venue) markLocked() {
	bid, ask := v.bidAskLocked()
	for _, p := range v.positions {
		if p.Side == types.SideBuy {
			p.CurrentPrice = bid
		} else {
			p.CurrentPrice = ask
		}
	}
}

// PlacePending rests a stop-entry order
func (v *Venue) PlacePending(ctx context.Context, req exchange.PendingOrderRequest) (string, error) {
	inst := v.cfg.Instrument
	if req.Volume < inst.MinVolume || req.Volume <= 0 {
		return "", exchange.ErrOrderSizeTooSmall
	}
	if req.Price <= 0 {
		return "", fmt.Errorf("invalid entry price %.8g", req.Price)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	id := uuid.NewString()
	v.pending[id] = &exchange.PendingOrder{
		ID:         id,
		Identity:   req.Identity,
		Side:       req.Side,
		Volume:     req.Volume,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Expiration: req.Expiration,
		CreatedAt:  v.now,
	}
	return id, nil
}

// ModifyPosition replaces SL/TP of a position
func (v *Venue) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.positions[positionID]
	if !ok {
		return exchange.ErrPositionNotFound
	}
	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit
	return nil
}

// ClosePosition closes volume of a position at market; volume <= 0 closes it
// fully
func (v *Venue) ClosePosition(ctx context.Context, positionID string, volume float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.positions[positionID]
	if !ok {
		return exchange.ErrPositionNotFound
	}
	reason := ExitPartial
	if volume <= 0 || volume >= p.Volume {
		volume = p.Volume
		reason = ExitClose
	}
	v.exitLocked(p, volume, p.CurrentPrice, reason)
	return nil
}

// CancelPending removes a resting order
func (v *Venue) CancelPending(ctx context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.pending[orderID]; !ok {
		return exchange.ErrOrderNotFound
	}
	delete(v.pending, orderID)
	return nil
}

// OpenPositions lists positions, oldest first
func (v *Venue) OpenPositions(ctx context.Context) ([]exchange.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]exchange.Position, 0, len(v.positions))
	for _, p := range v.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenTime.Equal(out[j].OpenTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenTime.Before(out[j].OpenTime)
	})
	return out, nil
}

// PendingOrders lists resting orders, oldest first
func (v *Venue) PendingOrders(ctx context.Context) ([]exchange.PendingOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]exchange.PendingOrder, 0, len(v.pending))
	for _, o := range v.pending {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Step plays one bar: pending orders trigger, then stops and targets are
// checked, stop first when both are inside the bar. The last price ends at
// the bar close.
func (v *Venue) Step(bar types.OHLCV) []Fill {
	v.mu.Lock()
	defer v.mu.Unlock()

	var fills []Fill
	for _, id := range v.sortedPendingLocked() {
		o := v.pending[id]
		if o.Expired(bar.Timestamp) {
			continue
		}
		price, ok := triggerPrice(o, bar)
		if !ok {
			continue
		}
		delete(v.pending, id)
		pos := &exchange.Position{
			ID:           uuid.NewString(),
			Identity:     o.Identity,
			Side:         o.Side,
			Volume:       o.Volume,
			EntryPrice:   price,
			StopLoss:     o.StopLoss,
			TakeProfit:   o.TakeProfit,
			CurrentPrice: price,
			OpenTime:     bar.Timestamp,
		}
		v.positions[pos.ID] = pos
		f := Fill{OrderID: id, PositionID: pos.ID, Side: o.Side, Volume: o.Volume, Price: price, Time: bar.Timestamp}
		fills = append(fills, f)
		v.fills = append(v.fills, f)
	}

	for _, p := range v.sortedPositionsLocked() {
		if exit, reason, ok := exitPrice(p, bar); ok {
			v.exitLocked(p, p.Volume, exit, reason)
		}
	}

	v.last = bar.Close
	v.markLocked()
	return fills
}

// triggerPrice reports whether a stop-entry fills inside bar, and at what
// price. A gap through the level fills at the open.
func triggerPrice(o *exchange.PendingOrder, bar types.OHLCV) (float64, bool) {
	if o.Side == types.SideBuy {
		if bar.High < o.Price {
			return 0, false
		}
		if bar.Open > o.Price {
			return bar.Open, true
		}
		return o.Price, true
	}
	if bar.Low > o.Price {
		return 0, false
	}
	if bar.Open < o.Price {
		return bar.Open, true
	}
	return o.Price, true
}

func exitPrice(p *exchange.Position, bar types.OHLCV) (float64, string, bool) {
	if p.Side == types.SideBuy {
		if p.StopLoss > 0 && bar.Low <= p.StopLoss {
			if bar.Open < p.StopLoss {
				return bar.Open, ExitStopLoss, true
			}
			return p.StopLoss, ExitStopLoss, true
		}
		if p.TakeProfit > 0 && bar.High >= p.TakeProfit {
			return p.TakeProfit, ExitTakeProfit, true
		}
		return 0, "", false
	}
	if p.StopLoss > 0 && bar.High >= p.StopLoss {
		if bar.Open > p.StopLoss {
			return bar.Open, ExitStopLoss, true
		}
		return p.StopLoss, ExitStopLoss, true
	}
	if p.TakeProfit > 0 && bar.Low <= p.TakeProfit {
		return p.TakeProfit, ExitTakeProfit, true
	}
	return 0, "", false
}

func (v *Venue) exitLocked(p *exchange.Position, volume, price float64, reason string) {
	pnl := v.pnl(p.Side, p.EntryPrice, price, volume)
	v.balance += pnl
	v.trades = append(v.trades, Trade{
		PositionID: p.ID,
		Side:       p.Side,
		Volume:     volume,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		OpenTime:   p.OpenTime,
		CloseTime:  v.now,
		PnL:        pnl,
		Reason:     reason,
	})
	p.Volume = numeric.Sub(p.Volume, volume)
	if p.Volume <= 0 {
		delete(v.positions, p.ID)
	}
}

func (v *Venue) sortedPendingLocked() []string {
	ids := make([]string, 0, len(v.pending))
	for id := range v.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (v *Venue) sortedPositionsLocked() []*exchange.Position {
	out := make([]*exchange.Position, 0, len(v.positions))
	for _, p := range v.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Trades returns realised exits in order
func (v *Venue) Trades() []Trade {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Trade, len(v.trades))
	copy(out, v.trades)
	return out
}

// Fills returns executed entries in order
func (v *Venue) Fills() []Fill {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Fill, len(v.fills))
	copy(out, v.fills)
	return out
}
