package lifecycle

import (
	"context"
	"math"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/pkg/numeric"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Config holds the position management parameters.
type Config struct {
	Timeframe             types.Timeframe `mapstructure:"-"`
	PartialTriggerR       float64         `mapstructure:"partial_trigger_r"`
	PartialClosePercent   float64         `mapstructure:"partial_close_percent"`
	TrailingMinBars       int             `mapstructure:"trailing_min_bars"`
	TrailingATRMultiplier float64         `mapstructure:"trailing_atr_multiplier"`
}

// Tracker holds the one-shot flags of a single position. A flag is set once
// the transition was attempted; a venue rejection is not retried.
type Tracker struct {
	PositionID    string
	PartialDone   bool
	BreakevenDone bool
}

// ActionKind names a lifecycle transition.
type ActionKind string

const (
	ActionPartialClose ActionKind = "partial_close"
	ActionBreakeven    ActionKind = "breakeven"
	ActionTrailing     ActionKind = "trailing"
)

// Action records one venue call made by the manager.
type Action struct {
	PositionID string
	Kind       ActionKind
	Side       types.Side
	Volume     float64 // closed volume for partial closes
	StopLoss   float64 // new stop for breakeven and trailing
	Price      float64
	Err        error
}

// Manager drives partial close, breakeven and trailing for the positions of
// one identity. It is not safe for concurrent use; the engine loop owns it.
type Manager struct {
	cfg      Config
	identity exchange.Identity
	gateway  exchange.Gateway
	log      *logger.Logger
	trackers map[string]*Tracker
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config, identity exchange.Identity, gateway exchange.Gateway, log *logger.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		identity: identity,
		gateway:  gateway,
		log:      log.With("lifecycle"),
		trackers: make(map[string]*Tracker),
	}
}

// Tracker returns the tracker of a position, if one exists.
func (m *Manager) Tracker(positionID string) (Tracker, bool) {
	t, ok := m.trackers[positionID]
	if !ok {
		return Tracker{}, false
	}
	return *t, true
}

// Tracked returns the number of tracked positions.
func (m *Manager) Tracked() int {
	return len(m.trackers)
}

// Manage runs the three checks for every owned position. atr is the primary
// timeframe ATR of the last closed bar; a non-positive value disables
// trailing for this tick.
func (m *Manager) Manage(ctx context.Context, now time.Time, positions []exchange.Position, q types.Quote, inst types.InstrumentSpec, atr float64) []Action {
	var actions []Action
	seen := make(map[string]struct{}, len(positions))

	for _, pos := range positions {
		if !m.identity.Owns(pos.Identity) {
			continue
		}
		seen[pos.ID] = struct{}{}

		tr, ok := m.trackers[pos.ID]
		if !ok {
			tr = &Tracker{PositionID: pos.ID}
			m.trackers[pos.ID] = tr
			m.log.Info("Tracking %s position %s: %.8g @ %.8g", pos.Side, pos.ID, pos.Volume, pos.EntryPrice)
		}

		pos.CurrentPrice = markPrice(pos, q)

		if a, ok := m.partialClose(ctx, &pos, tr, inst); ok {
			actions = append(actions, a)
		}
		if a, ok := m.breakeven(ctx, &pos, tr, inst); ok {
			actions = append(actions, a)
		}
		if a, ok := m.trail(ctx, now, &pos, inst, atr); ok {
			actions = append(actions, a)
		}
	}

	for id := range m.trackers {
		if _, ok := seen[id]; !ok {
			m.log.Info("Position %s closed, dropping tracker", id)
			delete(m.trackers, id)
		}
	}
	return actions
}

// markPrice is the price a position would close at: bid for longs, ask for
// shorts.
func markPrice(pos exchange.Position, q types.Quote) float64 {
	if pos.Side == types.SideBuy && q.Bid > 0 {
		return q.Bid
	}
	if pos.Side == types.SideSell && q.Ask > 0 {
		return q.Ask
	}
	return pos.CurrentPrice
}

// triggered reports whether profit reached the configured multiple of the
// current risk distance.
func (m *Manager) triggered(pos exchange.Position) bool {
	if !pos.HasStop() || m.cfg.PartialTriggerR <= 0 {
		return false
	}
	risk := math.Abs(pos.EntryPrice - pos.StopLoss)
	return risk > 0 && pos.Profit() >= risk*m.cfg.PartialTriggerR
}

func (m *Manager) partialClose(ctx context.Context, pos *exchange.Position, tr *Tracker, inst types.InstrumentSpec) (Action, bool) {
	if tr.PartialDone || m.cfg.PartialClosePercent <= 0 || !m.triggered(*pos) {
		return Action{}, false
	}

	closeVol := numeric.FloorToStep(pos.Volume*m.cfg.PartialClosePercent/100, inst.VolumeStep)
	remaining := numeric.Sub(pos.Volume, closeVol)
	if closeVol < inst.MinVolume || remaining < inst.MinVolume || closeVol <= 0 {
		m.log.Debug("Partial close of %s skipped: close %.8g / remaining %.8g below min lot %.8g",
			pos.ID, closeVol, remaining, inst.MinVolume)
		return Action{}, false
	}

	a := Action{PositionID: pos.ID, Kind: ActionPartialClose, Side: pos.Side, Volume: closeVol, Price: pos.CurrentPrice}
	if err := m.gateway.ClosePosition(ctx, pos.ID, closeVol); err != nil {
		m.log.LogError("partial close "+pos.ID+" (not retried)", err)
		tr.PartialDone = true
		a.Err = err
		return a, true
	}
	tr.PartialDone = true
	pos.Volume = remaining
	m.log.Trade("Partial close %s: %.8g closed @ %.8g, %.8g remaining", pos.ID, closeVol, pos.CurrentPrice, remaining)
	return a, true
}

func (m *Manager) breakeven(ctx context.Context, pos *exchange.Position, tr *Tracker, inst types.InstrumentSpec) (Action, bool) {
	if tr.BreakevenDone || !m.triggered(*pos) {
		return Action{}, false
	}

	newStop := numeric.RoundToStep(pos.EntryPrice+pos.Side.Sign()*inst.Point, inst.Point)
	if !tightens(pos.Side, pos.StopLoss, newStop) {
		tr.BreakevenDone = true
		m.log.Debug("Breakeven of %s not needed, stop %.8g already beyond %.8g", pos.ID, pos.StopLoss, newStop)
		return Action{}, false
	}
	if !clearOfPrice(pos.Side, pos.CurrentPrice, newStop, inst.MinStopDistance) {
		return Action{}, false
	}

	a := Action{PositionID: pos.ID, Kind: ActionBreakeven, Side: pos.Side, StopLoss: newStop, Price: pos.CurrentPrice}
	if err := m.gateway.ModifyPosition(ctx, pos.ID, newStop, pos.TakeProfit); err != nil {
		m.log.LogError("breakeven "+pos.ID+" (not retried)", err)
		tr.BreakevenDone = true
		a.Err = err
		return a, true
	}
	tr.BreakevenDone = true
	m.log.Trade("Breakeven %s: stop %.8g -> %.8g", pos.ID, pos.StopLoss, newStop)
	pos.StopLoss = newStop
	return a, true
}

func (m *Manager) trail(ctx context.Context, now time.Time, pos *exchange.Position, inst types.InstrumentSpec, atr float64) (Action, bool) {
	if atr <= 0 || m.cfg.TrailingATRMultiplier <= 0 || pos.Profit() <= 0 {
		return Action{}, false
	}
	if tf := m.cfg.Timeframe.Duration(); tf > 0 {
		if int(now.Sub(pos.OpenTime)/tf) < m.cfg.TrailingMinBars {
			return Action{}, false
		}
	}

	newStop := numeric.RoundToStep(pos.CurrentPrice-pos.Side.Sign()*atr*m.cfg.TrailingATRMultiplier, inst.Point)
	if newStop <= 0 || !tightens(pos.Side, pos.StopLoss, newStop) {
		return Action{}, false
	}
	if !clearOfPrice(pos.Side, pos.CurrentPrice, newStop, inst.MinStopDistance) {
		return Action{}, false
	}

	a := Action{PositionID: pos.ID, Kind: ActionTrailing, Side: pos.Side, StopLoss: newStop, Price: pos.CurrentPrice}
	if err := m.gateway.ModifyPosition(ctx, pos.ID, newStop, pos.TakeProfit); err != nil {
		m.log.LogError("trailing "+pos.ID, err)
		a.Err = err
		return a, true
	}
	m.log.Trade("Trailing %s: stop %.8g -> %.8g (price %.8g)", pos.ID, pos.StopLoss, newStop, pos.CurrentPrice)
	pos.StopLoss = newStop
	return a, true
}

// tightens reports whether moving the stop from current to next never
// loosens it. A missing stop is always tightened.
func tightens(side types.Side, current, next float64) bool {
	if current <= 0 {
		return true
	}
	if side == types.SideBuy {
		return next > current
	}
	return next < current
}

// clearOfPrice reports whether a stop keeps the venue minimum distance from
// the current price on the losing side.
func clearOfPrice(side types.Side, price, stop, minDist float64) bool {
	return (price-stop)*side.Sign() >= minDist && (price-stop)*side.Sign() > 0
}
