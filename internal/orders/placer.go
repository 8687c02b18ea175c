// Package orders turns an accepted decision into a single resting
// stop-entry order.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/pkg/numeric"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// ExpiryBars is the lifetime of a pending order in bars of its timeframe.
const ExpiryBars = 2

// ErrStopTooClose means SL or TP would sit inside the venue minimum distance.
var ErrStopTooClose = errors.New("level within venue minimum stop distance")

// Config holds placement parameters.
type Config struct {
	EntryOffsetPoints float64 `mapstructure:"entry_offset_points"`
	RiskPercent       float64 `mapstructure:"risk_percent"`
}

// Placement describes a placed order.
type Placement struct {
	OrderID   string
	Request   exchange.PendingOrderRequest
	Cancelled []string
	RiskValue float64
}

// Placer places stop-entry orders for one identity.
type Placer struct {
	cfg      Config
	identity exchange.Identity
	gateway  exchange.Gateway
	sizer    risk.PositionSizer
	log      *logger.Logger
}

// NewPlacer creates an order placer.
func NewPlacer(cfg Config, identity exchange.Identity, gateway exchange.Gateway, sizer risk.PositionSizer, log *logger.Logger) *Placer {
	return &Placer{
		cfg:      cfg,
		identity: identity,
		gateway:  gateway,
		sizer:    sizer,
		log:      log.With("orders"),
	}
}

// Place builds and sizes one stop-entry order for d, cancels this engine's
// pending orders and places it. An invalid level or size aborts before
// anything is cancelled.
func (p *Placer) Place(ctx context.Context, d confirmation.Decision, q types.Quote, inst types.InstrumentSpec, equity float64, now time.Time) (Placement, error) {
	var out Placement

	req, err := p.build(d, q, inst, now)
	if err != nil {
		p.log.LogWarning("place", "%v", err)
		return out, err
	}

	volume, err := p.sizer.Size(risk.SizeRequest{
		StopDistance: math.Abs(req.Price - req.StopLoss),
		RiskPercent:  p.cfg.RiskPercent,
		Equity:       equity,
		Instrument:   inst,
	})
	if err != nil {
		p.log.LogWarning("place", "sizing rejected %s: %v", d.Direction, err)
		return out, boterrors.WrapError(err, boterrors.ErrorCategoryValidation, "orders", "size").WithContext("direction", d.Direction.String())
	}
	req.Volume = volume

	cancelled, err := p.CancelOwn(ctx, nil)
	out.Cancelled = cancelled
	if err != nil {
		return out, err
	}

	id, err := p.gateway.PlacePending(ctx, req)
	if err != nil {
		p.log.Error("Order rejected %s %.8g @ %.8g: %v", req.Side, req.Volume, req.Price, err)
		var botErr *boterrors.BotError
		if errors.As(err, &botErr) {
			return out, err
		}
		return out, boterrors.NewExecutionError("orders", "place pending", err)
	}

	out.OrderID = id
	out.Request = req
	out.RiskValue = risk.RiskOf(volume, math.Abs(req.Price-req.StopLoss), inst)
	p.log.Trade("Placed %s stop-entry %s: %.8g @ %.8g SL %.8g TP %.8g expires %s (risk %.2f)",
		req.Side, id, req.Volume, req.Price, req.StopLoss, req.TakeProfit, req.Expiration.Format(time.RFC3339), out.RiskValue)
	return out, nil
}

// build computes entry, SL, TP and expiration.
func (p *Placer) build(d confirmation.Decision, q types.Quote, inst types.InstrumentSpec, now time.Time) (exchange.PendingOrderRequest, error) {
	if d.StopDistance <= 0 || d.TakeProfitDistance <= 0 {
		return exchange.PendingOrderRequest{}, boterrors.NewValidationError("orders", "build",
			fmt.Sprintf("non-positive distances SL %.8g TP %.8g", d.StopDistance, d.TakeProfitDistance))
	}
	tf := d.Timeframe.Duration()
	if tf <= 0 {
		return exchange.PendingOrderRequest{}, boterrors.NewValidationError("orders", "build",
			fmt.Sprintf("unknown timeframe %q", d.Timeframe))
	}

	offset := p.cfg.EntryOffsetPoints * inst.Point
	var entry float64
	switch d.Direction {
	case types.SideBuy:
		entry = q.Ask + offset
	case types.SideSell:
		entry = q.Bid - offset
	default:
		return exchange.PendingOrderRequest{}, boterrors.NewValidationError("orders", "build", "decision without direction")
	}

	sign := d.Direction.Sign()
	entry = numeric.RoundToStep(entry, inst.Point)
	sl := numeric.RoundToStep(entry-sign*d.StopDistance, inst.Point)
	tp := numeric.RoundToStep(entry+sign*d.TakeProfitDistance, inst.Point)

	if math.Abs(entry-sl) < inst.MinStopDistance || math.Abs(tp-entry) < inst.MinStopDistance || sl <= 0 {
		return exchange.PendingOrderRequest{}, boterrors.WrapError(
			fmt.Errorf("%w: entry %.8g SL %.8g TP %.8g min %.8g", ErrStopTooClose, entry, sl, tp, inst.MinStopDistance),
			boterrors.ErrorCategoryValidation, "orders", "build")
	}

	return exchange.PendingOrderRequest{
		Identity:   p.identity,
		Side:       d.Direction,
		Price:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Expiration: now.Add(ExpiryBars * tf),
	}, nil
}

// CancelOwn cancels this engine's pending orders for which keep returns
// false; a nil keep cancels all of them. Foreign orders are never touched.
func (p *Placer) CancelOwn(ctx context.Context, keep func(exchange.PendingOrder) bool) ([]string, error) {
	pending, err := p.gateway.PendingOrders(ctx)
	if err != nil {
		return nil, boterrors.NewExecutionError("orders", "list pending", err)
	}

	var cancelled []string
	for _, o := range pending {
		if !p.identity.Owns(o.Identity) || (keep != nil && keep(o)) {
			continue
		}
		if err := p.gateway.CancelPending(ctx, o.ID); err != nil {
			p.log.LogError("cancel "+o.ID, err)
			return cancelled, boterrors.NewExecutionError("orders", "cancel pending", err).WithContext("order_id", o.ID)
		}
		p.log.Trade("Cancelled pending %s %s @ %.8g", o.Side, o.ID, o.Price)
		cancelled = append(cancelled, o.ID)
	}
	return cancelled, nil
}

// SweepExpired cancels this engine's pending orders whose expiration passed.
func (p *Placer) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	return p.CancelOwn(ctx, func(o exchange.PendingOrder) bool {
		return !o.Expired(now)
	})
}
