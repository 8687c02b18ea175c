package safety

import (
	"fmt"
	"math"
	"time"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// MaxQuoteAge is how stale a venue quote may be before it is refused
const MaxQuoteAge = time.Minute

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

// Err converts a failed result into a validation error
func (r ValidationResult) Err(operation string) error {
	if r.Valid {
		return nil
	}
	return boterrors.NewValidationError("safety", operation, r.Message).WithCode(r.Code)
}

func invalid(code, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Valid: false, Code: code, Message: fmt.Sprintf(format, args...)}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validator checks venue data before the engine acts on it
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePrice validates a price value for trading
func (v *Validator) ValidatePrice(price float64, symbol string) ValidationResult {
	if !finite(price) {
		return invalid("INVALID_PRICE_NAN", "invalid price for %s: %v", symbol, price)
	}
	if price <= 0 {
		return invalid("INVALID_PRICE_NEGATIVE", "invalid price %.8f for %s: price must be positive", price, symbol)
	}
	if price > 1e10 {
		return invalid("PRICE_OUT_OF_BOUNDS", "suspicious price %.8f for %s: exceeds reasonable bounds", price, symbol)
	}
	return ValidationResult{Valid: true}
}

// ValidateQuote rejects crossed, empty or stale quotes
func (v *Validator) ValidateQuote(q types.Quote, now time.Time) ValidationResult {
	if r := v.ValidatePrice(q.Bid, q.Symbol); !r.Valid {
		return r
	}
	if r := v.ValidatePrice(q.Ask, q.Symbol); !r.Valid {
		return r
	}
	if q.Ask < q.Bid {
		return invalid("QUOTE_CROSSED", "crossed quote for %s: bid %.8f > ask %.8f", q.Symbol, q.Bid, q.Ask)
	}
	if !q.Time.IsZero() && !now.IsZero() && now.Sub(q.Time) > MaxQuoteAge {
		return invalid("QUOTE_STALE", "stale quote for %s: %s old", q.Symbol, now.Sub(q.Time).Round(time.Second))
	}
	return ValidationResult{Valid: true}
}

// ValidateInstrument checks the metadata sizing and placement depend on
func (v *Validator) ValidateInstrument(inst types.InstrumentSpec) ValidationResult {
	switch {
	case inst.Symbol == "":
		return invalid("INSTRUMENT_SYMBOL", "instrument without symbol")
	case !finite(inst.TickSize) || inst.TickSize <= 0:
		return invalid("INSTRUMENT_TICK_SIZE", "invalid tick size %.8f for %s", inst.TickSize, inst.Symbol)
	case !finite(inst.TickValue) || inst.TickValue <= 0:
		return invalid("INSTRUMENT_TICK_VALUE", "invalid tick value %.8f for %s", inst.TickValue, inst.Symbol)
	case !finite(inst.Point) || inst.Point <= 0:
		return invalid("INSTRUMENT_POINT", "invalid point %.8f for %s", inst.Point, inst.Symbol)
	case inst.VolumeStep < 0 || inst.MinVolume < 0:
		return invalid("INSTRUMENT_VOLUME", "invalid volume limits for %s", inst.Symbol)
	case inst.MaxVolume > 0 && inst.MaxVolume < inst.MinVolume:
		return invalid("INSTRUMENT_VOLUME", "max volume %.8f below min %.8f for %s", inst.MaxVolume, inst.MinVolume, inst.Symbol)
	case inst.MinStopDistance < 0:
		return invalid("INSTRUMENT_STOP_DISTANCE", "negative min stop distance for %s", inst.Symbol)
	}
	return ValidationResult{Valid: true}
}

// ValidateBalance validates an account snapshot
func (v *Validator) ValidateBalance(acct types.AccountSnapshot) ValidationResult {
	if !finite(acct.Balance) || !finite(acct.Equity) {
		return invalid("BALANCE_NAN", "non-finite account values balance %v equity %v", acct.Balance, acct.Equity)
	}
	if acct.Balance < 0 {
		return invalid("BALANCE_NEGATIVE", "negative balance %.2f %s", acct.Balance, acct.Currency)
	}
	return ValidationResult{Valid: true}
}

// ValidateOrder checks a pending order request against the instrument
func (v *Validator) ValidateOrder(req exchange.PendingOrderRequest, inst types.InstrumentSpec) ValidationResult {
	if req.Symbol != inst.Symbol {
		return invalid("ORDER_SYMBOL", "order for %s on %s venue", req.Symbol, inst.Symbol)
	}
	if req.StrategyID == "" {
		return invalid("ORDER_UNTAGGED", "order without strategy id")
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return invalid("ORDER_SIDE", "order without side")
	}
	if r := v.ValidatePrice(req.Price, req.Symbol); !r.Valid {
		return r
	}
	if !finite(req.Volume) || req.Volume <= 0 || req.Volume < inst.MinVolume {
		return invalid("ORDER_VOLUME", "volume %.8f below minimum %.8f", req.Volume, inst.MinVolume)
	}
	if inst.MaxVolume > 0 && req.Volume > inst.MaxVolume {
		return invalid("ORDER_VOLUME", "volume %.8f above maximum %.8f", req.Volume, inst.MaxVolume)
	}
	sign := req.Side.Sign()
	if req.StopLoss > 0 && (req.Price-req.StopLoss)*sign <= 0 {
		return invalid("ORDER_STOP_SIDE", "stop %.8f on the wrong side of entry %.8f", req.StopLoss, req.Price)
	}
	if req.TakeProfit > 0 && (req.TakeProfit-req.Price)*sign <= 0 {
		return invalid("ORDER_TARGET_SIDE", "target %.8f on the wrong side of entry %.8f", req.TakeProfit, req.Price)
	}
	return ValidationResult{Valid: true}
}
