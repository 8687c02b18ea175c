package risk

import (
	"errors"
	"fmt"

	"github.com/ducminhle1904/confluence-bot/pkg/numeric"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// HardRiskCapPercent bounds the equity at risk of any single lot, whatever
// the configured risk percent says.
const HardRiskCapPercent = 5.0

var (
	// ErrInvalidInput means the market metadata or stop distance cannot be
	// used for sizing.
	ErrInvalidInput = errors.New("invalid sizing input")
	// ErrBelowMinimum means the risk budget cannot buy the venue minimum lot.
	ErrBelowMinimum = errors.New("lot below venue minimum")
)

// SizeRequest is everything the sizer needs.
type SizeRequest struct {
	StopDistance float64 // price units
	RiskPercent  float64
	Equity       float64
	Instrument   types.InstrumentSpec
}

// Sizer converts a stop distance into a venue-valid lot.
type Sizer struct{}

// NewSizer returns a sizer.
func NewSizer() Sizer {
	return Sizer{}
}

// Size returns the lot for req or an error wrapping ErrInvalidInput or
// ErrBelowMinimum. The result never risks more than HardRiskCapPercent.
func (Sizer) Size(req SizeRequest) (float64, error) {
	inst := req.Instrument
	switch {
	case req.StopDistance <= 0:
		return 0, fmt.Errorf("%w: stop distance %.8f", ErrInvalidInput, req.StopDistance)
	case inst.TickSize <= 0:
		return 0, fmt.Errorf("%w: tick size %.8f", ErrInvalidInput, inst.TickSize)
	case inst.TickValue <= 0:
		return 0, fmt.Errorf("%w: tick value %.8f", ErrInvalidInput, inst.TickValue)
	case req.Equity <= 0:
		return 0, fmt.Errorf("%w: equity %.2f", ErrInvalidInput, req.Equity)
	}

	riskPerLot := req.StopDistance / inst.TickSize * inst.TickValue
	riskAmount := req.Equity * req.RiskPercent / 100
	lot := numeric.FloorToStep(riskAmount/riskPerLot, inst.VolumeStep)

	if lot <= 0 || lot < inst.MinVolume {
		return 0, fmt.Errorf("%w: %.8f < %.8f", ErrBelowMinimum, lot, inst.MinVolume)
	}
	if inst.MaxVolume > 0 && lot > inst.MaxVolume {
		lot = numeric.FloorToStep(inst.MaxVolume, inst.VolumeStep)
	}

	capLot := req.Equity * HardRiskCapPercent / 100 / riskPerLot
	if lot > capLot {
		lot = numeric.FloorToStep(capLot, inst.VolumeStep)
		if lot <= 0 || lot < inst.MinVolume {
			return 0, fmt.Errorf("%w: capped lot %.8f < %.8f", ErrBelowMinimum, lot, inst.MinVolume)
		}
	}
	return lot, nil
}

// RiskOf returns the account-currency loss of lot if the stop is hit.
func RiskOf(lot, stopDistance float64, inst types.InstrumentSpec) float64 {
	if inst.TickSize <= 0 {
		return 0
	}
	return lot * stopDistance / inst.TickSize * inst.TickValue
}
