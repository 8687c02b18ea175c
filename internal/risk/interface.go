package risk

// PositionSizer defines the interface order placement sizes through.
type PositionSizer interface {
	// Size returns a venue-valid lot or an error wrapping ErrInvalidInput or
	// ErrBelowMinimum.
	Size(req SizeRequest) (float64, error)
}

var _ PositionSizer = Sizer{}
