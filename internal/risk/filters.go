package risk

import (
	"math"
	"time"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// SessionConfig describes the trading window in venue hours.
type SessionConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	StartHour        int  `mapstructure:"start_hour"` // inclusive
	EndHour          int  `mapstructure:"end_hour"`   // exclusive; may be below StartHour to wrap midnight
	AvoidFriday      bool `mapstructure:"avoid_friday"`
	FridayCutoffHour int  `mapstructure:"friday_cutoff_hour"`
}

// SessionFilter admits entries only inside the configured window.
type SessionFilter struct {
	cfg SessionConfig
	loc *time.Location
}

// NewSessionFilter creates a filter evaluated in loc (nil means UTC).
func NewSessionFilter(cfg SessionConfig, loc *time.Location) SessionFilter {
	if loc == nil {
		loc = time.UTC
	}
	return SessionFilter{cfg: cfg, loc: loc}
}

// Allows reports whether a new entry may be considered at now.
func (f SessionFilter) Allows(now time.Time) bool {
	if !f.cfg.Enabled {
		return true
	}
	local := now.In(f.loc)
	hour := local.Hour()

	if f.cfg.AvoidFriday && local.Weekday() == time.Friday && hour >= f.cfg.FridayCutoffHour {
		return false
	}

	start, end := f.cfg.StartHour, f.cfg.EndHour
	switch {
	case start == end:
		return true
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

// SpreadFilter rejects entries while the spread is too wide.
type SpreadFilter struct {
	MaxSpreadPoints float64
}

// SpreadPoints converts the quote spread into whole price increments.
func SpreadPoints(q types.Quote, point float64) float64 {
	if point <= 0 {
		return math.Inf(1)
	}
	return math.Round(q.Spread() / point)
}

// Allows reports whether the spread is within the limit. A non-positive
// limit disables the check.
func (f SpreadFilter) Allows(q types.Quote, point float64) bool {
	if f.MaxSpreadPoints <= 0 {
		return true
	}
	return SpreadPoints(q, point) <= f.MaxSpreadPoints
}
