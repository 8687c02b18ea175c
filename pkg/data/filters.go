package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// FilterByDateRange keeps bars opening in [start, end]. A zero bound is open.
func FilterByDateRange(data []types.OHLCV, start, end time.Time) []types.OHLCV {
	var filtered []types.OHLCV
	for _, candle := range data {
		if !start.IsZero() && candle.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && candle.Timestamp.After(end) {
			continue
		}
		filtered = append(filtered, candle)
	}
	return filtered
}

// ValidateTimeSequence ensures data is strictly chronological
func ValidateTimeSequence(data []types.OHLCV) error {
	for i := 1; i < len(data); i++ {
		if data[i].Timestamp.Before(data[i-1].Timestamp) {
			return fmt.Errorf("data not in chronological order at index %d: %s comes after %s",
				i, data[i].Timestamp.Format(time.RFC3339), data[i-1].Timestamp.Format(time.RFC3339))
		}
		if data[i].Timestamp.Equal(data[i-1].Timestamp) {
			return fmt.Errorf("duplicate timestamp at index %d: %s",
				i, data[i].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// SortByTimestamp returns a copy sorted oldest first
func SortByTimestamp(data []types.OHLCV) []types.OHLCV {
	sorted := make([]types.OHLCV, len(data))
	copy(sorted, data)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// RemoveDuplicates drops bars repeating the previous timestamp, keeping the
// first occurrence. The input must be sorted.
func RemoveDuplicates(data []types.OHLCV) []types.OHLCV {
	if len(data) <= 1 {
		return data
	}
	filtered := data[:1]
	for _, candle := range data[1:] {
		if !candle.Timestamp.Equal(filtered[len(filtered)-1].Timestamp) {
			filtered = append(filtered, candle)
		}
	}
	return filtered
}

// CheckSpacing reports the first gap or misalignment against tf, so a replay
// over holes in the data is flagged rather than silently evaluated
func CheckSpacing(data []types.OHLCV, tf types.Timeframe) error {
	step := tf.Duration()
	if step <= 0 {
		return fmt.Errorf("unsupported timeframe %q", tf)
	}
	for i := 1; i < len(data); i++ {
		if gap := data[i].Timestamp.Sub(data[i-1].Timestamp); gap != step {
			return fmt.Errorf("%s bars at %s and %s are %s apart",
				tf, data[i-1].Timestamp.Format(time.RFC3339), data[i].Timestamp.Format(time.RFC3339), gap)
		}
	}
	return nil
}
