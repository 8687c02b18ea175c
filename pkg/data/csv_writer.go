package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// WriteCSV writes bars in DefaultCSVFormat, oldest first. Turnover is
// approximated as volume times close.
func WriteCSV(path string, bars []types.OHLCV) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create bar file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume", "turnover"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range SortByTimestamp(bars) {
		row := []string{
			b.Timestamp.UTC().Format(DefaultCSVFormat.DateFormat),
			f(b.Open), f(b.High), f(b.Low), f(b.Close), f(b.Volume), f(b.Volume * b.Close),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write bar: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}
