package data

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// ConvertIntervalToMinutes converts timeframes like "5m", "1h", "4h" to the
// minute directory names used under the data root. Unknown input is
// returned as-is.
func ConvertIntervalToMinutes(interval string) string {
	if _, err := strconv.Atoi(interval); err == nil {
		return interval
	}
	d := types.Timeframe(strings.ToLower(strings.TrimSpace(interval))).Duration()
	if d <= 0 {
		return interval
	}
	return strconv.Itoa(int(d.Minutes()))
}

// FindDataFile locates the candle file for a symbol and interval.
// Structure: {dataRoot}/{exchange}/{category}/{symbol}/{minutes}/candles.csv
// It returns the path found and every path tried.
func FindDataFile(dataRoot, exchange, symbol, interval string) (string, []string) {
	symbol = strings.ToUpper(symbol)
	minutes := ConvertIntervalToMinutes(interval)

	var categories []string
	switch strings.ToLower(exchange) {
	case "bybit":
		categories = []string{"linear", "spot", "inverse"}
	default:
		categories = []string{"linear", "spot", "futures", "inverse"}
	}

	var attempted []string
	for _, category := range categories {
		path := filepath.Join(dataRoot, exchange, category, symbol, minutes, "candles.csv")
		attempted = append(attempted, path)
		if _, err := os.Stat(path); err == nil {
			return path, attempted
		}
	}
	return "", attempted
}
