package bybit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// KlineInterval represents the time interval for kline data
type KlineInterval string

var intervals = map[types.Timeframe]KlineInterval{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
}

// intervalFor maps a timeframe onto the Bybit kline interval.
func intervalFor(tf types.Timeframe) (KlineInterval, error) {
	iv, ok := intervals[tf]
	if !ok {
		return "", fmt.Errorf("timeframe %s not supported by bybit", tf)
	}
	return iv, nil
}

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

func sideToBybit(s types.Side) OrderSide {
	if s == types.SideSell {
		return OrderSideSell
	}
	return OrderSideBuy
}

func sideFromBybit(s string) (types.Side, bool) {
	switch OrderSide(s) {
	case OrderSideBuy:
		return types.SideBuy, true
	case OrderSideSell:
		return types.SideSell, true
	}
	return 0, false
}

// Helper functions for parsing string numbers
func parseFloat64(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}

// parseTimestamp converts milliseconds timestamp to time.Time
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	return time.UnixMilli(parseInt64(ts)).UTC()
}
