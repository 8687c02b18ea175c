package indicators

import (
	"context"
	"fmt"
	"strings"

	"github.com/markcheno/go-talib"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// MAKind selects the moving average used by the higher-timeframe filter
type MAKind string

const (
	MAKindSMA MAKind = "sma"
	MAKindEMA MAKind = "ema"
)

// DefaultLookback is the number of bars requested per indicator read
const DefaultLookback = 300

// ParseMAKind validates a moving average label
func ParseMAKind(s string) (MAKind, error) {
	switch MAKind(strings.ToLower(strings.TrimSpace(s))) {
	case MAKindSMA, "":
		return MAKindSMA, nil
	case MAKindEMA:
		return MAKindEMA, nil
	default:
		return "", fmt.Errorf("unsupported moving average %q", s)
	}
}

// Provider computes indicators on venue bars. Shift counts bars back from
// the forming bar, so shift 1 is the last closed bar.
type Provider struct {
	md       exchange.MarketData
	lookback int
	kind     MAKind
}

// NewProvider creates an indicator provider over a market data source
func NewProvider(md exchange.MarketData, lookback int, kind MAKind) *Provider {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if kind == "" {
		kind = MAKindSMA
	}
	return &Provider{md: md, lookback: lookback, kind: kind}
}

// ATR returns the average true range at shift on timeframe tf
func (p *Provider) ATR(ctx context.Context, tf types.Timeframe, period, shift int) (float64, error) {
	bars, err := p.bars(ctx, tf, period+shift+1)
	if err != nil {
		return 0, err
	}
	return ATRAt(bars, period, shift)
}

// MA returns the configured moving average of closes at shift on timeframe tf
func (p *Provider) MA(ctx context.Context, tf types.Timeframe, period, shift int) (float64, error) {
	bars, err := p.bars(ctx, tf, period+shift)
	if err != nil {
		return 0, err
	}
	return MAAt(bars, p.kind, period, shift)
}

func (p *Provider) bars(ctx context.Context, tf types.Timeframe, need int) ([]types.OHLCV, error) {
	count := p.lookback
	if count < need {
		count = need
	}
	bars, err := p.md.Bars(ctx, tf, count)
	if err != nil {
		return nil, boterrors.NewMarketDataError("indicators", "bars", err)
	}
	return bars, nil
}

// ATRAt computes ATR over newest-first bars and returns the value at shift
func ATRAt(bars []types.OHLCV, period, shift int) (float64, error) {
	if period <= 0 || shift < 0 {
		return 0, fmt.Errorf("invalid ATR period %d or shift %d", period, shift)
	}
	n := len(bars)
	idx := n - 1 - shift
	if idx < period {
		return 0, fmt.Errorf("insufficient data for ATR(%d) at shift %d: have %d bars", period, shift, n)
	}
	high, low, closes := series(bars)
	return talib.Atr(high, low, closes, period)[idx], nil
}

// MAAt computes a moving average of closes over newest-first bars and
// returns the value at shift
func MAAt(bars []types.OHLCV, kind MAKind, period, shift int) (float64, error) {
	if period <= 0 || shift < 0 {
		return 0, fmt.Errorf("invalid MA period %d or shift %d", period, shift)
	}
	n := len(bars)
	idx := n - 1 - shift
	if idx < period-1 {
		return 0, fmt.Errorf("insufficient data for %s(%d) at shift %d: have %d bars", kind, period, shift, n)
	}
	_, _, closes := series(bars)
	switch kind {
	case MAKindEMA:
		return talib.Ema(closes, period)[idx], nil
	default:
		return talib.Sma(closes, period)[idx], nil
	}
}

// series flips newest-first bars into the oldest-first arrays talib expects
func series(bars []types.OHLCV) (high, low, closes []float64) {
	n := len(bars)
	high = make([]float64, n)
	low = make([]float64, n)
	closes = make([]float64, n)
	for i, b := range bars {
		j := n - 1 - i
		high[j] = b.High
		low[j] = b.Low
		closes[j] = b.Close
	}
	return high, low, closes
}
