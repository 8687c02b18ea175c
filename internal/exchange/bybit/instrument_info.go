package bybit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

const instrumentTTL = time.Hour

// InstrumentInfo represents the parts of the instrument definition the bot
// uses
type InstrumentInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	PriceScale string `json:"priceScale"`
	PriceFilter struct {
		MinPrice string `json:"minPrice"`
		MaxPrice string `json:"maxPrice"`
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
	LotSizeFilter struct {
		MaxOrderQty    string `json:"maxOrderQty"`
		MaxMktOrderQty string `json:"maxMktOrderQty"`
		MinOrderQty    string `json:"minOrderQty"`
		QtyStep        string `json:"qtyStep"`
	} `json:"lotSizeFilter"`

	fetchedAt time.Time
}

// Instrument returns cached instrument metadata, refreshing it hourly
func (c *Client) Instrument(ctx context.Context) (types.InstrumentSpec, error) {
	info, err := c.instrumentInfo(ctx)
	if err != nil {
		return types.InstrumentSpec{}, err
	}
	return info.spec(c.minStopTicks), nil
}

func (c *Client) instrumentInfo(ctx context.Context) (*InstrumentInfo, error) {
	c.instMu.Lock()
	defer c.instMu.Unlock()

	if c.instrument != nil && time.Since(c.instrument.fetchedAt) < instrumentTTL {
		return c.instrument, nil
	}

	params := map[string]interface{}{
		"category": c.category,
		"symbol":   c.identity.Symbol,
	}

	var info *InstrumentInfo
	err := c.retryRead(ctx, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch instrument info: %w", err)
		}
		info, err = parseInstrumentInfoResponse(result, c.identity.Symbol)
		return err
	})
	if err != nil {
		if c.instrument != nil {
			c.log.LogWarning("instrument", "refresh failed, using cached metadata: %v", err)
			return c.instrument, nil
		}
		return nil, marketDataError("instrument", err)
	}

	info.fetchedAt = time.Now()
	c.instrument = info
	c.log.Debug("Instrument %s: tick %s, qty step %s, min qty %s",
		info.Symbol, info.PriceFilter.TickSize, info.LotSizeFilter.QtyStep, info.LotSizeFilter.MinOrderQty)
	return info, nil
}

// parseInstrumentInfoResponse finds the target symbol in the instrument list
func parseInstrumentInfoResponse(response interface{}, targetSymbol string) (*InstrumentInfo, error) {
	var instrumentResult struct {
		Category string           `json:"category"`
		List     []InstrumentInfo `json:"list"`
	}
	if err := decodeResult(response, &instrumentResult); err != nil {
		return nil, err
	}

	for i := range instrumentResult.List {
		if instrumentResult.List[i].Symbol == targetSymbol {
			return &instrumentResult.List[i], nil
		}
	}
	return nil, fmt.Errorf("instrument %s not found", targetSymbol)
}

// spec converts the venue definition. For linear contracts one unit moving
// one tick changes equity by exactly one tick, so tick value equals tick
// size.
func (ii *InstrumentInfo) spec(minStopTicks float64) types.InstrumentSpec {
	tick := parseFloat64(ii.PriceFilter.TickSize)
	digits, _ := strconv.Atoi(ii.PriceScale)
	return types.InstrumentSpec{
		Symbol:          ii.Symbol,
		TickSize:        tick,
		TickValue:       tick,
		Point:           tick,
		Digits:          digits,
		MinVolume:       parseFloat64(ii.LotSizeFilter.MinOrderQty),
		MaxVolume:       parseFloat64(ii.LotSizeFilter.MaxOrderQty),
		VolumeStep:      parseFloat64(ii.LotSizeFilter.QtyStep),
		MinStopDistance: minStopTicks * tick,
	}
}
