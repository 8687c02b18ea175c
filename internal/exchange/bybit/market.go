package bybit

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Quote fetches the top of book for the configured symbol
func (c *Client) Quote(ctx context.Context) (types.Quote, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   c.identity.Symbol,
	}

	var q types.Quote
	err := c.retryRead(ctx, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
		if err != nil {
			return fmt.Errorf("failed to get ticker: %w", err)
		}
		q, err = parseTickerResponse(result)
		return err
	})
	if err != nil {
		return types.Quote{}, marketDataError("quote", err)
	}
	return q, nil
}

// Bars fetches up to count klines, newest first. Bybit returns the forming
// bar at index 0, which is the order the engine expects.
func (c *Client) Bars(ctx context.Context, tf types.Timeframe, count int) ([]types.OHLCV, error) {
	interval, err := intervalFor(tf)
	if err != nil {
		return nil, marketDataError("bars", err)
	}
	if count <= 0 {
		count = 200
	}
	if count > 1000 {
		count = 1000
	}

	params := map[string]interface{}{
		"category": c.category,
		"symbol":   c.identity.Symbol,
		"interval": string(interval),
		"limit":    count,
	}

	var bars []types.OHLCV
	err = c.retryRead(ctx, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
		if err != nil {
			return fmt.Errorf("failed to get klines: %w", err)
		}
		bars, err = parseKlineResponse(result)
		return err
	})
	if err != nil {
		return nil, marketDataError("bars", err)
	}
	return bars, nil
}

// parseKlineResponse parses the API response into bars, keeping the venue's
// newest-first order
func parseKlineResponse(response interface{}) ([]types.OHLCV, error) {
	var klineResult struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"`
	}
	if err := decodeResult(response, &klineResult); err != nil {
		return nil, err
	}

	bars := make([]types.OHLCV, 0, len(klineResult.List))
	for _, item := range klineResult.List {
		if len(item) < 6 {
			continue // Skip incomplete data
		}
		// [startTime, open, high, low, close, volume, turnover]
		bars = append(bars, types.OHLCV{
			Timestamp: time.UnixMilli(parseInt64(item[0])).UTC(),
			Open:      parseFloat64(item[1]),
			High:      parseFloat64(item[2]),
			Low:       parseFloat64(item[3]),
			Close:     parseFloat64(item[4]),
			Volume:    parseFloat64(item[5]),
		})
	}
	return bars, nil
}

// parseTickerResponse extracts bid/ask from the ticker response
func parseTickerResponse(response interface{}) (types.Quote, error) {
	var tickerResult struct {
		Category string `json:"category"`
		List     []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
		} `json:"list"`
	}
	if err := decodeResult(response, &tickerResult); err != nil {
		return types.Quote{}, err
	}
	if len(tickerResult.List) == 0 {
		return types.Quote{}, fmt.Errorf("no ticker data found")
	}

	t := tickerResult.List[0]
	q := types.Quote{
		Symbol: t.Symbol,
		Bid:    parseFloat64(t.Bid1Price),
		Ask:    parseFloat64(t.Ask1Price),
		Time:   time.Now().UTC(),
	}
	if q.Bid <= 0 || q.Ask <= 0 {
		last := parseFloat64(t.LastPrice)
		q.Bid, q.Ask = last, last
	}
	return q, nil
}
