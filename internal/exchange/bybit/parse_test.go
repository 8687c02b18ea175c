package bybit

import (
	"testing"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

func ok(result interface{}) *bybit_api.ServerResponse {
	return &bybit_api.ServerResponse{RetCode: 0, RetMsg: "OK", Result: result}
}

func TestParseKlineResponse_NewestFirst(t *testing.T) {
	resp := ok(map[string]interface{}{
		"symbol": "BTCUSDT",
		"list": [][]string{
			{"1717232400000", "100", "110", "95", "105", "12", "1200"},
			{"1717231500000", "90", "101", "89", "100", "8", "800"},
			{"bad"},
		},
	})

	bars, err := parseKlineResponse(resp)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Timestamp.After(bars[1].Timestamp))
	assert.Equal(t, 110.0, bars[0].High)
	assert.Equal(t, 89.0, bars[1].Low)
}

func TestDecodeResult_APIError(t *testing.T) {
	_, err := parseKlineResponse(&bybit_api.ServerResponse{RetCode: ErrCodeRateLimitExceeded, RetMsg: "too many visits"})
	require.Error(t, err)
	assert.True(t, IsRetryableError(err))

	_, err = parseKlineResponse("nope")
	assert.Error(t, err)
}

func TestParseTickerResponse(t *testing.T) {
	q, err := parseTickerResponse(ok(map[string]interface{}{
		"list": []map[string]string{{"symbol": "BTCUSDT", "bid1Price": "64000.1", "ask1Price": "64000.3", "lastPrice": "64000.2"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, 64000.1, q.Bid)
	assert.Equal(t, 64000.3, q.Ask)
}

func TestParseInstrumentInfo_Spec(t *testing.T) {
	resp := ok(map[string]interface{}{
		"list": []map[string]interface{}{
			{"symbol": "ETHUSDT", "priceScale": "2"},
			{
				"symbol":        "BTCUSDT",
				"priceScale":    "1",
				"priceFilter":   map[string]string{"tickSize": "0.1"},
				"lotSizeFilter": map[string]string{"minOrderQty": "0.001", "maxOrderQty": "100", "qtyStep": "0.001"},
			},
		},
	})

	info, err := parseInstrumentInfoResponse(resp, "BTCUSDT")
	require.NoError(t, err)
	spec := info.spec(10)

	assert.Equal(t, 0.1, spec.TickSize)
	assert.Equal(t, spec.TickSize, spec.TickValue)
	assert.Equal(t, 1, spec.Digits)
	assert.Equal(t, 0.001, spec.MinVolume)
	assert.InDelta(t, 1.0, spec.MinStopDistance, 1e-9)

	_, err = parseInstrumentInfoResponse(resp, "SOLUSDT")
	assert.Error(t, err)
}

func TestParsePositionsResponse(t *testing.T) {
	resp := ok(map[string]interface{}{
		"list": []map[string]interface{}{
			{"symbol": "BTCUSDT", "side": "Sell", "size": "0.5", "avgPrice": "65000", "markPrice": "64000", "stopLoss": "66000", "takeProfit": "", "positionIdx": 0, "createdTime": "1717232400000"},
			{"symbol": "BTCUSDT", "side": "", "size": "0", "positionIdx": 0},
		},
	})

	positions, err := parsePositionsResponse(resp, exchange.Identity{Symbol: "BTCUSDT", StrategyID: "s1"})
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, "BTCUSDT:0", p.ID)
	assert.Equal(t, "s1", p.StrategyID)
	assert.Equal(t, types.SideSell, p.Side)
	assert.Equal(t, 1000.0, p.Profit())
	assert.Equal(t, 0.0, p.TakeProfit)
}

func TestParseOpenOrdersResponse(t *testing.T) {
	expiry := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	link := exchange.EncodeOrderTag("s1", expiry)
	resp := ok(map[string]interface{}{
		"list": []map[string]interface{}{
			{"orderId": "a", "orderLinkId": link, "symbol": "BTCUSDT", "side": "Buy", "qty": "0.01", "triggerPrice": "65010.5"},
			{"orderId": "b", "orderLinkId": "manual-order", "symbol": "BTCUSDT", "side": "Sell", "qty": "1", "triggerPrice": "60000"},
			{"orderId": "c", "symbol": "BTCUSDT", "side": "Sell", "qty": "1", "reduceOnly": true},
		},
	})

	orders, err := parseOpenOrdersResponse(resp)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "s1", orders[0].StrategyID)
	assert.True(t, orders[0].Expiration.Equal(expiry))
	assert.Equal(t, 65010.5, orders[0].Price)
	assert.Equal(t, "", orders[1].StrategyID)
}

func TestExecutionError_KeepsVenueCode(t *testing.T) {
	err := executionError("place pending", NewBybitError(ErrCodeInsufficientBalance, "ab not enough"))
	var botErr *boterrors.BotError
	require.ErrorAs(t, err, &botErr)
	assert.Equal(t, "110007", botErr.Code)
	assert.Equal(t, boterrors.ErrorCategoryExecution, botErr.Category)
}

func TestSplitPositionID(t *testing.T) {
	sym, idx, err := splitPositionID("BTCUSDT:2")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", sym)
	assert.Equal(t, 2, idx)

	_, _, err = splitPositionID("BTCUSDT")
	assert.Error(t, err)
}
