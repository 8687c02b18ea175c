package bybit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/pkg/numeric"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Trigger directions of conditional orders
const (
	triggerRisesTo = 1
	triggerFallsTo = 2
)

// PlacePending places a conditional market order that triggers at the entry
// price, with SL/TP attached. Ownership and expiration travel in the
// orderLinkId since Bybit conditional orders have no GTD.
func (c *Client) PlacePending(ctx context.Context, req exchange.PendingOrderRequest) (string, error) {
	info, err := c.instrumentInfo(ctx)
	if err != nil {
		return "", executionError("place pending", err)
	}
	tick := parseFloat64(info.PriceFilter.TickSize)
	step := parseFloat64(info.LotSizeFilter.QtyStep)

	direction := triggerRisesTo
	if req.Side == types.SideSell {
		direction = triggerFallsTo
	}

	linkID := exchange.EncodeOrderTag(req.StrategyID, req.Expiration)
	apiParams := map[string]interface{}{
		"category":         c.category,
		"symbol":           req.Symbol,
		"side":             string(sideToBybit(req.Side)),
		"orderType":        "Market",
		"qty":              numeric.Format(req.Volume, step),
		"triggerPrice":     numeric.Format(req.Price, tick),
		"triggerDirection": direction,
		"triggerBy":        "LastPrice",
		"orderLinkId":      linkID,
		"positionIdx":      0,
	}
	if req.StopLoss > 0 {
		apiParams["stopLoss"] = numeric.Format(req.StopLoss, tick)
	}
	if req.TakeProfit > 0 {
		apiParams["takeProfit"] = numeric.Format(req.TakeProfit, tick)
	}
	if req.StopLoss > 0 || req.TakeProfit > 0 {
		apiParams["tpslMode"] = "Full"
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return "", executionError("place pending", fmt.Errorf("failed to place order: %w", err))
	}

	var orderResult struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := decodeResult(result, &orderResult); err != nil {
		return "", executionError("place pending", err)
	}

	c.log.Trade("Placed %s stop-entry %s @ %s (link %s)", req.Side, apiParams["qty"], apiParams["triggerPrice"], linkID)
	return orderResult.OrderID, nil
}

// ModifyPosition sets SL/TP on a position via the trading-stop endpoint
func (c *Client) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit float64) error {
	symbol, idx, err := splitPositionID(positionID)
	if err != nil {
		return executionError("modify position", err)
	}
	info, err := c.instrumentInfo(ctx)
	if err != nil {
		return executionError("modify position", err)
	}
	tick := parseFloat64(info.PriceFilter.TickSize)

	// "0" clears a level on Bybit
	params := map[string]interface{}{
		"category":    c.category,
		"symbol":      symbol,
		"positionIdx": idx,
		"tpslMode":    "Full",
		"stopLoss":    formatLevel(stopLoss, tick),
		"takeProfit":  formatLevel(takeProfit, tick),
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionTradingStop(ctx)
	if err != nil {
		return executionError("modify position", fmt.Errorf("failed to set trading stop: %w", err))
	}
	if err := decodeResult(result, nil); err != nil {
		if bybitErr, ok := err.(*BybitError); ok && bybitErr.Code == ErrCodeNotModified {
			return nil
		}
		return executionError("modify position", err)
	}
	return nil
}

// ClosePosition reduces a position with a reduce-only market order
func (c *Client) ClosePosition(ctx context.Context, positionID string, volume float64) error {
	positions, err := c.OpenPositions(ctx)
	if err != nil {
		return executionError("close position", err)
	}
	var pos *exchange.Position
	for i := range positions {
		if positions[i].ID == positionID {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return executionError("close position", exchange.ErrPositionNotFound)
	}

	info, err := c.instrumentInfo(ctx)
	if err != nil {
		return executionError("close position", err)
	}
	if volume <= 0 || volume > pos.Volume {
		volume = pos.Volume
	}
	_, idx, _ := splitPositionID(positionID)

	params := map[string]interface{}{
		"category":    c.category,
		"symbol":      pos.Symbol,
		"side":        string(sideToBybit(pos.Side.Opposite())),
		"orderType":   "Market",
		"qty":         numeric.Format(volume, parseFloat64(info.LotSizeFilter.QtyStep)),
		"reduceOnly":  true,
		"positionIdx": idx,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return executionError("close position", fmt.Errorf("failed to place close order: %w", err))
	}
	if err := decodeResult(result, nil); err != nil {
		return executionError("close position", err)
	}
	c.log.Trade("Closed %s of %s %s", params["qty"], pos.Side, positionID)
	return nil
}

// CancelPending cancels a resting conditional order
func (c *Client) CancelPending(ctx context.Context, orderID string) error {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   c.identity.Symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return executionError("cancel pending", fmt.Errorf("failed to cancel order: %w", err))
	}
	if err := decodeResult(result, nil); err != nil {
		return executionError("cancel pending", err)
	}
	return nil
}

// OpenPositions lists open positions on the configured symbol. In one-way
// mode the symbol holds a single position, attributed to this strategy.
func (c *Client) OpenPositions(ctx context.Context) ([]exchange.Position, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   c.identity.Symbol,
	}

	var positions []exchange.Position
	err := c.retryRead(ctx, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
		if err != nil {
			return fmt.Errorf("failed to get positions: %w", err)
		}
		positions, err = parsePositionsResponse(result, c.identity)
		return err
	})
	if err != nil {
		return nil, marketDataError("positions", err)
	}
	return positions, nil
}

// PendingOrders lists untriggered conditional orders on the symbol
func (c *Client) PendingOrders(ctx context.Context) ([]exchange.PendingOrder, error) {
	params := map[string]interface{}{
		"category":    c.category,
		"symbol":      c.identity.Symbol,
		"orderFilter": "StopOrder",
	}

	var orders []exchange.PendingOrder
	err := c.retryRead(ctx, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
		if err != nil {
			return fmt.Errorf("failed to get open orders: %w", err)
		}
		orders, err = parseOpenOrdersResponse(result)
		return err
	})
	if err != nil {
		return nil, marketDataError("pending orders", err)
	}
	return orders, nil
}

// parsePositionsResponse parses the positions API response, dropping empty
// slots
func parsePositionsResponse(response interface{}, owner exchange.Identity) ([]exchange.Position, error) {
	var positionResult struct {
		List []struct {
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			Size        string `json:"size"`
			AvgPrice    string `json:"avgPrice"`
			MarkPrice   string `json:"markPrice"`
			TakeProfit  string `json:"takeProfit"`
			StopLoss    string `json:"stopLoss"`
			PositionIdx int    `json:"positionIdx"`
			CreatedTime string `json:"createdTime"`
		} `json:"list"`
	}
	if err := decodeResult(response, &positionResult); err != nil {
		return nil, err
	}

	var positions []exchange.Position
	for _, p := range positionResult.List {
		side, ok := sideFromBybit(p.Side)
		size := parseFloat64(p.Size)
		if !ok || size <= 0 {
			continue
		}
		positions = append(positions, exchange.Position{
			ID:           fmt.Sprintf("%s:%d", p.Symbol, p.PositionIdx),
			Identity:     exchange.Identity{Symbol: p.Symbol, StrategyID: owner.StrategyID},
			Side:         side,
			Volume:       size,
			EntryPrice:   parseFloat64(p.AvgPrice),
			StopLoss:     parseFloat64(p.StopLoss),
			TakeProfit:   parseFloat64(p.TakeProfit),
			CurrentPrice: parseFloat64(p.MarkPrice),
			OpenTime:     parseTimestamp(p.CreatedTime),
		})
	}
	return positions, nil
}

// parseOpenOrdersResponse reads conditional orders. Orders whose link id was
// not produced by EncodeOrderTag come back without a strategy id.
func parseOpenOrdersResponse(response interface{}) ([]exchange.PendingOrder, error) {
	var orderListResult struct {
		List []struct {
			OrderID      string `json:"orderId"`
			OrderLinkID  string `json:"orderLinkId"`
			Symbol       string `json:"symbol"`
			Side         string `json:"side"`
			Qty          string `json:"qty"`
			Price        string `json:"price"`
			TriggerPrice string `json:"triggerPrice"`
			TakeProfit   string `json:"takeProfit"`
			StopLoss     string `json:"stopLoss"`
			ReduceOnly   bool   `json:"reduceOnly"`
			CreatedTime  string `json:"createdTime"`
		} `json:"list"`
	}
	if err := decodeResult(response, &orderListResult); err != nil {
		return nil, err
	}

	var orders []exchange.PendingOrder
	for _, o := range orderListResult.List {
		side, ok := sideFromBybit(o.Side)
		if !ok || o.ReduceOnly {
			continue
		}
		strategyID, expiry, _ := exchange.DecodeOrderTag(o.OrderLinkID)
		price := parseFloat64(o.TriggerPrice)
		if price == 0 {
			price = parseFloat64(o.Price)
		}
		orders = append(orders, exchange.PendingOrder{
			ID:         o.OrderID,
			Identity:   exchange.Identity{Symbol: o.Symbol, StrategyID: strategyID},
			Side:       side,
			Volume:     parseFloat64(o.Qty),
			Price:      price,
			StopLoss:   parseFloat64(o.StopLoss),
			TakeProfit: parseFloat64(o.TakeProfit),
			Expiration: expiry,
			CreatedAt:  parseTimestamp(o.CreatedTime),
		})
	}
	return orders, nil
}

func splitPositionID(id string) (string, int, error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed position id %q", id)
	}
	idx, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed position id %q", id)
	}
	return id[:i], idx, nil
}

func formatLevel(v, tick float64) string {
	if v <= 0 {
		return "0"
	}
	return numeric.Format(v, tick)
}
