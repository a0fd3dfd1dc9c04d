package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// OrderType represents the type of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// TimeInForce represents how long an order remains active
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // Good Till Cancelled
	TimeInForceIOC TimeInForce = "IOC" // Immediate Or Cancel
	TimeInForceFOK TimeInForce = "FOK" // Fill Or Kill
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// Order represents a trading order
type Order struct {
	OrderID      string      `json:"orderId"`
	OrderLinkID  string      `json:"orderLinkId"`
	Symbol       string      `json:"symbol"`
	Side         OrderSide   `json:"side"`
	OrderType    OrderType   `json:"orderType"`
	Qty          string      `json:"qty"`
	Price        string      `json:"price"`
	TimeInForce  TimeInForce `json:"timeInForce"`
	OrderStatus  OrderStatus `json:"orderStatus"`
	CreatedTime  time.Time   `json:"createdTime"`
	UpdatedTime  time.Time   `json:"updatedTime"`
	CumExecQty   string      `json:"cumExecQty"`
	CumExecValue string      `json:"cumExecValue"`
	AvgPrice     string      `json:"avgPrice"`
}

// PlaceOrderParams holds parameters for placing an order
type PlaceOrderParams struct {
	Category    string      `json:"category"`              // "spot", "linear", "inverse"
	Symbol      string      `json:"symbol"`                // Trading pair symbol
	Side        OrderSide   `json:"side"`                  // Buy or Sell
	OrderType   OrderType   `json:"orderType"`             // Market or Limit
	Qty         string      `json:"qty"`                   // Order quantity
	Price       string      `json:"price,omitempty"`       // Price for limit orders
	TimeInForce TimeInForce `json:"timeInForce,omitempty"` // GTC, IOC, FOK
	OrderLinkID string      `json:"orderLinkId,omitempty"` // Unique order ID set by user
	MarketUnit  string      `json:"marketUnit,omitempty"`  // baseCoin, quoteCoin (for spot market orders)
}

// PlaceOrder places a new order
func (c *Client) PlaceOrder(ctx context.Context, params PlaceOrderParams) (*Order, error) {
	if params.Category == "" {
		params.Category = "spot"
	}
	if params.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if params.Side == "" {
		return nil, fmt.Errorf("side is required")
	}
	if params.OrderType == "" {
		return nil, fmt.Errorf("orderType is required")
	}
	if params.Qty == "" {
		return nil, fmt.Errorf("qty is required")
	}

	// For limit orders, price is required
	if params.OrderType == OrderTypeLimit && params.Price == "" {
		return nil, fmt.Errorf("price is required for limit orders")
	}

	// Set default time in force for limit orders
	if params.OrderType == OrderTypeLimit && params.TimeInForce == "" {
		params.TimeInForce = TimeInForceGTC
	}

	apiParams := map[string]interface{}{
		"category":  params.Category,
		"symbol":    params.Symbol,
		"side":      string(params.Side),
		"orderType": string(params.OrderType),
		"qty":       params.Qty,
	}

	if params.Price != "" {
		apiParams["price"] = params.Price
	}
	if params.TimeInForce != "" {
		apiParams["timeInForce"] = string(params.TimeInForce)
	}
	if params.OrderLinkID != "" {
		apiParams["orderLinkId"] = params.OrderLinkID
	}
	if params.MarketUnit != "" {
		apiParams["marketUnit"] = params.MarketUnit
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	order, err := c.parseOrderResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}

	return order, nil
}

// PlaceMarketOrder places a market order (simplified method)
func (c *Client) PlaceMarketOrder(ctx context.Context, category, symbol string, side OrderSide, qty string) (*Order, error) {
	params := PlaceOrderParams{
		Category:  category,
		Symbol:    symbol,
		Side:      side,
		OrderType: OrderTypeMarket,
		Qty:       qty,
	}
	if category == "spot" {
		// Size spot market orders in base coin, matching limit orders.
		params.MarketUnit = "baseCoin"
	}

	return c.PlaceOrder(ctx, params)
}

// PlaceLimitOrder places a limit order (simplified method)
func (c *Client) PlaceLimitOrder(ctx context.Context, category, symbol string, side OrderSide, qty, price string) (*Order, error) {
	params := PlaceOrderParams{
		Category:    category,
		Symbol:      symbol,
		Side:        side,
		OrderType:   OrderTypeLimit,
		Qty:         qty,
		Price:       price,
		TimeInForce: TimeInForceGTC,
	}

	return c.PlaceOrder(ctx, params)
}

// CancelOrder cancels an existing order
func (c *Client) CancelOrder(ctx context.Context, category, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	_, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	return nil
}

// CancelAllOrders cancels all open orders for a symbol
func (c *Client) CancelAllOrders(ctx context.Context, category, symbol string) error {
	params := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
	}

	_, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelAllOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel all orders: %w", err)
	}

	return nil
}

// GetOpenOrders retrieves open orders
func (c *Client) GetOpenOrders(ctx context.Context, category, symbol string) ([]Order, error) {
	params := map[string]interface{}{
		"category": category,
	}

	if symbol != "" {
		params["symbol"] = symbol
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}

	orders, err := c.parseOrdersResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse orders response: %w", err)
	}

	return orders, nil
}

// GetOrderStatus retrieves the current status of a specific order.
// openOnly=0 includes recently filled and canceled orders in the lookup.
func (c *Client) GetOrderStatus(ctx context.Context, category, symbol, orderID string) (*Order, error) {
	params := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"orderId":  orderID,
		"openOnly": 0,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order status: %w", err)
	}

	orders, err := c.parseOrdersResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order status response: %w", err)
	}

	for i := range orders {
		if orders[i].OrderID == orderID {
			return &orders[i], nil
		}
	}

	return nil, NewBybitError(ErrCodeOrderNotFound, fmt.Sprintf("order %s not found", orderID))
}

// parseOrderResponse parses the place/amend order API response, which only
// returns the order identifiers.
func (c *Client) parseOrderResponse(response interface{}) (*Order, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}

	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var orderResult struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}

	if err := json.Unmarshal(resultBytes, &orderResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order result: %w", err)
	}

	if orderResult.OrderID == "" {
		return nil, fmt.Errorf("order response missing orderId")
	}

	return &Order{
		OrderID:     orderResult.OrderID,
		OrderLinkID: orderResult.OrderLinkID,
		OrderStatus: OrderStatusNew,
		CreatedTime: time.Now(),
		UpdatedTime: time.Now(),
	}, nil
}

// parseOrdersResponse parses the orders list API response
func (c *Client) parseOrdersResponse(response interface{}) ([]Order, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}

	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var listResult struct {
		List []struct {
			OrderID      string `json:"orderId"`
			OrderLinkID  string `json:"orderLinkId"`
			Symbol       string `json:"symbol"`
			Price        string `json:"price"`
			Qty          string `json:"qty"`
			Side         string `json:"side"`
			OrderStatus  string `json:"orderStatus"`
			OrderType    string `json:"orderType"`
			TimeInForce  string `json:"timeInForce"`
			AvgPrice     string `json:"avgPrice"`
			CumExecQty   string `json:"cumExecQty"`
			CumExecValue string `json:"cumExecValue"`
			CreatedTime  string `json:"createdTime"`
			UpdatedTime  string `json:"updatedTime"`
		} `json:"list"`
	}

	if err := json.Unmarshal(resultBytes, &listResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal orders result: %w", err)
	}

	orders := make([]Order, 0, len(listResult.List))
	for _, item := range listResult.List {
		orders = append(orders, Order{
			OrderID:      item.OrderID,
			OrderLinkID:  item.OrderLinkID,
			Symbol:       item.Symbol,
			Side:         OrderSide(item.Side),
			OrderType:    OrderType(item.OrderType),
			Qty:          item.Qty,
			Price:        item.Price,
			TimeInForce:  TimeInForce(item.TimeInForce),
			OrderStatus:  OrderStatus(item.OrderStatus),
			CumExecQty:   item.CumExecQty,
			CumExecValue: item.CumExecValue,
			AvgPrice:     item.AvgPrice,
			CreatedTime:  parseTimestamp(item.CreatedTime),
			UpdatedTime:  parseTimestamp(item.UpdatedTime),
		})
	}

	return orders, nil
}
