package exchange

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/fydblock/gridbot/internal/exchange/bybit"
	"github.com/fydblock/gridbot/internal/monitoring"
	"github.com/fydblock/gridbot/pkg/types"
)

const spotCategory = "spot"

// BybitService implements Service against the Bybit v5 API. One instance
// serves one bot; ticker callbacks are serialized on the stream reader or
// the polling loop.
type BybitService struct {
	client *bybit.Client
}

// NewBybitService creates a live trading service. Demo selects the Bybit
// demo environment so paper-style accounts can use the same code path.
func NewBybitService(apiKey, apiSecret string, testnet, demo bool) *BybitService {
	client := bybit.NewClient(bybit.Config{
		APIKey:    apiKey,
		APISecret: apiSecret,
		Testnet:   testnet,
		Demo:      demo,
	})
	return &BybitService{client: client}
}

// Name identifies the venue and environment.
func (s *BybitService) Name() string {
	return "bybit-" + s.client.GetEnvironment()
}

// GetCurrentPrice returns the last traded spot price.
func (s *BybitService) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	started := time.Now()
	defer monitoring.ObserveExchangeCall(s.Name(), "get_latest_price", started)

	return s.client.GetLatestPrice(ctx, spotCategory, symbol)
}

// FetchOHLCV pages backwards-compatible kline requests over [start, end].
func (s *BybitService) FetchOHLCV(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.OHLCV, error) {
	interval, err := bybit.IntervalFromTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	var candles []types.OHLCV
	cursor := start
	for cursor.Before(end) {
		windowStart := cursor
		klines, err := s.client.GetKlines(ctx, bybit.KlineParams{
			Category: spotCategory,
			Symbol:   symbol,
			Interval: interval,
			Start:    &windowStart,
			End:      &end,
			Limit:    1000,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OHLCV window: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		// Bybit returns newest first; walk backwards to keep ascending order.
		for i := len(klines) - 1; i >= 0; i-- {
			k := klines[i]
			if k.StartTime.Before(cursor) || k.StartTime.After(end) {
				continue
			}
			candles = append(candles, types.OHLCV{
				Timestamp: k.StartTime,
				Open:      k.OpenPrice,
				High:      k.HighPrice,
				Low:       k.LowPrice,
				Close:     k.ClosePrice,
				Volume:    k.Volume,
			})
		}

		last := klines[0].StartTime // newest candle in this window
		if !last.After(cursor) {
			break
		}
		cursor = last.Add(time.Millisecond)
	}

	return candles, nil
}

// GetBalances returns the free/used/total balance per coin.
func (s *BybitService) GetBalances(ctx context.Context) (map[string]types.Balance, error) {
	started := time.Now()
	defer monitoring.ObserveExchangeCall(s.Name(), "get_balances", started)

	accountInfo, err := s.client.GetAccountBalance(ctx, bybit.AccountTypeUnified)
	if err != nil {
		return nil, err
	}

	balances := make(map[string]types.Balance, len(accountInfo.Coin))
	for _, coin := range accountInfo.Coin {
		balances[coin.Coin] = types.Balance{
			Asset: coin.Coin,
			Free:  coin.AvailableToTrade,
			Used:  coin.Locked,
			Total: coin.WalletBalance,
		}
	}
	return balances, nil
}

// PlaceLimitOrder places a GTC spot limit order, retrying rate-limit and
// server-error responses.
func (s *BybitService) PlaceLimitOrder(ctx context.Context, symbol string, side types.OrderSide, quantity, price float64) (*types.Order, error) {
	started := time.Now()
	defer monitoring.ObserveExchangeCall(s.Name(), "place_limit_order", started)

	var placed *bybit.Order
	err := s.client.Retry(ctx, func() error {
		var placeErr error
		placed, placeErr = s.client.PlaceLimitOrder(
			ctx, spotCategory, symbol, toBybitSide(side),
			formatQuantity(quantity), formatPrice(price),
		)
		return placeErr
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &types.Order{
		OrderID:   placed.OrderID,
		Symbol:    symbol,
		Side:      side,
		Type:      types.OrderTypeLimit,
		Price:     price,
		Quantity:  quantity,
		Status:    types.OrderStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// PlaceMarketOrder places a spot market order sized in base coin.
func (s *BybitService) PlaceMarketOrder(ctx context.Context, symbol string, side types.OrderSide, quantity float64) (*types.Order, error) {
	started := time.Now()
	defer monitoring.ObserveExchangeCall(s.Name(), "place_market_order", started)

	var placed *bybit.Order
	err := s.client.Retry(ctx, func() error {
		var placeErr error
		placed, placeErr = s.client.PlaceMarketOrder(ctx, spotCategory, symbol, toBybitSide(side), formatQuantity(quantity))
		return placeErr
	})
	if err != nil {
		return nil, err
	}

	// Fetch the execution to learn the average fill price; fall back to an
	// order with no fill price, the caller substitutes the current price.
	now := time.Now()
	order := &types.Order{
		OrderID:   placed.OrderID,
		Symbol:    symbol,
		Side:      side,
		Type:      types.OrderTypeMarket,
		Quantity:  quantity,
		Status:    types.OrderStatusClosed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if remote, err := s.client.GetOrderStatus(ctx, spotCategory, symbol, placed.OrderID); err == nil {
		order.AvgFillPrice, _ = strconv.ParseFloat(remote.AvgPrice, 64)
		order.FilledQuantity, _ = strconv.ParseFloat(remote.CumExecQty, 64)
	} else {
		log.Printf("⚠️ Could not fetch market order execution: %v", err)
	}

	return order, nil
}

// GetOrderStatus maps the venue order state onto the engine's statuses.
func (s *BybitService) GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.Order, error) {
	remote, err := s.client.GetOrderStatus(ctx, spotCategory, symbol, orderID)
	if err != nil {
		return nil, err
	}

	order := &types.Order{
		OrderID:   remote.OrderID,
		Symbol:    remote.Symbol,
		Side:      fromBybitSide(remote.Side),
		Type:      types.OrderTypeLimit,
		Status:    fromBybitStatus(remote.OrderStatus),
		CreatedAt: remote.CreatedTime,
		UpdatedAt: remote.UpdatedTime,
	}
	order.Price, _ = strconv.ParseFloat(remote.Price, 64)
	order.Quantity, _ = strconv.ParseFloat(remote.Qty, 64)
	order.FilledQuantity, _ = strconv.ParseFloat(remote.CumExecQty, 64)
	order.AvgFillPrice, _ = strconv.ParseFloat(remote.AvgPrice, 64)
	if remote.OrderType == bybit.OrderTypeMarket {
		order.Type = types.OrderTypeMarket
	}

	return order, nil
}

// CancelOrder cancels a resting order.
func (s *BybitService) CancelOrder(ctx context.Context, symbol, orderID string) error {
	started := time.Now()
	defer monitoring.ObserveExchangeCall(s.Name(), "cancel_order", started)

	return s.client.CancelOrder(ctx, spotCategory, symbol, orderID)
}

// ListenToTickerUpdates streams prices to the callback. refreshInterval == 0
// uses the public websocket; a positive interval polls the REST ticker.
func (s *BybitService) ListenToTickerUpdates(ctx context.Context, symbol string, callback TickerCallback, refreshInterval time.Duration) error {
	if refreshInterval == 0 {
		stream := newTickerStream(s.client.PublicStreamURL(), symbol)
		return stream.run(ctx, callback)
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			price, err := s.GetCurrentPrice(ctx, symbol)
			if err != nil {
				log.Printf("⚠️ Ticker poll failed: %v", err)
				continue
			}
			callback(price)
		}
	}
}

// CloseConnection releases venue resources. The REST client is stateless.
func (s *BybitService) CloseConnection() error {
	return nil
}

func toBybitSide(side types.OrderSide) bybit.OrderSide {
	if side == types.OrderSideBuy {
		return bybit.OrderSideBuy
	}
	return bybit.OrderSideSell
}

func fromBybitSide(side bybit.OrderSide) types.OrderSide {
	if side == bybit.OrderSideBuy {
		return types.OrderSideBuy
	}
	return types.OrderSideSell
}

func fromBybitStatus(status bybit.OrderStatus) types.OrderStatus {
	switch status {
	case bybit.OrderStatusFilled:
		return types.OrderStatusClosed
	case bybit.OrderStatusCancelled, bybit.OrderStatusRejected:
		return types.OrderStatusCanceled
	default:
		return types.OrderStatusOpen
	}
}

// formatQuantity renders a base-coin quantity for the API.
func formatQuantity(quantity float64) string {
	return strconv.FormatFloat(quantity, 'f', 6, 64)
}

// formatPrice renders a quote price for the API.
func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 4, 64)
}
