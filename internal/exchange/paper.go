package exchange

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fydblock/gridbot/pkg/types"
)

// PaperService simulates order execution over live market data. Market data
// calls pass through to the real venue's public endpoints; orders live in
// memory and fill when the streamed price crosses their limit. The virtual
// wallet satisfies the startup balance check without touching real funds.
type PaperService struct {
	market *BybitService

	baseCurrency  string
	quoteCurrency string

	mu        sync.Mutex
	orders    map[string]*types.Order
	lastPrice float64
	wallet    map[string]types.Balance
}

// NewPaperService creates a paper trading service with the given virtual
// wallet, backed by the market data of the given live service.
func NewPaperService(market *BybitService, baseCurrency, quoteCurrency string, fiatBalance, cryptoBalance float64) *PaperService {
	return &PaperService{
		market:        market,
		baseCurrency:  baseCurrency,
		quoteCurrency: quoteCurrency,
		orders:        make(map[string]*types.Order),
		wallet: map[string]types.Balance{
			quoteCurrency: {Asset: quoteCurrency, Free: fiatBalance, Total: fiatBalance},
			baseCurrency:  {Asset: baseCurrency, Free: cryptoBalance, Total: cryptoBalance},
		},
	}
}

// Name identifies the simulated venue.
func (s *PaperService) Name() string {
	return "paper(" + s.market.Name() + ")"
}

// GetCurrentPrice passes through to the live market data.
func (s *PaperService) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return s.market.GetCurrentPrice(ctx, symbol)
}

// FetchOHLCV passes through to the live market data.
func (s *PaperService) FetchOHLCV(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.OHLCV, error) {
	return s.market.FetchOHLCV(ctx, symbol, timeframe, start, end)
}

// GetBalances returns the virtual wallet.
func (s *PaperService) GetBalances(ctx context.Context) (map[string]types.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balances := make(map[string]types.Balance, len(s.wallet))
	for asset, balance := range s.wallet {
		balances[asset] = balance
	}
	return balances, nil
}

// PlaceLimitOrder books a simulated resting order.
func (s *PaperService) PlaceLimitOrder(ctx context.Context, symbol string, side types.OrderSide, quantity, price float64) (*types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	order := &types.Order{
		OrderID:   uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Type:      types.OrderTypeLimit,
		Price:     price,
		Quantity:  quantity,
		Status:    types.OrderStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.orders[order.OrderID] = order
	return order, nil
}

// PlaceMarketOrder fills a simulated market order at the current price.
func (s *PaperService) PlaceMarketOrder(ctx context.Context, symbol string, side types.OrderSide, quantity float64) (*types.Order, error) {
	price := s.currentOrFetchedPrice(ctx, symbol)
	if price == 0 {
		return nil, fmt.Errorf("no market price available for %s", symbol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	order := &types.Order{
		OrderID:        uuid.NewString(),
		Symbol:         symbol,
		Side:           side,
		Type:           types.OrderTypeMarket,
		Quantity:       quantity,
		FilledQuantity: quantity,
		AvgFillPrice:   price,
		Status:         types.OrderStatusClosed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.orders[order.OrderID] = order
	return order, nil
}

// GetOrderStatus returns the simulated order state.
func (s *PaperService) GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	copied := *order
	return &copied, nil
}

// CancelOrder cancels a simulated resting order.
func (s *PaperService) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if order.Status == types.OrderStatusOpen {
		order.Cancel(time.Now())
	}
	return nil
}

// ListenToTickerUpdates wraps the live stream: every price update first
// sweeps the simulated book for fills, then reaches the bot's callback.
func (s *PaperService) ListenToTickerUpdates(ctx context.Context, symbol string, callback TickerCallback, refreshInterval time.Duration) error {
	return s.market.ListenToTickerUpdates(ctx, symbol, func(price float64) {
		s.sweepFills(price)
		callback(price)
	}, refreshInterval)
}

// sweepFills marks resting orders as filled once the price crosses them: a
// buy fills at or below its limit, a sell at or above.
func (s *PaperService) sweepFills(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastPrice = price
	for _, order := range s.orders {
		if order.Status != types.OrderStatusOpen {
			continue
		}
		crossed := (order.Side == types.OrderSideBuy && price <= order.Price) ||
			(order.Side == types.OrderSideSell && price >= order.Price)
		if crossed {
			order.Close(order.Price, time.Now())
			log.Printf("🧪 Paper fill: %s %f @ %.8f", order.Side, order.Quantity, order.Price)
		}
	}
}

func (s *PaperService) currentOrFetchedPrice(ctx context.Context, symbol string) float64 {
	s.mu.Lock()
	price := s.lastPrice
	s.mu.Unlock()
	if price > 0 {
		return price
	}

	fetched, err := s.market.GetCurrentPrice(ctx, symbol)
	if err != nil {
		log.Printf("⚠️ Paper market price fetch failed: %v", err)
		return 0
	}
	return fetched
}

// CloseConnection releases the underlying market data connection.
func (s *PaperService) CloseConnection() error {
	return s.market.CloseConnection()
}
