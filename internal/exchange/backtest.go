package exchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fydblock/gridbot/pkg/types"
)

// BacktestService serves historical candles and books simulated orders. Fill
// detection is not done here: the order manager sweeps resting orders
// against each candle range itself, so GetOrderStatus simply reflects what
// the simulation recorded.
type BacktestService struct {
	market   *BybitService
	dataFile string

	orders    map[string]*types.Order
	lastPrice float64
}

// NewBacktestService creates a backtest service. When dataFile is empty,
// candles are fetched from the venue's public kline endpoint.
func NewBacktestService(market *BybitService, dataFile string) *BacktestService {
	return &BacktestService{
		market:   market,
		dataFile: dataFile,
		orders:   make(map[string]*types.Order),
	}
}

// Name identifies the simulated venue.
func (s *BacktestService) Name() string {
	return "backtest"
}

// SetCurrentPrice records the price of the candle being replayed; market
// orders fill at this price.
func (s *BacktestService) SetCurrentPrice(price float64) {
	s.lastPrice = price
}

// GetCurrentPrice returns the price of the candle being replayed.
func (s *BacktestService) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if s.lastPrice == 0 {
		return 0, fmt.Errorf("no candle replayed yet")
	}
	return s.lastPrice, nil
}

// FetchOHLCV loads the candle series from the configured CSV file, or from
// the venue's public kline endpoint when no file is configured.
func (s *BacktestService) FetchOHLCV(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.OHLCV, error) {
	if s.dataFile != "" {
		return loadOHLCVFromCSV(s.dataFile)
	}
	return s.market.FetchOHLCV(ctx, symbol, timeframe, start, end)
}

// GetBalances is unused in backtests; balances come from the configuration.
func (s *BacktestService) GetBalances(ctx context.Context) (map[string]types.Balance, error) {
	return map[string]types.Balance{}, nil
}

// PlaceLimitOrder books a simulated resting order.
func (s *BacktestService) PlaceLimitOrder(ctx context.Context, symbol string, side types.OrderSide, quantity, price float64) (*types.Order, error) {
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

// PlaceMarketOrder fills immediately at the replayed candle price.
func (s *BacktestService) PlaceMarketOrder(ctx context.Context, symbol string, side types.OrderSide, quantity float64) (*types.Order, error) {
	now := time.Now()
	order := &types.Order{
		OrderID:        uuid.NewString(),
		Symbol:         symbol,
		Side:           side,
		Type:           types.OrderTypeMarket,
		Quantity:       quantity,
		FilledQuantity: quantity,
		AvgFillPrice:   s.lastPrice,
		Status:         types.OrderStatusClosed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.orders[order.OrderID] = order
	return order, nil
}

// GetOrderStatus returns the simulated order state.
func (s *BacktestService) GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	copied := *order
	return &copied, nil
}

// CancelOrder cancels a simulated resting order.
func (s *BacktestService) CancelOrder(ctx context.Context, symbol, orderID string) error {
	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if order.Status == types.OrderStatusOpen {
		order.Cancel(time.Now())
	}
	return nil
}

// ListenToTickerUpdates is replaced by candle iteration in backtests.
func (s *BacktestService) ListenToTickerUpdates(ctx context.Context, symbol string, callback TickerCallback, refreshInterval time.Duration) error {
	return fmt.Errorf("ticker streaming is not available in backtest mode")
}

// CloseConnection is a no-op for the simulated venue.
func (s *BacktestService) CloseConnection() error {
	return nil
}

// loadOHLCVFromCSV reads candles from a CSV file with the header
// timestamp,open,high,low,close,volume. Timestamps are unix seconds or
// milliseconds.
func loadOHLCVFromCSV(path string) ([]types.OHLCV, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	var candles []types.OHLCV
	for i, row := range rows {
		if len(row) < 6 {
			continue
		}
		// Skip a header row.
		if i == 0 {
			if _, err := strconv.ParseFloat(row[1], 64); err != nil {
				continue
			}
		}

		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp on line %d: %w", i+1, err)
		}
		timestamp := time.Unix(ts, 0)
		if ts > 1e12 {
			timestamp = time.UnixMilli(ts)
		}

		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		closePrice, _ := strconv.ParseFloat(row[4], 64)
		volume, _ := strconv.ParseFloat(row[5], 64)

		candles = append(candles, types.OHLCV{
			Timestamp: timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles found in %s", path)
	}
	return candles, nil
}
