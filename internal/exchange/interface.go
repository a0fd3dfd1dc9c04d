package exchange

import (
	"context"
	"time"

	"github.com/fydblock/gridbot/pkg/types"
)

// TickerCallback is invoked once per price update. The adapter contract is
// single-threaded per bot: callbacks are serialized, never concurrent.
type TickerCallback func(price float64)

// Service is the capability set the engine consumes from an exchange. Live
// and paper implementations differ only in whether orders round-trip to a
// real venue; the backtest implementation replaces the ticker stream with
// candle iteration.
type Service interface {
	Name() string

	// Market data
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.OHLCV, error)

	// Account
	GetBalances(ctx context.Context) (map[string]types.Balance, error)

	// Trading
	PlaceLimitOrder(ctx context.Context, symbol string, side types.OrderSide, quantity, price float64) (*types.Order, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side types.OrderSide, quantity float64) (*types.Order, error)
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// ListenToTickerUpdates blocks, delivering price updates to the callback
	// until the context is done or the stream fails. refreshInterval == 0
	// requests a push-based stream; a positive interval requests polling.
	ListenToTickerUpdates(ctx context.Context, symbol string, callback TickerCallback, refreshInterval time.Duration) error

	CloseConnection() error
}
