package exchange

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/pkg/types"
)

func testConfig(mode config.TradingMode) *config.Config {
	return &config.Config{
		BotID: 1,
		Exchange: config.ExchangeSettings{
			Name:        "bybit",
			TradingFee:  0.001,
			TradingMode: mode,
		},
		Pair: config.PairSettings{BaseCurrency: "BTC", QuoteCurrency: "USDT"},
		Trading: config.TradingSettings{
			InitialBalance: 1000,
			Timeframe:      "1m",
			StartDate:      "2024-01-01",
			EndDate:        "2024-01-02",
		},
		Grid: config.GridSettings{
			Type:     config.StrategySimpleGrid,
			Spacing:  config.SpacingArithmetic,
			NumGrids: 5,
			Range:    config.GridRange{Top: 110, Bottom: 90},
		},
	}
}

// TestFactoryDispatch checks construction per trading mode.
func TestFactoryDispatch(t *testing.T) {
	svc, err := NewService(testConfig(config.TradingModeLive))
	require.NoError(t, err)
	assert.IsType(t, &BybitService{}, svc)

	svc, err = NewService(testConfig(config.TradingModePaper))
	require.NoError(t, err)
	assert.IsType(t, &PaperService{}, svc)

	svc, err = NewService(testConfig(config.TradingModeBacktest))
	require.NoError(t, err)
	assert.IsType(t, &BacktestService{}, svc)

	bad := testConfig(config.TradingModeLive)
	bad.Exchange.Name = "mtgox"
	_, err = NewService(bad)
	assert.Error(t, err)
}

// TestPaperFillSweep: a resting paper buy fills when the streamed price
// crosses its limit, a sell when the price rises through it.
func TestPaperFillSweep(t *testing.T) {
	paper := NewPaperService(nil, "BTC", "USDT", 1000, 1)
	ctx := context.Background()

	buy, err := paper.PlaceLimitOrder(ctx, "BTCUSDT", types.OrderSideBuy, 0.5, 95)
	require.NoError(t, err)
	sell, err := paper.PlaceLimitOrder(ctx, "BTCUSDT", types.OrderSideSell, 0.5, 105)
	require.NoError(t, err)

	// Price above both triggers: sell fills, buy rests.
	paper.sweepFills(106)

	status, err := paper.GetOrderStatus(ctx, "BTCUSDT", sell.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusClosed, status.Status)
	assert.Equal(t, 105.0, status.AvgFillPrice)

	status, err = paper.GetOrderStatus(ctx, "BTCUSDT", buy.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusOpen, status.Status)

	// Price dropping through the buy limit fills it.
	paper.sweepFills(94)
	status, err = paper.GetOrderStatus(ctx, "BTCUSDT", buy.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusClosed, status.Status)
}

// TestPaperCancelKeepsFilledOrders: cancel only applies to resting orders.
func TestPaperCancelKeepsFilledOrders(t *testing.T) {
	paper := NewPaperService(nil, "BTC", "USDT", 1000, 1)
	ctx := context.Background()

	order, err := paper.PlaceLimitOrder(ctx, "BTCUSDT", types.OrderSideSell, 0.5, 105)
	require.NoError(t, err)

	paper.sweepFills(106)
	require.NoError(t, paper.CancelOrder(ctx, "BTCUSDT", order.OrderID))

	status, err := paper.GetOrderStatus(ctx, "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusClosed, status.Status, "a filled order is never revived")
}

// TestPaperWallet: the virtual wallet satisfies the startup balance check.
func TestPaperWallet(t *testing.T) {
	paper := NewPaperService(nil, "BTC", "USDT", 1500, 0.25)

	balances, err := paper.GetBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1500.0, balances["USDT"].Free)
	assert.Equal(t, 0.25, balances["BTC"].Free)
}

// TestLoadOHLCVFromCSV parses header, second and millisecond timestamps.
func TestLoadOHLCVFromCSV(t *testing.T) {
	content := "timestamp,open,high,low,close,volume\n" +
		"1700000000,100,101,99,100.5,12\n" +
		"1700000060000,100.5,102,100,101.5,8\n"
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	candles, err := loadOHLCVFromCSV(path)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, 100.5, candles[0].Close)
	assert.Equal(t, int64(1700000000), candles[0].Timestamp.Unix())
	assert.Equal(t, int64(1700000060), candles[1].Timestamp.Unix())
	assert.Equal(t, 101.5, candles[1].Close)
}

// TestLoadOHLCVFromCSVErrors covers missing file and empty data.
func TestLoadOHLCVFromCSVErrors(t *testing.T) {
	_, err := loadOHLCVFromCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,open,high,low,close,volume\n"), 0o644))
	_, err = loadOHLCVFromCSV(path)
	assert.Error(t, err)
}

// TestBacktestMarketOrderFillsAtReplayedPrice pins the candle price used by
// market orders during replay.
func TestBacktestMarketOrderFillsAtReplayedPrice(t *testing.T) {
	backtest := NewBacktestService(nil, "")
	ctx := context.Background()

	backtest.SetCurrentPrice(101.5)
	order, err := backtest.PlaceMarketOrder(ctx, "BTCUSDT", types.OrderSideBuy, 2)
	require.NoError(t, err)
	assert.Equal(t, 101.5, order.AvgFillPrice)
	assert.Equal(t, types.OrderStatusClosed, order.Status)

	price, err := backtest.GetCurrentPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 101.5, price)

	assert.Error(t, backtest.ListenToTickerUpdates(ctx, "BTCUSDT", func(float64) {}, 0))
}

// TestParseTickerMessage covers the stream frame parser.
func TestParseTickerMessage(t *testing.T) {
	price, ok := parseTickerMessage([]byte(`{"topic":"tickers.BTCUSDT","data":{"lastPrice":"42000.5"}}`))
	assert.True(t, ok)
	assert.Equal(t, 42000.5, price)

	_, ok = parseTickerMessage([]byte(`{"op":"pong"}`))
	assert.False(t, ok)

	_, ok = parseTickerMessage([]byte(`not json`))
	assert.False(t, ok)
}
