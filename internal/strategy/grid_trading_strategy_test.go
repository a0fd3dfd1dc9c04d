package strategy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/internal/errors"
	"github.com/fydblock/gridbot/internal/events"
	"github.com/fydblock/gridbot/internal/exchange"
	"github.com/fydblock/gridbot/internal/grid"
	"github.com/fydblock/gridbot/internal/orders"
	"github.com/fydblock/gridbot/internal/storage"
	"github.com/fydblock/gridbot/pkg/types"
)

// stubWalletExchange covers the startup path: it serves balances and records
// whether the ticker stream was ever requested.
type stubWalletExchange struct {
	balances     map[string]types.Balance
	listenCalled bool
}

func (s *stubWalletExchange) Name() string { return "stub" }

func (s *stubWalletExchange) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return 100, nil
}

func (s *stubWalletExchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.OHLCV, error) {
	return nil, nil
}

func (s *stubWalletExchange) GetBalances(ctx context.Context) (map[string]types.Balance, error) {
	return s.balances, nil
}

func (s *stubWalletExchange) PlaceLimitOrder(ctx context.Context, symbol string, side types.OrderSide, quantity, price float64) (*types.Order, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubWalletExchange) PlaceMarketOrder(ctx context.Context, symbol string, side types.OrderSide, quantity float64) (*types.Order, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubWalletExchange) GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.Order, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubWalletExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return nil
}

func (s *stubWalletExchange) ListenToTickerUpdates(ctx context.Context, symbol string, callback exchange.TickerCallback, refreshInterval time.Duration) error {
	s.listenCalled = true
	return nil
}

func (s *stubWalletExchange) CloseConnection() error { return nil }

func backtestConfig(t *testing.T, dataFile string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		BotID: 1,
		Exchange: config.ExchangeSettings{
			Name:        "bybit",
			TradingFee:  0.001,
			TradingMode: config.TradingModeBacktest,
		},
		Pair: config.PairSettings{BaseCurrency: "BTC", QuoteCurrency: "USDT"},
		Trading: config.TradingSettings{
			InitialBalance:     1000,
			Timeframe:          "1m",
			StartDate:          "2024-01-01",
			EndDate:            "2024-01-02",
			HistoricalDataFile: dataFile,
		},
		Grid: config.GridSettings{
			Type:     config.StrategySimpleGrid,
			Spacing:  config.SpacingArithmetic,
			NumGrids: 5,
			Range:    config.GridRange{Top: 110, Bottom: 90},
		},
		Database: config.DatabaseSettings{Path: filepath.Join(t.TempDir(), "ledger.db")},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeCandlesCSV(t *testing.T, candles [][6]float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	content := "timestamp,open,high,low,close,volume\n"
	for _, c := range candles {
		content += fmt.Sprintf("%d,%g,%g,%g,%g,%g\n", int64(c[0]), c[1], c[2], c[3], c[4], c[5])
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type strategyFixture struct {
	cfg      *config.Config
	bus      *events.Bus
	ledger   *storage.OrderLedger
	strategy *GridTradingStrategy
	bt       *orders.BalanceTracker
	gm       *grid.Manager
}

func newBacktestFixture(t *testing.T, cfg *config.Config) *strategyFixture {
	t.Helper()

	bus := events.NewBus()
	svc, err := exchange.NewService(cfg)
	require.NoError(t, err)

	gm := grid.NewManager(cfg.Grid)
	ledger, err := storage.NewOrderLedger(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	bt := orders.NewBalanceTracker(cfg.Exchange.TradingFee)
	om := orders.NewManager(cfg.BotID, cfg.Pair.Symbol(), cfg.Exchange.TradingMode, gm, bt, ledger, svc, bus)

	strat := NewGridTradingStrategy(cfg, bus, svc, gm, om, bt)
	require.NoError(t, strat.InitializeStrategy())

	return &strategyFixture{cfg: cfg, bus: bus, ledger: ledger, strategy: strat, bt: bt, gm: gm}
}

// TestBacktestRunEndToEnd replays three candles through the full pipeline:
// initialization gate on the first, a buy fill on the second, a sell fill on
// the third.
func TestBacktestRunEndToEnd(t *testing.T) {
	base := float64(1700000000)
	dataFile := writeCandlesCSV(t, [][6]float64{
		{base, 100.5, 100.5, 100.5, 100.5, 10},
		{base + 60, 100, 100, 94, 96, 10},
		{base + 120, 101, 106, 101, 105.5, 10},
	})
	fx := newBacktestFixture(t, backtestConfig(t, dataFile))

	require.NoError(t, fx.strategy.Run(context.Background()))

	assert.False(t, fx.strategy.IsRunning())
	assert.Len(t, fx.strategy.Metrics(), 3)

	// The initial purchase happened: fees were charged and crypto acquired.
	assert.Greater(t, fx.bt.TotalFees(), 0.0)
	assert.Greater(t, fx.bt.GetAdjustedCryptoBalance(), 0.0)

	// Candle 2 filled the buys at 95 and the sell cycle left rung 95
	// sell-ready; candle 3 filled the sell at 105, leaving it buy-ready.
	assert.Equal(t, grid.StateReadyToSell, fx.gm.LevelAt(95.0).State)
	assert.Equal(t, grid.StateReadyToBuy, fx.gm.LevelAt(105.0).State)

	// Every rung still respects the one-open-order invariant.
	for _, price := range fx.gm.PriceGrids() {
		count, err := fx.ledger.CountOpenOrdersNear(1, price, storage.DefaultPriceTolerance)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, 1, "rung %.2f", price)
	}

	// Account value is tracked against the candle closes.
	first := fx.strategy.Metrics()[0]
	assert.InDelta(t, 100.5, first.Price, 1e-9)
	assert.Greater(t, first.AccountValue, 0.0)
}

// TestBacktestTakeProfitStopsRun: the TP threshold triggers on the third
// candle, liquidates, and publishes STOP_BOT.
func TestBacktestTakeProfitStopsRun(t *testing.T) {
	base := float64(1700000000)
	dataFile := writeCandlesCSV(t, [][6]float64{
		{base, 100.5, 100.5, 100.5, 100.5, 10},
		{base + 60, 100, 100, 94, 96, 10},
		{base + 120, 101, 106, 101, 105.5, 10},
		{base + 180, 105, 107, 104, 106, 10},
	})
	cfg := backtestConfig(t, dataFile)
	cfg.Risk.TakeProfit = config.Threshold{Enabled: true, Threshold: 105}

	fx := newBacktestFixture(t, cfg)

	var mu sync.Mutex
	var stopReasons []string
	fx.bus.Subscribe(events.EventStopBot, func(event events.Event) {
		mu.Lock()
		defer mu.Unlock()
		stopReasons = append(stopReasons, event.Reason)
	})

	require.NoError(t, fx.strategy.Run(context.Background()))

	assert.False(t, fx.strategy.IsRunning())
	// The run stopped at candle 3 (close 105.5 >= 105), never reaching 4.
	assert.Len(t, fx.strategy.Metrics(), 3)

	// Liquidation flattened the position.
	assert.InDelta(t, 0.0, fx.bt.CryptoBalance(), 1e-9)

	// The bus delivery is asynchronous; give the handler a moment.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(stopReasons) == 1
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Contains(t, stopReasons[0], "Take profit")
	mu.Unlock()
}

// TestInsufficientFundsAbortsStartup covers the startup guard: wallet free
// fiat below the configured investment fails with INSUFFICIENT_FUNDS and the
// tick handler is never installed.
func TestInsufficientFundsAbortsStartup(t *testing.T) {
	cfg := backtestConfig(t, "")
	cfg.Exchange.TradingMode = config.TradingModeLive
	cfg.Trading.InitialBalance = 1000

	stub := &stubWalletExchange{
		balances: map[string]types.Balance{
			"USDT": {Asset: "USDT", Free: 800},
			"BTC":  {Asset: "BTC", Free: 0},
		},
	}

	bus := events.NewBus()
	gm := grid.NewManager(cfg.Grid)
	ledger, err := storage.NewOrderLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()

	bt := orders.NewBalanceTracker(cfg.Exchange.TradingFee)
	om := orders.NewManager(cfg.BotID, cfg.Pair.Symbol(), cfg.Exchange.TradingMode, gm, bt, ledger, stub, bus)

	strat := NewGridTradingStrategy(cfg, bus, stub, gm, om, bt)
	require.NoError(t, strat.InitializeStrategy())

	err = strat.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.ErrorCategoryInsufficientFunds))
	assert.False(t, strat.IsRunning())
	assert.False(t, stub.listenCalled, "ticker handler must never be installed")
}

// TestParseDate accepts both date-only and RFC3339 forms.
func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())

	d, err = parseDate("2024-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 12, d.Hour())

	_, err = parseDate("yesterday")
	assert.Error(t, err)
}
