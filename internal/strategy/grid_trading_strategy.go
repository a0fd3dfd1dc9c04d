package strategy

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/internal/errors"
	"github.com/fydblock/gridbot/internal/events"
	"github.com/fydblock/gridbot/internal/exchange"
	"github.com/fydblock/gridbot/internal/grid"
	"github.com/fydblock/gridbot/internal/monitoring"
	"github.com/fydblock/gridbot/internal/orders"
	"github.com/fydblock/gridbot/pkg/types"
)

// TickerRefreshInterval selects the live price feed cadence. Zero requests
// the push-based websocket stream.
const TickerRefreshInterval = 0

// AccountSnapshot is one (time, account value, price) observation, recorded
// on every tick for performance reporting.
type AccountSnapshot struct {
	Timestamp    time.Time
	AccountValue float64
	Price        float64
}

// currentPriceSetter is implemented by the backtest exchange so the replay
// loop can pin the price market orders fill at.
type currentPriceSetter interface {
	SetCurrentPrice(price float64)
}

// GridTradingStrategy is the outer control loop of one bot: mode dispatch,
// the serialized tick handler with its once-only initialization gate, TP/SL
// evaluation, and shutdown. One instance runs on one goroutine; Stop is the
// only cross-goroutine entry point and flips an atomic flag the tick handler
// observes at its next run.
type GridTradingStrategy struct {
	cfg             *config.Config
	eventBus        *events.Bus
	exchangeService exchange.Service
	gridManager     *grid.Manager
	orderManager    *orders.Manager
	balanceTracker  *orders.BalanceTracker

	symbol      string
	tradingMode config.TradingMode

	running     atomic.Bool
	initialized bool

	data    []types.OHLCV
	metrics []AccountSnapshot
}

// NewGridTradingStrategy wires the strategy to its collaborators.
func NewGridTradingStrategy(
	cfg *config.Config,
	eventBus *events.Bus,
	exchangeService exchange.Service,
	gridManager *grid.Manager,
	orderManager *orders.Manager,
	balanceTracker *orders.BalanceTracker,
) *GridTradingStrategy {
	return &GridTradingStrategy{
		cfg:             cfg,
		eventBus:        eventBus,
		exchangeService: exchangeService,
		gridManager:     gridManager,
		orderManager:    orderManager,
		balanceTracker:  balanceTracker,
		symbol:          cfg.Pair.Symbol(),
		tradingMode:     cfg.Exchange.TradingMode,
	}
}

// InitializeStrategy builds the price lattice. Must be called before Run.
func (s *GridTradingStrategy) InitializeStrategy() error {
	return s.gridManager.InitializeGridsAndLevels()
}

// IsRunning reports whether the strategy is processing ticks.
func (s *GridTradingStrategy) IsRunning() bool {
	return s.running.Load()
}

// Run executes the strategy until it stops. Backtests return when the data
// is exhausted or TP/SL triggers; live and paper runs block on the ticker
// stream until the context is canceled or the stream fails (Stop only makes
// the tick handler ignore further ticks).
func (s *GridTradingStrategy) Run(ctx context.Context) error {
	s.running.Store(true)

	if s.tradingMode == config.TradingModeBacktest {
		err := s.runBacktest(ctx)
		s.running.Store(false)
		log.Printf("🏁 Backtest simulation finished")
		return err
	}

	return s.runLiveOrPaperTrading(ctx)
}

// Restart resumes a stopped strategy.
func (s *GridTradingStrategy) Restart(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}
	log.Printf("🔄 Restarting trading session")
	return s.Run(ctx)
}

// Stop halts the strategy. With sellAssets, open orders are canceled and the
// position is liquidated at market before the connection closes. Backtests
// never liquidate.
func (s *GridTradingStrategy) Stop(ctx context.Context, sellAssets bool) {
	s.running.Store(false)

	if sellAssets && s.tradingMode != config.TradingModeBacktest {
		log.Printf("🛑 Emergency stop: cancelling orders and liquidating assets")

		currentPrice, err := s.exchangeService.GetCurrentPrice(ctx, s.symbol)
		if err != nil {
			log.Printf("⚠️ Could not fetch price for liquidation: %v", err)
		} else {
			if err := s.orderManager.CancelAllOpenOrders(ctx); err != nil {
				log.Printf("⚠️ Error canceling orders during shutdown: %v", err)
			}
			if err := s.orderManager.LiquidatePositions(ctx, currentPrice); err != nil {
				log.Printf("⚠️ Error liquidating during shutdown: %v", err)
			}
		}
	}

	if err := s.exchangeService.CloseConnection(); err != nil {
		log.Printf("⚠️ Error closing exchange connection: %v", err)
	}
	log.Printf("Trading execution stopped")
}

// runLiveOrPaperTrading synchronizes wallet balances, installs the tick
// handler, and blocks on the ticker stream.
func (s *GridTradingStrategy) runLiveOrPaperTrading(ctx context.Context) error {
	modeLabel := "live"
	if s.tradingMode == config.TradingModePaper {
		modeLabel = "paper"
	}
	log.Printf("🚀 Starting %s trading for %s", modeLabel, s.cfg.Pair)

	if err := s.syncWalletBalances(ctx); err != nil {
		s.running.Store(false)
		return err
	}

	err := s.exchangeService.ListenToTickerUpdates(ctx, s.symbol, func(price float64) {
		s.onTickerUpdate(ctx, price)
	}, TickerRefreshInterval)

	if err != nil && ctx.Err() == nil && s.running.Load() {
		return errors.CategorizeExchangeError(err, "GridTradingStrategy", "listen_to_ticker_updates")
	}
	return nil
}

// syncWalletBalances reads free wallet balances, validates the configured
// investment against free fiat, and caps the bot's effective fiat at the
// investment so extra wallet funds are never touched.
func (s *GridTradingStrategy) syncWalletBalances(ctx context.Context) error {
	log.Printf("🔄 Synchronizing wallet balances with exchange")

	balances, err := s.exchangeService.GetBalances(ctx)
	if err != nil {
		return errors.NewExchangeFatalError("GridTradingStrategy", "sync_wallet_balances", err)
	}

	actualFiat := balances[s.cfg.Pair.QuoteCurrency].Free
	actualCrypto := balances[s.cfg.Pair.BaseCurrency].Free
	investment := s.cfg.Trading.InitialBalance

	log.Printf("   Wallet has: %.2f %s, user allocated: %.2f %s",
		actualFiat, s.cfg.Pair.QuoteCurrency, investment, s.cfg.Pair.QuoteCurrency)

	if actualFiat < investment {
		return errors.NewInsufficientFundsError("GridTradingStrategy", "sync_wallet_balances",
			fmt.Sprintf("wallet has %.2f %s but strategy requires %.2f %s",
				actualFiat, s.cfg.Pair.QuoteCurrency, investment, s.cfg.Pair.QuoteCurrency))
	}

	s.balanceTracker.SetupBalances(investment, actualCrypto)
	return nil
}

// onTickerUpdate is the serialized per-tick handler. One tick at a time per
// bot; the initialization gate is therefore once-only without a lock.
func (s *GridTradingStrategy) onTickerUpdate(ctx context.Context, currentPrice float64) {
	if !s.running.Load() {
		return
	}

	s.recordAccountValue(time.Now(), currentPrice)

	if !s.initialized {
		if err := s.initializeGridOrdersOnce(ctx, currentPrice); err != nil {
			log.Printf("🚨 CRITICAL: initialization failed, stopping strategy: %v", err)
			s.running.Store(false)
			s.eventBus.Publish(events.Event{
				Type:   events.EventStopBot,
				BotID:  s.cfg.BotID,
				Reason: "initialization failed: " + err.Error(),
			})
		}
		// Initialization consumed this tick either way.
		return
	}

	if err := s.orderManager.ReconcileFills(ctx); err != nil {
		log.Printf("❌ Fill reconciliation failed: %v", err)
		if errors.IsFatal(err) {
			s.running.Store(false)
			return
		}
	}

	if s.handleTakeProfitStopLoss(ctx, currentPrice) {
		return
	}
}

// initializeGridOrdersOnce runs the once-only gate: cancel stale orders,
// clear the ledger, re-align zones to the live price, perform the initial
// purchase, place the grid. A failure of the initial purchase or of grid
// placement is fatal; cleanup failures are logged and initialization goes on.
func (s *GridTradingStrategy) initializeGridOrdersOnce(ctx context.Context, currentPrice float64) error {
	log.Printf("⚡ First tick at %.8f (grid center: %.8f), initializing grid",
		currentPrice, s.gridManager.GetTriggerPrice())

	log.Printf("🧹 Cleaning up any existing open orders before start")
	if err := s.orderManager.CancelAllOpenOrders(ctx); err != nil {
		log.Printf("⚠️ Cleanup warning: %v", err)
	}
	if err := s.orderManager.ClearLedger(); err != nil {
		log.Printf("⚠️ Ledger cleanup warning: %v", err)
	}

	s.gridManager.UpdateZonesBasedOnPrice(currentPrice)

	if err := s.orderManager.PerformInitialPurchase(ctx, currentPrice); err != nil {
		return err
	}
	log.Printf("Initial purchase complete, placing grid orders")

	if err := s.orderManager.InitializeGridOrders(ctx, currentPrice); err != nil {
		return err
	}

	s.initialized = true
	return nil
}

// runBacktest iterates historical candles through the same initialization
// gate and fill pipeline the live path uses.
func (s *GridTradingStrategy) runBacktest(ctx context.Context) error {
	if err := s.initializeHistoricalData(ctx); err != nil {
		return err
	}
	log.Printf("▶️ Starting backtest simulation over %d candles", len(s.data))

	s.balanceTracker.SetupBalances(s.cfg.Trading.InitialBalance, 0)

	priceSetter, _ := s.exchangeService.(currentPriceSetter)

	for _, candle := range s.data {
		if !s.running.Load() {
			break
		}

		if priceSetter != nil {
			priceSetter.SetCurrentPrice(candle.Close)
		}

		if !s.initialized {
			if err := s.initializeGridOrdersOnce(ctx, candle.Close); err != nil {
				return err
			}
			s.recordAccountValue(candle.Timestamp, candle.Close)
			continue
		}

		if err := s.orderManager.SimulateOrderFills(ctx, candle.High, candle.Low, candle.Timestamp); err != nil {
			return err
		}

		s.recordAccountValue(candle.Timestamp, candle.Close)

		if s.handleTakeProfitStopLoss(ctx, candle.Close) {
			break
		}
	}

	return nil
}

// initializeHistoricalData loads the candle series for the configured window.
func (s *GridTradingStrategy) initializeHistoricalData(ctx context.Context) error {
	start, err := parseDate(s.cfg.Trading.StartDate)
	if err != nil && s.cfg.Trading.HistoricalDataFile == "" {
		return errors.NewConfigError("GridTradingStrategy", "initialize_historical_data",
			"invalid start_date: "+s.cfg.Trading.StartDate)
	}
	end, err := parseDate(s.cfg.Trading.EndDate)
	if err != nil && s.cfg.Trading.HistoricalDataFile == "" {
		return errors.NewConfigError("GridTradingStrategy", "initialize_historical_data",
			"invalid end_date: "+s.cfg.Trading.EndDate)
	}

	data, err := s.exchangeService.FetchOHLCV(ctx, s.symbol, s.cfg.Trading.Timeframe, start, end)
	if err != nil {
		return errors.NewExchangeFatalError("GridTradingStrategy", "initialize_historical_data", err)
	}
	if len(data) == 0 {
		return errors.NewConfigError("GridTradingStrategy", "initialize_historical_data",
			"no historical data available for backtest")
	}

	s.data = data
	return nil
}

// handleTakeProfitStopLoss evaluates the configured thresholds and, when one
// triggers, liquidates and publishes the stop event.
func (s *GridTradingStrategy) handleTakeProfitStopLoss(ctx context.Context, currentPrice float64) bool {
	if s.balanceTracker.GetAdjustedCryptoBalance() == 0 {
		return false
	}

	if s.cfg.Risk.TakeProfit.Enabled && currentPrice >= s.cfg.Risk.TakeProfit.Threshold {
		log.Printf("💰 Take-profit triggered at %.8f", currentPrice)
		if err := s.orderManager.ExecuteTakeProfitOrStopLossOrder(ctx, currentPrice, true); err != nil {
			log.Printf("❌ Take-profit execution failed: %v", err)
		}
		s.publishStop("Take profit triggered")
		return true
	}

	if s.cfg.Risk.StopLoss.Enabled && currentPrice <= s.cfg.Risk.StopLoss.Threshold {
		log.Printf("📉 Stop-loss triggered at %.8f", currentPrice)
		if err := s.orderManager.ExecuteTakeProfitOrStopLossOrder(ctx, currentPrice, false); err != nil {
			log.Printf("❌ Stop-loss execution failed: %v", err)
		}
		s.publishStop("Stop loss triggered")
		return true
	}

	return false
}

func (s *GridTradingStrategy) publishStop(reason string) {
	s.running.Store(false)
	s.eventBus.Publish(events.Event{
		Type:   events.EventStopBot,
		BotID:  s.cfg.BotID,
		Reason: reason,
	})
}

func (s *GridTradingStrategy) recordAccountValue(timestamp time.Time, price float64) {
	accountValue := s.balanceTracker.GetTotalBalanceValue(price)
	s.metrics = append(s.metrics, AccountSnapshot{
		Timestamp:    timestamp,
		AccountValue: accountValue,
		Price:        price,
	})
	monitoring.SetAccountValue(s.symbol, accountValue)
}

// Metrics returns the recorded per-tick account snapshots.
func (s *GridTradingStrategy) Metrics() []AccountSnapshot {
	return s.metrics
}

// Data returns the backtest candle series, nil outside backtests.
func (s *GridTradingStrategy) Data() []types.OHLCV {
	return s.data
}

// parseDate accepts RFC3339 or plain YYYY-MM-DD.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
