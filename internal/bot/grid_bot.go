package bot

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/internal/events"
	"github.com/fydblock/gridbot/internal/exchange"
	"github.com/fydblock/gridbot/internal/grid"
	"github.com/fydblock/gridbot/internal/monitoring"
	"github.com/fydblock/gridbot/internal/orders"
	"github.com/fydblock/gridbot/internal/storage"
	"github.com/fydblock/gridbot/internal/strategy"
)

// GridTradingBot assembles one bot instance: config, exchange service (by
// trading mode), grid manager, order ledger, balance tracker, order manager
// and the strategy loop. Bots share no mutable state with each other; the
// ledger file is shared but partitioned by bot id.
type GridTradingBot struct {
	cfg      *config.Config
	eventBus *events.Bus

	exchangeService exchange.Service
	gridManager     *grid.Manager
	ledger          *storage.OrderLedger
	balanceTracker  *orders.BalanceTracker
	orderManager    *orders.Manager
	strategy        *strategy.GridTradingStrategy

	health *monitoring.HealthChecker
}

// NewGridTradingBot builds and wires a bot from its configuration.
func NewGridTradingBot(cfg *config.Config, eventBus *events.Bus) (*GridTradingBot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bot configuration: %w", err)
	}

	exchangeService, err := exchange.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange service: %w", err)
	}

	ledger, err := storage.NewOrderLedger(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open order ledger: %w", err)
	}

	gridManager := grid.NewManager(cfg.Grid)
	balanceTracker := orders.NewBalanceTracker(cfg.Exchange.TradingFee)
	orderManager := orders.NewManager(
		cfg.BotID, cfg.Pair.Symbol(), cfg.Exchange.TradingMode,
		gridManager, balanceTracker, ledger, exchangeService, eventBus,
	)

	strat := strategy.NewGridTradingStrategy(cfg, eventBus, exchangeService, gridManager, orderManager, balanceTracker)
	if err := strat.InitializeStrategy(); err != nil {
		ledger.Close()
		return nil, fmt.Errorf("failed to initialize grid strategy: %w", err)
	}

	bot := &GridTradingBot{
		cfg:             cfg,
		eventBus:        eventBus,
		exchangeService: exchangeService,
		gridManager:     gridManager,
		ledger:          ledger,
		balanceTracker:  balanceTracker,
		orderManager:    orderManager,
		strategy:        strat,
		health:          monitoring.NewHealthChecker(),
	}

	// Keep the health endpoint honest: fills bump the last-trade timestamp,
	// stop events land in the error list when initialization failed.
	eventBus.Subscribe(events.EventOrderFilled, func(event events.Event) {
		bot.health.UpdateLastTrade(event.Timestamp)
	})
	eventBus.Subscribe(events.EventStopBot, func(event events.Event) {
		if strings.Contains(event.Reason, "failed") {
			bot.health.AddError(event.Reason)
		}
	})

	bot.reportRecoveredOrders()
	return bot, nil
}

// reportRecoveredOrders logs ledger rows that survived a previous session.
// The initialization gate cancels and clears them before placing the fresh
// grid. An order that reached the exchange but never got its ledger row is
// not among them and is not canceled.
func (b *GridTradingBot) reportRecoveredOrders() {
	records, err := b.ledger.ListOpenOrders(b.cfg.BotID)
	if err != nil {
		log.Printf("⚠️ Could not read ledger at startup: %v", err)
		return
	}
	if len(records) > 0 {
		log.Printf("♻️ Recovered %d open ledger rows from a previous session; they will be canceled at initialization", len(records))
	}
}

// Run executes the bot until its strategy stops or the context ends.
func (b *GridTradingBot) Run(ctx context.Context) error {
	log.Printf("🤖 Bot %d starting: %s", b.cfg.BotID, b.cfg.Summary())
	b.health.SetConnected(true)

	b.eventBus.Publish(events.Event{
		Type:   events.EventStartBot,
		BotID:  b.cfg.BotID,
		Reason: b.cfg.Summary(),
	})

	err := b.strategy.Run(ctx)
	b.health.SetConnected(false)
	return err
}

// Stop shuts the bot down. sellAssets triggers the emergency path: cancel
// everything and liquidate before disconnecting.
func (b *GridTradingBot) Stop(ctx context.Context, sellAssets bool) {
	b.strategy.Stop(ctx, sellAssets)
	if err := b.ledger.Close(); err != nil {
		log.Printf("⚠️ Error closing ledger: %v", err)
	}
}

// Strategy exposes the strategy for reporting.
func (b *GridTradingBot) Strategy() *strategy.GridTradingStrategy {
	return b.strategy
}

// OrderManager exposes the order manager for reporting.
func (b *GridTradingBot) OrderManager() *orders.Manager {
	return b.orderManager
}

// BalanceTracker exposes the balance tracker for reporting.
func (b *GridTradingBot) BalanceTracker() *orders.BalanceTracker {
	return b.balanceTracker
}

// Health exposes the health checker for the monitoring endpoint.
func (b *GridTradingBot) Health() *monitoring.HealthChecker {
	return b.health
}

// Config returns the bot configuration.
func (b *GridTradingBot) Config() *config.Config {
	return b.cfg
}
