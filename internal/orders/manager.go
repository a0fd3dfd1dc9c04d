package orders

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/internal/errors"
	"github.com/fydblock/gridbot/internal/events"
	"github.com/fydblock/gridbot/internal/exchange"
	"github.com/fydblock/gridbot/internal/grid"
	"github.com/fydblock/gridbot/internal/monitoring"
	"github.com/fydblock/gridbot/internal/storage"
	"github.com/fydblock/gridbot/pkg/types"
)

// pendingOrder ties a resting order to the grid level it was placed at.
type pendingOrder struct {
	order *types.Order
	level *grid.Level
}

// Manager owns every side effect between GridManager decisions and the
// exchange: placement, cancellation, fill handling, the startup purchase,
// liquidation, and TP/SL execution. All mutations flow through here so the
// ledger, the balance tracker and the grid stay consistent.
type Manager struct {
	botID       int64
	symbol      string
	tradingMode config.TradingMode

	gridManager     *grid.Manager
	balanceTracker  *BalanceTracker
	ledger          *storage.OrderLedger
	exchangeService exchange.Service
	eventBus        *events.Bus

	pending map[string]*pendingOrder
	trades  int
}

// NewManager wires the order manager to its collaborators.
func NewManager(
	botID int64,
	symbol string,
	tradingMode config.TradingMode,
	gridManager *grid.Manager,
	balanceTracker *BalanceTracker,
	ledger *storage.OrderLedger,
	exchangeService exchange.Service,
	eventBus *events.Bus,
) *Manager {
	return &Manager{
		botID:           botID,
		symbol:          symbol,
		tradingMode:     tradingMode,
		gridManager:     gridManager,
		balanceTracker:  balanceTracker,
		ledger:          ledger,
		exchangeService: exchangeService,
		eventBus:        eventBus,
		pending:         make(map[string]*pendingOrder),
	}
}

// InitializeGridOrders places the initial lattice of resting orders: buys on
// every buy-zone rung below the current price, sells on every sell-zone rung
// above it. A duplicate in the ledger skips the rung; an exchange failure is
// fatal to initialization.
func (om *Manager) InitializeGridOrders(ctx context.Context, currentPrice float64) error {
	totalBalance := om.balanceTracker.GetTotalBalanceValue(currentPrice)

	for _, price := range om.gridManager.SortedBuyGrids() {
		if price >= currentPrice {
			continue
		}
		level := om.gridManager.LevelAt(price)
		if level == nil || !om.gridManager.CanPlaceOrder(level, types.OrderSideBuy) {
			continue
		}

		quantity := om.gridManager.GetOrderSizeForGridLevel(totalBalance, price)
		if quantity <= 0 {
			continue
		}

		if err := om.placeLimitOrderAtLevel(ctx, level, types.OrderSideBuy, quantity); err != nil {
			if errors.HasCategory(err, errors.ErrorCategoryDuplicateOrder) {
				log.Printf("⚠️ Skipping buy at %.8f: %v", price, err)
				continue
			}
			if errors.HasCategory(err, errors.ErrorCategoryInsufficientFunds) {
				// Sizing splits the total account value, so fees and rounding
				// can leave the last rung a fraction short. Skip it.
				log.Printf("⚠️ Not enough fiat for buy at %.8f, skipping rung", price)
				continue
			}
			return errors.NewExchangeFatalError("OrderManager", "initialize_grid_orders", err)
		}
	}

	for _, price := range om.gridManager.SortedSellGrids() {
		if price <= currentPrice {
			continue
		}
		level := om.gridManager.LevelAt(price)
		if level == nil || !om.gridManager.CanPlaceOrder(level, types.OrderSideSell) {
			continue
		}

		quantity := om.gridManager.GetOrderSizeForGridLevel(totalBalance, price)
		if quantity <= 0 {
			continue
		}

		if err := om.placeLimitOrderAtLevel(ctx, level, types.OrderSideSell, quantity); err != nil {
			if errors.HasCategory(err, errors.ErrorCategoryDuplicateOrder) {
				log.Printf("⚠️ Skipping sell at %.8f: %v", price, err)
				continue
			}
			if errors.HasCategory(err, errors.ErrorCategoryInsufficientFunds) {
				log.Printf("⚠️ Not enough crypto for sell at %.8f, skipping rung", price)
				continue
			}
			return errors.NewExchangeFatalError("OrderManager", "initialize_grid_orders", err)
		}
	}

	om.updateOpenOrderGauges()
	log.Printf("📊 Grid orders initialized: %d resting orders", len(om.pending))
	return nil
}

// placeLimitOrderAtLevel runs the shared placement pipeline: duplicate check
// against the ledger, funds reservation, exchange placement, ledger insert,
// level transition, pending registration.
func (om *Manager) placeLimitOrderAtLevel(ctx context.Context, level *grid.Level, side types.OrderSide, quantity float64) error {
	price := level.Price

	existing, err := om.ledger.FindOpenOrderAt(om.botID, price, storage.DefaultPriceTolerance)
	if err != nil {
		return errors.NewLedgerError("OrderManager", "find_open_order", err)
	}
	if existing != nil {
		return errors.NewDuplicateOrderError("OrderManager", price)
	}

	// Reserve before placing so a placement that succeeds is always funded.
	if side == types.OrderSideBuy {
		if err := om.balanceTracker.ReserveFundsForBuy(quantity * price); err != nil {
			return err
		}
	} else {
		if err := om.balanceTracker.ReserveFundsForSell(quantity); err != nil {
			return err
		}
	}

	order, err := om.exchangeService.PlaceLimitOrder(ctx, om.symbol, side, quantity, price)
	if err != nil {
		if side == types.OrderSideBuy {
			om.balanceTracker.ReleaseReservedBuyFunds(quantity * price)
		} else {
			om.balanceTracker.ReleaseReservedSellFunds(quantity)
		}
		return errors.CategorizeExchangeError(err, "OrderManager", "place_limit_order")
	}

	// Between the placement RPC and this insert the state is momentarily
	// inconsistent; an order whose insert never happens has no ledger row,
	// so startup cleanup, which cancels ledger rows only, does not cancel it.
	if err := om.ledger.AddOrder(om.botID, order.OrderID, price, side, quantity); err != nil {
		log.Printf("❌ Ledger insert failed for order %s: %v", order.OrderID, err)
	}

	om.gridManager.MarkOrderPending(level, order)
	om.pending[order.OrderID] = &pendingOrder{order: order, level: level}

	return nil
}

// PerformInitialPurchase executes the one-time market buy that covers the
// sell side of the grid. A failure here is fatal: the strategy cannot start
// with an unbalanced book.
func (om *Manager) PerformInitialPurchase(ctx context.Context, currentPrice float64) error {
	quantity := om.gridManager.GetInitialOrderQuantity(
		om.balanceTracker.FiatBalance(),
		om.balanceTracker.CryptoBalance(),
		currentPrice,
	)
	if quantity <= 0 {
		log.Printf("ℹ️ No initial purchase needed (already holding target crypto)")
		return nil
	}

	log.Printf("🛒 Performing initial purchase: %.8f at ~%.8f", quantity, currentPrice)

	order, err := om.exchangeService.PlaceMarketOrder(ctx, om.symbol, types.OrderSideBuy, quantity)
	if err != nil {
		return errors.NewExchangeFatalError("OrderManager", "perform_initial_purchase", err)
	}

	fillPrice := order.AvgFillPrice
	if fillPrice == 0 {
		fillPrice = currentPrice
	}

	monitoring.RecordFee(om.symbol, om.balanceTracker.OnMarketBuy(quantity, fillPrice))
	om.trades++
	monitoring.RecordTrade(om.symbol, string(types.OrderSideBuy), string(om.tradingMode))

	om.eventBus.Publish(events.Event{
		Type:    events.EventOrderFilled,
		BotID:   om.botID,
		Reason:  "initial purchase",
		Payload: order,
	})

	return nil
}

// SimulateOrderFills fills every resting order whose price lies inside the
// candle range [low, high]. Backtest only. The bar is treated as atomic and
// fills execute at the limit price with no slippage; a documented
// approximation of intrabar behavior.
func (om *Manager) SimulateOrderFills(ctx context.Context, high, low float64, timestamp time.Time) error {
	touched := make([]*pendingOrder, 0, len(om.pending))
	for _, po := range om.pending {
		if po.order.Price >= low && po.order.Price <= high {
			touched = append(touched, po)
		}
	}

	// Deterministic processing order regardless of map iteration.
	sort.Slice(touched, func(i, j int) bool {
		return touched[i].order.Price < touched[j].order.Price
	})

	for _, po := range touched {
		// An earlier fill in this candle may have already consumed this order.
		if _, stillPending := om.pending[po.order.OrderID]; !stillPending {
			continue
		}
		if err := om.handleFilledOrder(ctx, po, po.order.Price, timestamp); err != nil {
			return err
		}
	}

	return nil
}

// ReconcileFills polls the exchange for the status of every resting order
// and routes fills through the same pipeline the backtest simulator uses.
// Live and paper modes call this once per tick. Transient lookup errors are
// logged and retried next tick.
func (om *Manager) ReconcileFills(ctx context.Context) error {
	snapshot := make([]*pendingOrder, 0, len(om.pending))
	for _, po := range om.pending {
		snapshot = append(snapshot, po)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].order.Price < snapshot[j].order.Price
	})

	for _, po := range snapshot {
		if _, stillPending := om.pending[po.order.OrderID]; !stillPending {
			continue
		}

		remote, err := om.exchangeService.GetOrderStatus(ctx, om.symbol, po.order.OrderID)
		if err != nil {
			log.Printf("⚠️ Could not fetch status for order %s: %v", po.order.OrderID, err)
			continue
		}

		switch remote.Status {
		case types.OrderStatusClosed:
			fillPrice := remote.AvgFillPrice
			if fillPrice == 0 {
				fillPrice = po.order.Price
			}
			if err := om.handleFilledOrder(ctx, po, fillPrice, time.Now()); err != nil {
				return err
			}
		case types.OrderStatusCanceled:
			// Canceled outside the bot (manually or by the venue).
			log.Printf("⚠️ Order %s was canceled externally", po.order.OrderID)
			om.forgetCanceledOrder(po)
		}
	}

	return nil
}

// handleFilledOrder settles a fill end to end: order bookkeeping, balances,
// ledger, grid transition, metrics, event, and the exit order that keeps the
// cycle running.
func (om *Manager) handleFilledOrder(ctx context.Context, po *pendingOrder, fillPrice float64, timestamp time.Time) error {
	order := po.order
	level := po.level

	order.Close(fillPrice, timestamp)
	if err := om.ledger.UpdateOrderStatus(order.OrderID, types.OrderStatusClosed); err != nil {
		log.Printf("❌ Ledger update failed for filled order %s: %v", order.OrderID, err)
	}
	delete(om.pending, order.OrderID)

	var fee float64
	if order.Side == types.OrderSideBuy {
		fee = om.balanceTracker.OnBuyOrderFilled(order.Quantity, order.Price)
	} else {
		fee = om.balanceTracker.OnSellOrderFilled(order.Quantity, order.Price)
	}
	monitoring.RecordFee(om.symbol, fee)

	// Pair the exit rung before completing so the transition propagates to
	// it: a filled buy exits one rung up, a filled sell one rung down.
	exitSide := order.Side.Opposite()
	var exitLevel *grid.Level
	if order.Side == types.OrderSideBuy {
		exitLevel = om.gridManager.GetPairedSellLevel(level)
		if exitLevel != nil {
			if err := om.gridManager.PairGridLevels(level, exitLevel, "sell"); err != nil {
				return err
			}
		}
	} else {
		exitLevel = om.gridManager.GetGridLevelBelow(level)
		if exitLevel != nil {
			if err := om.gridManager.PairGridLevels(level, exitLevel, "buy"); err != nil {
				return err
			}
		}
	}

	if err := om.gridManager.CompleteOrder(level, order.Side); err != nil {
		return err
	}

	om.trades++
	monitoring.RecordTrade(om.symbol, string(order.Side), string(om.tradingMode))
	om.eventBus.Publish(events.Event{
		Type:    events.EventOrderFilled,
		BotID:   om.botID,
		Payload: order,
	})

	om.placeExitOrder(ctx, exitLevel, exitSide, order.Quantity)
	om.updateOpenOrderGauges()
	return nil
}

// placeExitOrder lists the opposite side of a completed fill on the paired
// rung. Placement refusals (busy rung, duplicate in the ledger, short
// funds) are normal here and only logged; the rung re-arms on a later cycle.
func (om *Manager) placeExitOrder(ctx context.Context, exitLevel *grid.Level, side types.OrderSide, quantity float64) {
	if exitLevel == nil {
		return
	}
	if !om.gridManager.CanPlaceOrder(exitLevel, side) {
		log.Printf("ℹ️ Exit %s at %.8f not placeable (state: %s)", side, exitLevel.Price, exitLevel.State)
		return
	}
	if err := om.placeLimitOrderAtLevel(ctx, exitLevel, side, quantity); err != nil {
		log.Printf("⚠️ Could not place exit %s at %.8f: %v", side, exitLevel.Price, err)
	}
}

// CancelAllOpenOrders cancels every OPEN ledger order on the exchange and
// marks the rows CANCELED. Cancellation failures are logged and swallowed:
// this is cleanup, and the ledger row flip keeps the books honest either
// way. Grid level states are left alone; the strategy re-aligns zones next.
func (om *Manager) CancelAllOpenOrders(ctx context.Context) error {
	records, err := om.ledger.ListOpenOrders(om.botID)
	if err != nil {
		return errors.NewLedgerError("OrderManager", "cancel_all_open_orders", err)
	}

	for _, record := range records {
		if err := om.exchangeService.CancelOrder(ctx, om.symbol, record.OrderID); err != nil {
			log.Printf("⚠️ Cancel failed for order %s: %v", record.OrderID, err)
		}
		if err := om.ledger.UpdateOrderStatus(record.OrderID, types.OrderStatusCanceled); err != nil {
			log.Printf("❌ Ledger update failed for canceled order %s: %v", record.OrderID, err)
		}

		if po, tracked := om.pending[record.OrderID]; tracked {
			om.forgetCanceledOrder(po)
		}

		om.eventBus.Publish(events.Event{
			Type:   events.EventOrderCancelled,
			BotID:  om.botID,
			Reason: fmt.Sprintf("canceled order %s at %.8f", record.OrderID, record.Price),
		})
	}

	om.updateOpenOrderGauges()
	log.Printf("🚫 Canceled %d open orders", len(records))
	return nil
}

// forgetCanceledOrder releases the reservation behind a canceled order and
// drops it from the pending set. Level states are not touched here.
func (om *Manager) forgetCanceledOrder(po *pendingOrder) {
	po.order.Cancel(time.Now())
	if po.order.Side == types.OrderSideBuy {
		om.balanceTracker.ReleaseReservedBuyFunds(po.order.Quantity * po.order.Price)
	} else {
		om.balanceTracker.ReleaseReservedSellFunds(po.order.Quantity)
	}
	delete(om.pending, po.order.OrderID)
}

// LiquidatePositions sells the entire free crypto balance at market. Used on
// emergency stop, after CancelAllOpenOrders has released reservations.
func (om *Manager) LiquidatePositions(ctx context.Context, currentPrice float64) error {
	quantity := om.balanceTracker.CryptoBalance()
	if quantity <= 0 {
		log.Printf("ℹ️ No crypto to liquidate")
		return nil
	}

	log.Printf("🔻 Liquidating %.8f at ~%.8f", quantity, currentPrice)

	order, err := om.exchangeService.PlaceMarketOrder(ctx, om.symbol, types.OrderSideSell, quantity)
	if err != nil {
		return errors.CategorizeExchangeError(err, "OrderManager", "liquidate_positions")
	}

	fillPrice := order.AvgFillPrice
	if fillPrice == 0 {
		fillPrice = currentPrice
	}
	monitoring.RecordFee(om.symbol, om.balanceTracker.OnMarketSell(quantity, fillPrice))
	om.trades++
	monitoring.RecordTrade(om.symbol, string(types.OrderSideSell), string(om.tradingMode))

	return nil
}

// TradeCount returns the number of fills executed this session.
func (om *Manager) TradeCount() int {
	return om.trades
}

// ExecuteTakeProfitOrStopLossOrder liquidates the crypto position at market
// when a TP or SL threshold triggers. The caller publishes the stop event.
func (om *Manager) ExecuteTakeProfitOrStopLossOrder(ctx context.Context, currentPrice float64, takeProfit bool) error {
	label := "stop-loss"
	if takeProfit {
		label = "take-profit"
	}
	log.Printf("🎯 Executing %s order at %.8f", label, currentPrice)

	if err := om.CancelAllOpenOrders(ctx); err != nil {
		log.Printf("⚠️ Cleanup before %s failed: %v", label, err)
	}

	return om.LiquidatePositions(ctx, currentPrice)
}

// ClearLedger deletes every ledger row for this bot. Called by the
// initialization gate after cancellation so a fresh grid never collides with
// stale rows from a previous session.
func (om *Manager) ClearLedger() error {
	if err := om.ledger.ClearOrders(om.botID); err != nil {
		return errors.NewLedgerError("OrderManager", "clear_ledger", err)
	}
	return nil
}

// OpenOrderCount returns the number of orders currently resting on the book.
func (om *Manager) OpenOrderCount() int {
	return len(om.pending)
}

func (om *Manager) updateOpenOrderGauges() {
	buys, sells := 0, 0
	for _, po := range om.pending {
		if po.order.Side == types.OrderSideBuy {
			buys++
		} else {
			sells++
		}
	}
	monitoring.SetOpenOrders(om.symbol, string(types.OrderSideBuy), buys)
	monitoring.SetOpenOrders(om.symbol, string(types.OrderSideSell), sells)
}
