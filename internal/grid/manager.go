package grid

import (
	"log"
	"math"
	"sort"

	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/internal/errors"
	"github.com/fydblock/gridbot/pkg/types"
)

// Manager owns the price lattice and every Level in it. It is the single
// authority for level state transitions and for answering "may I place an
// order here?". Purely in-memory; confined to its bot's goroutine.
type Manager struct {
	settings     config.GridSettings
	strategyType config.StrategyType

	priceGrids   []float64
	centralPrice float64

	// Buy/sell views over priceGrids. Simple grids re-derive them from the
	// market price as a disjoint split; hedged grids keep every rung but the
	// top on the buy side and every rung but the bottom on the sell side.
	sortedBuyGrids  []float64
	sortedSellGrids []float64

	levels map[float64]*Level
}

// NewManager creates a grid manager for the given settings. Call
// InitializeGridsAndLevels before any other operation.
func NewManager(settings config.GridSettings) *Manager {
	return &Manager{
		settings:     settings,
		strategyType: settings.Type,
		levels:       make(map[float64]*Level),
	}
}

// InitializeGridsAndLevels builds the price lattice and creates a Level per
// rung with its initial state. An even requested grid count is bumped to the
// next odd count so the lattice always has a central rung.
func (gm *Manager) InitializeGridsAndLevels() error {
	grids, central, err := gm.calculatePriceGrids()
	if err != nil {
		return err
	}
	gm.priceGrids = grids
	gm.centralPrice = central

	switch gm.strategyType {
	case config.StrategySimpleGrid:
		gm.sortedBuyGrids = gm.sortedBuyGrids[:0]
		gm.sortedSellGrids = gm.sortedSellGrids[:0]
		for _, price := range gm.priceGrids {
			if price <= gm.centralPrice {
				gm.sortedBuyGrids = append(gm.sortedBuyGrids, price)
				gm.levels[price] = NewLevel(price, StateReadyToBuy)
			} else {
				gm.sortedSellGrids = append(gm.sortedSellGrids, price)
				gm.levels[price] = NewLevel(price, StateReadyToSell)
			}
		}

	case config.StrategyHedgedGrid:
		// All rungs can cycle both ways except the top, which only sells.
		gm.sortedBuyGrids = append([]float64(nil), gm.priceGrids[:len(gm.priceGrids)-1]...)
		gm.sortedSellGrids = append([]float64(nil), gm.priceGrids[1:]...)
		top := gm.priceGrids[len(gm.priceGrids)-1]
		for _, price := range gm.priceGrids {
			state := StateReadyToBuyOrSell
			if price == top {
				state = StateReadyToSell
			}
			gm.levels[price] = NewLevel(price, state)
		}

	default:
		return errors.NewInvariantViolation("GridManager", "initialize_grids",
			"unknown strategy type: "+string(gm.strategyType))
	}

	log.Printf("📐 Grids and levels initialized: %d rungs, central price %.8f", len(gm.priceGrids), gm.centralPrice)
	return nil
}

// UpdateZonesBasedOnPrice re-partitions the lattice around the actual market
// price, closing the dead zone between the configured center and the first
// live tick. A rung that is WAITING_FOR_*_FILL has a live order attached and
// its state is never touched here. No-op for hedged grids.
func (gm *Manager) UpdateZonesBasedOnPrice(currentPrice float64) {
	if gm.strategyType != config.StrategySimpleGrid {
		return
	}

	log.Printf("🧭 Re-aligning grid zones to current price %.8f", currentPrice)

	gm.sortedBuyGrids = gm.sortedBuyGrids[:0]
	gm.sortedSellGrids = gm.sortedSellGrids[:0]

	for _, price := range gm.priceGrids {
		level := gm.levels[price]

		idealState := StateReadyToSell
		if price < currentPrice {
			idealState = StateReadyToBuy
			gm.sortedBuyGrids = append(gm.sortedBuyGrids, price)
		} else {
			gm.sortedSellGrids = append(gm.sortedSellGrids, price)
		}

		if level.State.IsIdle() {
			level.State = idealState
		} else {
			log.Printf("   Skipping state update for busy grid %.8f (state: %s)", price, level.State)
		}
	}

	log.Printf("   Buy grids: %d, sell grids: %d", len(gm.sortedBuyGrids), len(gm.sortedSellGrids))
}

// CanPlaceOrder answers whether a new order of the given side may be placed
// at the level right now.
func (gm *Manager) CanPlaceOrder(level *Level, side types.OrderSide) bool {
	switch gm.strategyType {
	case config.StrategySimpleGrid:
		if side == types.OrderSideBuy {
			if level.State != StateReadyToBuy {
				return false
			}
			// If the rung where this buy would exit is still waiting on its
			// own sell fill, buying now would strand inventory between the
			// two rungs. Wait for the neighbor to finish its cycle.
			paired := gm.GetPairedSellLevel(level)
			if paired != nil && paired.State == StateWaitingForSellFill {
				return false
			}
			return true
		}
		return level.State == StateReadyToSell

	case config.StrategyHedgedGrid:
		if side == types.OrderSideBuy {
			return level.State == StateReadyToBuy || level.State == StateReadyToBuyOrSell
		}
		return level.State == StateReadyToSell || level.State == StateReadyToBuyOrSell
	}

	return false
}

// MarkOrderPending attaches the order to the level and moves the level into
// the waiting state matching the order side.
func (gm *Manager) MarkOrderPending(level *Level, order *types.Order) {
	level.AddOrder(order)
	if order.Side == types.OrderSideBuy {
		level.State = StateWaitingForBuyFill
		log.Printf("⏳ Buy order %s pending at grid level %.8f", order.OrderID, level.Price)
	} else {
		level.State = StateWaitingForSellFill
		log.Printf("⏳ Sell order %s pending at grid level %.8f", order.OrderID, level.Price)
	}
}

// CompleteOrder transitions the level (and its paired level) after a fill.
//
// The SIMPLE_GRID sell branch defends a race: when this rung's sell fill
// lands after the rung below has already bought and re-listed this rung as
// its own buy target, the neighbor's claim (WAITING_FOR_BUY_FILL) wins and
// is left untouched.
func (gm *Manager) CompleteOrder(level *Level, side types.OrderSide) error {
	switch gm.strategyType {
	case config.StrategySimpleGrid:
		if side == types.OrderSideBuy {
			level.State = StateReadyToSell
			log.Printf("✅ Buy completed at %.8f, transitioning to READY_TO_SELL", level.Price)
			if level.PairedSellLevel != nil {
				level.PairedSellLevel.State = StateReadyToSell
			}
		} else {
			if level.State == StateWaitingForBuyFill {
				log.Printf("✅ Sell completed at %.8f, but level is claimed by a neighbor buy; keeping state", level.Price)
			} else {
				level.State = StateReadyToBuy
				log.Printf("✅ Sell completed at %.8f, transitioning to READY_TO_BUY", level.Price)
			}
			if level.PairedBuyLevel != nil {
				level.PairedBuyLevel.State = StateReadyToBuy
			}
		}
		return nil

	case config.StrategyHedgedGrid:
		if side == types.OrderSideBuy {
			level.State = StateReadyToBuyOrSell
			if level.PairedSellLevel != nil {
				level.PairedSellLevel.State = StateReadyToSell
			}
		} else {
			level.State = StateReadyToBuyOrSell
			if level.PairedBuyLevel != nil {
				level.PairedBuyLevel.State = StateReadyToBuy
			}
		}
		log.Printf("✅ %s completed at %.8f, transitioning to READY_TO_BUY_OR_SELL", side, level.Price)
		return nil
	}

	return errors.NewInvariantViolation("GridManager", "complete_order",
		"unknown strategy type: "+string(gm.strategyType))
}

// PairGridLevels establishes the buy/sell back-references between two rungs.
// pairingType names the role of the target from the source's point of view.
func (gm *Manager) PairGridLevels(source, target *Level, pairingType string) error {
	switch pairingType {
	case "buy":
		source.PairedBuyLevel = target
		target.PairedSellLevel = source
	case "sell":
		source.PairedSellLevel = target
		target.PairedBuyLevel = source
	default:
		return errors.NewInvariantViolation("GridManager", "pair_grid_levels",
			"invalid pairing type: "+pairingType)
	}
	return nil
}

// GetPairedSellLevel returns the rung immediately above the given buy level
// in ascending price order, or nil for the top rung.
func (gm *Manager) GetPairedSellLevel(buyLevel *Level) *Level {
	idx := gm.indexOfPrice(buyLevel.Price)
	if idx < 0 || idx+1 >= len(gm.priceGrids) {
		return nil
	}
	return gm.levels[gm.priceGrids[idx+1]]
}

// GetGridLevelBelow returns the rung immediately below, or nil for the bottom.
func (gm *Manager) GetGridLevelBelow(level *Level) *Level {
	idx := gm.indexOfPrice(level.Price)
	if idx <= 0 {
		return nil
	}
	return gm.levels[gm.priceGrids[idx-1]]
}

func (gm *Manager) indexOfPrice(price float64) int {
	idx := sort.SearchFloat64s(gm.priceGrids, price)
	if idx < len(gm.priceGrids) && gm.priceGrids[idx] == price {
		return idx
	}
	return -1
}

// GetOrderSizeForGridLevel splits the total account value evenly across the
// rungs and converts the per-rung allocation into base quantity at the given
// price. Returns 0 for an empty lattice.
func (gm *Manager) GetOrderSizeForGridLevel(totalBalance, price float64) float64 {
	totalGrids := len(gm.levels)
	if totalGrids == 0 || price == 0 {
		return 0
	}
	return totalBalance / float64(totalGrids) / price
}

// GetInitialOrderQuantity computes the one-time rebalancing purchase that
// covers the sell side of the grid at startup. The target crypto ratio is
// the share of rungs above the current price; the demanded fiat is clamped
// to what is actually available.
func (gm *Manager) GetInitialOrderQuantity(fiatBalance, cryptoBalance, currentPrice float64) float64 {
	totalGrids := len(gm.priceGrids)
	if totalGrids == 0 || currentPrice == 0 {
		return 0
	}

	cryptoValue := cryptoBalance * currentPrice
	portfolioValue := fiatBalance + cryptoValue

	sellGridCount := 0
	for _, price := range gm.priceGrids {
		if price > currentPrice {
			sellGridCount++
		}
	}

	targetCryptoRatio := float64(sellGridCount) / float64(totalGrids)
	targetCryptoValue := portfolioValue * targetCryptoRatio

	fiatToAllocate := targetCryptoValue - cryptoValue
	if fiatToAllocate < 0 {
		fiatToAllocate = 0
	}
	if fiatToAllocate > fiatBalance {
		fiatToAllocate = fiatBalance
	}

	return fiatToAllocate / currentPrice
}

// GetTriggerPrice returns the central price of the configured grid. It is an
// orientation reference only; zone alignment follows the live market price.
func (gm *Manager) GetTriggerPrice() float64 {
	return gm.centralPrice
}

// PriceGrids returns the ascending rung prices.
func (gm *Manager) PriceGrids() []float64 {
	return gm.priceGrids
}

// SortedBuyGrids returns the current buy-side partition.
func (gm *Manager) SortedBuyGrids() []float64 {
	return gm.sortedBuyGrids
}

// SortedSellGrids returns the current sell-side partition.
func (gm *Manager) SortedSellGrids() []float64 {
	return gm.sortedSellGrids
}

// LevelAt returns the level at an exact rung price, or nil.
func (gm *Manager) LevelAt(price float64) *Level {
	return gm.levels[price]
}

// Levels returns the level map. Callers must not mutate levels directly.
func (gm *Manager) Levels() map[float64]*Level {
	return gm.levels
}

// calculatePriceGrids computes the rung prices and the central price from
// the configured range, count and spacing.
func (gm *Manager) calculatePriceGrids() ([]float64, float64, error) {
	bottom := gm.settings.Range.Bottom
	top := gm.settings.Range.Top
	numGrids := gm.settings.NumGrids

	// An odd number of grid lines guarantees a central rung.
	pointsToGenerate := numGrids
	if numGrids%2 == 0 {
		pointsToGenerate = numGrids + 1
		log.Printf("   Grid count is even, generating %d lines", pointsToGenerate)
	}

	switch gm.settings.Spacing {
	case config.SpacingArithmetic:
		grids := linspace(bottom, top, pointsToGenerate)
		central := (top + bottom) / 2
		return grids, central, nil

	case config.SpacingGeometric:
		if pointsToGenerate <= 1 {
			return []float64{bottom}, bottom, nil
		}
		ratio := math.Pow(top/bottom, 1/float64(pointsToGenerate-1))
		grids := make([]float64, 0, pointsToGenerate)
		price := bottom
		for i := 0; i < pointsToGenerate; i++ {
			grids = append(grids, price)
			price *= ratio
		}
		central := grids[len(grids)/2]
		return grids, central, nil
	}

	return nil, 0, errors.NewInvariantViolation("GridManager", "calculate_price_grids",
		"unsupported spacing type: "+string(gm.settings.Spacing))
}

// linspace returns n evenly spaced points from start to stop inclusive.
func linspace(start, stop float64, n int) []float64 {
	if n == 1 {
		return []float64{start}
	}
	step := (stop - start) / float64(n-1)
	points := make([]float64, n)
	for i := 0; i < n; i++ {
		points[i] = start + float64(i)*step
	}
	// Pin the endpoint so float accumulation never shifts the top rung.
	points[n-1] = stop
	return points
}
