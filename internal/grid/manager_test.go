package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/pkg/types"
)

func newTestManager(t *testing.T, strategyType config.StrategyType, spacing config.SpacingType, bottom, top float64, numGrids int) *Manager {
	t.Helper()
	gm := NewManager(config.GridSettings{
		Type:     strategyType,
		Spacing:  spacing,
		NumGrids: numGrids,
		Range:    config.GridRange{Top: top, Bottom: bottom},
	})
	require.NoError(t, gm.InitializeGridsAndLevels())
	return gm
}

func limitOrder(side types.OrderSide, price, qty float64) *types.Order {
	now := time.Now()
	return &types.Order{
		OrderID:   "test-" + string(side),
		Side:      side,
		Type:      types.OrderTypeLimit,
		Price:     price,
		Quantity:  qty,
		Status:    types.OrderStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestArithmeticGridParity covers the even-count bump: 4 requested grids
// produce 5 rungs with the central rung at the midpoint.
func TestArithmeticGridParity(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 100, 200, 4)

	assert.Equal(t, []float64{100, 125, 150, 175, 200}, gm.PriceGrids())
	assert.Equal(t, 150.0, gm.GetTriggerPrice())
	assert.Equal(t, 150.0, gm.PriceGrids()[2])
}

// TestGeometricGrid checks the geometric progression and its central element.
func TestGeometricGrid(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingGeometric, 100, 400, 3)

	grids := gm.PriceGrids()
	require.Len(t, grids, 3)
	assert.InDelta(t, 100, grids[0], 1e-9)
	assert.InDelta(t, 200, grids[1], 1e-9)
	assert.InDelta(t, 400, grids[2], 1e-9)
	assert.InDelta(t, 200, gm.GetTriggerPrice(), 1e-9)
}

// TestInitialStatesSimpleGrid verifies the static partition around the
// configured central price.
func TestInitialStatesSimpleGrid(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	assert.Equal(t, StateReadyToBuy, gm.LevelAt(90).State)
	assert.Equal(t, StateReadyToBuy, gm.LevelAt(95).State)
	assert.Equal(t, StateReadyToBuy, gm.LevelAt(100).State)
	assert.Equal(t, StateReadyToSell, gm.LevelAt(105).State)
	assert.Equal(t, StateReadyToSell, gm.LevelAt(110).State)
}

// TestInitialStatesHedgedGrid verifies that every rung but the top can cycle
// both ways.
func TestInitialStatesHedgedGrid(t *testing.T) {
	gm := newTestManager(t, config.StrategyHedgedGrid, config.SpacingArithmetic, 90, 110, 5)

	for _, price := range gm.PriceGrids()[:4] {
		assert.Equal(t, StateReadyToBuyOrSell, gm.LevelAt(price).State)
	}
	assert.Equal(t, StateReadyToSell, gm.LevelAt(110).State)
}

// TestDeadZoneFix reproduces the first-tick re-alignment: grid centered at
// 100, market arrives at 107, so everything below 107 must become buy-side.
func TestDeadZoneFix(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	gm.UpdateZonesBasedOnPrice(107)

	assert.Equal(t, []float64{90, 95, 100, 105}, gm.SortedBuyGrids())
	assert.Equal(t, []float64{110}, gm.SortedSellGrids())
	assert.Equal(t, StateReadyToBuy, gm.LevelAt(105).State)
	assert.Equal(t, StateReadyToSell, gm.LevelAt(110).State)
}

// TestZonePartitionInvariant asserts buy ∪ sell == all rungs for arbitrary
// re-alignment prices, for both strategies.
func TestZonePartitionInvariant(t *testing.T) {
	for _, strategyType := range []config.StrategyType{config.StrategySimpleGrid, config.StrategyHedgedGrid} {
		gm := newTestManager(t, strategyType, config.SpacingArithmetic, 90, 110, 5)

		for _, price := range []float64{50, 92.5, 100, 107, 200} {
			gm.UpdateZonesBasedOnPrice(price)

			union := make(map[float64]bool)
			for _, p := range gm.SortedBuyGrids() {
				union[p] = true
			}
			for _, p := range gm.SortedSellGrids() {
				union[p] = true
			}
			assert.Len(t, union, len(gm.PriceGrids()),
				"partition must cover every rung (strategy=%s, price=%.1f)", strategyType, price)
		}
	}
}

// TestZoneRealignmentKeepsBusyLevels checks that re-alignment never touches
// a rung with a live order attached.
func TestZoneRealignmentKeepsBusyLevels(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	busy := gm.LevelAt(100)
	gm.MarkOrderPending(busy, limitOrder(types.OrderSideBuy, 100, 1))
	require.Equal(t, StateWaitingForBuyFill, busy.State)

	gm.UpdateZonesBasedOnPrice(107)

	assert.Equal(t, StateWaitingForBuyFill, busy.State)
}

// TestNeighborClaimRace covers the sell-fill race: a sell completes at a rung
// the neighbor below has already claimed as its buy target. The claim wins.
func TestNeighborClaimRace(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	level100 := gm.LevelAt(100)
	gm.MarkOrderPending(level100, limitOrder(types.OrderSideSell, 100, 1))
	require.Equal(t, StateWaitingForSellFill, level100.State)

	// Rung 95 fills its buy and lists 100 as its exit; meanwhile the old sell
	// at 100 fills. The neighbor's claim replaces the sell-wait state first.
	level100.State = StateWaitingForBuyFill
	level100.AddOrder(limitOrder(types.OrderSideBuy, 100, 1))

	require.NoError(t, gm.CompleteOrder(level100, types.OrderSideSell))

	assert.Equal(t, StateWaitingForBuyFill, level100.State)
}

// TestCompleteSellWithoutClaim is the non-racy counterpart: the sell fill
// transitions the rung back to READY_TO_BUY.
func TestCompleteSellWithoutClaim(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	level105 := gm.LevelAt(105)
	gm.MarkOrderPending(level105, limitOrder(types.OrderSideSell, 105, 1))

	require.NoError(t, gm.CompleteOrder(level105, types.OrderSideSell))

	assert.Equal(t, StateReadyToBuy, level105.State)
}

// TestPairedOverlapGuard covers can_place_order's neighbor check: a buy at 95
// is rejected while the exit rung 100 is still waiting on its own sell fill.
func TestPairedOverlapGuard(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	level95 := gm.LevelAt(95)
	level100 := gm.LevelAt(100)
	require.Equal(t, StateReadyToBuy, level95.State)

	gm.MarkOrderPending(level100, limitOrder(types.OrderSideSell, 100, 1))

	assert.False(t, gm.CanPlaceOrder(level95, types.OrderSideBuy))

	require.NoError(t, gm.CompleteOrder(level100, types.OrderSideSell))
	level95.State = StateReadyToBuy
	assert.True(t, gm.CanPlaceOrder(level95, types.OrderSideBuy))
}

// TestCanPlaceOrderHedgedGrid checks the wider hedged-grid placement rules.
func TestCanPlaceOrderHedgedGrid(t *testing.T) {
	gm := newTestManager(t, config.StrategyHedgedGrid, config.SpacingArithmetic, 90, 110, 5)

	mid := gm.LevelAt(100)
	top := gm.LevelAt(110)

	assert.True(t, gm.CanPlaceOrder(mid, types.OrderSideBuy))
	assert.True(t, gm.CanPlaceOrder(mid, types.OrderSideSell))
	assert.False(t, gm.CanPlaceOrder(top, types.OrderSideBuy))
	assert.True(t, gm.CanPlaceOrder(top, types.OrderSideSell))
}

// TestCompleteOrderSimpleGridBuy checks the buy fill transition and the
// paired sell level propagation.
func TestCompleteOrderSimpleGridBuy(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	level95 := gm.LevelAt(95)
	level100 := gm.LevelAt(100)
	require.NoError(t, gm.PairGridLevels(level95, level100, "sell"))

	gm.MarkOrderPending(level95, limitOrder(types.OrderSideBuy, 95, 1))
	require.NoError(t, gm.CompleteOrder(level95, types.OrderSideBuy))

	assert.Equal(t, StateReadyToSell, level95.State)
	assert.Equal(t, StateReadyToSell, level100.State)
}

// TestPairSymmetry verifies that pairing installs both back-references.
func TestPairSymmetry(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	buyLevel := gm.LevelAt(95)
	sellLevel := gm.LevelAt(100)
	require.NoError(t, gm.PairGridLevels(buyLevel, sellLevel, "sell"))

	assert.Same(t, sellLevel, buyLevel.PairedSellLevel)
	assert.Same(t, buyLevel, sellLevel.PairedBuyLevel)

	assert.Error(t, gm.PairGridLevels(buyLevel, sellLevel, "sideways"))
}

// TestGetPairedSellLevel checks neighbor lookup at the edges of the lattice.
func TestGetPairedSellLevel(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	assert.Equal(t, 95.0, gm.GetPairedSellLevel(gm.LevelAt(90)).Price)
	assert.Nil(t, gm.GetPairedSellLevel(gm.LevelAt(110)))

	assert.Equal(t, 105.0, gm.GetGridLevelBelow(gm.LevelAt(110)).Price)
	assert.Nil(t, gm.GetGridLevelBelow(gm.LevelAt(90)))
}

// TestGetOrderSizeForGridLevel checks the per-rung sizing and its zero guards.
func TestGetOrderSizeForGridLevel(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	// 1000 across 5 rungs at price 100 => 2 base units per rung.
	assert.InDelta(t, 2.0, gm.GetOrderSizeForGridLevel(1000, 100), 1e-9)
	assert.Equal(t, 0.0, gm.GetOrderSizeForGridLevel(1000, 0))

	empty := NewManager(config.GridSettings{
		Type:     config.StrategySimpleGrid,
		Spacing:  config.SpacingArithmetic,
		NumGrids: 5,
		Range:    config.GridRange{Top: 110, Bottom: 90},
	})
	assert.Equal(t, 0.0, empty.GetOrderSizeForGridLevel(1000, 100))
}

// TestGetInitialOrderQuantity checks the startup rebalance sizing.
func TestGetInitialOrderQuantity(t *testing.T) {
	gm := newTestManager(t, config.StrategySimpleGrid, config.SpacingArithmetic, 90, 110, 5)

	// Price 97: rungs above are 100, 105, 110 => target ratio 3/5.
	qty := gm.GetInitialOrderQuantity(1000, 0, 97)
	assert.InDelta(t, 1000*0.6/97, qty, 1e-9)

	// Already holding more crypto than the target: no purchase.
	assert.Equal(t, 0.0, gm.GetInitialOrderQuantity(100, 50, 97))

	// A small wallet still buys only its 3/5 target share: 6 of its 10 fiat.
	qty = gm.GetInitialOrderQuantity(10, 0, 97)
	assert.InDelta(t, 10*0.6/97, qty, 1e-9)
}

// TestUpdateZonesNoOpForHedgedGrid makes sure hedged grids keep their static
// partition.
func TestUpdateZonesNoOpForHedgedGrid(t *testing.T) {
	gm := newTestManager(t, config.StrategyHedgedGrid, config.SpacingArithmetic, 90, 110, 5)

	buysBefore := append([]float64(nil), gm.SortedBuyGrids()...)
	gm.UpdateZonesBasedOnPrice(107)

	assert.Equal(t, buysBefore, gm.SortedBuyGrids())
}
