package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fydblock/gridbot/internal/errors"
)

// TestSetupBalances checks the initial installation and derived values.
func TestSetupBalances(t *testing.T) {
	bt := NewBalanceTracker(0.001)
	bt.SetupBalances(1000, 0.5)

	assert.Equal(t, 1000.0, bt.FiatBalance())
	assert.Equal(t, 0.5, bt.CryptoBalance())
	assert.Equal(t, 0.0, bt.TotalFees())
	assert.InDelta(t, 1000+0.5*100, bt.GetTotalBalanceValue(100), 1e-9)
}

// TestReserveAndReleaseRoundTrip covers the round-trip invariant: placing
// then canceling an order leaves free balances exactly where they started.
func TestReserveAndReleaseRoundTrip(t *testing.T) {
	bt := NewBalanceTracker(0.001)
	bt.SetupBalances(1000, 2)

	require.NoError(t, bt.ReserveFundsForBuy(250))
	require.NoError(t, bt.ReserveFundsForSell(1.5))

	assert.Equal(t, 750.0, bt.FiatBalance())
	assert.Equal(t, 0.5, bt.CryptoBalance())
	assert.Equal(t, 250.0, bt.ReservedFiat())
	assert.Equal(t, 1.5, bt.ReservedCrypto())

	bt.ReleaseReservedBuyFunds(250)
	bt.ReleaseReservedSellFunds(1.5)

	assert.Equal(t, 1000.0, bt.FiatBalance())
	assert.Equal(t, 2.0, bt.CryptoBalance())
	assert.Equal(t, 0.0, bt.ReservedFiat())
	assert.Equal(t, 0.0, bt.ReservedCrypto())
}

// TestReserveRejectsOverdraft checks the insufficient-funds guard on both sides.
func TestReserveRejectsOverdraft(t *testing.T) {
	bt := NewBalanceTracker(0.001)
	bt.SetupBalances(100, 1)

	err := bt.ReserveFundsForBuy(101)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.ErrorCategoryInsufficientFunds))

	err = bt.ReserveFundsForSell(1.5)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.ErrorCategoryInsufficientFunds))
}

// TestBuyFillSettlement: the reserved fiat pays the notional, the crypto
// lands free, and the fee is deducted and accumulated.
func TestBuyFillSettlement(t *testing.T) {
	bt := NewBalanceTracker(0.001)
	bt.SetupBalances(1000, 0)

	require.NoError(t, bt.ReserveFundsForBuy(500))
	bt.OnBuyOrderFilled(5, 100)

	assert.InDelta(t, 0.0, bt.ReservedFiat(), 1e-9)
	assert.InDelta(t, 5.0, bt.CryptoBalance(), 1e-9)
	assert.InDelta(t, 500-0.5, bt.FiatBalance(), 1e-9) // fee 500*0.001
	assert.InDelta(t, 0.5, bt.TotalFees(), 1e-9)
}

// TestSellFillSettlement mirrors the buy case on the sell side.
func TestSellFillSettlement(t *testing.T) {
	bt := NewBalanceTracker(0.001)
	bt.SetupBalances(0, 5)

	require.NoError(t, bt.ReserveFundsForSell(5))
	bt.OnSellOrderFilled(5, 100)

	assert.InDelta(t, 0.0, bt.ReservedCrypto(), 1e-9)
	assert.InDelta(t, 0.0, bt.CryptoBalance(), 1e-9)
	assert.InDelta(t, 500-0.5, bt.FiatBalance(), 1e-9)
	assert.InDelta(t, 0.5, bt.TotalFees(), 1e-9)
}

// TestMarketOrdersSettleFromFreeBalances checks the immediate-fill paths used
// by the initial purchase and liquidation.
func TestMarketOrdersSettleFromFreeBalances(t *testing.T) {
	bt := NewBalanceTracker(0.001)
	bt.SetupBalances(1000, 0)

	bt.OnMarketBuy(2, 100)
	assert.InDelta(t, 1000-200-0.2, bt.FiatBalance(), 1e-9)
	assert.InDelta(t, 2.0, bt.CryptoBalance(), 1e-9)

	bt.OnMarketSell(2, 110)
	assert.InDelta(t, 0.0, bt.CryptoBalance(), 1e-9)
	assert.InDelta(t, 1000-200-0.2+220-0.22, bt.FiatBalance(), 1e-9)
	assert.InDelta(t, 0.2+0.22, bt.TotalFees(), 1e-9)
}

// TestTotalBalanceValueIncludesReserved: account value must not change when
// funds move between free and reserved.
func TestTotalBalanceValueIncludesReserved(t *testing.T) {
	bt := NewBalanceTracker(0.001)
	bt.SetupBalances(1000, 2)

	before := bt.GetTotalBalanceValue(100)
	require.NoError(t, bt.ReserveFundsForBuy(300))
	require.NoError(t, bt.ReserveFundsForSell(1))

	assert.InDelta(t, before, bt.GetTotalBalanceValue(100), 1e-9)
}
