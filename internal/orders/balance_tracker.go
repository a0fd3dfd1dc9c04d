package orders

import (
	"fmt"
	"log"

	"github.com/fydblock/gridbot/internal/errors"
)

// BalanceTracker keeps the bot's running fiat/crypto balances, split into
// free and reserved funds, plus the fees accumulated over the session.
// Purely in-memory; confined to its bot's goroutine. Reservation discipline:
// placing a BUY reserves fiat = price*qty, placing a SELL reserves
// crypto = qty; cancellation releases; fills transfer between reserved and
// free with the fee deducted.
type BalanceTracker struct {
	fiatBalance    float64
	cryptoBalance  float64
	reservedFiat   float64
	reservedCrypto float64
	totalFees      float64

	feeRate float64
}

// NewBalanceTracker creates a tracker charging the given fee rate per fill.
func NewBalanceTracker(feeRate float64) *BalanceTracker {
	return &BalanceTracker{feeRate: feeRate}
}

// SetupBalances installs the bot's effective starting balances. Called once
// at startup after wallet synchronization capped fiat at the configured
// investment.
func (bt *BalanceTracker) SetupBalances(fiatBalance, cryptoBalance float64) {
	bt.fiatBalance = fiatBalance
	bt.cryptoBalance = cryptoBalance
	bt.reservedFiat = 0
	bt.reservedCrypto = 0
	bt.totalFees = 0
	log.Printf("💰 Balances initialized: %.2f fiat, %.8f crypto", fiatBalance, cryptoBalance)
}

// FiatBalance returns the free fiat balance.
func (bt *BalanceTracker) FiatBalance() float64 { return bt.fiatBalance }

// CryptoBalance returns the free crypto balance.
func (bt *BalanceTracker) CryptoBalance() float64 { return bt.cryptoBalance }

// ReservedFiat returns fiat locked behind open buy orders.
func (bt *BalanceTracker) ReservedFiat() float64 { return bt.reservedFiat }

// ReservedCrypto returns crypto locked behind open sell orders.
func (bt *BalanceTracker) ReservedCrypto() float64 { return bt.reservedCrypto }

// TotalFees returns the fees accumulated this session.
func (bt *BalanceTracker) TotalFees() float64 { return bt.totalFees }

// GetAdjustedFiatBalance returns free plus reserved fiat.
func (bt *BalanceTracker) GetAdjustedFiatBalance() float64 {
	return bt.fiatBalance + bt.reservedFiat
}

// GetAdjustedCryptoBalance returns free plus reserved crypto.
func (bt *BalanceTracker) GetAdjustedCryptoBalance() float64 {
	return bt.cryptoBalance + bt.reservedCrypto
}

// GetTotalBalanceValue values the whole account in fiat at the given price.
func (bt *BalanceTracker) GetTotalBalanceValue(price float64) float64 {
	return bt.GetAdjustedFiatBalance() + bt.GetAdjustedCryptoBalance()*price
}

// ReserveFundsForBuy moves fiat from free into reserved for a pending buy.
func (bt *BalanceTracker) ReserveFundsForBuy(amount float64) error {
	if amount > bt.fiatBalance {
		return errors.NewInsufficientFundsError("BalanceTracker", "reserve_funds_for_buy",
			fmt.Sprintf("need %.2f fiat but only %.2f free", amount, bt.fiatBalance))
	}
	bt.fiatBalance -= amount
	bt.reservedFiat += amount
	return nil
}

// ReserveFundsForSell moves crypto from free into reserved for a pending sell.
func (bt *BalanceTracker) ReserveFundsForSell(quantity float64) error {
	if quantity > bt.cryptoBalance {
		return errors.NewInsufficientFundsError("BalanceTracker", "reserve_funds_for_sell",
			fmt.Sprintf("need %.8f crypto but only %.8f free", quantity, bt.cryptoBalance))
	}
	bt.cryptoBalance -= quantity
	bt.reservedCrypto += quantity
	return nil
}

// ReleaseReservedBuyFunds returns reserved fiat to the free balance after a
// buy order is canceled.
func (bt *BalanceTracker) ReleaseReservedBuyFunds(amount float64) {
	if amount > bt.reservedFiat {
		amount = bt.reservedFiat
	}
	bt.reservedFiat -= amount
	bt.fiatBalance += amount
}

// ReleaseReservedSellFunds returns reserved crypto to the free balance after
// a sell order is canceled.
func (bt *BalanceTracker) ReleaseReservedSellFunds(quantity float64) {
	if quantity > bt.reservedCrypto {
		quantity = bt.reservedCrypto
	}
	bt.reservedCrypto -= quantity
	bt.cryptoBalance += quantity
}

// OnBuyOrderFilled settles a filled limit buy: the reserved fiat pays for the
// purchase, the crypto lands in the free balance, the fee comes out of fiat.
// Returns the fee charged.
func (bt *BalanceTracker) OnBuyOrderFilled(quantity, price float64) float64 {
	notional := quantity * price
	fee := notional * bt.feeRate

	if notional > bt.reservedFiat {
		// Quantization drift between the reservation and the fill; cover the
		// remainder from the free balance.
		shortfall := notional - bt.reservedFiat
		bt.reservedFiat = 0
		bt.fiatBalance -= shortfall
	} else {
		bt.reservedFiat -= notional
	}

	bt.cryptoBalance += quantity
	bt.fiatBalance -= fee
	bt.totalFees += fee
	return fee
}

// OnSellOrderFilled settles a filled limit sell: reserved crypto leaves the
// account, the proceeds net of fee land in the free fiat balance. Returns
// the fee charged.
func (bt *BalanceTracker) OnSellOrderFilled(quantity, price float64) float64 {
	notional := quantity * price
	fee := notional * bt.feeRate

	if quantity > bt.reservedCrypto {
		shortfall := quantity - bt.reservedCrypto
		bt.reservedCrypto = 0
		bt.cryptoBalance -= shortfall
	} else {
		bt.reservedCrypto -= quantity
	}

	bt.fiatBalance += notional - fee
	bt.totalFees += fee
	return fee
}

// OnMarketBuy settles an immediate market buy from the free fiat balance.
// Returns the fee charged.
func (bt *BalanceTracker) OnMarketBuy(quantity, price float64) float64 {
	notional := quantity * price
	fee := notional * bt.feeRate
	bt.fiatBalance -= notional + fee
	bt.cryptoBalance += quantity
	bt.totalFees += fee
	return fee
}

// OnMarketSell settles an immediate market sell of free crypto. Returns the
// fee charged.
func (bt *BalanceTracker) OnMarketSell(quantity, price float64) float64 {
	notional := quantity * price
	fee := notional * bt.feeRate
	bt.cryptoBalance -= quantity
	bt.fiatBalance += notional - fee
	bt.totalFees += fee
	return fee
}
