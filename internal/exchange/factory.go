package exchange

import (
	"fmt"
	"strings"

	"github.com/fydblock/gridbot/internal/config"
)

// NewService constructs the exchange service matching the configured trading
// mode. Live and paper trading share the tick-driven code path; only this
// construction differs. Backtests replace the ticker stream with candle
// iteration and never talk to a real venue for execution.
func NewService(cfg *config.Config) (Service, error) {
	if !strings.EqualFold(cfg.Exchange.Name, "bybit") {
		return nil, fmt.Errorf("unsupported exchange: %s (only bybit is wired)", cfg.Exchange.Name)
	}

	switch cfg.Exchange.TradingMode {
	case config.TradingModeLive:
		return NewBybitService(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet, false), nil

	case config.TradingModePaper:
		// Public market data only; orders never leave the process.
		market := NewBybitService(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet, true)
		return NewPaperService(
			market,
			cfg.Pair.BaseCurrency,
			cfg.Pair.QuoteCurrency,
			cfg.Trading.InitialBalance,
			0,
		), nil

	case config.TradingModeBacktest:
		market := NewBybitService("", "", cfg.Exchange.Testnet, false)
		return NewBacktestService(market, cfg.Trading.HistoricalDataFile), nil
	}

	return nil, fmt.Errorf("unsupported trading mode: %s", cfg.Exchange.TradingMode)
}
