package config

import "fmt"

// SpacingType determines how grid prices are distributed between the range bounds.
type SpacingType string

const (
	SpacingArithmetic SpacingType = "arithmetic"
	SpacingGeometric  SpacingType = "geometric"
)

// ParseSpacingType converts a config string into a SpacingType.
func ParseSpacingType(s string) (SpacingType, error) {
	switch SpacingType(s) {
	case SpacingArithmetic, SpacingGeometric:
		return SpacingType(s), nil
	default:
		return "", fmt.Errorf("unsupported spacing type: %q (must be 'arithmetic' or 'geometric')", s)
	}
}

// StrategyType selects the grid cycling model.
type StrategyType string

const (
	StrategySimpleGrid StrategyType = "simple_grid"
	StrategyHedgedGrid StrategyType = "hedged_grid"
)

// ParseStrategyType converts a config string into a StrategyType.
func ParseStrategyType(s string) (StrategyType, error) {
	switch StrategyType(s) {
	case StrategySimpleGrid, StrategyHedgedGrid:
		return StrategyType(s), nil
	default:
		return "", fmt.Errorf("unsupported strategy type: %q (must be 'simple_grid' or 'hedged_grid')", s)
	}
}

// TradingMode selects the execution environment for a bot instance.
// Live and paper trading share the tick-driven code path; only the
// exchange service implementation differs.
type TradingMode string

const (
	TradingModeLive     TradingMode = "live"
	TradingModePaper    TradingMode = "paper_trading"
	TradingModeBacktest TradingMode = "backtest"
)

// ParseTradingMode converts a config string into a TradingMode.
func ParseTradingMode(s string) (TradingMode, error) {
	switch TradingMode(s) {
	case TradingModeLive, TradingModePaper, TradingModeBacktest:
		return TradingMode(s), nil
	default:
		return "", fmt.Errorf("unsupported trading mode: %q (must be 'live', 'paper_trading' or 'backtest')", s)
	}
}
