package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		BotID: 1,
		Exchange: ExchangeSettings{
			Name:        "bybit",
			TradingFee:  0.001,
			TradingMode: TradingModePaper,
		},
		Pair: PairSettings{BaseCurrency: "BTC", QuoteCurrency: "USDT"},
		Trading: TradingSettings{
			InitialBalance: 1000,
			Timeframe:      "1m",
		},
		Grid: GridSettings{
			Type:     StrategySimpleGrid,
			Spacing:  SpacingGeometric,
			NumGrids: 10,
			Range:    GridRange{Top: 200, Bottom: 100},
		},
	}
}

// TestValidateAcceptsGoodConfig is the happy path.
func TestValidateAcceptsGoodConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

// TestValidateRejectsBadValues runs the fatal construction-time checks.
func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing pair", func(c *Config) { c.Pair.BaseCurrency = "" }},
		{"bad trading mode", func(c *Config) { c.Exchange.TradingMode = "simulated" }},
		{"bad strategy type", func(c *Config) { c.Grid.Type = "martingale" }},
		{"bad spacing", func(c *Config) { c.Grid.Spacing = "fibonacci" }},
		{"negative bottom", func(c *Config) { c.Grid.Range.Bottom = -5 }},
		{"inverted range", func(c *Config) { c.Grid.Range = GridRange{Top: 100, Bottom: 200} }},
		{"zero grids", func(c *Config) { c.Grid.NumGrids = 0 }},
		{"too many grids", func(c *Config) { c.Grid.NumGrids = 2000 }},
		{"zero investment", func(c *Config) { c.Trading.InitialBalance = 0 }},
		{"absurd fee", func(c *Config) { c.Exchange.TradingFee = 0.5 }},
		{"enabled TP without threshold", func(c *Config) { c.Risk.TakeProfit.Enabled = true }},
		{"backtest without window", func(c *Config) { c.Exchange.TradingMode = TradingModeBacktest }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestLoadFromJSON covers file loading, defaulting and env credentials.
func TestLoadFromJSON(t *testing.T) {
	content := `{
		"bot_id": 3,
		"exchange": {"name": "bybit", "trading_mode": "paper_trading"},
		"pair": {"base_currency": "ETH", "quote_currency": "USDT"},
		"trading_settings": {"initial_balance": 500},
		"grid_strategy": {
			"type": "hedged_grid",
			"spacing": "arithmetic",
			"num_grids": 8,
			"range": {"top": 4000, "bottom": 3000}
		}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("EXCHANGE_API_KEY", "key-from-env")
	t.Setenv("EXCHANGE_SECRET", "secret-from-env")

	cfg, err := LoadFromJSON(path)
	require.NoError(t, err)

	assert.Equal(t, int64(3), cfg.BotID)
	assert.Equal(t, "ETHUSDT", cfg.Pair.Symbol())
	assert.Equal(t, "ETH/USDT", cfg.Pair.String())
	assert.Equal(t, StrategyHedgedGrid, cfg.Grid.Type)

	// Defaults applied.
	assert.Equal(t, 0.001, cfg.Exchange.TradingFee)
	assert.Equal(t, "1m", cfg.Trading.Timeframe)
	assert.NotEmpty(t, cfg.Database.Path)

	// Credentials overlaid from the environment.
	assert.Equal(t, "key-from-env", cfg.Exchange.APIKey)
	assert.Equal(t, "secret-from-env", cfg.Exchange.APISecret)
}

// TestLoadFromJSONRejectsInvalid: a file that parses but fails validation.
func TestLoadFromJSONRejectsInvalid(t *testing.T) {
	content := `{"pair": {"base_currency": "BTC", "quote_currency": "USDT"}}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFromJSON(path)
	assert.Error(t, err)
}

// TestParseEnums checks each enum parser's accept and reject sets.
func TestParseEnums(t *testing.T) {
	for _, good := range []string{"arithmetic", "geometric"} {
		_, err := ParseSpacingType(good)
		assert.NoError(t, err)
	}
	_, err := ParseSpacingType("log")
	assert.Error(t, err)

	for _, good := range []string{"simple_grid", "hedged_grid"} {
		_, err := ParseStrategyType(good)
		assert.NoError(t, err)
	}
	_, err = ParseStrategyType("grid")
	assert.Error(t, err)

	for _, good := range []string{"live", "paper_trading", "backtest"} {
		_, err := ParseTradingMode(good)
		assert.NoError(t, err)
	}
	_, err = ParseTradingMode("demo")
	assert.Error(t, err)
}
