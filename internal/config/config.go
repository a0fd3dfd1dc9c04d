package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the complete configuration for a single grid bot instance.
type Config struct {
	BotID int64 `json:"bot_id"`

	Exchange ExchangeSettings `json:"exchange"`
	Pair     PairSettings     `json:"pair"`
	Trading  TradingSettings  `json:"trading_settings"`
	Grid     GridSettings     `json:"grid_strategy"`
	Risk     RiskSettings     `json:"risk_management"`
	Database DatabaseSettings `json:"database"`

	Notifications NotificationSettings `json:"notifications"`
	Monitoring    MonitoringSettings   `json:"monitoring"`
}

// ExchangeSettings identifies the venue and execution environment.
type ExchangeSettings struct {
	Name        string      `json:"name"`
	TradingFee  float64     `json:"trading_fee"`
	TradingMode TradingMode `json:"trading_mode"`
	Testnet     bool        `json:"testnet"`

	// Credentials are normally injected from the environment, not the file.
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`
}

// PairSettings names the traded pair.
type PairSettings struct {
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
}

// Symbol returns the exchange symbol form, e.g. "BTCUSDT".
func (p PairSettings) Symbol() string {
	return p.BaseCurrency + p.QuoteCurrency
}

// String returns the display form, e.g. "BTC/USDT".
func (p PairSettings) String() string {
	return p.BaseCurrency + "/" + p.QuoteCurrency
}

// TradingSettings carries capital allocation and (for backtests) the data window.
type TradingSettings struct {
	InitialBalance     float64 `json:"initial_balance"`
	Timeframe          string  `json:"timeframe"`
	StartDate          string  `json:"start_date,omitempty"`
	EndDate            string  `json:"end_date,omitempty"`
	HistoricalDataFile string  `json:"historical_data_file,omitempty"`
}

// GridSettings describes the price lattice.
type GridSettings struct {
	Type     StrategyType `json:"type"`
	Spacing  SpacingType  `json:"spacing"`
	NumGrids int          `json:"num_grids"`
	Range    GridRange    `json:"range"`
}

// GridRange bounds the lattice.
type GridRange struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// RiskSettings holds the optional take-profit / stop-loss thresholds.
type RiskSettings struct {
	TakeProfit Threshold `json:"take_profit"`
	StopLoss   Threshold `json:"stop_loss"`
}

// Threshold is an on/off price trigger.
type Threshold struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
}

// DatabaseSettings locates the order ledger file.
type DatabaseSettings struct {
	Path string `json:"path"`
}

// NotificationSettings configures the Telegram sink. Empty token disables it.
type NotificationSettings struct {
	TelegramToken  string `json:"telegram_token,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

// MonitoringSettings configures the metrics/health HTTP endpoint.
type MonitoringSettings struct {
	MetricsPort int `json:"metrics_port,omitempty"`
}

// LoadFromJSON loads and validates a bot configuration from a JSON file.
// Credentials are overlaid from the environment when absent from the file.
func LoadFromJSON(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvCredentials()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.Name == "" {
		c.Exchange.Name = getEnv("EXCHANGE_NAME", "bybit")
	}
	if c.Exchange.TradingFee == 0 {
		c.Exchange.TradingFee = getEnvFloat("TRADING_FEE", 0.001)
	}
	if c.Trading.Timeframe == "" {
		c.Trading.Timeframe = "1m"
	}
	if c.Database.Path == "" {
		c.Database.Path = getEnv("LEDGER_DB_PATH", "grid_orders.db")
	}
	if c.Monitoring.MetricsPort == 0 {
		c.Monitoring.MetricsPort = getEnvInt("METRICS_PORT", 0)
	}
	if c.Notifications.TelegramToken == "" {
		c.Notifications.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
		c.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")
	}
}

func (c *Config) applyEnvCredentials() {
	if c.Exchange.APIKey == "" {
		c.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", "")
	}
	if c.Exchange.APISecret == "" {
		c.Exchange.APISecret = getEnv("EXCHANGE_SECRET", "")
	}
}

// Validate performs comprehensive validation of the bot configuration.
// Every violation here is fatal at construction time.
func (c *Config) Validate() error {
	if c.Pair.BaseCurrency == "" || c.Pair.QuoteCurrency == "" {
		return fmt.Errorf("pair base_currency and quote_currency are required")
	}

	if _, err := ParseTradingMode(string(c.Exchange.TradingMode)); err != nil {
		return err
	}
	if _, err := ParseStrategyType(string(c.Grid.Type)); err != nil {
		return err
	}
	if _, err := ParseSpacingType(string(c.Grid.Spacing)); err != nil {
		return err
	}

	if c.Grid.Range.Bottom <= 0 {
		return fmt.Errorf("grid range bottom must be positive, got: %f", c.Grid.Range.Bottom)
	}
	if c.Grid.Range.Top <= c.Grid.Range.Bottom {
		return fmt.Errorf("grid range top (%f) must be greater than bottom (%f)",
			c.Grid.Range.Top, c.Grid.Range.Bottom)
	}

	if c.Grid.NumGrids <= 0 {
		return fmt.Errorf("num_grids must be positive, got: %d", c.Grid.NumGrids)
	}
	if c.Grid.NumGrids > 1000 {
		return fmt.Errorf("num_grids too large (max 1000), got: %d", c.Grid.NumGrids)
	}

	if c.Trading.InitialBalance <= 0 {
		return fmt.Errorf("initial_balance must be positive, got: %f", c.Trading.InitialBalance)
	}

	if c.Exchange.TradingFee < 0 || c.Exchange.TradingFee > 0.01 {
		return fmt.Errorf("trading_fee rate seems invalid (should be 0-1%%), got: %f", c.Exchange.TradingFee)
	}

	if c.Risk.TakeProfit.Enabled && c.Risk.TakeProfit.Threshold <= 0 {
		return fmt.Errorf("take_profit threshold must be positive when enabled")
	}
	if c.Risk.StopLoss.Enabled && c.Risk.StopLoss.Threshold <= 0 {
		return fmt.Errorf("stop_loss threshold must be positive when enabled")
	}

	if c.Exchange.TradingMode == TradingModeBacktest {
		if c.Trading.HistoricalDataFile == "" && (c.Trading.StartDate == "" || c.Trading.EndDate == "") {
			return fmt.Errorf("backtest mode requires start_date and end_date, or historical_data_file")
		}
	}

	return nil
}

// IsBacktest reports whether the bot runs against historical data.
func (c *Config) IsBacktest() bool {
	return c.Exchange.TradingMode == TradingModeBacktest
}

// Summary returns a short human-readable description for startup logs.
func (c *Config) Summary() string {
	return fmt.Sprintf("%s %s [%s] grids=%d range=%.2f-%.2f spacing=%s investment=%.2f %s",
		c.Exchange.Name, c.Pair, strings.ToUpper(string(c.Exchange.TradingMode)),
		c.Grid.NumGrids, c.Grid.Range.Bottom, c.Grid.Range.Top,
		c.Grid.Spacing, c.Trading.InitialBalance, c.Pair.QuoteCurrency)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}
