package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/fydblock/gridbot/internal/bot"
	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/internal/events"
	"github.com/fydblock/gridbot/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "backtest.json", "Path to the backtest configuration JSON")
		envFile    = flag.String("env", ".env", "Optional .env file (market data needs no credentials)")
		excelOut   = flag.String("excel", "", "Write the session report to this .xlsx file")
	)
	flag.Parse()

	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			log.Printf("⚠️ Could not load %s: %v", *envFile, err)
		}
	}

	cfg, err := config.LoadFromJSON(*configFile)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	if !cfg.IsBacktest() {
		log.Fatalf("❌ %s is not a backtest configuration (trading_mode must be 'backtest')", *configFile)
	}

	log.Printf("▶️ Grid backtest: %s", cfg.Summary())

	eventBus := events.NewBus()
	gridBot, err := bot.NewGridTradingBot(cfg, eventBus)
	if err != nil {
		log.Fatalf("❌ Failed to build bot: %v", err)
	}

	runErr := gridBot.Run(context.Background())
	gridBot.Stop(context.Background(), false)

	summary := reporting.BuildSummary(
		gridBot.Strategy().Metrics(),
		gridBot.BalanceTracker().TotalFees(),
		gridBot.OrderManager().TradeCount(),
		cfg.Pair.String(),
		string(cfg.Exchange.TradingMode),
	)
	reporting.PrintSummary(summary)

	if *excelOut != "" {
		if err := reporting.WriteSessionXLSX(*excelOut, summary, gridBot.Strategy().Metrics()); err != nil {
			log.Printf("⚠️ Could not write Excel report: %v", err)
		} else {
			log.Printf("📄 Excel report written to %s", *excelOut)
		}
	}

	if runErr != nil {
		log.Fatalf("❌ Backtest failed: %v", runErr)
	}
}
