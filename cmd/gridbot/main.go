package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fydblock/gridbot/internal/bot"
	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/internal/events"
	"github.com/fydblock/gridbot/internal/monitoring"
	"github.com/fydblock/gridbot/internal/notifications"
	"github.com/fydblock/gridbot/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "config.json", "Path to the bot configuration JSON")
		envFile    = flag.String("env", ".env", "Path to the .env file with credentials")
		sellOnStop = flag.Bool("sell-on-stop", false, "Cancel orders and liquidate the position on shutdown")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("⚠️ Could not load %s: %v (falling back to process environment)", *envFile, err)
	}

	cfg, err := config.LoadFromJSON(*configFile)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	if cfg.IsBacktest() {
		log.Fatalf("❌ %s is a backtest configuration; use grid-backtest instead", *configFile)
	}

	log.Printf("🤖 Grid bot starting: %s", cfg.Summary())

	eventBus := events.NewBus()

	// Optional Telegram sink; disabled when no token is configured.
	var notifier notifications.Notifier
	if cfg.Notifications.TelegramToken != "" {
		notifier = notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
	} else {
		log.Println("Telegram notifications disabled (no token configured)")
	}
	notifications.NewHandler(eventBus, notifier, cfg.Exchange.TradingMode)

	manager := bot.NewManager()
	instance, err := manager.StartBot(cfg, eventBus)
	if err != nil {
		log.Fatalf("❌ Failed to start bot: %v", err)
	}

	monitoring.Serve(cfg.Monitoring.MetricsPort, instance.Bot.Health())

	// Block until a signal arrives or the bot exits on its own.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("📨 Received %s, shutting down", sig)
		manager.StopAll(*sellOnStop)
	case <-waitForInstance(instance):
		log.Printf("ℹ️ Bot exited on its own")
	}

	printSessionReport(instance)
}

func waitForInstance(instance *bot.Instance) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for instance.GetStatus() == bot.StatusStarting || instance.GetStatus() == bot.StatusRunning {
			time.Sleep(time.Second)
		}
		close(done)
	}()
	return done
}

func printSessionReport(instance *bot.Instance) {
	gridBot := instance.Bot
	summary := reporting.BuildSummary(
		gridBot.Strategy().Metrics(),
		gridBot.BalanceTracker().TotalFees(),
		gridBot.OrderManager().TradeCount(),
		gridBot.Config().Pair.String(),
		string(gridBot.Config().Exchange.TradingMode),
	)
	reporting.PrintSummary(summary)

	if err := instance.LastError(); err != nil {
		fmt.Printf("Last error: %v\n", err)
	}
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return godotenv.Load(path)
}
