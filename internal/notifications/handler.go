package notifications

import (
	"fmt"
	"log"

	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/internal/events"
	"github.com/fydblock/gridbot/pkg/types"
)

// Handler bridges bus events to a notification sink. Backtests never
// notify; live and paper bots notify when a sink is configured.
type Handler struct {
	notifier Notifier
	enabled  bool
}

// NewHandler subscribes to the bot's event bus. A nil notifier or backtest
// mode disables delivery while keeping the wiring uniform.
func NewHandler(eventBus *events.Bus, notifier Notifier, tradingMode config.TradingMode) *Handler {
	h := &Handler{
		notifier: notifier,
		enabled:  notifier != nil && tradingMode != config.TradingModeBacktest,
	}

	eventBus.Subscribe(events.EventStartBot, h.onStart)
	eventBus.Subscribe(events.EventStopBot, h.onStop)
	eventBus.Subscribe(events.EventOrderFilled, h.onOrderFilled)

	return h
}

func (h *Handler) onStart(event events.Event) {
	h.send("success", fmt.Sprintf("Bot %d started: %s", event.BotID, event.Reason))
}

func (h *Handler) onStop(event events.Event) {
	h.send("warning", fmt.Sprintf("Bot %d stopped: %s", event.BotID, event.Reason))
}

func (h *Handler) onOrderFilled(event events.Event) {
	order, ok := event.Payload.(*types.Order)
	if !ok {
		return
	}
	h.send("info", fmt.Sprintf("Bot %d filled %s %.8f @ %.8f",
		event.BotID, order.Side, order.Quantity, order.Price))
}

func (h *Handler) send(level, message string) {
	if !h.enabled {
		return
	}
	if err := h.notifier.SendAlert(level, message); err != nil {
		log.Printf("⚠️ Notification delivery failed: %v", err)
	}
}
