package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fydblock/gridbot/internal/config"
	"github.com/fydblock/gridbot/internal/events"
)

// StopTimeout bounds how long a bot may take to acknowledge a stop before
// the supervisor force-removes it.
const StopTimeout = 5 * time.Second

// Status represents the current lifecycle state of a managed bot.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Instance tracks one supervised bot and its run goroutine.
type Instance struct {
	Bot       *GridTradingBot
	StartTime time.Time

	cancel context.CancelFunc
	done   chan error

	mu        sync.RWMutex
	status    Status
	lastError error
}

// GetStatus returns the instance status.
func (i *Instance) GetStatus() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status
}

// LastError returns the most recent terminal error, if any.
func (i *Instance) LastError() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastError
}

func (i *Instance) setStatus(status Status, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.status = status
	if err != nil {
		i.lastError = err
	}
}

// Manager supervises multiple bot instances. Each bot runs as an
// independent goroutine and shares no mutable state with its siblings; the
// manager only owns lifecycle.
type Manager struct {
	mu        sync.RWMutex
	instances map[int64]*Instance
}

// NewManager creates an empty supervisor.
func NewManager() *Manager {
	return &Manager{
		instances: make(map[int64]*Instance),
	}
}

// StartBot builds a bot from its config and launches its run goroutine. The
// per-bot event bus routes STOP_BOT events (TP/SL, fatal initialization)
// back into a graceful shutdown.
func (m *Manager) StartBot(cfg *config.Config, eventBus *events.Bus) (*Instance, error) {
	m.mu.Lock()
	if existing, exists := m.instances[cfg.BotID]; exists && existing.GetStatus() == StatusRunning {
		m.mu.Unlock()
		return nil, fmt.Errorf("bot %d is already running", cfg.BotID)
	}
	m.mu.Unlock()

	gridBot, err := NewGridTradingBot(cfg, eventBus)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	instance := &Instance{
		Bot:       gridBot,
		StartTime: time.Now(),
		cancel:    cancel,
		done:      make(chan error, 1),
		status:    StatusStarting,
	}

	m.mu.Lock()
	m.instances[cfg.BotID] = instance
	m.mu.Unlock()

	// A STOP_BOT event from inside the bot (TP/SL hit, fatal init) tears the
	// instance down without liquidating: the strategy already flattened what
	// it wanted flattened.
	eventBus.Subscribe(events.EventStopBot, func(event events.Event) {
		log.Printf("🛑 Bot %d stop requested: %s", event.BotID, event.Reason)
		if err := m.StopBot(cfg.BotID, false); err != nil {
			log.Printf("⚠️ Stop after STOP_BOT event failed: %v", err)
		}
	})

	go func() {
		instance.setStatus(StatusRunning, nil)
		err := gridBot.Run(ctx)
		if err != nil {
			instance.setStatus(StatusError, err)
			log.Printf("❌ Bot %d exited with error: %v", cfg.BotID, err)
		} else {
			instance.setStatus(StatusStopped, nil)
		}
		instance.done <- err
	}()

	return instance, nil
}

// StopBot stops a bot, optionally liquidating its position. The stop must
// be acknowledged within StopTimeout; past that the instance is removed
// regardless.
func (m *Manager) StopBot(botID int64, sellAssets bool) error {
	m.mu.Lock()
	instance, exists := m.instances[botID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("bot %d not found", botID)
	}
	delete(m.instances, botID)
	m.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.Background(), StopTimeout)
	defer cancel()

	instance.Bot.Stop(stopCtx, sellAssets)
	instance.cancel()

	select {
	case <-instance.done:
		log.Printf("✅ Bot %d stopped", botID)
	case <-stopCtx.Done():
		log.Printf("⚠️ Bot %d stop timed out after %s, forcing removal", botID, StopTimeout)
	}

	return nil
}

// StopAll stops every managed bot.
func (m *Manager) StopAll(sellAssets bool) {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.StopBot(id, sellAssets); err != nil {
			log.Printf("⚠️ Error stopping bot %d: %v", id, err)
		}
	}
}

// GetInstance returns a managed instance by bot id.
func (m *Manager) GetInstance(botID int64) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	instance, exists := m.instances[botID]
	return instance, exists
}

// RunningCount returns the number of bots currently running.
func (m *Manager) RunningCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, instance := range m.instances {
		if instance.GetStatus() == StatusRunning {
			count++
		}
	}
	return count
}
