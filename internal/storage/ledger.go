package storage

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fydblock/gridbot/pkg/types"
)

// DefaultPriceTolerance is the absolute price tolerance used for duplicate
// checks. Exchange quantization may round a queried price slightly
// differently than the stored one, so exact float equality is unsafe.
const DefaultPriceTolerance = 0.001

// OrderRecord is a single ledger row.
type OrderRecord struct {
	BotID     int64
	OrderID   string
	Price     float64
	Side      types.OrderSide
	Quantity  float64
	Status    types.OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderLedger is the durable record of orders, keyed by (bot, price). It is
// process-wide and partitioned by bot_id; sqlite's own transaction semantics
// serialize writes from concurrent bots. Every operation commits on its own
// so the ledger survives a process crash mid-session.
type OrderLedger struct {
	db *sql.DB
}

// NewOrderLedger opens (or creates) the ledger database at the given path.
// WAL mode keeps the file consistent across crashes.
func NewOrderLedger(dbPath string) (*OrderLedger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	ledger := &OrderLedger{db: db}
	if err := ledger.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return ledger, nil
}

func (ol *OrderLedger) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS grid_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bot_id INTEGER NOT NULL,
		order_id TEXT NOT NULL,
		price REAL NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := ol.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create grid_orders table: %w", err)
	}

	const index = `CREATE INDEX IF NOT EXISTS idx_bot_price_status ON grid_orders (bot_id, price, status)`
	if _, err := ol.db.Exec(index); err != nil {
		return fmt.Errorf("failed to create ledger index: %w", err)
	}

	return nil
}

// AddOrder inserts a new order with status OPEN.
func (ol *OrderLedger) AddOrder(botID int64, orderID string, price float64, side types.OrderSide, quantity float64) error {
	_, err := ol.db.Exec(
		`INSERT INTO grid_orders (bot_id, order_id, price, side, quantity, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		botID, orderID, price, string(side), quantity, string(types.OrderStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", orderID, err)
	}

	log.Printf("💾 Ledger: saved %s order %s at %.8f (bot %d)", side, orderID, price, botID)
	return nil
}

// UpdateOrderStatus transitions an order OPEN -> CLOSED or OPEN -> CANCELED.
func (ol *OrderLedger) UpdateOrderStatus(orderID string, status types.OrderStatus) error {
	_, err := ol.db.Exec(
		`UPDATE grid_orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE order_id = ?`,
		string(status), orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %s status: %w", orderID, err)
	}
	return nil
}

// FindOpenOrderAt returns the first OPEN order for this bot whose price is
// within tolerance of the queried price, or nil when the rung is free.
func (ol *OrderLedger) FindOpenOrderAt(botID int64, price, tolerance float64) (*OrderRecord, error) {
	rows, err := ol.db.Query(
		`SELECT order_id, price, side, quantity FROM grid_orders WHERE bot_id = ? AND status = ?`,
		botID, string(types.OrderStatusOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record := OrderRecord{BotID: botID, Status: types.OrderStatusOpen}
		var side string
		if err := rows.Scan(&record.OrderID, &record.Price, &side, &record.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		if math.Abs(record.Price-price) < tolerance {
			record.Side = types.OrderSide(side)
			return &record, nil
		}
	}

	return nil, rows.Err()
}

// ListOpenOrders returns every OPEN row for the bot. Used at startup to
// reconcile in-memory state with what actually survived a restart.
func (ol *OrderLedger) ListOpenOrders(botID int64) ([]OrderRecord, error) {
	rows, err := ol.db.Query(
		`SELECT order_id, price, side, quantity, created_at, updated_at
		 FROM grid_orders WHERE bot_id = ? AND status = ? ORDER BY price`,
		botID, string(types.OrderStatusOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	defer rows.Close()

	var records []OrderRecord
	for rows.Next() {
		record := OrderRecord{BotID: botID, Status: types.OrderStatusOpen}
		var side string
		if err := rows.Scan(&record.OrderID, &record.Price, &side, &record.Quantity,
			&record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		record.Side = types.OrderSide(side)
		records = append(records, record)
	}

	return records, rows.Err()
}

// CountOpenOrdersNear returns the number of OPEN rows within tolerance of
// the given price. The engine invariant keeps this at most 1 per rung.
func (ol *OrderLedger) CountOpenOrdersNear(botID int64, price, tolerance float64) (int, error) {
	records, err := ol.ListOpenOrders(botID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, record := range records {
		if math.Abs(record.Price-price) < tolerance {
			count++
		}
	}
	return count, nil
}

// ClearOrders deletes every row for a bot. Clean-start semantics: called
// after startup cancellation so a fresh grid never collides with stale rows.
func (ol *OrderLedger) ClearOrders(botID int64) error {
	_, err := ol.db.Exec(`DELETE FROM grid_orders WHERE bot_id = ?`, botID)
	if err != nil {
		return fmt.Errorf("failed to clear ledger for bot %d: %w", botID, err)
	}

	log.Printf("🧹 Ledger: cleared all orders for bot %d", botID)
	return nil
}

// Close closes the underlying database.
func (ol *OrderLedger) Close() error {
	return ol.db.Close()
}
