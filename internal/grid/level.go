package grid

import (
	"fmt"

	"github.com/fydblock/gridbot/pkg/types"
)

// CycleState is the lifecycle state of a single grid level.
type CycleState string

const (
	StateReadyToBuy         CycleState = "READY_TO_BUY"
	StateReadyToSell        CycleState = "READY_TO_SELL"
	StateReadyToBuyOrSell   CycleState = "READY_TO_BUY_OR_SELL"
	StateWaitingForBuyFill  CycleState = "WAITING_FOR_BUY_FILL"
	StateWaitingForSellFill CycleState = "WAITING_FOR_SELL_FILL"
)

// IsIdle reports whether the level has no live order attached.
func (s CycleState) IsIdle() bool {
	switch s {
	case StateReadyToBuy, StateReadyToSell, StateReadyToBuyOrSell:
		return true
	default:
		return false
	}
}

// Level represents a single price point in the lattice. It is a passive
// record: all state transitions happen inside the Manager.
//
// The paired level fields are back-references into the Manager's level map.
// They never own their target, so the buy/sell pairing cannot form an
// ownership cycle.
type Level struct {
	Price  float64        `json:"price"`
	State  CycleState     `json:"state"`
	Orders []*types.Order `json:"orders"`

	PairedBuyLevel  *Level `json:"-"`
	PairedSellLevel *Level `json:"-"`
}

// NewLevel creates a level at the given price in the given initial state.
func NewLevel(price float64, state CycleState) *Level {
	return &Level{
		Price:  price,
		State:  state,
		Orders: make([]*types.Order, 0, 4),
	}
}

// AddOrder attaches an order to the level's history, most recent last.
func (l *Level) AddOrder(order *types.Order) {
	l.Orders = append(l.Orders, order)
}

// CurrentOrder returns the most recently attached order, or nil.
func (l *Level) CurrentOrder() *types.Order {
	if len(l.Orders) == 0 {
		return nil
	}
	return l.Orders[len(l.Orders)-1]
}

// String is used in log lines.
func (l *Level) String() string {
	return fmt.Sprintf("Level(price=%.8f, state=%s, orders=%d)", l.Price, l.State, len(l.Orders))
}
