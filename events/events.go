package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange     EventType = "balance_change"
	EventTypeDepositCredited   EventType = "deposit_credited"
	EventTypeLockReleased      EventType = "lock_released"
	EventTypeInconsistentState EventType = "inconsistent_state"
	EventTypeDuelResolved      EventType = "duel_resolved"
	EventTypeReconcileMismatch EventType = "reconcile_mismatch"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	UserID          int64
	NewBalance      money.Amount
	ChangeAmount    money.Amount
	TransactionType models.TransactionType
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// DepositCreditedEvent represents an on-chain deposit credited to the ledger
type DepositCreditedEvent struct {
	UserID    int64
	Amount    money.Amount
	TxHash    string
	Unclaimed bool
}

func (e DepositCreditedEvent) Type() EventType {
	return EventTypeDepositCredited
}

// LockReleasedEvent represents a transaction lock leaving the store
type LockReleasedEvent struct {
	UserID   int64
	LockType models.LockType
	Forced   bool
}

func (e LockReleasedEvent) Type() EventType {
	return EventTypeLockReleased
}

// InconsistentStateEvent is raised when the ledger and the chain
// disagree about a withdrawal. It is never resolved automatically;
// an operator must act on it.
type InconsistentStateEvent struct {
	UserID         int64
	TxHash         string
	ExpectedAmount money.Amount
	Detail         string
}

func (e InconsistentStateEvent) Type() EventType {
	return EventTypeInconsistentState
}

// DuelResolvedEvent represents a duel that was resolved
type DuelResolvedEvent struct {
	DuelID   int64
	WinnerID int64
	LoserID  int64
	Amount   money.Amount
}

func (e DuelResolvedEvent) Type() EventType {
	return EventTypeDuelResolved
}

// ReconcileMismatchEvent represents a reconciliation run that found a
// difference between the internal ledger and the on-chain balance
type ReconcileMismatchEvent struct {
	OnChainBalance money.Amount
	InternalTotal  money.Amount
}

func (e ReconcileMismatchEvent) Type() EventType {
	return EventTypeReconcileMismatch
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus stashes events until the surrounding unit of work
// commits, then flushes them to the real bus. Discarded on rollback.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush is called after a successful DB commit. Events are emitted on a
// background context so they outlive the transaction context.
func (b *TransactionalBus) Flush(ctx context.Context) error {
	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// Discard drops pending events after a rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
