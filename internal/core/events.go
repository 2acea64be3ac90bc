package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerEventType string

const (
	PaymentCreated         LedgerEventType = "payment.created"
	PaymentUpdated         LedgerEventType = "payment.updated"
	PaymentDeleted         LedgerEventType = "payment.deleted"
	ExpenseCreated         LedgerEventType = "expense.created"
	ExpenseUpdated         LedgerEventType = "expense.updated"
	ExpenseDeleted         LedgerEventType = "expense.deleted"
	MilestoneAutoCompleted LedgerEventType = "milestone.auto_completed"
)

// LedgerEvent records a committed change to a project's ledgers.
type LedgerEvent struct {
	ID         uuid.UUID       `json:"id"`
	Type       LedgerEventType `json:"type"`
	Owner      uuid.UUID       `json:"ownerId"`
	ProjectID  uuid.UUID       `json:"projectId"`
	EntityID   uuid.UUID       `json:"entityId"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type EventOption func(*LedgerEvent)

func WithProject(id uuid.UUID) EventOption {
	return func(e *LedgerEvent) {
		e.ProjectID = id
	}
}

func WithEntity(id uuid.UUID) EventOption {
	return func(e *LedgerEvent) {
		e.EntityID = id
	}
}

func WithAmount(amount decimal.Decimal) EventOption {
	return func(e *LedgerEvent) {
		e.Amount = amount
	}
}

func NewLedgerEvent(t LedgerEventType, owner uuid.UUID, opts ...EventOption) LedgerEvent {
	e := LedgerEvent{
		ID:         uuid.New(),
		Type:       t,
		Owner:      owner,
		Amount:     decimal.Zero,
		OccurredAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
