// Package ledger defines the persistence contract the services depend on.
//
// Adapters live under internal/storage. Every read is scoped to an owner so
// no adapter can leak records across tenants.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agencyledger/internal/core"
)

var (
	// ErrNotFound is returned when a record does not exist for the owner.
	ErrNotFound = errors.New("record not found")

	// ErrTransactionUnavailable signals that a transaction could not be
	// opened for infrastructure reasons. Callers fall back to a
	// non-transactional protocol instead of failing the request.
	ErrTransactionUnavailable = errors.New("transaction unavailable")
)

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	ProjectID *uuid.UUID
	ClientID  *uuid.UUID
}

// ExpenseFilter narrows expense listings.
type ExpenseFilter struct {
	ProjectID  *uuid.UUID
	CategoryID *uuid.UUID
}

// ProjectFilter narrows project listings.
type ProjectFilter struct {
	Status      core.ProjectStatus
	ClientID    *uuid.UUID
	StartsAfter *time.Time
	StartsUntil *time.Time
}

// ProjectStore persists projects.
type ProjectStore interface {
	GetProject(ctx context.Context, owner, id uuid.UUID) (core.Project, error)
	ListProjects(ctx context.Context, owner uuid.UUID, f ProjectFilter) ([]core.Project, error)
	CreateProject(ctx context.Context, p core.Project) error
	UpdateProject(ctx context.Context, p core.Project) error
	DeleteProject(ctx context.Context, owner, id uuid.UUID) error
	// ListOverdueProjects returns active projects of any owner whose end
	// date is before now.
	ListOverdueProjects(ctx context.Context, now time.Time, limit int) ([]core.Project, error)
}

// PaymentStore persists payments.
type PaymentStore interface {
	GetPayment(ctx context.Context, owner, id uuid.UUID) (core.Payment, error)
	ListPayments(ctx context.Context, owner uuid.UUID, f PaymentFilter) ([]core.Payment, error)
	CreatePayment(ctx context.Context, p core.Payment) error
	// UpdatePayment overwrites the stored record; passing a snapshot
	// reverts it.
	UpdatePayment(ctx context.Context, p core.Payment) error
	DeletePayment(ctx context.Context, owner, id uuid.UUID) error
}

// ExpenseStore persists expenses.
type ExpenseStore interface {
	GetExpense(ctx context.Context, owner, id uuid.UUID) (core.Expense, error)
	ListExpenses(ctx context.Context, owner uuid.UUID, f ExpenseFilter) ([]core.Expense, error)
	CreateExpense(ctx context.Context, e core.Expense) error
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, owner, id uuid.UUID) error
}

// EntryStore exposes the projections used for budget totals and guards.
type EntryStore interface {
	// ListEntryAmounts returns every sibling of kind on the project.
	ListEntryAmounts(ctx context.Context, kind core.EntryKind, owner, projectID uuid.UUID) ([]core.EntryAmount, error)
	CountProjectEntries(ctx context.Context, owner, projectID uuid.UUID) (payments, expenses int, err error)
	CountClientReferences(ctx context.Context, owner, clientID uuid.UUID) (projects, payments int, err error)
	CountCategoryExpenses(ctx context.Context, owner, categoryID uuid.UUID) (int, error)
}

// MilestoneStore persists milestones.
type MilestoneStore interface {
	GetMilestone(ctx context.Context, owner, id uuid.UUID) (core.Milestone, error)
	// ListMilestones returns milestones ordered by due date; a nil project
	// lists every milestone of the owner.
	ListMilestones(ctx context.Context, owner uuid.UUID, projectID *uuid.UUID) ([]core.Milestone, error)
	FindIncompleteMilestonesByAmount(ctx context.Context, owner, projectID uuid.UUID, amount decimal.Decimal) ([]core.Milestone, error)
	CreateMilestone(ctx context.Context, m core.Milestone) error
	UpdateMilestone(ctx context.Context, m core.Milestone) error
	DeleteMilestone(ctx context.Context, owner, id uuid.UUID) error
	DeleteProjectMilestones(ctx context.Context, owner, projectID uuid.UUID) (int, error)
}

// ClientStore persists clients.
type ClientStore interface {
	GetClient(ctx context.Context, owner, id uuid.UUID) (core.Client, error)
	ListClients(ctx context.Context, owner uuid.UUID) ([]core.Client, error)
	CreateClient(ctx context.Context, c core.Client) error
	UpdateClient(ctx context.Context, c core.Client) error
	DeleteClient(ctx context.Context, owner, id uuid.UUID) error
}

// CategoryStore persists categories. Deleted categories stay stored with
// IsDeleted set and are hidden from reads.
type CategoryStore interface {
	GetCategory(ctx context.Context, owner, id uuid.UUID) (core.Category, error)
	ListCategories(ctx context.Context, owner uuid.UUID) ([]core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) error
	UpdateCategory(ctx context.Context, c core.Category) error
}

// ReminderStore persists reminders.
type ReminderStore interface {
	GetReminder(ctx context.Context, owner, id uuid.UUID) (core.Reminder, error)
	ListReminders(ctx context.Context, owner uuid.UUID) ([]core.Reminder, error)
	CreateReminder(ctx context.Context, r core.Reminder) error
	UpdateReminder(ctx context.Context, r core.Reminder) error
	DeleteReminder(ctx context.Context, owner, id uuid.UUID) error
	// HasRecentProjectReminder reports whether a reminder of type t for the
	// project was created after since.
	HasRecentProjectReminder(ctx context.Context, owner, projectID uuid.UUID, t core.ReminderType, since time.Time) (bool, error)
}

// EventStore keeps the audit trail of ledger events.
type EventStore interface {
	AppendEvent(ctx context.Context, e core.LedgerEvent) error
	ListEvents(ctx context.Context, owner uuid.UUID, limit int) ([]core.LedgerEvent, error)
}

// Ops is every operation available both inside and outside a transaction.
type Ops interface {
	ProjectStore
	PaymentStore
	ExpenseStore
	EntryStore
	MilestoneStore
	ClientStore
	CategoryStore
	ReminderStore
	EventStore
}

// Store is a ledger backend.
type Store interface {
	Ops

	// SupportsTransactions reports whether WithTransaction can be used.
	SupportsTransactions() bool

	// WithTransaction runs fn atomically. If fn returns an error the
	// transaction is rolled back and the error is returned unchanged.
	// Failure to open the transaction wraps ErrTransactionUnavailable.
	WithTransaction(ctx context.Context, fn func(tx Ops) error) error

	Close() error
}
