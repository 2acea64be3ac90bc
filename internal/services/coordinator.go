package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agencyledger/internal/budget"
	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/log"
	"agencyledger/internal/metrics"
)

// ErrCompensationFailed marks a fallback write that went over budget and
// could not be undone. It is logged and counted, never returned.
var ErrCompensationFailed = errors.New("compensation failed")

var errProjectRequired = core.Invalid("project", "Project id is required")

// entryLedger describes one budgeted ledger so payments and expenses share a
// single admission routine.
type entryLedger[T any] struct {
	kind     core.EntryKind
	notFound *core.Error
	id       func(T) uuid.UUID
	owner    func(T) uuid.UUID
	project  func(T) uuid.UUID
	amount   func(T) decimal.Decimal
	create   func(context.Context, ledger.Ops, T) error
	update   func(context.Context, ledger.Ops, T) error
	remove   func(context.Context, ledger.Ops, uuid.UUID, uuid.UUID) error

	// settle runs after a successful write; nil for ledgers without side
	// effects.
	settle func(context.Context, *Coordinator, ledger.Ops, T) (*core.Milestone, error)
}

var paymentLedger = entryLedger[core.Payment]{
	kind:     core.PaymentEntry,
	notFound: core.NotFound(core.CodeNotFound, "Payment not found"),
	id:       func(p core.Payment) uuid.UUID { return p.ID },
	owner:    func(p core.Payment) uuid.UUID { return p.Owner },
	project:  func(p core.Payment) uuid.UUID { return p.ProjectID },
	amount:   func(p core.Payment) decimal.Decimal { return p.Amount },
	create:   func(ctx context.Context, ops ledger.Ops, p core.Payment) error { return ops.CreatePayment(ctx, p) },
	update:   func(ctx context.Context, ops ledger.Ops, p core.Payment) error { return ops.UpdatePayment(ctx, p) },
	remove: func(ctx context.Context, ops ledger.Ops, owner, id uuid.UUID) error {
		return ops.DeletePayment(ctx, owner, id)
	},
	settle: func(ctx context.Context, c *Coordinator, ops ledger.Ops, p core.Payment) (*core.Milestone, error) {
		return c.completeMatchingMilestone(ctx, ops, p)
	},
}

var expenseLedger = entryLedger[core.Expense]{
	kind:     core.ExpenseEntry,
	notFound: core.NotFound(core.CodeNotFound, "Expense not found"),
	id:       func(e core.Expense) uuid.UUID { return e.ID },
	owner:    func(e core.Expense) uuid.UUID { return e.Owner },
	project:  func(e core.Expense) uuid.UUID { return e.ProjectID },
	amount:   func(e core.Expense) decimal.Decimal { return e.Amount },
	create:   func(ctx context.Context, ops ledger.Ops, e core.Expense) error { return ops.CreateExpense(ctx, e) },
	update:   func(ctx context.Context, ops ledger.Ops, e core.Expense) error { return ops.UpdateExpense(ctx, e) },
	remove: func(ctx context.Context, ops ledger.Ops, owner, id uuid.UUID) error {
		return ops.DeleteExpense(ctx, owner, id)
	},
}

// mutation is a proposed write. prev is the stored record for updates and
// nil for creates.
type mutation[T any] struct {
	next T
	prev *T
}

func (m mutation[T]) isUpdate() bool { return m.prev != nil }

// admission is what a committed mutation produced.
type admission struct {
	path      string
	milestone *core.Milestone
}

// Coordinator admits payments and expenses so that each ledger of a
// budgeted project never ends a request above the budget.
//
// With a transactional store the check and the write share one
// transaction. Otherwise the write is verified afterwards and undone when a
// concurrent writer pushed the ledger over budget.
type Coordinator struct {
	deps
	store ledger.Store
	sl    *log.StructuredLogger
}

func NewCoordinator(store ledger.Store, opts ...Option) *Coordinator {
	d := newDeps(log.ComponentCoordinator, opts)
	return &Coordinator{deps: d, store: store, sl: log.NewStructuredLogger(d.logger)}
}

func admit[T any](ctx context.Context, c *Coordinator, l entryLedger[T], m mutation[T]) (admission, error) {
	if c.store.SupportsTransactions() {
		var settled *core.Milestone
		err := c.store.WithTransaction(ctx, func(tx ledger.Ops) error {
			if _, err := checkAndWrite(ctx, tx, l, m); err != nil {
				return err
			}
			if l.settle == nil {
				return nil
			}
			var err error
			settled, err = l.settle(ctx, c, tx, m.next)
			return err
		})
		if !errors.Is(err, ledger.ErrTransactionUnavailable) {
			record(ctx, c, l, m, metrics.PathTransaction, outcomeOf(err))
			return admission{path: metrics.PathTransaction, milestone: settled}, err
		}
		c.logger.WarnContext(ctx, "Transaction unavailable, using verify-and-compensate",
			log.FieldKind, string(l.kind), log.FieldError, err)
	}
	return admitWithoutTransaction(ctx, c, l, m)
}

func admitWithoutTransaction[T any](ctx context.Context, c *Coordinator, l entryLedger[T], m mutation[T]) (admission, error) {
	const path = metrics.PathFallback

	project, err := checkAndWrite(ctx, c.store, l, m)
	if err != nil {
		record(ctx, c, l, m, path, outcomeOf(err))
		return admission{path: path}, err
	}

	// A concurrent writer may have landed between the check and the write.
	entries, err := c.store.ListEntryAmounts(ctx, l.kind, l.owner(m.next), l.project(m.next))
	if err != nil {
		record(ctx, c, l, m, path, metrics.OutcomeError)
		return admission{path: path}, fmt.Errorf("verify %s ledger: %w", l.kind, err)
	}
	if !budget.Within(project.Budget, budget.Total(entries, uuid.Nil)) {
		if cerr := compensate(ctx, c.store, l, m); cerr != nil {
			c.metrics.CompensationFailed(string(l.kind))
			c.sl.LogError(ctx, "Ledger left over budget", fmt.Errorf("%w: %w", ErrCompensationFailed, cerr),
				log.ComponentCoordinator, log.OpCompensate,
				log.NewFields().
					WithLedger(l.owner(m.next).String(), l.project(m.next).String()).
					WithErrorType(log.ErrorTypeCompensation))
		}
		record(ctx, c, l, m, path, metrics.OutcomeRolledBack)
		return admission{path: path}, budget.ExceedsError(l.kind, m.isUpdate())
	}

	record(ctx, c, l, m, path, metrics.OutcomeCommitted)

	var settled *core.Milestone
	if l.settle != nil {
		settled, err = l.settle(ctx, c, c.store, m.next)
		if err != nil {
			c.logger.ErrorContext(ctx, "Milestone auto-completion failed",
				log.FieldEntityID, l.id(m.next).String(), log.FieldError, err)
		}
	}
	return admission{path: path, milestone: settled}, nil
}

// checkAndWrite evaluates the mutation against the current ledger and
// persists it when admitted.
func checkAndWrite[T any](ctx context.Context, ops ledger.Ops, l entryLedger[T], m mutation[T]) (core.Project, error) {
	owner, projectID := l.owner(m.next), l.project(m.next)

	project, err := ops.GetProject(ctx, owner, projectID)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.Project{}, core.NotFound(core.CodeNotFound, "Project not found")
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("load project: %w", err)
	}

	entries, err := ops.ListEntryAmounts(ctx, l.kind, owner, projectID)
	if err != nil {
		return core.Project{}, fmt.Errorf("load %s ledger: %w", l.kind, err)
	}

	d := budget.Evaluate(l.kind, project.Budget, budget.Total(entries, l.id(m.next)), l.amount(m.next))
	if d.Exceeds() {
		return core.Project{}, budget.ExceedsError(l.kind, m.isUpdate())
	}

	if m.isUpdate() {
		err = l.update(ctx, ops, m.next)
	} else {
		err = l.create(ctx, ops, m.next)
	}
	if errors.Is(err, ledger.ErrNotFound) {
		return core.Project{}, l.notFound
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("save %s: %w", l.kind, err)
	}
	return project, nil
}

// compensate undoes a fallback write: creates are deleted, updates are
// reverted to their snapshot.
func compensate[T any](ctx context.Context, ops ledger.Ops, l entryLedger[T], m mutation[T]) error {
	if m.isUpdate() {
		return l.update(ctx, ops, *m.prev)
	}
	return l.remove(ctx, ops, l.owner(m.next), l.id(m.next))
}

func (c *Coordinator) completeMatchingMilestone(ctx context.Context, ops ledger.Ops, p core.Payment) (*core.Milestone, error) {
	candidates, err := ops.FindIncompleteMilestonesByAmount(ctx, p.Owner, p.ProjectID, p.Amount)
	if err != nil {
		return nil, fmt.Errorf("find matching milestones: %w", err)
	}
	m, ok := budget.SelectAutoComplete(candidates, p.Amount)
	if !ok {
		return nil, nil
	}
	m = budget.Complete(m, c.clock())
	if err := ops.UpdateMilestone(ctx, m); err != nil {
		return nil, fmt.Errorf("complete milestone: %w", err)
	}
	return &m, nil
}

func record[T any](ctx context.Context, c *Coordinator, l entryLedger[T], m mutation[T], path, outcome string) {
	c.metrics.ObserveAdmission(string(l.kind), path, outcome)
	c.sl.LogAdmission(ctx, l.owner(m.next).String(), l.project(m.next).String(), string(l.kind), path, outcome)
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeCommitted
	}
	e, ok := core.AsError(err)
	if !ok {
		return metrics.OutcomeError
	}
	switch e.Kind {
	case core.KindConflict:
		return metrics.OutcomeRejected
	case core.KindValidation, core.KindNotFound, core.KindBadRequest:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
