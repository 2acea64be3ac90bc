package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agencyledger/internal/budget"
	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/metrics"
)

const defaultPaymentStatus = "received"

// PaymentInput carries the fields of a new payment. Pointers mark fields
// the caller may omit.
type PaymentInput struct {
	ProjectID *uuid.UUID
	ClientID  *uuid.UUID
	Amount    *decimal.Decimal
	Currency  string
	Method    string
	Status    string
	Date      *time.Time
	Notes     string
}

// PaymentPatch holds the fields present in an update request.
type PaymentPatch struct {
	ProjectID *uuid.UUID
	ClientID  *uuid.UUID
	Amount    *decimal.Decimal
	Currency  *string
	Method    *string
	Status    *string
	Date      *time.Time
	Notes     *string
}

type ExpenseInput struct {
	ProjectID   *uuid.UUID
	CategoryID  *uuid.UUID
	Amount      *decimal.Decimal
	Currency    string
	Date        *time.Time
	Description string
	ReceiptURL  string
}

type ExpensePatch struct {
	ProjectID   *uuid.UUID
	CategoryID  *uuid.UUID
	Amount      *decimal.Decimal
	Currency    *string
	Date        *time.Time
	Description *string
	ReceiptURL  *string
}

func validateNew(amount *decimal.Decimal, projectID *uuid.UUID) error {
	if err := budget.ValidateAmount(amount); err != nil {
		return err
	}
	if projectID == nil || *projectID == uuid.Nil {
		return errProjectRequired
	}
	return nil
}

// validatePatch checks the admission-relevant fields present in an update.
func validatePatch(amount *decimal.Decimal, projectID *uuid.UUID) error {
	if amount != nil {
		if err := budget.ValidateAmount(amount); err != nil {
			return err
		}
	}
	if projectID != nil && *projectID == uuid.Nil {
		return errProjectRequired
	}
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func (c *Coordinator) CreatePayment(ctx context.Context, owner uuid.UUID, in PaymentInput) (core.Payment, error) {
	if err := validateNew(in.Amount, in.ProjectID); err != nil {
		record(ctx, c, paymentLedger, mutation[core.Payment]{next: core.Payment{Owner: owner}}, metrics.PathNone, outcomeOf(err))
		return core.Payment{}, err
	}
	if err := c.checkClient(ctx, owner, in.ClientID); err != nil {
		return core.Payment{}, err
	}

	now := c.clock()
	p := core.Payment{
		ID:        uuid.New(),
		Owner:     owner,
		ProjectID: *in.ProjectID,
		ClientID:  in.ClientID,
		Amount:    *in.Amount,
		Currency:  orDefault(in.Currency, core.DefaultCurrency),
		Method:    in.Method,
		Status:    orDefault(in.Status, defaultPaymentStatus),
		Date:      now,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Date != nil {
		p.Date = in.Date.UTC()
	}

	res, err := admit(ctx, c, paymentLedger, mutation[core.Payment]{next: p})
	if err != nil {
		return core.Payment{}, err
	}
	c.publishEntry(ctx, core.PaymentCreated, p.Owner, p.ProjectID, p.ID, p.Amount, res.milestone)
	return p, nil
}

func (c *Coordinator) UpdatePayment(ctx context.Context, owner, id uuid.UUID, patch PaymentPatch) (core.Payment, error) {
	if err := validatePatch(patch.Amount, patch.ProjectID); err != nil {
		record(ctx, c, paymentLedger, mutation[core.Payment]{next: core.Payment{Owner: owner}}, metrics.PathNone, outcomeOf(err))
		return core.Payment{}, err
	}

	prev, err := c.GetPayment(ctx, owner, id)
	if err != nil {
		return core.Payment{}, err
	}
	if err := c.checkClient(ctx, owner, patch.ClientID); err != nil {
		return core.Payment{}, err
	}

	next := prev
	if patch.ProjectID != nil {
		next.ProjectID = *patch.ProjectID
	}
	if patch.ClientID != nil {
		next.ClientID = patch.ClientID
	}
	if patch.Amount != nil {
		next.Amount = *patch.Amount
	}
	if patch.Currency != nil {
		next.Currency = orDefault(*patch.Currency, core.DefaultCurrency)
	}
	if patch.Method != nil {
		next.Method = *patch.Method
	}
	if patch.Status != nil {
		next.Status = orDefault(*patch.Status, defaultPaymentStatus)
	}
	if patch.Date != nil {
		next.Date = patch.Date.UTC()
	}
	if patch.Notes != nil {
		next.Notes = *patch.Notes
	}
	next.UpdatedAt = c.clock()

	res, err := admit(ctx, c, paymentLedger, mutation[core.Payment]{next: next, prev: &prev})
	if err != nil {
		return core.Payment{}, err
	}
	c.publishEntry(ctx, core.PaymentUpdated, next.Owner, next.ProjectID, next.ID, next.Amount, res.milestone)
	return next, nil
}

func (c *Coordinator) GetPayment(ctx context.Context, owner, id uuid.UUID) (core.Payment, error) {
	p, err := c.store.GetPayment(ctx, owner, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.Payment{}, paymentLedger.notFound
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (c *Coordinator) ListPayments(ctx context.Context, owner uuid.UUID, f ledger.PaymentFilter) ([]core.Payment, error) {
	out, err := c.store.ListPayments(ctx, owner, f)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

// DeletePayment removes a payment directly; shrinking a ledger cannot break
// its budget.
func (c *Coordinator) DeletePayment(ctx context.Context, owner, id uuid.UUID) error {
	p, err := c.GetPayment(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := c.store.DeletePayment(ctx, owner, id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return paymentLedger.notFound
		}
		return fmt.Errorf("delete payment: %w", err)
	}
	c.publishEntry(ctx, core.PaymentDeleted, owner, p.ProjectID, p.ID, p.Amount, nil)
	return nil
}

func (c *Coordinator) CreateExpense(ctx context.Context, owner uuid.UUID, in ExpenseInput) (core.Expense, error) {
	if err := validateNew(in.Amount, in.ProjectID); err != nil {
		record(ctx, c, expenseLedger, mutation[core.Expense]{next: core.Expense{Owner: owner}}, metrics.PathNone, outcomeOf(err))
		return core.Expense{}, err
	}
	if err := c.checkCategory(ctx, owner, in.CategoryID); err != nil {
		return core.Expense{}, err
	}

	now := c.clock()
	e := core.Expense{
		ID:          uuid.New(),
		Owner:       owner,
		ProjectID:   *in.ProjectID,
		CategoryID:  in.CategoryID,
		Amount:      *in.Amount,
		Currency:    orDefault(in.Currency, core.DefaultCurrency),
		Date:        now,
		Description: in.Description,
		ReceiptURL:  in.ReceiptURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Date != nil {
		e.Date = in.Date.UTC()
	}

	if _, err := admit(ctx, c, expenseLedger, mutation[core.Expense]{next: e}); err != nil {
		return core.Expense{}, err
	}
	c.publishEntry(ctx, core.ExpenseCreated, e.Owner, e.ProjectID, e.ID, e.Amount, nil)
	return e, nil
}

func (c *Coordinator) UpdateExpense(ctx context.Context, owner, id uuid.UUID, patch ExpensePatch) (core.Expense, error) {
	if err := validatePatch(patch.Amount, patch.ProjectID); err != nil {
		record(ctx, c, expenseLedger, mutation[core.Expense]{next: core.Expense{Owner: owner}}, metrics.PathNone, outcomeOf(err))
		return core.Expense{}, err
	}

	prev, err := c.GetExpense(ctx, owner, id)
	if err != nil {
		return core.Expense{}, err
	}
	if err := c.checkCategory(ctx, owner, patch.CategoryID); err != nil {
		return core.Expense{}, err
	}

	next := prev
	if patch.ProjectID != nil {
		next.ProjectID = *patch.ProjectID
	}
	if patch.CategoryID != nil {
		next.CategoryID = patch.CategoryID
	}
	if patch.Amount != nil {
		next.Amount = *patch.Amount
	}
	if patch.Currency != nil {
		next.Currency = orDefault(*patch.Currency, core.DefaultCurrency)
	}
	if patch.Date != nil {
		next.Date = patch.Date.UTC()
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.ReceiptURL != nil {
		next.ReceiptURL = *patch.ReceiptURL
	}
	next.UpdatedAt = c.clock()

	if _, err := admit(ctx, c, expenseLedger, mutation[core.Expense]{next: next, prev: &prev}); err != nil {
		return core.Expense{}, err
	}
	c.publishEntry(ctx, core.ExpenseUpdated, next.Owner, next.ProjectID, next.ID, next.Amount, nil)
	return next, nil
}

func (c *Coordinator) GetExpense(ctx context.Context, owner, id uuid.UUID) (core.Expense, error) {
	e, err := c.store.GetExpense(ctx, owner, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.Expense{}, expenseLedger.notFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (c *Coordinator) ListExpenses(ctx context.Context, owner uuid.UUID, f ledger.ExpenseFilter) ([]core.Expense, error) {
	out, err := c.store.ListExpenses(ctx, owner, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

func (c *Coordinator) DeleteExpense(ctx context.Context, owner, id uuid.UUID) error {
	e, err := c.GetExpense(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := c.store.DeleteExpense(ctx, owner, id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return expenseLedger.notFound
		}
		return fmt.Errorf("delete expense: %w", err)
	}
	c.publishEntry(ctx, core.ExpenseDeleted, owner, e.ProjectID, e.ID, e.Amount, nil)
	return nil
}

func (c *Coordinator) checkClient(ctx context.Context, owner uuid.UUID, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	_, err := c.store.GetClient(ctx, owner, *id)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.NotFound(core.CodeNotFound, "Client not found")
	}
	if err != nil {
		return fmt.Errorf("get client: %w", err)
	}
	return nil
}

func (c *Coordinator) checkCategory(ctx context.Context, owner uuid.UUID, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	_, err := c.store.GetCategory(ctx, owner, *id)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.NotFound(core.CodeNotFound, "Category not found")
	}
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	return nil
}

func (c *Coordinator) publishEntry(ctx context.Context, t core.LedgerEventType, owner, projectID, entityID uuid.UUID, amount decimal.Decimal, settled *core.Milestone) {
	events := []core.LedgerEvent{core.NewLedgerEvent(t, owner,
		core.WithProject(projectID), core.WithEntity(entityID), core.WithAmount(amount))}
	if settled != nil {
		c.metrics.MilestoneCompleted()
		events = append(events, core.NewLedgerEvent(core.MilestoneAutoCompleted, owner,
			core.WithProject(projectID), core.WithEntity(settled.ID), core.WithAmount(settled.Amount)))
	}
	c.publish(ctx, events...)
}
