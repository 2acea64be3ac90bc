package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyledger/internal/budget"
	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/ledger/ledgertest"
	"agencyledger/internal/metrics"
	"agencyledger/internal/storage/memory"
)

func ledgerTotal(t *testing.T, store ledger.Store, kind core.EntryKind, p core.Project) decimal.Decimal {
	t.Helper()
	entries, err := store.ListEntryAmounts(context.Background(), kind, p.Owner, p.ID)
	require.NoError(t, err)
	return budget.Total(entries, uuid.Nil)
}

func TestCoordinatorBudgetBoundaries(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "3000")
		c := NewCoordinator(store)

		_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("3000")})
		require.NoError(t, err, "landing exactly on the budget is allowed")

		_, err = c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("0.01")})
		e := requireCode(t, err, core.CodePaymentExceedsBudget)
		assert.Equal(t, "Payment would exceed project budget", e.Message)

		// Expenses are a separate ledger with the same ceiling.
		_, err = c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &p.ID, Amount: amount("3000")})
		require.NoError(t, err)

		_, err = c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &p.ID, Amount: amount("1")})
		e = requireCode(t, err, core.CodeExpenseExceedsBudget)
		assert.Equal(t, "Expense would exceed project budget", e.Message)

		assert.True(t, ledgerTotal(t, store, core.PaymentEntry, p).Equal(decimal.NewFromInt(3000)))
		assert.True(t, ledgerTotal(t, store, core.ExpenseEntry, p).Equal(decimal.NewFromInt(3000)))
	})
}

func TestCoordinatorUnbudgetedProject(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "0")
		c := NewCoordinator(store)

		for i := 0; i < 3; i++ {
			_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("1000000")})
			require.NoError(t, err)
		}
		assert.True(t, ledgerTotal(t, store, core.PaymentEntry, p).Equal(decimal.NewFromInt(3000000)))
	})
}

func TestCoordinatorRejectionIsIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "1000")
		m := metrics.New()
		c := NewCoordinator(store, WithMetrics(m))

		_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("600")})
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err = c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("600")})
			requireCode(t, err, core.CodePaymentExceedsBudget)
		}

		list, err := c.ListPayments(ctx, owner, ledger.PaymentFilter{ProjectID: &p.ID})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		path := metrics.PathFallback
		if store.SupportsTransactions() {
			path = metrics.PathTransaction
		}
		assert.Equal(t, float64(3), m.AdmissionCount("payment", path, metrics.OutcomeRejected))
		assert.Equal(t, float64(1), m.AdmissionCount("payment", path, metrics.OutcomeCommitted))
	})
}

func TestCoordinatorValidatesBeforeStoreAccess(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	projectID := uuid.New()
	m := metrics.New()
	// Nothing is seeded: a store lookup would turn these into 404s.
	c := NewCoordinator(memory.New(), WithMetrics(m))

	tests := []struct {
		name string
		in   PaymentInput
	}{
		{name: "missing amount", in: PaymentInput{ProjectID: &projectID}},
		{name: "zero amount", in: PaymentInput{ProjectID: &projectID, Amount: amount("0")}},
		{name: "negative amount", in: PaymentInput{ProjectID: &projectID, Amount: amount("-5")}},
		{name: "amount out of range", in: PaymentInput{ProjectID: &projectID, Amount: amount("1e-10000000")}},
		{name: "missing project", in: PaymentInput{Amount: amount("10")}},
		{name: "nil project", in: PaymentInput{ProjectID: &uuid.Nil, Amount: amount("10")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreatePayment(ctx, owner, tt.in)
			e := requireCode(t, err, core.CodeValidation)
			assert.Equal(t, core.KindValidation, e.Kind)
			require.Len(t, e.Details, 1)
		})
	}
	assert.Equal(t, float64(len(tests)), m.AdmissionCount("payment", metrics.PathNone, metrics.OutcomeInvalid))

	_, err := c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &projectID, Amount: amount("0")})
	requireCode(t, err, core.CodeValidation)

	_, err = c.UpdatePayment(ctx, owner, uuid.New(), PaymentPatch{Amount: amount("0")})
	requireCode(t, err, core.CodeValidation)
	_, err = c.UpdateExpense(ctx, owner, uuid.New(), ExpensePatch{ProjectID: &uuid.Nil})
	requireCode(t, err, core.CodeValidation)

	assert.Equal(t, float64(len(tests)+1), m.AdmissionCount("payment", metrics.PathNone, metrics.OutcomeInvalid))
	assert.Equal(t, float64(2), m.AdmissionCount("expense", metrics.PathNone, metrics.OutcomeInvalid))
}

func TestCoordinatorTenantIsolation(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		p := seedProject(t, store, uuid.New(), "1000")
		c := NewCoordinator(store)

		_, err := c.CreatePayment(ctx, uuid.New(), PaymentInput{ProjectID: &p.ID, Amount: amount("10")})
		e := requireCode(t, err, core.CodeNotFound)
		assert.Equal(t, "Project not found", e.Message)

		missing := uuid.New()
		_, err = c.CreateExpense(ctx, p.Owner, ExpenseInput{ProjectID: &missing, Amount: amount("10")})
		requireCode(t, err, core.CodeNotFound)

		unknownClient := uuid.New()
		_, err = c.CreatePayment(ctx, p.Owner, PaymentInput{ProjectID: &p.ID, ClientID: &unknownClient, Amount: amount("10")})
		e = requireCode(t, err, core.CodeNotFound)
		assert.Equal(t, "Client not found", e.Message)
	})
}

func TestCoordinatorUpdateExcludesItself(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "3000")
		c := NewCoordinator(store)

		pay, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("1000")})
		require.NoError(t, err)

		updated, err := c.UpdatePayment(ctx, owner, pay.ID, PaymentPatch{Amount: amount("3000")})
		require.NoError(t, err)
		assert.True(t, updated.Amount.Equal(decimal.NewFromInt(3000)))

		_, err = c.UpdatePayment(ctx, owner, pay.ID, PaymentPatch{Amount: amount("3000.01")})
		e := requireCode(t, err, core.CodePaymentExceedsBudget)
		assert.Equal(t, "Updated payment would exceed project budget", e.Message)

		stored, err := c.GetPayment(ctx, owner, pay.ID)
		require.NoError(t, err)
		assert.True(t, stored.Amount.Equal(decimal.NewFromInt(3000)))

		notes := "retainer"
		updated, err = c.UpdatePayment(ctx, owner, pay.ID, PaymentPatch{Notes: &notes})
		require.NoError(t, err, "an update that leaves the amount alone is admitted")
		assert.Equal(t, "retainer", updated.Notes)

		_, err = c.UpdatePayment(ctx, owner, uuid.New(), PaymentPatch{Notes: &notes})
		e = requireCode(t, err, core.CodeNotFound)
		assert.Equal(t, "Payment not found", e.Message)
	})
}

func TestCoordinatorUpdateExpense(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "500")
		c := NewCoordinator(store)

		exp, err := c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &p.ID, Amount: amount("200"), Description: "hosting"})
		require.NoError(t, err)
		_, err = c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &p.ID, Amount: amount("200")})
		require.NoError(t, err)

		_, err = c.UpdateExpense(ctx, owner, exp.ID, ExpensePatch{Amount: amount("301")})
		e := requireCode(t, err, core.CodeExpenseExceedsBudget)
		assert.Equal(t, "Updated expense would exceed project budget", e.Message)

		updated, err := c.UpdateExpense(ctx, owner, exp.ID, ExpensePatch{Amount: amount("300")})
		require.NoError(t, err)
		assert.Equal(t, "hosting", updated.Description)
		assert.True(t, ledgerTotal(t, store, core.ExpenseEntry, p).Equal(decimal.NewFromInt(500)))
	})
}

func TestCoordinatorMilestoneAutoComplete(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "5000")
		due := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		first := ledgertest.Milestone(p, "500", due)
		later := ledgertest.Milestone(p, "500", due.AddDate(0, 1, 0))
		other := ledgertest.Milestone(p, "700", due)
		for _, m := range []core.Milestone{later, first, other} {
			require.NoError(t, store.CreateMilestone(ctx, m))
		}

		now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
		pub := &recordingPublisher{}
		c := NewCoordinator(store, WithPublisher(pub), WithClock(func() time.Time { return now }))

		_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("500.00")})
		require.NoError(t, err)

		got, err := store.GetMilestone(ctx, owner, first.ID)
		require.NoError(t, err)
		assert.True(t, got.Completed)
		assert.Equal(t, core.MilestoneCompleted, got.Status)
		require.NotNil(t, got.CompletedDate)
		assert.True(t, got.CompletedDate.Equal(now))

		got, err = store.GetMilestone(ctx, owner, later.ID)
		require.NoError(t, err)
		assert.False(t, got.Completed, "only the earliest due milestone settles")

		assert.Equal(t, []core.LedgerEventType{core.PaymentCreated, core.MilestoneAutoCompleted}, pub.types())

		// A second payment moves on to the next match and leaves the first untouched.
		now = now.Add(time.Hour)
		_, err = c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("500")})
		require.NoError(t, err)

		got, err = store.GetMilestone(ctx, owner, first.ID)
		require.NoError(t, err)
		assert.True(t, got.CompletedDate.Equal(now.Add(-time.Hour)))
		got, err = store.GetMilestone(ctx, owner, later.ID)
		require.NoError(t, err)
		assert.True(t, got.Completed)

		// Nothing left at 500.
		_, err = c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("500")})
		require.NoError(t, err)
		got, err = store.GetMilestone(ctx, owner, other.ID)
		require.NoError(t, err)
		assert.False(t, got.Completed)
	})
}

func TestCoordinatorRejectedPaymentSettlesNothing(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "400")
		m := ledgertest.Milestone(p, "500", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, store.CreateMilestone(ctx, m))
		c := NewCoordinator(store)

		_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("500")})
		requireCode(t, err, core.CodePaymentExceedsBudget)

		got, err := store.GetMilestone(ctx, owner, m.ID)
		require.NoError(t, err)
		assert.False(t, got.Completed)
	})
}

func TestCoordinatorConcurrentCreates(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "3000")
		c := NewCoordinator(store)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			admitted int
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("2000")})
				if err == nil {
					mu.Lock()
					admitted++
					mu.Unlock()
					return
				}
				assert.True(t, core.HasCode(err, core.CodePaymentExceedsBudget), "unexpected error: %v", err)
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, admitted, 1)
		if store.SupportsTransactions() {
			assert.Equal(t, 1, admitted)
		}
		total := ledgerTotal(t, store, core.PaymentEntry, p)
		assert.True(t, total.LessThanOrEqual(decimal.NewFromInt(3000)), "total %s over budget", total)
	})
}

func TestCoordinatorFallbackCompensatesCreate(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	base := memory.New()
	p := ledgertest.Project(owner, "3000")
	require.NoError(t, base.CreateProject(ctx, p))
	concurrent := ledgertest.Payment(p, "2000")
	store := &racingStore{Store: base, payment: &concurrent}

	m := metrics.New()
	pub := &recordingPublisher{}
	c := NewCoordinator(store, WithMetrics(m), WithPublisher(pub))

	_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("2000")})
	e := requireCode(t, err, core.CodePaymentExceedsBudget)
	assert.Equal(t, "Payment would exceed project budget", e.Message)

	list, err := base.ListPayments(ctx, owner, ledger.PaymentFilter{ProjectID: &p.ID})
	require.NoError(t, err)
	require.Len(t, list, 1, "the losing write is deleted")
	assert.Equal(t, concurrent.ID, list[0].ID)
	assert.Equal(t, float64(1), m.AdmissionCount("payment", metrics.PathFallback, metrics.OutcomeRolledBack))
	assert.Empty(t, pub.types(), "rolled back writes publish nothing")
}

func TestCoordinatorFallbackRevertsUpdate(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	base := memory.New()
	p := ledgertest.Project(owner, "3000")
	require.NoError(t, base.CreateProject(ctx, p))
	mine := ledgertest.Payment(p, "1000")
	mine.Notes = "original"
	require.NoError(t, base.CreatePayment(ctx, mine))

	concurrent := ledgertest.Payment(p, "1500")
	store := &racingStore{Store: base, payment: &concurrent}
	c := NewCoordinator(store)

	notes := "changed"
	_, err := c.UpdatePayment(ctx, owner, mine.ID, PaymentPatch{Amount: amount("2000"), Notes: &notes})
	e := requireCode(t, err, core.CodePaymentExceedsBudget)
	assert.Equal(t, "Updated payment would exceed project budget", e.Message)

	got, err := base.GetPayment(ctx, owner, mine.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "original", got.Notes)
	assert.True(t, ledgerTotal(t, base, core.PaymentEntry, p).Equal(decimal.NewFromInt(2500)))
}

func TestCoordinatorFallbackCompensatesExpense(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	base := memory.New()
	p := ledgertest.Project(owner, "100")
	require.NoError(t, base.CreateProject(ctx, p))
	concurrent := ledgertest.Expense(p, "60")
	store := &racingStore{Store: base, expense: &concurrent}
	c := NewCoordinator(store)

	_, err := c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &p.ID, Amount: amount("50")})
	requireCode(t, err, core.CodeExpenseExceedsBudget)
	assert.True(t, ledgerTotal(t, base, core.ExpenseEntry, p).Equal(decimal.NewFromInt(60)))
}

func TestCoordinatorFailedCompensationStillConflicts(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	base := memory.New()
	p := ledgertest.Project(owner, "3000")
	require.NoError(t, base.CreateProject(ctx, p))
	concurrent := ledgertest.Payment(p, "2000")
	store := &racingStore{Store: base, payment: &concurrent, failDelete: true}

	m := metrics.New()
	c := NewCoordinator(store, WithMetrics(m))

	_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("2000")})
	requireCode(t, err, core.CodePaymentExceedsBudget)
	assert.False(t, errors.Is(err, ErrCompensationFailed), "compensation failures are never returned")
	assert.Equal(t, float64(1), m.CompensationFailureCount("payment"))
}

func TestCoordinatorFailedRevertStillConflicts(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	base := memory.New()
	p := ledgertest.Project(owner, "3000")
	require.NoError(t, base.CreateProject(ctx, p))
	mine := ledgertest.Payment(p, "1000")
	require.NoError(t, base.CreatePayment(ctx, mine))
	concurrent := ledgertest.Payment(p, "1500")
	store := &racingStore{Store: base, payment: &concurrent, failUpdate: true}

	m := metrics.New()
	c := NewCoordinator(store, WithMetrics(m))

	_, err := c.UpdatePayment(ctx, owner, mine.ID, PaymentPatch{Amount: amount("2000")})
	requireCode(t, err, core.CodePaymentExceedsBudget)
	assert.Equal(t, float64(1), m.CompensationFailureCount("payment"))
}

func TestCoordinatorFallsBackWhenTransactionUnavailable(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	base := memory.New()
	p := ledgertest.Project(owner, "100")
	require.NoError(t, base.CreateProject(ctx, p))

	m := metrics.New()
	c := NewCoordinator(flakyTxStore{Store: base}, WithMetrics(m))

	_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("100")})
	require.NoError(t, err)
	_, err = c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("1")})
	requireCode(t, err, core.CodePaymentExceedsBudget)

	assert.Equal(t, float64(1), m.AdmissionCount("payment", metrics.PathFallback, metrics.OutcomeCommitted))
	assert.Equal(t, float64(1), m.AdmissionCount("payment", metrics.PathFallback, metrics.OutcomeRejected))
	assert.Zero(t, m.AdmissionCount("payment", metrics.PathTransaction, metrics.OutcomeCommitted))
}

func TestCoordinatorDeletes(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "1000")
		pub := &recordingPublisher{err: errors.New("broker down")}
		c := NewCoordinator(store, WithPublisher(pub))

		pay, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("1000")})
		require.NoError(t, err, "publish failures do not fail the write")
		exp, err := c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &p.ID, Amount: amount("10")})
		require.NoError(t, err)

		require.NoError(t, c.DeletePayment(ctx, owner, pay.ID))
		require.NoError(t, c.DeleteExpense(ctx, owner, exp.ID))

		_, err = c.GetPayment(ctx, owner, pay.ID)
		requireCode(t, err, core.CodeNotFound)
		err = c.DeleteExpense(ctx, owner, exp.ID)
		e := requireCode(t, err, core.CodeNotFound)
		assert.Equal(t, "Expense not found", e.Message)

		// The freed budget is available again.
		_, err = c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("1000")})
		require.NoError(t, err)

		assert.Equal(t, []core.LedgerEventType{
			core.PaymentCreated, core.ExpenseCreated,
			core.PaymentDeleted, core.ExpenseDeleted,
			core.PaymentCreated,
		}, pub.types())
	})
}

func TestCreatePaymentDefaults(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	owner := uuid.New()
	p := seedProject(t, store, owner, "0")
	now := time.Date(2025, 5, 5, 8, 30, 0, 0, time.UTC)
	c := NewCoordinator(store, WithClock(func() time.Time { return now }))

	pay, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("12.50")})
	require.NoError(t, err)
	assert.Equal(t, core.DefaultCurrency, pay.Currency)
	assert.Equal(t, "received", pay.Status)
	assert.True(t, pay.Date.Equal(now))
	assert.Equal(t, owner, pay.Owner)
}
