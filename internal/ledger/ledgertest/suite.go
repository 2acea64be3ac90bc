// Package ledgertest holds the behavioural suite every ledger.Store adapter
// must pass.
package ledgertest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
)

// Factory returns a fresh, empty store. The store is closed by the suite.
type Factory func(t *testing.T) ledger.Store

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Project returns a valid project owned by owner.
func Project(owner uuid.UUID, budget string) core.Project {
	return core.Project{
		ID:        uuid.New(),
		Owner:     owner,
		Title:     "Website redesign",
		Budget:    decimal.RequireFromString(budget),
		Currency:  core.DefaultCurrency,
		Status:    core.ProjectActive,
		CreatedAt: base,
		UpdatedAt: base,
	}
}

// Payment returns a payment against project.
func Payment(p core.Project, amount string) core.Payment {
	return core.Payment{
		ID:        uuid.New(),
		Owner:     p.Owner,
		ProjectID: p.ID,
		Amount:    decimal.RequireFromString(amount),
		Currency:  p.Currency,
		Status:    "completed",
		Date:      base,
		CreatedAt: base,
		UpdatedAt: base,
	}
}

// Expense returns an expense against project.
func Expense(p core.Project, amount string) core.Expense {
	return core.Expense{
		ID:        uuid.New(),
		Owner:     p.Owner,
		ProjectID: p.ID,
		Amount:    decimal.RequireFromString(amount),
		Currency:  p.Currency,
		Date:      base,
		CreatedAt: base,
		UpdatedAt: base,
	}
}

// Milestone returns a pending milestone on project.
func Milestone(p core.Project, amount string, due time.Time) core.Milestone {
	return core.Milestone{
		ID:        uuid.New(),
		Owner:     p.Owner,
		ProjectID: p.ID,
		Name:      "Phase",
		Amount:    decimal.RequireFromString(amount),
		DueDate:   due,
		Status:    core.MilestonePending,
		CreatedAt: base,
		UpdatedAt: base,
	}
}

func Run(t *testing.T, newStore Factory) {
	t.Run("projects", func(t *testing.T) { testProjects(t, newStore) })
	t.Run("entries", func(t *testing.T) { testEntries(t, newStore) })
	t.Run("milestones", func(t *testing.T) { testMilestones(t, newStore) })
	t.Run("directory", func(t *testing.T) { testDirectory(t, newStore) })
	t.Run("reminders", func(t *testing.T) { testReminders(t, newStore) })
	t.Run("events", func(t *testing.T) { testEvents(t, newStore) })
}

func open(t *testing.T, newStore Factory) ledger.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testProjects(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	owner, other := uuid.New(), uuid.New()

	p := Project(owner, "3000.50")
	start := base.AddDate(0, 0, -10)
	end := base.AddDate(0, 0, -1)
	p.StartDate, p.EndDate = &start, &end
	require.NoError(t, s.CreateProject(ctx, p))

	got, err := s.GetProject(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Title, got.Title)
	assert.True(t, got.Budget.Equal(p.Budget))
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(end))

	_, err = s.GetProject(ctx, other, p.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	later := Project(owner, "0")
	later.Status = core.ProjectDraft
	later.CreatedAt = base.Add(time.Hour)
	require.NoError(t, s.CreateProject(ctx, later))

	all, err := s.ListProjects(ctx, owner, ledger.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, later.ID, all[0].ID, "newest first")

	active, err := s.ListProjects(ctx, owner, ledger.ProjectFilter{Status: core.ProjectActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, p.ID, active[0].ID)

	overdue, err := s.ListOverdueProjects(ctx, base, 100)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, p.ID, overdue[0].ID)

	p.Title = "Renamed"
	require.NoError(t, s.UpdateProject(ctx, p))
	got, err = s.GetProject(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	require.NoError(t, s.DeleteProject(ctx, owner, p.ID))
	assert.ErrorIs(t, s.DeleteProject(ctx, owner, p.ID), ledger.ErrNotFound)
}

func testEntries(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	owner := uuid.New()
	p := Project(owner, "3000")
	require.NoError(t, s.CreateProject(ctx, p))

	first := Payment(p, "1000.10")
	second := Payment(p, "500")
	second.Date = base.Add(24 * time.Hour)
	require.NoError(t, s.CreatePayment(ctx, first))
	require.NoError(t, s.CreatePayment(ctx, second))
	require.NoError(t, s.CreateExpense(ctx, Expense(p, "42.42")))

	amounts, err := s.ListEntryAmounts(ctx, core.PaymentEntry, owner, p.ID)
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a.Amount)
	}
	assert.True(t, sum.Equal(decimal.RequireFromString("1500.10")))

	_, err = s.ListEntryAmounts(ctx, core.EntryKind("refund"), owner, p.ID)
	assert.Error(t, err)

	listed, err := s.ListPayments(ctx, owner, ledger.PaymentFilter{ProjectID: &p.ID})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID, "latest date first")

	payments, expenses, err := s.CountProjectEntries(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, payments)
	assert.Equal(t, 1, expenses)

	first.Amount = decimal.RequireFromString("900")
	require.NoError(t, s.UpdatePayment(ctx, first))
	got, err := s.GetPayment(ctx, owner, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(first.Amount))

	require.NoError(t, s.DeletePayment(ctx, owner, first.ID))
	_, err = s.GetPayment(ctx, owner, first.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.ErrorIs(t, s.UpdatePayment(ctx, first), ledger.ErrNotFound)
}

func testMilestones(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	owner := uuid.New()
	p := Project(owner, "3000")
	require.NoError(t, s.CreateProject(ctx, p))

	late := Milestone(p, "1000", base.AddDate(0, 1, 0))
	early := Milestone(p, "1000.00", base.AddDate(0, 0, 7))
	other := Milestone(p, "2000", base.AddDate(0, 0, 1))
	for _, m := range []core.Milestone{late, early, other} {
		require.NoError(t, s.CreateMilestone(ctx, m))
	}

	listed, err := s.ListMilestones(ctx, owner, &p.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, other.ID, listed[0].ID)
	assert.Equal(t, late.ID, listed[2].ID)

	matches, err := s.FindIncompleteMilestonesByAmount(ctx, owner, p.ID, decimal.RequireFromString("1000"))
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, early.ID, matches[0].ID)

	early.SetStatus(core.MilestoneCompleted, base)
	require.NoError(t, s.UpdateMilestone(ctx, early))
	matches, err = s.FindIncompleteMilestonesByAmount(ctx, owner, p.ID, decimal.RequireFromString("1000"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, late.ID, matches[0].ID)

	got, err := s.GetMilestone(ctx, owner, early.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedDate)

	n, err := s.DeleteProjectMilestones(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testDirectory(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	owner := uuid.New()

	c := core.Client{ID: uuid.New(), Owner: owner, Name: "Acme", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.CreateClient(ctx, c))
	p := Project(owner, "0")
	p.ClientID = &c.ID
	require.NoError(t, s.CreateProject(ctx, p))
	pay := Payment(p, "10")
	pay.ClientID = &c.ID
	require.NoError(t, s.CreatePayment(ctx, pay))

	projects, payments, err := s.CountClientReferences(ctx, owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, projects)
	assert.Equal(t, 1, payments)

	cat := core.Category{ID: uuid.New(), Owner: owner, Name: "Travel", Type: core.CategoryExpense, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.CreateCategory(ctx, cat))
	e := Expense(p, "5")
	e.CategoryID = &cat.ID
	require.NoError(t, s.CreateExpense(ctx, e))

	n, err := s.CountCategoryExpenses(ctx, owner, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cat.IsDeleted = true
	require.NoError(t, s.UpdateCategory(ctx, cat))
	_, err = s.GetCategory(ctx, owner, cat.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	cats, err := s.ListCategories(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func testReminders(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	owner := uuid.New()
	projectID := uuid.New()

	data, err := json.Marshal(core.ReminderData{ProjectID: projectID.String()})
	require.NoError(t, err)
	r := core.Reminder{
		ID:        uuid.New(),
		Owner:     owner,
		Type:      core.ReminderOverdueProject,
		Title:     "Project overdue",
		Data:      data,
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, s.CreateReminder(ctx, r))

	got, err := s.GetReminder(ctx, owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, projectID.String(), got.ProjectRef())

	recent, err := s.HasRecentProjectReminder(ctx, owner, projectID, core.ReminderOverdueProject, base.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.True(t, recent)

	recent, err = s.HasRecentProjectReminder(ctx, owner, projectID, core.ReminderOverdueProject, base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, recent)

	r.Read = true
	require.NoError(t, s.UpdateReminder(ctx, r))
	listed, err := s.ListReminders(ctx, owner)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Read)

	require.NoError(t, s.DeleteReminder(ctx, owner, r.ID))
	assert.ErrorIs(t, s.DeleteReminder(ctx, owner, r.ID), ledger.ErrNotFound)
}

func testEvents(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	owner := uuid.New()

	first := core.NewLedgerEvent(core.PaymentCreated, owner, core.WithAmount(decimal.NewFromInt(10)))
	first.OccurredAt = base
	second := core.NewLedgerEvent(core.ExpenseCreated, owner)
	second.OccurredAt = base.Add(time.Second)

	require.NoError(t, s.AppendEvent(ctx, first))
	require.NoError(t, s.AppendEvent(ctx, second))
	require.NoError(t, s.AppendEvent(ctx, first), "redelivery is ignored")

	events, err := s.ListEvents(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second.ID, events[0].ID)

	events, err = s.ListEvents(ctx, owner, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
