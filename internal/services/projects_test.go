package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/ledger/ledgertest"
	"agencyledger/internal/storage/memory"
)

func TestProjectCreateDefaults(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		s := NewProjectService(store)

		p, err := s.CreateProject(ctx, owner, ProjectInput{Title: "  Brand refresh  "})
		require.NoError(t, err)
		assert.Equal(t, "Brand refresh", p.Title)
		assert.Equal(t, core.ProjectDraft, p.Status)
		assert.Equal(t, core.DefaultCurrency, p.Currency)
		assert.True(t, p.Budget.IsZero())

		got, err := s.GetProject(ctx, owner, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)

		_, err = s.GetProject(ctx, uuid.New(), p.ID)
		e := requireCode(t, err, core.CodeNotFound)
		assert.Equal(t, "Project not found", e.Message)
	})
}

func TestProjectCreateValidation(t *testing.T) {
	ctx := context.Background()
	s := NewProjectService(memory.New())
	start := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	missingClient := uuid.New()

	tests := []struct {
		name string
		in   ProjectInput
		code string
		msg  string
	}{
		{name: "empty title", in: ProjectInput{}, code: core.CodeValidation, msg: "Title is required"},
		{name: "negative budget", in: ProjectInput{Title: "x", Budget: amount("-1")}, code: core.CodeValidation, msg: "Budget must be a non-negative number"},
		{name: "bad status", in: ProjectInput{Title: "x", Status: "paused"}, code: core.CodeValidation, msg: "Invalid status value"},
		{name: "end before start", in: ProjectInput{Title: "x", StartDate: &start, EndDate: &end}, code: core.CodeValidation, msg: "End date must be after start date"},
		{name: "unknown client", in: ProjectInput{Title: "x", ClientID: &missingClient}, code: core.CodeNotFound, msg: "Client not found or access denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateProject(ctx, uuid.New(), tt.in)
			e := requireCode(t, err, tt.code)
			assert.Equal(t, tt.msg, e.Message)
		})
	}
}

func TestProjectListFilters(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		dir := NewDirectoryService(store)
		s := NewProjectService(store)

		client, err := dir.CreateClient(ctx, owner, ClientInput{Name: "Acme"})
		require.NoError(t, err)

		jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		jun := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		_, err = s.CreateProject(ctx, owner, ProjectInput{Title: "A", Status: core.ProjectActive, ClientID: &client.ID, StartDate: &jan})
		require.NoError(t, err)
		_, err = s.CreateProject(ctx, owner, ProjectInput{Title: "B", StartDate: &jun})
		require.NoError(t, err)
		_, err = s.CreateProject(ctx, uuid.New(), ProjectInput{Title: "foreign"})
		require.NoError(t, err)

		all, err := s.ListProjects(ctx, owner, ledger.ProjectFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		active, err := s.ListProjects(ctx, owner, ledger.ProjectFilter{Status: core.ProjectActive})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "A", active[0].Title)

		byClient, err := s.ListProjects(ctx, owner, ledger.ProjectFilter{ClientID: &client.ID})
		require.NoError(t, err)
		require.Len(t, byClient, 1)

		after := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		late, err := s.ListProjects(ctx, owner, ledger.ProjectFilter{StartsAfter: &after})
		require.NoError(t, err)
		require.Len(t, late, 1)
		assert.Equal(t, "B", late[0].Title)

		_, err = s.ListProjects(ctx, owner, ledger.ProjectFilter{Status: "paused"})
		requireCode(t, err, core.CodeValidation)
	})
}

func TestProjectUpdateMayLowerBudgetBelowBooked(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		s := NewProjectService(store)
		c := NewCoordinator(store)

		p, err := s.CreateProject(ctx, owner, ProjectInput{Title: "Retainer", Budget: amount("1000")})
		require.NoError(t, err)
		_, err = c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("800")})
		require.NoError(t, err)

		p, err = s.UpdateProject(ctx, owner, p.ID, ProjectPatch{Budget: amount("500")})
		require.NoError(t, err)
		assert.True(t, p.Budget.Equal(decimal.NewFromInt(500)))

		// New admissions now respect the lower ceiling.
		_, err = c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("1")})
		requireCode(t, err, core.CodePaymentExceedsBudget)
	})
}

func TestProjectDeleteGuard(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		s := NewProjectService(store)
		c := NewCoordinator(store)
		ms := NewMilestoneService(store)

		p, err := s.CreateProject(ctx, owner, ProjectInput{Title: "Launch"})
		require.NoError(t, err)
		due := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		mr, err := ms.CreateMilestone(ctx, owner, MilestoneInput{ProjectID: p.ID, Name: "Kickoff", Amount: amount("100"), DueDate: &due})
		require.NoError(t, err)
		exp, err := c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &p.ID, Amount: amount("10")})
		require.NoError(t, err)

		err = s.DeleteProject(ctx, owner, p.ID)
		e := requireCode(t, err, core.CodeProjectDeleteBlocked)
		assert.Equal(t, core.KindConflict, e.Kind)
		assert.Equal(t, "Cannot delete project with existing payments or expenses. Remove them first.", e.Message)

		_, err = s.GetProject(ctx, owner, p.ID)
		require.NoError(t, err, "a blocked delete removes nothing")
		_, err = ms.GetMilestone(ctx, owner, mr.Milestone.ID)
		require.NoError(t, err)

		require.NoError(t, c.DeleteExpense(ctx, owner, exp.ID))
		require.NoError(t, s.DeleteProject(ctx, owner, p.ID))

		_, err = s.GetProject(ctx, owner, p.ID)
		requireCode(t, err, core.CodeNotFound)
		_, err = ms.GetMilestone(ctx, owner, mr.Milestone.ID)
		requireCode(t, err, core.CodeMilestoneNotFound)

		err = s.DeleteProject(ctx, owner, p.ID)
		requireCode(t, err, core.CodeNotFound)
	})
}

func TestProjectDeleteWithoutTransaction(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	base := memory.New()
	p := ledgertest.Project(owner, "0")
	require.NoError(t, base.CreateProject(ctx, p))
	s := NewProjectService(flakyTxStore{Store: base})

	require.NoError(t, s.DeleteProject(ctx, owner, p.ID))
	_, err := base.GetProject(ctx, owner, p.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestProjectStats(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		s := NewProjectService(store)
		c := NewCoordinator(store)
		ms := NewMilestoneService(store)

		p, err := s.CreateProject(ctx, owner, ProjectInput{Title: "Stats", Budget: amount("10000"), Status: core.ProjectActive, Currency: "EUR"})
		require.NoError(t, err)

		due := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		for i, st := range []core.MilestoneStatus{core.MilestoneCompleted, core.MilestonePending, core.MilestoneInProgress, core.MilestonePending} {
			d := due.AddDate(0, i, 0)
			_, err := ms.CreateMilestone(ctx, owner, MilestoneInput{ProjectID: p.ID, Name: "M", Amount: amount("1"), DueDate: &d, Status: st})
			require.NoError(t, err)
		}
		for _, a := range []string{"1200.50", "300"} {
			_, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount(a)})
			require.NoError(t, err)
		}
		_, err = c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &p.ID, Amount: amount("99.99")})
		require.NoError(t, err)

		stats, err := s.Stats(ctx, owner, p.ID)
		require.NoError(t, err)
		assert.True(t, stats.TotalPayments.Equal(decimal.RequireFromString("1500.50")), stats.TotalPayments.String())
		assert.True(t, stats.TotalExpenses.Equal(decimal.RequireFromString("99.99")))
		assert.Equal(t, 4, stats.MilestoneCount)
		assert.Equal(t, 1, stats.CompletedMilestones)
		assert.InDelta(t, 25.0, stats.MilestoneCompletion, 1e-9)
		assert.Equal(t, "EUR", stats.Currency)
		assert.Equal(t, core.ProjectActive, stats.Status)

		_, err = s.Stats(ctx, uuid.New(), p.ID)
		requireCode(t, err, core.CodeNotFound)
	})
}

func TestProjectTimeline(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		clock := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
		now := func() time.Time { return clock }
		s := NewProjectService(store, WithClock(now))
		c := NewCoordinator(store, WithClock(now))
		ms := NewMilestoneService(store, WithClock(now))

		p, err := s.CreateProject(ctx, owner, ProjectInput{Title: "Timeline"})
		require.NoError(t, err)

		clock = clock.Add(time.Hour)
		due := clock.AddDate(0, 1, 0)
		_, err = ms.CreateMilestone(ctx, owner, MilestoneInput{ProjectID: p.ID, Name: "Design", Amount: amount("50"), DueDate: &due})
		require.NoError(t, err)

		clock = clock.Add(time.Hour)
		_, err = c.CreateExpense(ctx, owner, ExpenseInput{ProjectID: &p.ID, Amount: amount("5"), Description: "fonts"})
		require.NoError(t, err)

		clock = clock.Add(time.Hour)
		_, err = c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("20")})
		require.NoError(t, err)

		clock = clock.Add(time.Hour)
		title := "Timeline v2"
		_, err = s.UpdateProject(ctx, owner, p.ID, ProjectPatch{Title: &title})
		require.NoError(t, err)

		events, err := s.Timeline(ctx, owner, p.ID)
		require.NoError(t, err)

		types := make([]string, len(events))
		for i, e := range events {
			types[i] = e.Type
		}
		assert.Equal(t, []string{
			core.EventProjectCreated,
			core.EventMilestone,
			core.EventExpense,
			core.EventPayment,
			core.EventProjectUpdated,
		}, types)
		assert.Equal(t, "fonts", events[2].Description)
	})
}
