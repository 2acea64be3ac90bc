package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"agencyledger/internal/budget"
	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/log"
)

var (
	errProjectNotFound      = core.NotFound(core.CodeNotFound, "Project not found")
	errProjectClientMissing = core.NotFound(core.CodeNotFound, "Client not found or access denied")
	errProjectDeleteBlocked = core.Conflict(core.CodeProjectDeleteBlocked,
		"Cannot delete project with existing payments or expenses. Remove them first.")
)

type ProjectInput struct {
	Title       string
	Description string
	ClientID    *uuid.UUID
	Budget      *decimal.Decimal
	Currency    string
	Status      core.ProjectStatus
	StartDate   *time.Time
	EndDate     *time.Time
}

// ProjectPatch holds the fields present in an update request.
type ProjectPatch struct {
	Title       *string
	Description *string
	ClientID    *uuid.UUID
	Budget      *decimal.Decimal
	Currency    *string
	Status      *core.ProjectStatus
	StartDate   *time.Time
	EndDate     *time.Time
}

type ProjectService struct {
	deps
	store ledger.Store
}

func NewProjectService(store ledger.Store, opts ...Option) *ProjectService {
	return &ProjectService{deps: newDeps(log.ComponentProjects, opts), store: store}
}

func (s *ProjectService) CreateProject(ctx context.Context, owner uuid.UUID, in ProjectInput) (core.Project, error) {
	now := s.clock()
	p := core.Project{
		ID:          uuid.New(),
		Owner:       owner,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		ClientID:    in.ClientID,
		Budget:      decimal.Zero,
		Currency:    orDefault(in.Currency, core.DefaultCurrency),
		Status:      in.Status,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Budget != nil {
		p.Budget = *in.Budget
	}
	if p.Status == "" {
		p.Status = core.ProjectDraft
	}
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	if err := s.checkClient(ctx, owner, p.ClientID); err != nil {
		return core.Project{}, err
	}

	if err := s.store.CreateProject(ctx, p); err != nil {
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}
	s.logger.InfoContext(ctx, "Project created",
		log.FieldOwnerID, owner.String(), log.FieldProjectID, p.ID.String())
	return p, nil
}

func (s *ProjectService) GetProject(ctx context.Context, owner, id uuid.UUID) (core.Project, error) {
	p, err := s.store.GetProject(ctx, owner, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.Project{}, errProjectNotFound
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *ProjectService) ListProjects(ctx context.Context, owner uuid.UUID, f ledger.ProjectFilter) ([]core.Project, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, core.Invalid("status", "Invalid status value")
	}
	out, err := s.store.ListProjects(ctx, owner, f)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

// UpdateProject applies patch. Lowering the budget below what is already
// booked is allowed; the ceiling only gates new admissions.
func (s *ProjectService) UpdateProject(ctx context.Context, owner, id uuid.UUID, patch ProjectPatch) (core.Project, error) {
	p, err := s.GetProject(ctx, owner, id)
	if err != nil {
		return core.Project{}, err
	}

	if patch.Title != nil {
		p.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.ClientID != nil {
		if err := s.checkClient(ctx, owner, patch.ClientID); err != nil {
			return core.Project{}, err
		}
		p.ClientID = patch.ClientID
	}
	if patch.Budget != nil {
		p.Budget = *patch.Budget
	}
	if patch.Currency != nil {
		p.Currency = orDefault(*patch.Currency, core.DefaultCurrency)
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.StartDate != nil {
		p.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		p.EndDate = patch.EndDate
	}
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	p.UpdatedAt = s.clock()

	if err := s.store.UpdateProject(ctx, p); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return core.Project{}, errProjectNotFound
		}
		return core.Project{}, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

// DeleteProject refuses while any payment or expense references the
// project, then removes it together with its milestones.
func (s *ProjectService) DeleteProject(ctx context.Context, owner, id uuid.UUID) error {
	remove := func(ops ledger.Ops) error {
		if _, err := ops.GetProject(ctx, owner, id); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return errProjectNotFound
			}
			return fmt.Errorf("get project: %w", err)
		}
		payments, expenses, err := ops.CountProjectEntries(ctx, owner, id)
		if err != nil {
			return fmt.Errorf("count project entries: %w", err)
		}
		if payments > 0 || expenses > 0 {
			return errProjectDeleteBlocked
		}
		n, err := ops.DeleteProjectMilestones(ctx, owner, id)
		if err != nil {
			return fmt.Errorf("delete project milestones: %w", err)
		}
		if err := ops.DeleteProject(ctx, owner, id); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return errProjectNotFound
			}
			return fmt.Errorf("delete project: %w", err)
		}
		s.logger.InfoContext(ctx, "Project deleted",
			log.FieldOwnerID, owner.String(), log.FieldProjectID, id.String(), "milestones_removed", n)
		return nil
	}

	if !s.store.SupportsTransactions() {
		return remove(s.store)
	}
	err := s.store.WithTransaction(ctx, remove)
	if errors.Is(err, ledger.ErrTransactionUnavailable) {
		s.logger.WarnContext(ctx, "Transaction unavailable, deleting project without one", log.FieldError, err)
		return remove(s.store)
	}
	return err
}

// Stats loads the ledgers and milestones concurrently.
func (s *ProjectService) Stats(ctx context.Context, owner, id uuid.UUID) (core.ProjectStats, error) {
	p, err := s.GetProject(ctx, owner, id)
	if err != nil {
		return core.ProjectStats{}, err
	}

	var (
		payments, expenses []core.EntryAmount
		milestones         []core.Milestone
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		payments, err = s.store.ListEntryAmounts(gctx, core.PaymentEntry, owner, id)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListEntryAmounts(gctx, core.ExpenseEntry, owner, id)
		return err
	})
	g.Go(func() error {
		var err error
		milestones, err = s.store.ListMilestones(gctx, owner, &id)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.ProjectStats{}, fmt.Errorf("load project stats: %w", err)
	}

	stats := core.ProjectStats{
		ProjectID:      p.ID,
		TotalPayments:  budget.Total(payments, uuid.Nil),
		TotalExpenses:  budget.Total(expenses, uuid.Nil),
		MilestoneCount: len(milestones),
		Budget:         p.Budget,
		Currency:       p.Currency,
		Status:         p.Status,
	}
	for _, m := range milestones {
		if m.Completed {
			stats.CompletedMilestones++
		}
	}
	if stats.MilestoneCount > 0 {
		stats.MilestoneCompletion = float64(stats.CompletedMilestones) / float64(stats.MilestoneCount) * 100
	}
	return stats, nil
}

// Timeline merges every dated fact about a project, oldest first.
func (s *ProjectService) Timeline(ctx context.Context, owner, id uuid.UUID) ([]core.TimelineEvent, error) {
	p, err := s.GetProject(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	var (
		payments   []core.Payment
		expenses   []core.Expense
		milestones []core.Milestone
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		payments, err = s.store.ListPayments(gctx, owner, ledger.PaymentFilter{ProjectID: &id})
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpenses(gctx, owner, ledger.ExpenseFilter{ProjectID: &id})
		return err
	})
	g.Go(func() error {
		var err error
		milestones, err = s.store.ListMilestones(gctx, owner, &id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load project timeline: %w", err)
	}

	events := make([]core.TimelineEvent, 0, len(payments)+len(expenses)+len(milestones)+2)
	for _, m := range milestones {
		events = append(events, core.TimelineEvent{
			Type:          core.EventMilestone,
			ID:            m.ID,
			Name:          m.Name,
			Status:        string(m.Status),
			Amount:        &m.Amount,
			DueDate:       &m.DueDate,
			Completed:     &m.Completed,
			CompletedDate: m.CompletedDate,
			CreatedAt:     &m.CreatedAt,
		})
	}
	for _, pay := range payments {
		events = append(events, core.TimelineEvent{
			Type:      core.EventPayment,
			ID:        pay.ID,
			Status:    pay.Status,
			Amount:    &pay.Amount,
			Currency:  pay.Currency,
			Date:      &pay.Date,
			Method:    pay.Method,
			Notes:     pay.Notes,
			CreatedAt: &pay.CreatedAt,
		})
	}
	for _, e := range expenses {
		events = append(events, core.TimelineEvent{
			Type:        core.EventExpense,
			ID:          e.ID,
			Amount:      &e.Amount,
			Currency:    e.Currency,
			Date:        &e.Date,
			Category:    e.CategoryID,
			Description: e.Description,
			CreatedAt:   &e.CreatedAt,
		})
	}
	events = append(events, core.TimelineEvent{
		Type:      core.EventProjectCreated,
		ID:        p.ID,
		Name:      p.Title,
		Status:    string(p.Status),
		CreatedAt: &p.CreatedAt,
	})
	if p.UpdatedAt.After(p.CreatedAt) {
		events = append(events, core.TimelineEvent{
			Type:      core.EventProjectUpdated,
			ID:        p.ID,
			Name:      p.Title,
			Status:    string(p.Status),
			UpdatedAt: &p.UpdatedAt,
		})
	}

	core.SortTimeline(events)
	return events, nil
}

func (s *ProjectService) checkClient(ctx context.Context, owner uuid.UUID, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	_, err := s.store.GetClient(ctx, owner, *id)
	if errors.Is(err, ledger.ErrNotFound) {
		return errProjectClientMissing
	}
	if err != nil {
		return fmt.Errorf("get client: %w", err)
	}
	return nil
}
