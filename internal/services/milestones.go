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
	"agencyledger/internal/log"
)

var (
	errMilestoneProject  = core.NotFound(core.CodeProjectNotFound, "Project not found or access denied")
	errMilestoneNotFound = core.NotFound(core.CodeMilestoneNotFound, "Milestone not found")
	errMilestoneStatus   = core.Invalid("status", "Invalid status value")
)

type MilestoneInput struct {
	ProjectID uuid.UUID
	Name      string
	Amount    *decimal.Decimal
	DueDate   *time.Time
	Status    core.MilestoneStatus
	Notes     string
}

type MilestonePatch struct {
	Name    *string
	Amount  *decimal.Decimal
	DueDate *time.Time
	Status  *core.MilestoneStatus
	Notes   *string
}

// MilestoneResult is a saved milestone plus the advisory budget warning, if
// the project's milestone amounts no longer add up to its budget.
type MilestoneResult struct {
	Milestone core.Milestone
	Warning   string
}

type MilestoneService struct {
	deps
	store ledger.Store
}

func NewMilestoneService(store ledger.Store, opts ...Option) *MilestoneService {
	return &MilestoneService{deps: newDeps(log.ComponentMilestones, opts), store: store}
}

func (s *MilestoneService) CreateMilestone(ctx context.Context, owner uuid.UUID, in MilestoneInput) (MilestoneResult, error) {
	project, err := s.store.GetProject(ctx, owner, in.ProjectID)
	if errors.Is(err, ledger.ErrNotFound) {
		return MilestoneResult{}, errMilestoneProject
	}
	if err != nil {
		return MilestoneResult{}, fmt.Errorf("get project: %w", err)
	}

	now := s.clock()
	m := core.Milestone{
		ID:        uuid.New(),
		Owner:     owner,
		ProjectID: project.ID,
		Name:      strings.TrimSpace(in.Name),
		Amount:    decimal.Zero,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Amount != nil {
		m.Amount = *in.Amount
	}
	if in.DueDate != nil {
		m.DueDate = in.DueDate.UTC()
	}
	status := in.Status
	if status == "" {
		status = core.MilestonePending
	}
	if !status.Valid() {
		return MilestoneResult{}, errMilestoneStatus
	}
	m.SetStatus(status, now)
	if err := m.Validate(); err != nil {
		return MilestoneResult{}, err
	}

	if err := s.store.CreateMilestone(ctx, m); err != nil {
		return MilestoneResult{}, fmt.Errorf("create milestone: %w", err)
	}
	return s.withWarning(ctx, project, m), nil
}

func (s *MilestoneService) GetMilestone(ctx context.Context, owner, id uuid.UUID) (core.Milestone, error) {
	m, err := s.store.GetMilestone(ctx, owner, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.Milestone{}, errMilestoneNotFound
	}
	if err != nil {
		return core.Milestone{}, fmt.Errorf("get milestone: %w", err)
	}
	return m, nil
}

// ListMilestones lists by due date. A non-nil projectID must name an owned
// project.
func (s *MilestoneService) ListMilestones(ctx context.Context, owner uuid.UUID, projectID *uuid.UUID) ([]core.Milestone, error) {
	if projectID != nil {
		if _, err := s.store.GetProject(ctx, owner, *projectID); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return nil, errMilestoneProject
			}
			return nil, fmt.Errorf("get project: %w", err)
		}
	}
	out, err := s.store.ListMilestones(ctx, owner, projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	return out, nil
}

func (s *MilestoneService) UpdateMilestone(ctx context.Context, owner, id uuid.UUID, patch MilestonePatch) (MilestoneResult, error) {
	m, err := s.GetMilestone(ctx, owner, id)
	if err != nil {
		return MilestoneResult{}, err
	}

	now := s.clock()
	if patch.Name != nil {
		m.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Amount != nil {
		m.Amount = *patch.Amount
	}
	if patch.DueDate != nil {
		m.DueDate = patch.DueDate.UTC()
	}
	if patch.Notes != nil {
		m.Notes = *patch.Notes
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return MilestoneResult{}, errMilestoneStatus
		}
		if *patch.Status != m.Status {
			m.SetStatus(*patch.Status, now)
		}
	}
	if err := m.Validate(); err != nil {
		return MilestoneResult{}, err
	}
	m.UpdatedAt = now

	if err := s.store.UpdateMilestone(ctx, m); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return MilestoneResult{}, errMilestoneNotFound
		}
		return MilestoneResult{}, fmt.Errorf("update milestone: %w", err)
	}

	project, err := s.store.GetProject(ctx, owner, m.ProjectID)
	if err != nil {
		// The milestone is saved; only the advisory warning is lost.
		s.logger.WarnContext(ctx, "Could not load project for milestone warning",
			log.FieldMilestoneID, m.ID.String(), log.FieldError, err)
		return MilestoneResult{Milestone: m}, nil
	}
	return s.withWarning(ctx, project, m), nil
}

// SetStatus is the narrow status-only update.
func (s *MilestoneService) SetStatus(ctx context.Context, owner, id uuid.UUID, status core.MilestoneStatus) (MilestoneResult, error) {
	return s.UpdateMilestone(ctx, owner, id, MilestonePatch{Status: &status})
}

func (s *MilestoneService) DeleteMilestone(ctx context.Context, owner, id uuid.UUID) error {
	err := s.store.DeleteMilestone(ctx, owner, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return errMilestoneNotFound
	}
	if err != nil {
		return fmt.Errorf("delete milestone: %w", err)
	}
	return nil
}

func (s *MilestoneService) withWarning(ctx context.Context, project core.Project, m core.Milestone) MilestoneResult {
	res := MilestoneResult{Milestone: m}
	siblings, err := s.store.ListMilestones(ctx, project.Owner, &project.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "Could not list milestones for budget warning",
			log.FieldProjectID, project.ID.String(), log.FieldError, err)
		return res
	}
	if msg, ok := budget.MilestoneWarning(siblings, project.Budget); ok {
		res.Warning = msg
	}
	return res
}
