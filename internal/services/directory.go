package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"agencyledger/internal/budget"
	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/log"
)

var (
	errClientNotFound      = core.NotFound(core.CodeNotFound, "Client not found")
	errClientDeleteBlocked = core.BadRequest(core.CodeClientDeleteBlocked,
		"Cannot delete client with associated projects or payments. Remove them first.")
	errCategoryNotFound      = core.NotFound(core.CodeNotFound, "Category not found")
	errCategoryDeleteBlocked = core.BadRequest(core.CodeCategoryDeleteBlocked,
		"Cannot delete category: it is referenced by existing expenses.")
)

type ClientInput struct {
	Name    string
	Email   string
	Phone   string
	Address string
	Notes   string
}

type ClientPatch struct {
	Name    *string
	Email   *string
	Phone   *string
	Address *string
	Notes   *string
}

type CategoryInput struct {
	Name        string
	Type        core.CategoryType
	Description string
}

type CategoryPatch struct {
	Name        *string
	Type        *core.CategoryType
	Description *string
}

// DirectoryService manages the reference data projects and expenses point
// at: clients and categories.
type DirectoryService struct {
	deps
	store ledger.Store
}

func NewDirectoryService(store ledger.Store, opts ...Option) *DirectoryService {
	return &DirectoryService{deps: newDeps(log.ComponentDirectory, opts), store: store}
}

func (s *DirectoryService) CreateClient(ctx context.Context, owner uuid.UUID, in ClientInput) (core.Client, error) {
	now := s.clock()
	c := core.Client{
		ID:        uuid.New(),
		Owner:     owner,
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Phone:     in.Phone,
		Address:   in.Address,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Validate(); err != nil {
		return core.Client{}, err
	}
	if err := s.store.CreateClient(ctx, c); err != nil {
		return core.Client{}, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func (s *DirectoryService) GetClient(ctx context.Context, owner, id uuid.UUID) (core.Client, error) {
	c, err := s.store.GetClient(ctx, owner, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.Client{}, errClientNotFound
	}
	if err != nil {
		return core.Client{}, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (s *DirectoryService) ListClients(ctx context.Context, owner uuid.UUID) ([]core.Client, error) {
	out, err := s.store.ListClients(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return out, nil
}

func (s *DirectoryService) UpdateClient(ctx context.Context, owner, id uuid.UUID, patch ClientPatch) (core.Client, error) {
	c, err := s.GetClient(ctx, owner, id)
	if err != nil {
		return core.Client{}, err
	}
	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		c.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.Phone != nil {
		c.Phone = *patch.Phone
	}
	if patch.Address != nil {
		c.Address = *patch.Address
	}
	if patch.Notes != nil {
		c.Notes = *patch.Notes
	}
	if err := c.Validate(); err != nil {
		return core.Client{}, err
	}
	c.UpdatedAt = s.clock()

	if err := s.store.UpdateClient(ctx, c); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return core.Client{}, errClientNotFound
		}
		return core.Client{}, fmt.Errorf("update client: %w", err)
	}
	return c, nil
}

// DeleteClient refuses while projects or payments still reference the
// client.
func (s *DirectoryService) DeleteClient(ctx context.Context, owner, id uuid.UUID) error {
	if _, err := s.GetClient(ctx, owner, id); err != nil {
		return err
	}
	projects, payments, err := s.store.CountClientReferences(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("count client references: %w", err)
	}
	if projects > 0 || payments > 0 {
		return errClientDeleteBlocked
	}
	if err := s.store.DeleteClient(ctx, owner, id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return errClientNotFound
		}
		return fmt.Errorf("delete client: %w", err)
	}
	return nil
}

func (s *DirectoryService) ClientProjects(ctx context.Context, owner, id uuid.UUID) ([]core.Project, error) {
	if _, err := s.GetClient(ctx, owner, id); err != nil {
		return nil, err
	}
	out, err := s.store.ListProjects(ctx, owner, ledger.ProjectFilter{ClientID: &id})
	if err != nil {
		return nil, fmt.Errorf("list client projects: %w", err)
	}
	return out, nil
}

// ClientStats totals payments and expenses across every project of the
// client.
func (s *DirectoryService) ClientStats(ctx context.Context, owner, id uuid.UUID) (core.ClientStats, error) {
	projects, err := s.ClientProjects(ctx, owner, id)
	if err != nil {
		return core.ClientStats{}, err
	}

	revenue := make([][]core.EntryAmount, len(projects))
	spend := make([][]core.EntryAmount, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range projects {
		g.Go(func() error {
			var err error
			revenue[i], err = s.store.ListEntryAmounts(gctx, core.PaymentEntry, owner, p.ID)
			return err
		})
		g.Go(func() error {
			var err error
			spend[i], err = s.store.ListEntryAmounts(gctx, core.ExpenseEntry, owner, p.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return core.ClientStats{}, fmt.Errorf("load client stats: %w", err)
	}

	stats := core.ClientStats{Projects: len(projects)}
	for i := range projects {
		stats.TotalRevenue = stats.TotalRevenue.Add(budget.Total(revenue[i], uuid.Nil))
		stats.TotalExpenses = stats.TotalExpenses.Add(budget.Total(spend[i], uuid.Nil))
	}
	return stats, nil
}

func (s *DirectoryService) CreateCategory(ctx context.Context, owner uuid.UUID, in CategoryInput) (core.Category, error) {
	now := s.clock()
	c := core.Category{
		ID:          uuid.New(),
		Owner:       owner,
		Name:        strings.TrimSpace(in.Name),
		Type:        in.Type,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Type == "" {
		c.Type = core.CategoryExpense
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *DirectoryService) GetCategory(ctx context.Context, owner, id uuid.UUID) (core.Category, error) {
	c, err := s.store.GetCategory(ctx, owner, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.Category{}, errCategoryNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *DirectoryService) ListCategories(ctx context.Context, owner uuid.UUID) ([]core.Category, error) {
	out, err := s.store.ListCategories(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (s *DirectoryService) UpdateCategory(ctx context.Context, owner, id uuid.UUID, patch CategoryPatch) (core.Category, error) {
	c, err := s.GetCategory(ctx, owner, id)
	if err != nil {
		return core.Category{}, err
	}
	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Type != nil {
		c.Type = *patch.Type
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.UpdatedAt = s.clock()
	if err := s.saveCategory(ctx, c); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

// DeleteCategory soft deletes an unreferenced category.
func (s *DirectoryService) DeleteCategory(ctx context.Context, owner, id uuid.UUID) error {
	c, err := s.GetCategory(ctx, owner, id)
	if err != nil {
		return err
	}
	n, err := s.store.CountCategoryExpenses(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("count category expenses: %w", err)
	}
	if n > 0 {
		return errCategoryDeleteBlocked
	}
	c.IsDeleted = true
	c.UpdatedAt = s.clock()
	return s.saveCategory(ctx, c)
}

func (s *DirectoryService) saveCategory(ctx context.Context, c core.Category) error {
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return errCategoryNotFound
		}
		return fmt.Errorf("save category: %w", err)
	}
	return nil
}
