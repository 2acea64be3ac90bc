// Package memory is an in-process ledger store.
//
// Each operation is atomic on its own but the store offers no multi-record
// transactions, so the services use their detect-and-compensate path with it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
)

type Store struct {
	mu         sync.RWMutex
	projects   map[uuid.UUID]core.Project
	payments   map[uuid.UUID]core.Payment
	expenses   map[uuid.UUID]core.Expense
	milestones map[uuid.UUID]core.Milestone
	clients    map[uuid.UUID]core.Client
	categories map[uuid.UUID]core.Category
	reminders  map[uuid.UUID]core.Reminder
	events     []core.LedgerEvent
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		projects:   map[uuid.UUID]core.Project{},
		payments:   map[uuid.UUID]core.Payment{},
		expenses:   map[uuid.UUID]core.Expense{},
		milestones: map[uuid.UUID]core.Milestone{},
		clients:    map[uuid.UUID]core.Client{},
		categories: map[uuid.UUID]core.Category{},
		reminders:  map[uuid.UUID]core.Reminder{},
	}
}

func (s *Store) SupportsTransactions() bool { return false }

// WithTransaction always reports the capability as missing.
func (s *Store) WithTransaction(_ context.Context, _ func(tx ledger.Ops) error) error {
	return fmt.Errorf("memory store: %w", ledger.ErrTransactionUnavailable)
}

func (s *Store) Close() error { return nil }

// Projects

func (s *Store) GetProject(_ context.Context, owner, id uuid.UUID) (core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok || p.Owner != owner {
		return core.Project{}, ledger.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProjects(_ context.Context, owner uuid.UUID, f ledger.ProjectFilter) ([]core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Project, 0)
	for _, p := range s.projects {
		if p.Owner != owner {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.ClientID != nil && (p.ClientID == nil || *p.ClientID != *f.ClientID) {
			continue
		}
		if f.StartsAfter != nil && (p.StartDate == nil || p.StartDate.Before(*f.StartsAfter)) {
			continue
		}
		if f.StartsUntil != nil && (p.StartDate == nil || p.StartDate.After(*f.StartsUntil)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateProject(_ context.Context, p core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *Store) UpdateProject(_ context.Context, p core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.projects[p.ID]
	if !ok || cur.Owner != p.Owner {
		return ledger.ErrNotFound
	}
	s.projects[p.ID] = p
	return nil
}

func (s *Store) DeleteProject(_ context.Context, owner, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.projects[id]
	if !ok || cur.Owner != owner {
		return ledger.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

func (s *Store) ListOverdueProjects(_ context.Context, now time.Time, limit int) ([]core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Project, 0)
	for _, p := range s.projects {
		if p.Status == core.ProjectActive && p.EndDate != nil && p.EndDate.Before(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(*out[j].EndDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Payments

func (s *Store) GetPayment(_ context.Context, owner, id uuid.UUID) (core.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok || p.Owner != owner {
		return core.Payment{}, ledger.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPayments(_ context.Context, owner uuid.UUID, f ledger.PaymentFilter) ([]core.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Payment, 0)
	for _, p := range s.payments {
		if p.Owner != owner {
			continue
		}
		if f.ProjectID != nil && p.ProjectID != *f.ProjectID {
			continue
		}
		if f.ClientID != nil && (p.ClientID == nil || *p.ClientID != *f.ClientID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) CreatePayment(_ context.Context, p core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
	return nil
}

func (s *Store) UpdatePayment(_ context.Context, p core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.payments[p.ID]
	if !ok || cur.Owner != p.Owner {
		return ledger.ErrNotFound
	}
	s.payments[p.ID] = p
	return nil
}

func (s *Store) DeletePayment(_ context.Context, owner, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.payments[id]
	if !ok || cur.Owner != owner {
		return ledger.ErrNotFound
	}
	delete(s.payments, id)
	return nil
}

// Expenses

func (s *Store) GetExpense(_ context.Context, owner, id uuid.UUID) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok || e.Owner != owner {
		return core.Expense{}, ledger.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, owner uuid.UUID, f ledger.ExpenseFilter) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Expense, 0)
	for _, e := range s.expenses {
		if e.Owner != owner {
			continue
		}
		if f.ProjectID != nil && e.ProjectID != *f.ProjectID {
			continue
		}
		if f.CategoryID != nil && (e.CategoryID == nil || *e.CategoryID != *f.CategoryID) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses[e.ID] = e
	return nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[e.ID]
	if !ok || cur.Owner != e.Owner {
		return ledger.ErrNotFound
	}
	s.expenses[e.ID] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, owner, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[id]
	if !ok || cur.Owner != owner {
		return ledger.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

// Entry projections

func (s *Store) ListEntryAmounts(_ context.Context, kind core.EntryKind, owner, projectID uuid.UUID) ([]core.EntryAmount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.EntryAmount, 0)
	switch kind {
	case core.PaymentEntry:
		for _, p := range s.payments {
			if p.Owner == owner && p.ProjectID == projectID {
				out = append(out, core.EntryAmount{ID: p.ID, Amount: p.Amount})
			}
		}
	case core.ExpenseEntry:
		for _, e := range s.expenses {
			if e.Owner == owner && e.ProjectID == projectID {
				out = append(out, core.EntryAmount{ID: e.ID, Amount: e.Amount})
			}
		}
	default:
		return nil, fmt.Errorf("unknown entry kind %q", kind)
	}
	return out, nil
}

func (s *Store) CountProjectEntries(_ context.Context, owner, projectID uuid.UUID) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var payments, expenses int
	for _, p := range s.payments {
		if p.Owner == owner && p.ProjectID == projectID {
			payments++
		}
	}
	for _, e := range s.expenses {
		if e.Owner == owner && e.ProjectID == projectID {
			expenses++
		}
	}
	return payments, expenses, nil
}

func (s *Store) CountClientReferences(_ context.Context, owner, clientID uuid.UUID) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var projects, payments int
	for _, p := range s.projects {
		if p.Owner == owner && p.ClientID != nil && *p.ClientID == clientID {
			projects++
		}
	}
	for _, p := range s.payments {
		if p.Owner == owner && p.ClientID != nil && *p.ClientID == clientID {
			payments++
		}
	}
	return projects, payments, nil
}

func (s *Store) CountCategoryExpenses(_ context.Context, owner, categoryID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.expenses {
		if e.Owner == owner && e.CategoryID != nil && *e.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

// Milestones

func (s *Store) GetMilestone(_ context.Context, owner, id uuid.UUID) (core.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.milestones[id]
	if !ok || m.Owner != owner {
		return core.Milestone{}, ledger.ErrNotFound
	}
	return m, nil
}

func (s *Store) ListMilestones(_ context.Context, owner uuid.UUID, projectID *uuid.UUID) ([]core.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Milestone, 0)
	for _, m := range s.milestones {
		if m.Owner != owner {
			continue
		}
		if projectID != nil && m.ProjectID != *projectID {
			continue
		}
		out = append(out, m)
	}
	sortByDueDate(out)
	return out, nil
}

func (s *Store) FindIncompleteMilestonesByAmount(_ context.Context, owner, projectID uuid.UUID, amount decimal.Decimal) ([]core.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Milestone, 0)
	for _, m := range s.milestones {
		if m.Owner == owner && m.ProjectID == projectID && !m.Completed && m.Amount.Equal(amount) {
			out = append(out, m)
		}
	}
	sortByDueDate(out)
	return out, nil
}

func (s *Store) CreateMilestone(_ context.Context, m core.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.milestones[m.ID] = m
	return nil
}

func (s *Store) UpdateMilestone(_ context.Context, m core.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.milestones[m.ID]
	if !ok || cur.Owner != m.Owner {
		return ledger.ErrNotFound
	}
	s.milestones[m.ID] = m
	return nil
}

func (s *Store) DeleteMilestone(_ context.Context, owner, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.milestones[id]
	if !ok || cur.Owner != owner {
		return ledger.ErrNotFound
	}
	delete(s.milestones, id)
	return nil
}

func (s *Store) DeleteProjectMilestones(_ context.Context, owner, projectID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.milestones {
		if m.Owner == owner && m.ProjectID == projectID {
			delete(s.milestones, id)
			n++
		}
	}
	return n, nil
}

// Clients

func (s *Store) GetClient(_ context.Context, owner, id uuid.UUID) (core.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok || c.Owner != owner {
		return core.Client{}, ledger.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListClients(_ context.Context, owner uuid.UUID) ([]core.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Client, 0)
	for _, c := range s.clients {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateClient(_ context.Context, c core.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
	return nil
}

func (s *Store) UpdateClient(_ context.Context, c core.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.clients[c.ID]
	if !ok || cur.Owner != c.Owner {
		return ledger.ErrNotFound
	}
	s.clients[c.ID] = c
	return nil
}

func (s *Store) DeleteClient(_ context.Context, owner, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.clients[id]
	if !ok || cur.Owner != owner {
		return ledger.ErrNotFound
	}
	delete(s.clients, id)
	return nil
}

// Categories

func (s *Store) GetCategory(_ context.Context, owner, id uuid.UUID) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok || c.Owner != owner || c.IsDeleted {
		return core.Category{}, ledger.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, owner uuid.UUID) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Category, 0)
	for _, c := range s.categories {
		if c.Owner == owner && !c.IsDeleted {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.categories[c.ID]
	if !ok || cur.Owner != c.Owner || cur.IsDeleted {
		return ledger.ErrNotFound
	}
	s.categories[c.ID] = c
	return nil
}

// Reminders

func (s *Store) GetReminder(_ context.Context, owner, id uuid.UUID) (core.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	if !ok || r.Owner != owner {
		return core.Reminder{}, ledger.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListReminders(_ context.Context, owner uuid.UUID) ([]core.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Reminder, 0)
	for _, r := range s.reminders {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateReminder(_ context.Context, r core.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = r
	return nil
}

func (s *Store) UpdateReminder(_ context.Context, r core.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reminders[r.ID]
	if !ok || cur.Owner != r.Owner {
		return ledger.ErrNotFound
	}
	s.reminders[r.ID] = r
	return nil
}

func (s *Store) DeleteReminder(_ context.Context, owner, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reminders[id]
	if !ok || cur.Owner != owner {
		return ledger.ErrNotFound
	}
	delete(s.reminders, id)
	return nil
}

func (s *Store) HasRecentProjectReminder(_ context.Context, owner, projectID uuid.UUID, t core.ReminderType, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := projectID.String()
	for _, r := range s.reminders {
		if r.Owner != owner || r.Type != t || !r.CreatedAt.After(since) {
			continue
		}
		if r.ProjectRef() == want {
			return true, nil
		}
	}
	return false, nil
}

// Events

func (s *Store) AppendEvent(_ context.Context, e core.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.ID == e.ID {
			return nil
		}
	}
	s.events = append(s.events, e)
	return nil
}

func (s *Store) ListEvents(_ context.Context, owner uuid.UUID, limit int) ([]core.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.LedgerEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Owner != owner {
			continue
		}
		out = append(out, s.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func sortByDueDate(ms []core.Milestone) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].DueDate.Equal(ms[j].DueDate) {
			return ms[i].DueDate.Before(ms[j].DueDate)
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}
