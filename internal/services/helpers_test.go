package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/ledger/ledgertest"
	"agencyledger/internal/storage"
	"agencyledger/internal/storage/memory"
)

type backend struct {
	name string
	open func(t *testing.T) ledger.Store
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T) ledger.Store { return memory.New() }},
		{name: "sqlite", open: openSQLite},
	}
}

func openSQLite(t *testing.T) ledger.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func eachBackend(t *testing.T, fn func(t *testing.T, store ledger.Store)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) { fn(t, b.open(t)) })
	}
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func seedProject(t *testing.T, store ledger.Store, owner uuid.UUID, budget string) core.Project {
	t.Helper()
	p := ledgertest.Project(owner, budget)
	require.NoError(t, store.CreateProject(context.Background(), p))
	return p
}

func requireCode(t *testing.T, err error, code string) *core.Error {
	t.Helper()
	require.Error(t, err)
	e, ok := core.AsError(err)
	require.Truef(t, ok, "expected classified error, got %v", err)
	require.Equal(t, code, e.Code)
	return e
}

// racingStore simulates a concurrent writer landing on the same ledger
// right after the first payment or expense write. It only works on a store
// without transactions, where the coordinator verifies after writing.
type racingStore struct {
	*memory.Store

	mu      sync.Mutex
	fired   bool
	payment *core.Payment
	expense *core.Expense

	failDelete bool
	failUpdate bool
	updates    int
}

func (s *racingStore) fire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return nil
	}
	s.fired = true
	if s.payment != nil {
		if err := s.Store.CreatePayment(ctx, *s.payment); err != nil {
			return err
		}
	}
	if s.expense != nil {
		return s.Store.CreateExpense(ctx, *s.expense)
	}
	return nil
}

func (s *racingStore) CreatePayment(ctx context.Context, p core.Payment) error {
	if err := s.Store.CreatePayment(ctx, p); err != nil {
		return err
	}
	return s.fire(ctx)
}

func (s *racingStore) UpdatePayment(ctx context.Context, p core.Payment) error {
	s.mu.Lock()
	s.updates++
	n := s.updates
	s.mu.Unlock()
	if n > 1 && s.failUpdate {
		return errors.New("disk full")
	}
	if err := s.Store.UpdatePayment(ctx, p); err != nil {
		return err
	}
	return s.fire(ctx)
}

func (s *racingStore) DeletePayment(ctx context.Context, owner, id uuid.UUID) error {
	if s.failDelete {
		return errors.New("disk full")
	}
	return s.Store.DeletePayment(ctx, owner, id)
}

func (s *racingStore) CreateExpense(ctx context.Context, e core.Expense) error {
	if err := s.Store.CreateExpense(ctx, e); err != nil {
		return err
	}
	return s.fire(ctx)
}

// flakyTxStore reports transaction support but cannot open one.
type flakyTxStore struct {
	ledger.Store
}

func (flakyTxStore) SupportsTransactions() bool { return true }

func (flakyTxStore) WithTransaction(context.Context, func(ledger.Ops) error) error {
	return ledger.ErrTransactionUnavailable
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []core.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, e core.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []core.LedgerEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.LedgerEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
