package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyledger/internal/ledger"
	"agencyledger/internal/ledger/ledgertest"
)

func openTemp(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "ledger.db"))
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return openTemp(t) })
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)
}

func TestWithTransactionCommits(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	defer s.Close()

	p := ledgertest.Project(uuid.New(), "100")
	err := s.WithTransaction(ctx, func(tx ledger.Ops) error {
		return tx.CreateProject(ctx, p)
	})
	require.NoError(t, err)

	_, err = s.GetProject(ctx, p.Owner, p.ID)
	assert.NoError(t, err)
}

func TestWithTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	defer s.Close()

	p := ledgertest.Project(uuid.New(), "100")
	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(tx ledger.Ops) error {
		require.NoError(t, tx.CreateProject(ctx, p))
		require.NoError(t, tx.CreatePayment(ctx, ledgertest.Payment(p, "10")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetProject(ctx, p.Owner, p.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	amounts, err := s.ListEntryAmounts(ctx, "payment", p.Owner, p.ID)
	require.NoError(t, err)
	assert.Empty(t, amounts)
}

func TestWithTransactionUnavailable(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Close())

	err := s.WithTransaction(context.Background(), func(ledger.Ops) error { return nil })
	assert.ErrorIs(t, err, ledger.ErrTransactionUnavailable)
}

func TestRollbackMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, RollbackMigrations(path, 1))
	version, _, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	assert.Error(t, RollbackMigrations(path, 0))
}
