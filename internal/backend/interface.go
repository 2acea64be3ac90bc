// Package backend selects and opens the ledger store named by configuration.
package backend

import (
	"context"

	"agencyledger/internal/ledger"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// Result holds the opened store and its cleanup function.
type Result struct {
	Store   ledger.Store
	Cleanup CleanupFunc
}

// Factory opens stores from configuration.
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type         Type
	SQLiteDBPath string
}

// Type names a storage backend.
type Type string

const (
	SQLite Type = "sqlite"
	Memory Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case SQLite, Memory:
		return true
	default:
		return false
	}
}

