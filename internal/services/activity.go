package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// EventRecorder is a Publisher that appends events straight to the audit
// trail. It is used when no broker is configured and by the ledger worker.
type EventRecorder struct {
	store ledger.EventStore
}

func NewEventRecorder(store ledger.EventStore) *EventRecorder {
	return &EventRecorder{store: store}
}

func (r *EventRecorder) PublishLedgerEvent(ctx context.Context, e core.LedgerEvent) error {
	if err := r.store.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}
	return nil
}

// ActivityService reads the audit trail.
type ActivityService struct {
	store ledger.EventStore
}

func NewActivityService(store ledger.EventStore) *ActivityService {
	return &ActivityService{store: store}
}

// Recent returns the owner's latest events, newest first. A limit outside
// (0, 500] falls back to the default of 50.
func (s *ActivityService) Recent(ctx context.Context, owner uuid.UUID, limit int) ([]core.LedgerEvent, error) {
	if limit <= 0 || limit > maxActivityLimit {
		limit = defaultActivityLimit
	}
	out, err := s.store.ListEvents(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}
