// Package worker holds the message handlers run by cmd/ledger-worker.
package worker

import (
	"context"
	"fmt"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/log"
)

// AuditWorker appends consumed ledger events to the audit trail.
type AuditWorker struct {
	store  ledger.EventStore
	logger *log.Logger
}

func NewAuditWorker(store ledger.EventStore, logger *log.Logger) *AuditWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &AuditWorker{
		store:  store,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerEvent stores e. Stores ignore already-seen event ids, so a
// redelivered message is acked without creating a duplicate.
func (w *AuditWorker) HandleLedgerEvent(ctx context.Context, e core.LedgerEvent) error {
	w.logger.DebugContext(ctx, "Processing ledger event",
		"event_id", e.ID.String(),
		log.FieldEventType, string(e.Type))

	if err := w.store.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}

	w.logger.InfoContext(ctx, "Recorded ledger event",
		"event_id", e.ID.String(),
		log.FieldEventType, string(e.Type),
		log.FieldOwnerID, e.Owner.String(),
		log.FieldProjectID, e.ProjectID.String(),
		log.FieldAmount, e.Amount.String())
	return nil
}
