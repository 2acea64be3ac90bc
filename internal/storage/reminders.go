package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agencyledger/internal/core"
)

const reminderColumns = `id, owner_id, type, title, message, data, read, created_at, updated_at`

func scanReminder(row scanner) (core.Reminder, error) {
	var (
		r                core.Reminder
		data             sql.NullString
		created, updated string
	)
	if err := row.Scan(&r.ID, &r.Owner, &r.Type, &r.Title, &r.Message, &data, &r.Read,
		&created, &updated); err != nil {
		return core.Reminder{}, err
	}
	if data.Valid && data.String != "" {
		r.Data = []byte(data.String)
	}
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return core.Reminder{}, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Reminder{}, err
	}
	return r, nil
}

func nullableData(r core.Reminder) any {
	if len(r.Data) == 0 {
		return nil
	}
	return string(r.Data)
}

func (q *queries) GetReminder(ctx context.Context, owner, id uuid.UUID) (core.Reminder, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ? AND owner_id = ?`, id, owner)
	r, err := scanReminder(row)
	if err != nil {
		return core.Reminder{}, notFound(err)
	}
	return r, nil
}

func (q *queries) ListReminders(ctx context.Context, owner uuid.UUID) ([]core.Reminder, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = ? ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	out := make([]core.Reminder, 0)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateReminder denormalizes the project reference out of the data payload
// so the overdue scan can deduplicate with an indexed lookup.
func (q *queries) CreateReminder(ctx context.Context, r core.Reminder) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO reminders (id, owner_id, type, title, message, data, project_ref, read, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Owner, string(r.Type), r.Title, r.Message, nullableData(r), r.ProjectRef(),
		boolInt(r.Read), formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

func (q *queries) UpdateReminder(ctx context.Context, r core.Reminder) error {
	return mustAffect(q.db.ExecContext(ctx, `
		UPDATE reminders SET type = ?, title = ?, message = ?, data = ?, project_ref = ?, read = ?,
			updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		string(r.Type), r.Title, r.Message, nullableData(r), r.ProjectRef(), boolInt(r.Read),
		formatTime(r.UpdatedAt), r.ID, r.Owner))
}

func (q *queries) DeleteReminder(ctx context.Context, owner, id uuid.UUID) error {
	return mustAffect(q.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE id = ? AND owner_id = ?`, id, owner))
}

func (q *queries) HasRecentProjectReminder(ctx context.Context, owner, projectID uuid.UUID, t core.ReminderType, since time.Time) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reminders
		WHERE owner_id = ? AND project_ref = ? AND type = ? AND created_at > ?`,
		owner, projectID.String(), string(t), formatTime(since)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check recent reminder: %w", err)
	}
	return n > 0, nil
}

// AppendEvent ignores events it has already stored, so redelivered messages
// are harmless.
func (q *queries) AppendEvent(ctx context.Context, e core.LedgerEvent) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ledger_events (id, owner_id, type, project_id, entity_id, amount, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Owner, string(e.Type), e.ProjectID, e.EntityID, e.Amount, formatTime(e.OccurredAt))
	if err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}
	return nil
}

func (q *queries) ListEvents(ctx context.Context, owner uuid.UUID, limit int) ([]core.LedgerEvent, error) {
	query := `SELECT id, owner_id, type, project_id, entity_id, amount, occurred_at
		FROM ledger_events WHERE owner_id = ? ORDER BY occurred_at DESC`
	args := []any{owner}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger events: %w", err)
	}
	defer rows.Close()

	out := make([]core.LedgerEvent, 0)
	for rows.Next() {
		var (
			e          core.LedgerEvent
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &e.Owner, &e.Type, &e.ProjectID, &e.EntityID, &e.Amount, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		if e.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
