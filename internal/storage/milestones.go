package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agencyledger/internal/core"
)

const milestoneColumns = `id, owner_id, project_id, name, amount, due_date, status, completed,
	completed_date, notes, created_at, updated_at`

func scanMilestone(row scanner) (core.Milestone, error) {
	var (
		m                     core.Milestone
		completedDate         sql.NullString
		due, created, updated string
	)
	if err := row.Scan(&m.ID, &m.Owner, &m.ProjectID, &m.Name, &m.Amount, &due, &m.Status,
		&m.Completed, &completedDate, &m.Notes, &created, &updated); err != nil {
		return core.Milestone{}, err
	}

	var err error
	if m.DueDate, err = parseTime(due); err != nil {
		return core.Milestone{}, err
	}
	if m.CompletedDate, err = parseNullTime(completedDate); err != nil {
		return core.Milestone{}, err
	}
	if m.CreatedAt, err = parseTime(created); err != nil {
		return core.Milestone{}, err
	}
	if m.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Milestone{}, err
	}
	return m, nil
}

func (q *queries) queryMilestones(ctx context.Context, query string, args ...any) ([]core.Milestone, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	out := make([]core.Milestone, 0)
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *queries) GetMilestone(ctx context.Context, owner, id uuid.UUID) (core.Milestone, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+milestoneColumns+` FROM milestones WHERE id = ? AND owner_id = ?`, id, owner)
	m, err := scanMilestone(row)
	if err != nil {
		return core.Milestone{}, notFound(err)
	}
	return m, nil
}

func (q *queries) ListMilestones(ctx context.Context, owner uuid.UUID, projectID *uuid.UUID) ([]core.Milestone, error) {
	if projectID == nil {
		return q.queryMilestones(ctx, `SELECT `+milestoneColumns+` FROM milestones
			WHERE owner_id = ? ORDER BY due_date ASC, created_at ASC`, owner)
	}
	return q.queryMilestones(ctx, `SELECT `+milestoneColumns+` FROM milestones
		WHERE owner_id = ? AND project_id = ? ORDER BY due_date ASC, created_at ASC`, owner, *projectID)
}

// FindIncompleteMilestonesByAmount compares amounts numerically in Go, since
// stored text such as "1000.00" and "1000" must match.
func (q *queries) FindIncompleteMilestonesByAmount(ctx context.Context, owner, projectID uuid.UUID, amount decimal.Decimal) ([]core.Milestone, error) {
	open, err := q.queryMilestones(ctx, `SELECT `+milestoneColumns+` FROM milestones
		WHERE owner_id = ? AND project_id = ? AND completed = 0
		ORDER BY due_date ASC, created_at ASC`, owner, projectID)
	if err != nil {
		return nil, err
	}
	out := open[:0]
	for _, m := range open {
		if m.Amount.Equal(amount) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (q *queries) CreateMilestone(ctx context.Context, m core.Milestone) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO milestones (`+milestoneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Owner, m.ProjectID, m.Name, m.Amount, formatTime(m.DueDate), string(m.Status),
		boolInt(m.Completed), nullableTime(m.CompletedDate), m.Notes,
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert milestone: %w", err)
	}
	return nil
}

func (q *queries) UpdateMilestone(ctx context.Context, m core.Milestone) error {
	return mustAffect(q.db.ExecContext(ctx, `
		UPDATE milestones SET name = ?, amount = ?, due_date = ?, status = ?, completed = ?,
			completed_date = ?, notes = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		m.Name, m.Amount, formatTime(m.DueDate), string(m.Status), boolInt(m.Completed),
		nullableTime(m.CompletedDate), m.Notes, formatTime(m.UpdatedAt), m.ID, m.Owner))
}

func (q *queries) DeleteMilestone(ctx context.Context, owner, id uuid.UUID) error {
	return mustAffect(q.db.ExecContext(ctx,
		`DELETE FROM milestones WHERE id = ? AND owner_id = ?`, id, owner))
}

func (q *queries) DeleteProjectMilestones(ctx context.Context, owner, projectID uuid.UUID) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM milestones WHERE owner_id = ? AND project_id = ?`, owner, projectID)
	if err != nil {
		return 0, fmt.Errorf("delete project milestones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
