package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
)

const projectColumns = `id, owner_id, title, description, client_id, budget, currency, status,
	start_date, end_date, created_at, updated_at`

func scanProject(row scanner) (core.Project, error) {
	var (
		p                core.Project
		client           uuid.NullUUID
		start, end       sql.NullString
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Owner, &p.Title, &p.Description, &client, &p.Budget,
		&p.Currency, &p.Status, &start, &end, &created, &updated); err != nil {
		return core.Project{}, err
	}
	p.ClientID = fromNullUUID(client)

	var err error
	if p.StartDate, err = parseNullTime(start); err != nil {
		return core.Project{}, err
	}
	if p.EndDate, err = parseNullTime(end); err != nil {
		return core.Project{}, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return core.Project{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Project{}, err
	}
	return p, nil
}

func collectProjects(rows *sql.Rows) ([]core.Project, error) {
	defer rows.Close()
	out := make([]core.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) GetProject(ctx context.Context, owner, id uuid.UUID) (core.Project, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND owner_id = ?`, id, owner)
	p, err := scanProject(row)
	if err != nil {
		return core.Project{}, notFound(err)
	}
	return p, nil
}

func (q *queries) ListProjects(ctx context.Context, owner uuid.UUID, f ledger.ProjectFilter) ([]core.Project, error) {
	where := []string{"owner_id = ?"}
	args := []any{owner}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ClientID != nil {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID.String())
	}
	if f.StartsAfter != nil {
		where = append(where, "start_date >= ?")
		args = append(args, formatTime(*f.StartsAfter))
	}
	if f.StartsUntil != nil {
		where = append(where, "start_date <= ?")
		args = append(args, formatTime(*f.StartsUntil))
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE `+strings.Join(where, " AND ")+
			` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return collectProjects(rows)
}

func (q *queries) CreateProject(ctx context.Context, p core.Project) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Owner, p.Title, p.Description, nullableUUID(p.ClientID), p.Budget, p.Currency,
		string(p.Status), nullableTime(p.StartDate), nullableTime(p.EndDate),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (q *queries) UpdateProject(ctx context.Context, p core.Project) error {
	return mustAffect(q.db.ExecContext(ctx, `
		UPDATE projects SET title = ?, description = ?, client_id = ?, budget = ?, currency = ?,
			status = ?, start_date = ?, end_date = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		p.Title, p.Description, nullableUUID(p.ClientID), p.Budget, p.Currency, string(p.Status),
		nullableTime(p.StartDate), nullableTime(p.EndDate), formatTime(p.UpdatedAt), p.ID, p.Owner))
}

func (q *queries) DeleteProject(ctx context.Context, owner, id uuid.UUID) error {
	return mustAffect(q.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = ? AND owner_id = ?`, id, owner))
}

func (q *queries) ListOverdueProjects(ctx context.Context, now time.Time, limit int) ([]core.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE status = ? AND end_date IS NOT NULL AND end_date < ?
		ORDER BY end_date ASC`
	args := []any{string(core.ProjectActive), formatTime(now)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list overdue projects: %w", err)
	}
	return collectProjects(rows)
}
