package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"agencyledger/internal/core"
)

const clientColumns = `id, owner_id, name, email, phone, address, notes, created_at, updated_at`

const categoryColumns = `id, owner_id, name, type, description, is_deleted, created_at, updated_at`

func scanClient(row scanner) (core.Client, error) {
	var (
		c                core.Client
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.Owner, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Notes,
		&created, &updated); err != nil {
		return core.Client{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return core.Client{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Client{}, err
	}
	return c, nil
}

func scanCategory(row scanner) (core.Category, error) {
	var (
		c                core.Category
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.Owner, &c.Name, &c.Type, &c.Description, &c.IsDeleted,
		&created, &updated); err != nil {
		return core.Category{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return core.Category{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func (q *queries) GetClient(ctx context.Context, owner, id uuid.UUID) (core.Client, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ? AND owner_id = ?`, id, owner)
	c, err := scanClient(row)
	if err != nil {
		return core.Client{}, notFound(err)
	}
	return c, nil
}

func (q *queries) ListClients(ctx context.Context, owner uuid.UUID) ([]core.Client, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE owner_id = ? ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	out := make([]core.Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *queries) CreateClient(ctx context.Context, c core.Client) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.Name, c.Email, c.Phone, c.Address, c.Notes,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (q *queries) UpdateClient(ctx context.Context, c core.Client) error {
	return mustAffect(q.db.ExecContext(ctx, `
		UPDATE clients SET name = ?, email = ?, phone = ?, address = ?, notes = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		c.Name, c.Email, c.Phone, c.Address, c.Notes, formatTime(c.UpdatedAt), c.ID, c.Owner))
}

func (q *queries) DeleteClient(ctx context.Context, owner, id uuid.UUID) error {
	return mustAffect(q.db.ExecContext(ctx,
		`DELETE FROM clients WHERE id = ? AND owner_id = ?`, id, owner))
}

func (q *queries) GetCategory(ctx context.Context, owner, id uuid.UUID) (core.Category, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE id = ? AND owner_id = ? AND is_deleted = 0`, id, owner)
	c, err := scanCategory(row)
	if err != nil {
		return core.Category{}, notFound(err)
	}
	return c, nil
}

func (q *queries) ListCategories(ctx context.Context, owner uuid.UUID) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE owner_id = ? AND is_deleted = 0 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]core.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *queries) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.Name, string(c.Type), c.Description, boolInt(c.IsDeleted),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// UpdateCategory also performs soft deletion when c.IsDeleted is set. A
// category that is already deleted cannot be updated.
func (q *queries) UpdateCategory(ctx context.Context, c core.Category) error {
	return mustAffect(q.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, type = ?, description = ?, is_deleted = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND is_deleted = 0`,
		c.Name, string(c.Type), c.Description, boolInt(c.IsDeleted), formatTime(c.UpdatedAt),
		c.ID, c.Owner))
}
