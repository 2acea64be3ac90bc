package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
)

const paymentColumns = `id, owner_id, project_id, client_id, amount, currency, method, status,
	date, notes, created_at, updated_at`

const expenseColumns = `id, owner_id, project_id, category_id, amount, currency, date,
	description, receipt_url, created_at, updated_at`

func scanPayment(row scanner) (core.Payment, error) {
	var (
		p                      core.Payment
		client                 uuid.NullUUID
		date, created, updated string
	)
	if err := row.Scan(&p.ID, &p.Owner, &p.ProjectID, &client, &p.Amount, &p.Currency,
		&p.Method, &p.Status, &date, &p.Notes, &created, &updated); err != nil {
		return core.Payment{}, err
	}
	p.ClientID = fromNullUUID(client)

	var err error
	if p.Date, err = parseTime(date); err != nil {
		return core.Payment{}, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return core.Payment{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Payment{}, err
	}
	return p, nil
}

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e                      core.Expense
		category               uuid.NullUUID
		date, created, updated string
	)
	if err := row.Scan(&e.ID, &e.Owner, &e.ProjectID, &category, &e.Amount, &e.Currency,
		&date, &e.Description, &e.ReceiptURL, &created, &updated); err != nil {
		return core.Expense{}, err
	}
	e.CategoryID = fromNullUUID(category)

	var err error
	if e.Date, err = parseTime(date); err != nil {
		return core.Expense{}, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return core.Expense{}, err
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func (q *queries) GetPayment(ctx context.Context, owner, id uuid.UUID) (core.Payment, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ? AND owner_id = ?`, id, owner)
	p, err := scanPayment(row)
	if err != nil {
		return core.Payment{}, notFound(err)
	}
	return p, nil
}

func (q *queries) ListPayments(ctx context.Context, owner uuid.UUID, f ledger.PaymentFilter) ([]core.Payment, error) {
	where := []string{"owner_id = ?"}
	args := []any{owner}
	if f.ProjectID != nil {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID.String())
	}
	if f.ClientID != nil {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID.String())
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+strings.Join(where, " AND ")+
			` ORDER BY date DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	out := make([]core.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) CreatePayment(ctx context.Context, p core.Payment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Owner, p.ProjectID, nullableUUID(p.ClientID), p.Amount, p.Currency, p.Method,
		p.Status, formatTime(p.Date), p.Notes, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (q *queries) UpdatePayment(ctx context.Context, p core.Payment) error {
	return mustAffect(q.db.ExecContext(ctx, `
		UPDATE payments SET project_id = ?, client_id = ?, amount = ?, currency = ?, method = ?,
			status = ?, date = ?, notes = ?, created_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		p.ProjectID, nullableUUID(p.ClientID), p.Amount, p.Currency, p.Method, p.Status,
		formatTime(p.Date), p.Notes, formatTime(p.CreatedAt), formatTime(p.UpdatedAt), p.ID, p.Owner))
}

func (q *queries) DeletePayment(ctx context.Context, owner, id uuid.UUID) error {
	return mustAffect(q.db.ExecContext(ctx,
		`DELETE FROM payments WHERE id = ? AND owner_id = ?`, id, owner))
}

func (q *queries) GetExpense(ctx context.Context, owner, id uuid.UUID) (core.Expense, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND owner_id = ?`, id, owner)
	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, notFound(err)
	}
	return e, nil
}

func (q *queries) ListExpenses(ctx context.Context, owner uuid.UUID, f ledger.ExpenseFilter) ([]core.Expense, error) {
	where := []string{"owner_id = ?"}
	args := []any{owner}
	if f.ProjectID != nil {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID.String())
	}
	if f.CategoryID != nil {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID.String())
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE `+strings.Join(where, " AND ")+
			` ORDER BY date DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *queries) CreateExpense(ctx context.Context, e core.Expense) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Owner, e.ProjectID, nullableUUID(e.CategoryID), e.Amount, e.Currency,
		formatTime(e.Date), e.Description, e.ReceiptURL, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (q *queries) UpdateExpense(ctx context.Context, e core.Expense) error {
	return mustAffect(q.db.ExecContext(ctx, `
		UPDATE expenses SET project_id = ?, category_id = ?, amount = ?, currency = ?, date = ?,
			description = ?, receipt_url = ?, created_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		e.ProjectID, nullableUUID(e.CategoryID), e.Amount, e.Currency, formatTime(e.Date),
		e.Description, e.ReceiptURL, formatTime(e.CreatedAt), formatTime(e.UpdatedAt), e.ID, e.Owner))
}

func (q *queries) DeleteExpense(ctx context.Context, owner, id uuid.UUID) error {
	return mustAffect(q.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND owner_id = ?`, id, owner))
}

// ListEntryAmounts reads amounts as text and leaves summation to decimal
// arithmetic; SQLite SUM would coerce to floating point.
func (q *queries) ListEntryAmounts(ctx context.Context, kind core.EntryKind, owner, projectID uuid.UUID) ([]core.EntryAmount, error) {
	var table string
	switch kind {
	case core.PaymentEntry:
		table = "payments"
	case core.ExpenseEntry:
		table = "expenses"
	default:
		return nil, fmt.Errorf("unknown entry kind %q", kind)
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, amount FROM `+table+` WHERE owner_id = ? AND project_id = ?`, owner, projectID)
	if err != nil {
		return nil, fmt.Errorf("list %s amounts: %w", kind, err)
	}
	defer rows.Close()

	out := make([]core.EntryAmount, 0)
	for rows.Next() {
		var a core.EntryAmount
		if err := rows.Scan(&a.ID, &a.Amount); err != nil {
			return nil, fmt.Errorf("scan %s amount: %w", kind, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *queries) CountProjectEntries(ctx context.Context, owner, projectID uuid.UUID) (int, int, error) {
	var payments, expenses int
	err := q.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM payments WHERE owner_id = ? AND project_id = ?),
			(SELECT COUNT(*) FROM expenses WHERE owner_id = ? AND project_id = ?)`,
		owner, projectID, owner, projectID).Scan(&payments, &expenses)
	if err != nil {
		return 0, 0, fmt.Errorf("count project entries: %w", err)
	}
	return payments, expenses, nil
}

func (q *queries) CountClientReferences(ctx context.Context, owner, clientID uuid.UUID) (int, int, error) {
	var projects, payments int
	err := q.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects WHERE owner_id = ? AND client_id = ?),
			(SELECT COUNT(*) FROM payments WHERE owner_id = ? AND client_id = ?)`,
		owner, clientID, owner, clientID).Scan(&projects, &payments)
	if err != nil {
		return 0, 0, fmt.Errorf("count client references: %w", err)
	}
	return projects, payments, nil
}

func (q *queries) CountCategoryExpenses(ctx context.Context, owner, categoryID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE owner_id = ? AND category_id = ?`,
		owner, categoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count category expenses: %w", err)
	}
	return n, nil
}
