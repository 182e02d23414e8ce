package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hasnin090/iq-sub003/internal/model"
	"github.com/hasnin090/iq-sub003/internal/repository"
)

// TransactionPostgres is a PostgreSQL implementation of repository.TransactionRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type TransactionPostgres struct {
	db *sql.DB
}

// NewTransactionPostgres creates a new TransactionPostgres repository.
func NewTransactionPostgres(db *sql.DB) *TransactionPostgres {
	return &TransactionPostgres{db: db}
}

var _ repository.TransactionRepository = (*TransactionPostgres)(nil)

const selectTransactions = `
	SELECT id, date, type, amount::text, COALESCE(description, ''),
	       project_id, created_by, employee_id,
	       COALESCE(file_url, ''), COALESCE(file_type, ''), COALESCE(archived, false)
	FROM transactions
`

// List returns all transactions ordered by id.
func (r *TransactionPostgres) List(ctx context.Context) ([]model.Transaction, error) {
	return r.query(ctx, selectTransactions+` ORDER BY id`)
}

// ListWithoutFile returns transactions lacking an attachment, ordered by id.
func (r *TransactionPostgres) ListWithoutFile(ctx context.Context) ([]model.Transaction, error) {
	return r.query(ctx, selectTransactions+` WHERE file_url IS NULL OR file_url = '' ORDER BY id`)
}

func (r *TransactionPostgres) query(ctx context.Context, q string) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	items := make([]model.Transaction, 0)
	for rows.Next() {
		var (
			t                                model.Transaction
			typ                              string
			projectID, createdBy, employeeID sql.NullInt64
		)
		if err := rows.Scan(
			&t.ID,
			&t.Date,
			&typ,
			&t.Amount,
			&t.Description,
			&projectID,
			&createdBy,
			&employeeID,
			&t.FileURL,
			&t.FileType,
			&t.Archived,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = model.TransactionType(typ)
		t.ProjectID = nullableInt(projectID)
		t.CreatedBy = nullableInt(createdBy)
		t.EmployeeID = nullableInt(employeeID)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateFile sets file_url and file_type on one transaction.
func (r *TransactionPostgres) UpdateFile(ctx context.Context, id int64, fileURL, fileType string) error {
	const q = `UPDATE transactions SET file_url = $1, file_type = $2 WHERE id = $3`
	return r.exec(ctx, q, fileURL, fileType, id)
}

// ClearFile nulls the attachment columns of one transaction.
func (r *TransactionPostgres) ClearFile(ctx context.Context, id int64) error {
	const q = `UPDATE transactions SET file_url = NULL, file_type = NULL WHERE id = $1`
	return r.exec(ctx, q, id)
}

func (r *TransactionPostgres) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func nullableInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}
