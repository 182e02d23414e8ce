package repository

import (
	"context"

	"github.com/hasnin090/iq-sub003/internal/model"
)

// TransactionRepository is the source row store for transactions.
// Only the attachment columns are ever written.
type TransactionRepository interface {
	// List returns every transaction ordered by id.
	List(ctx context.Context) ([]model.Transaction, error)

	// ListWithoutFile returns transactions that have no file_url, ordered by id.
	ListWithoutFile(ctx context.Context) ([]model.Transaction, error)

	// UpdateFile links an attachment to the transaction.
	UpdateFile(ctx context.Context, id int64, fileURL, fileType string) error

	// ClearFile removes the attachment reference.
	ClearFile(ctx context.Context, id int64) error
}

// RowStore is a generic table-level store used to mirror rows between
// databases.
type RowStore interface {
	// FetchAll returns every row of table keyed by column name.
	FetchAll(ctx context.Context, table string) ([]map[string]any, error)

	// Upsert writes rows in a single statement, updating rows whose
	// conflictKey already exists.
	Upsert(ctx context.Context, table string, rows []map[string]any, conflictKey string) error
}
