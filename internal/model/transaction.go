package model

import "time"

// TransactionType is the direction of a financial entry.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Transaction is the subset of a transaction row the sync and cleanup
// passes work with. Only FileURL and FileType are ever written back.
type Transaction struct {
	ID          int64           `json:"id"`
	Date        time.Time       `json:"date"`
	Type        TransactionType `json:"type"`
	Amount      string          `json:"amount"`
	Description string          `json:"description"`
	ProjectID   *int64          `json:"project_id,omitempty"`
	CreatedBy   *int64          `json:"created_by,omitempty"`
	EmployeeID  *int64          `json:"employee_id,omitempty"`
	FileURL     string          `json:"file_url,omitempty"`
	FileType    string          `json:"file_type,omitempty"`
	Archived    bool            `json:"archived"`
}

// HasFile reports whether the row references an attachment.
func (t Transaction) HasFile() bool {
	return t.FileURL != ""
}

// DateMillis is the transaction date at 00:00 UTC, in epoch milliseconds.
func (t Transaction) DateMillis() int64 {
	y, m, d := t.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).UnixMilli()
}
