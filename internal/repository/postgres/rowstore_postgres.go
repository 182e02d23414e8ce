package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/hasnin090/iq-sub003/internal/repository"
)

const selectColumns = `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1`

// RowStorePostgres mirrors whole tables using dynamic column lists.
// Table and column names are quoted with pgx identifier sanitization.
type RowStorePostgres struct {
	db *sql.DB

	mu      sync.Mutex
	columns map[string]map[string]struct{}
}

// NewRowStorePostgres creates a new RowStorePostgres.
func NewRowStorePostgres(db *sql.DB) *RowStorePostgres {
	return &RowStorePostgres{db: db, columns: map[string]map[string]struct{}{}}
}

var _ repository.RowStore = (*RowStorePostgres)(nil)

// FetchAll returns every row of table. []byte values are returned as strings.
func (r *RowStorePostgres) FetchAll(ctx context.Context, table string) ([]map[string]any, error) {
	q := "SELECT * FROM " + pgx.Identifier{table}.Sanitize()
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert inserts rows in one statement and updates every non-key column on
// conflict. Rows are first projected onto the columns the target table
// actually has; columns absent from a row are written as NULL.
func (r *RowStorePostgres) Upsert(ctx context.Context, table string, rows []map[string]any, conflictKey string) error {
	if len(rows) == 0 {
		return nil
	}
	cols, err := r.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	q, args, err := BuildUpsert(table, Project(rows, cols), conflictKey)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// tableColumns loads the column set of table once and caches it.
func (r *RowStorePostgres) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	r.mu.Lock()
	cols, ok := r.columns[table]
	r.mu.Unlock()
	if ok {
		return cols, nil
	}

	rows, err := r.db.QueryContext(ctx, selectColumns, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols = map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("columns of %s: %w", table, err)
		}
		cols[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("upsert %s: table does not exist on target", table)
	}

	r.mu.Lock()
	r.columns[table] = cols
	r.mu.Unlock()
	return cols, nil
}

// Project keeps only the keys of each row that are in cols.
func Project(rows []map[string]any, cols map[string]struct{}) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		p := make(map[string]any, len(row))
		for k, v := range row {
			if _, ok := cols[k]; ok {
				p[k] = v
			}
		}
		out[i] = p
	}
	return out
}

// BuildUpsert renders the INSERT ... ON CONFLICT statement for rows.
// Columns are sorted so the statement is stable for a given column set.
func BuildUpsert(table string, rows []map[string]any, conflictKey string) (string, []any, error) {
	colSet := map[string]struct{}{}
	for _, row := range rows {
		for c := range row {
			colSet[c] = struct{}{}
		}
	}
	if _, ok := colSet[conflictKey]; !ok {
		return "", nil, fmt.Errorf("upsert %s: conflict key %q missing from rows", table, conflictKey)
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgx.Identifier{table}.Sanitize())
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, row[c])
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}

	key := pgx.Identifier{conflictKey}.Sanitize()
	b.WriteString(" ON CONFLICT (")
	b.WriteString(key)
	b.WriteString(")")

	var sets []string
	for i, c := range cols {
		if c == conflictKey {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
	}
	if len(sets) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	return b.String(), args, nil
}
