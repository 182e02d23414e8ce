package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hasnin090/iq-sub003/internal/model"
	"github.com/hasnin090/iq-sub003/internal/repository"
)

// fakeTransactions is an in-memory TransactionRepository.
type fakeTransactions struct {
	mu         sync.Mutex
	rows       []model.Transaction
	listErr    error
	withoutErr error
	failIDs    map[int64]error
}

func newFakeTransactions(rows ...model.Transaction) *fakeTransactions {
	return &fakeTransactions{rows: rows, failIDs: map[int64]error{}}
}

func (f *fakeTransactions) List(ctx context.Context) ([]model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Transaction(nil), f.rows...), nil
}

func (f *fakeTransactions) ListWithoutFile(ctx context.Context) ([]model.Transaction, error) {
	f.mu.Lock()
	err := f.withoutErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Transaction
	for _, t := range all {
		if !t.HasFile() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTransactions) UpdateFile(ctx context.Context, id int64, fileURL, fileType string) error {
	return f.set(id, fileURL, fileType)
}

func (f *fakeTransactions) ClearFile(ctx context.Context, id int64) error {
	return f.set(id, "", "")
}

func (f *fakeTransactions) set(id int64, fileURL, fileType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failIDs[id]; err != nil {
		return err
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].FileURL = fileURL
			f.rows[i].FileType = fileType
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeTransactions) get(id int64) model.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.ID == id {
			return t
		}
	}
	return model.Transaction{}
}

// fakeRowStore keeps tables keyed by their conflict column.
type fakeRowStore struct {
	mu        sync.Mutex
	source    map[string][]map[string]any
	tables    map[string]map[string]map[string]any
	fetchErr  map[string]error
	upsertErr map[string]error
	upserts   []string
}

func newFakeRowStore(source map[string][]map[string]any) *fakeRowStore {
	return &fakeRowStore{
		source:    source,
		tables:    map[string]map[string]map[string]any{},
		fetchErr:  map[string]error{},
		upsertErr: map[string]error{},
	}
}

func (f *fakeRowStore) FetchAll(ctx context.Context, table string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[table]; err != nil {
		return nil, err
	}
	return f.source[table], nil
}

func (f *fakeRowStore) Upsert(ctx context.Context, table string, rows []map[string]any, conflictKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, table)
	if err := f.upsertErr[table]; err != nil {
		return err
	}
	if f.tables[table] == nil {
		f.tables[table] = map[string]map[string]any{}
	}
	for _, r := range rows {
		f.tables[table][fmt.Sprint(r[conflictKey])] = r
	}
	return nil
}

func (f *fakeRowStore) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

// ledgerSource serves "transactions" from the same rows the repository
// writes to, as a single database does. Other tables come from the embedded store.
type ledgerSource struct {
	*fakeRowStore
	txns *fakeTransactions
}

func (l ledgerSource) FetchAll(ctx context.Context, table string) ([]map[string]any, error) {
	if table != "transactions" {
		return l.fakeRowStore.FetchAll(ctx, table)
	}
	all, err := l.txns.List(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(all))
	for _, t := range all {
		row := map[string]any{"id": t.ID, "date": t.Date, "file_url": nil, "file_type": nil}
		if t.HasFile() {
			row["file_url"] = t.FileURL
			row["file_type"] = t.FileType
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func writeUpload(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}
