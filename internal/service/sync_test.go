package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hasnin090/iq-sub003/internal/model"
	"github.com/hasnin090/iq-sub003/internal/scanner"
	storeMocks "github.com/hasnin090/iq-sub003/internal/storage/mocks"
)

var jan15 = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func sourceTables() map[string][]map[string]any {
	return map[string][]map[string]any{
		"transactions": {
			{"id": int64(1), "amount": "10", "fileurl": nil},
			{"id": int64(2), "amount": "20", "fileUrl": "/uploads/2/a.pdf"},
			{"id": int64(3), "amount": "30", "file_url": nil, "projectId": int64(7)},
		},
		"projects":           {{"id": int64(7), "name": "مشروع"}},
		"users":              {{"id": int64(1), "username": "admin", "password": "hash"}},
		"expense_categories": {{"id": int64(1), "name": "وقود"}},
		"employees":          {},
		"settings":           {{"key": "currency", "value": "IQD"}},
	}
}

func newTestSync(root string, store *storeMocks.MockStorage, txns *fakeTransactions, source, remote *fakeRowStore, batch int) SyncService {
	deps := SyncDeps{
		Scanner:      scanner.New(nil, nil),
		Transactions: txns,
		Source:       source,
	}
	if store != nil {
		deps.Storage = store
	}
	if remote != nil {
		deps.Remote = remote
	}
	return NewSyncService(deps, SyncOptions{
		UploadsRoot: root,
		URLPrefix:   "/uploads",
		Bucket:      "files",
		BatchSize:   batch,
	})
}

func TestSyncService_SyncAllData(t *testing.T) {
	root := t.TempDir()
	writeUpload(t, root, "100/1736899200000_receipt.pdf", "pdf")
	writeUpload(t, root, "loose.txt", "txt")

	mStore := new(storeMocks.MockStorage)
	mStore.On("EnsureBucket", mock.Anything, "files").Return(nil).Once()
	mStore.On("Upload", mock.Anything, "files", "100/1736899200000_receipt.pdf", mock.Anything, mock.Anything).
		Return("https://cdn/files/100/1736899200000_receipt.pdf", true).Once()
	mStore.On("Upload", mock.Anything, "files", "loose.txt", mock.Anything, mock.Anything).
		Return("https://cdn/files/loose.txt", true).Once()

	txns := newFakeTransactions(model.Transaction{ID: 100, Date: jan15})
	source := newFakeRowStore(sourceTables())
	remote := newFakeRowStore(nil)

	svc := newTestSync(root, mStore, txns, source, remote, 2)
	report := svc.SyncAllData(context.Background())

	assert.Equal(t, model.StageCompleted, report.Stage)
	assert.Empty(t, report.ErrorMessages)
	assert.Equal(t, 5, report.TotalCount)
	assert.Equal(t, 5, report.ProcessedCount)
	assert.NotEmpty(t, report.SuccessMessages)

	// the entity-directory file is linked straight to its transaction
	assert.Equal(t, "https://cdn/files/100/1736899200000_receipt.pdf", txns.get(100).FileURL)
	assert.Equal(t, "application/pdf", txns.get(100).FileType)

	assert.Equal(t, 3, remote.count("transactions"))
	assert.Equal(t, "/uploads/2/a.pdf", remote.tables["transactions"]["2"]["file_url"])
	assert.Equal(t, int64(7), remote.tables["transactions"]["3"]["project_id"])
	assert.NotContains(t, remote.tables["users"]["1"], "password")
	assert.Equal(t, "IQD", remote.tables["settings"]["currency"]["value"])
	assert.Equal(t, 0, remote.count("employees"))
	assert.Equal(t, []string{"transactions", "transactions", "projects", "users", "expense_categories", "settings"}, remote.upserts)

	assert.Equal(t, report, svc.Progress())
	mStore.AssertExpectations(t)
}

func TestSyncService_SyncAllDataMirrorsLinksMadeDuringUpload(t *testing.T) {
	root := t.TempDir()
	writeUpload(t, root, "100/a.pdf", "a")

	mStore := new(storeMocks.MockStorage)
	mStore.On("EnsureBucket", mock.Anything, "files").Return(nil)
	mStore.On("Upload", mock.Anything, "files", "100/a.pdf", mock.Anything, mock.Anything).
		Return("https://cdn/files/100/a.pdf", true).Once()

	txns := newFakeTransactions(model.Transaction{ID: 100, Date: jan15})
	source := ledgerSource{fakeRowStore: newFakeRowStore(nil), txns: txns}
	remote := newFakeRowStore(nil)

	svc := NewSyncService(SyncDeps{
		Scanner:      scanner.New(nil, nil),
		Storage:      mStore,
		Transactions: txns,
		Source:       source,
		Remote:       remote,
	}, SyncOptions{UploadsRoot: root, URLPrefix: "/uploads", Bucket: "files"})

	report := svc.SyncAllData(context.Background())

	assert.Equal(t, model.StageCompleted, report.Stage)
	assert.Equal(t, 2, report.TotalCount)
	assert.Equal(t, 2, report.ProcessedCount)
	require.Equal(t, 1, remote.count("transactions"))
	assert.Equal(t, "https://cdn/files/100/a.pdf", remote.tables["transactions"]["100"]["file_url"])
	assert.Equal(t, "application/pdf", remote.tables["transactions"]["100"]["file_type"])
	mStore.AssertExpectations(t)
}

func TestSyncService_SyncAllDataIsIdempotent(t *testing.T) {
	root := t.TempDir()
	mStore := new(storeMocks.MockStorage)
	mStore.On("EnsureBucket", mock.Anything, "files").Return(nil)

	source := newFakeRowStore(sourceTables())
	remote := newFakeRowStore(nil)
	svc := newTestSync(root, mStore, newFakeTransactions(), source, remote, 50)

	first := svc.SyncAllData(context.Background())
	counts := map[string]int{}
	for table := range remote.tables {
		counts[table] = remote.count(table)
	}
	second := svc.SyncAllData(context.Background())

	assert.Equal(t, model.StageCompleted, first.Stage)
	assert.Equal(t, model.StageCompleted, second.Stage)
	for table, n := range counts {
		assert.Equal(t, n, remote.count(table), table)
	}
	assert.Equal(t, 3, remote.count("transactions"))
}

func TestSyncService_SyncAllDataPartialFailures(t *testing.T) {
	root := t.TempDir()
	writeUpload(t, root, "5/a.pdf", "a")
	writeUpload(t, root, "b.png", "b")

	mStore := new(storeMocks.MockStorage)
	mStore.On("EnsureBucket", mock.Anything, "files").Return(nil)
	mStore.On("Upload", mock.Anything, "files", "5/a.pdf", mock.Anything, mock.Anything).Return("", false).Once()
	mStore.On("Upload", mock.Anything, "files", "b.png", mock.Anything, mock.Anything).Return("https://cdn/files/b.png", true).Once()

	source := newFakeRowStore(sourceTables())
	source.fetchErr["expense_categories"] = errors.New("relation does not exist")
	remote := newFakeRowStore(nil)
	remote.upsertErr["settings"] = errors.New("permission denied")

	svc := newTestSync(root, mStore, newFakeTransactions(), source, remote, 2)
	report := svc.SyncAllData(context.Background())

	assert.Equal(t, model.StageCompleted, report.Stage)
	require.Len(t, report.ErrorMessages, 3)
	assert.Contains(t, report.ErrorMessages[0], "upload 5/a.pdf failed")
	assert.Contains(t, report.ErrorMessages[1], "read expense_categories")
	assert.Contains(t, report.ErrorMessages[2], "sync settings: permission denied")
	assert.Equal(t, 1, remote.count("users"))
}

func TestSyncService_SyncAllDataBatchFailureContinues(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	mStore.On("EnsureBucket", mock.Anything, "files").Return(nil)

	source := newFakeRowStore(sourceTables())
	remote := &failingFirstBatch{fakeRowStore: newFakeRowStore(nil)}

	svc := NewSyncService(SyncDeps{
		Scanner:      scanner.New(nil, nil),
		Storage:      mStore,
		Transactions: newFakeTransactions(),
		Source:       source,
		Remote:       remote,
	}, SyncOptions{UploadsRoot: t.TempDir(), Bucket: "files", BatchSize: 2})

	report := svc.SyncAllData(context.Background())
	assert.Equal(t, model.StageCompleted, report.Stage)
	require.Len(t, report.ErrorMessages, 1)
	assert.Contains(t, report.ErrorMessages[0], "transactions batch 1-2")
	assert.Equal(t, 1, remote.count("transactions"))
	assert.Contains(t, report.SuccessMessages, "synced 1 of 3 transactions")
}

type failingFirstBatch struct {
	*fakeRowStore
	once sync.Once
}

func (f *failingFirstBatch) Upsert(ctx context.Context, table string, rows []map[string]any, key string) error {
	var fail bool
	if table == "transactions" {
		f.once.Do(func() { fail = true })
	}
	if fail {
		return errors.New("request entity too large")
	}
	return f.fakeRowStore.Upsert(ctx, table, rows, key)
}

func TestSyncService_RemoteUnavailable(t *testing.T) {
	svc := newTestSync(t.TempDir(), nil, newFakeTransactions(), newFakeRowStore(nil), nil, 50)

	report := svc.SyncAllData(context.Background())
	assert.Equal(t, model.StageError, report.Stage)
	assert.Equal(t, []string{ErrRemoteUnavailable.Error()}, report.ErrorMessages)

	res := svc.MigrateToRemote(context.Background())
	assert.Equal(t, []string{ErrRemoteUnavailable.Error()}, res.ErrorMessages)
}

func TestSyncService_ScanFailureAborts(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	svc := newTestSync(t.TempDir()+"/missing", mStore, newFakeTransactions(), newFakeRowStore(nil), newFakeRowStore(nil), 50)

	report := svc.SyncAllData(context.Background())
	assert.Equal(t, model.StageError, report.Stage)
	require.Len(t, report.ErrorMessages, 1)
	assert.Contains(t, report.ErrorMessages[0], "scan uploads")
	mStore.AssertNotCalled(t, "EnsureBucket", mock.Anything, mock.Anything)
}

type panicScanner struct{}

func (panicScanner) Scan(string) ([]model.FileDescriptor, error) { panic("disk vanished") }

func TestSyncService_PanicBecomesErrorStage(t *testing.T) {
	svc := NewSyncService(SyncDeps{
		Scanner:      panicScanner{},
		Storage:      new(storeMocks.MockStorage),
		Transactions: newFakeTransactions(),
		Source:       newFakeRowStore(nil),
		Remote:       newFakeRowStore(nil),
	}, SyncOptions{})

	report := svc.SyncAllData(context.Background())
	assert.Equal(t, model.StageError, report.Stage)
	assert.Contains(t, report.ErrorMessages[0], "unexpected failure: disk vanished")

	// the run slot is released afterwards
	report = svc.SyncAllData(context.Background())
	assert.Equal(t, model.StageError, report.Stage)
	assert.Len(t, report.ErrorMessages, 1)
}

type blockingScanner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingScanner) Scan(string) ([]model.FileDescriptor, error) {
	close(b.started)
	<-b.release
	return nil, nil
}

func TestSyncService_RejectsConcurrentRun(t *testing.T) {
	bs := &blockingScanner{started: make(chan struct{}), release: make(chan struct{})}
	mStore := new(storeMocks.MockStorage)
	mStore.On("EnsureBucket", mock.Anything, "files").Return(nil)

	svc := NewSyncService(SyncDeps{
		Scanner:      bs,
		Storage:      mStore,
		Transactions: newFakeTransactions(),
		Source:       newFakeRowStore(nil),
		Remote:       newFakeRowStore(nil),
	}, SyncOptions{Bucket: "files"})

	done := make(chan model.SyncProgressReport)
	go func() { done <- svc.SyncAllData(context.Background()) }()

	<-bs.started
	assert.Equal(t, model.StageScanning, svc.Progress().Stage)
	second := svc.SyncAllData(context.Background())
	assert.Contains(t, second.ErrorMessages, ErrSyncInProgress.Error())

	_, err := svc.RunSync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = svc.StartSync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = svc.Migrate(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Contains(t, svc.MigrateToRemote(context.Background()).ErrorMessages, ErrSyncInProgress.Error())

	close(bs.release)
	first := <-done
	assert.Equal(t, model.StageCompleted, first.Stage)
}

func TestSyncService_StartSyncReturnsFreshReport(t *testing.T) {
	bs := &blockingScanner{started: make(chan struct{}), release: make(chan struct{})}
	mStore := new(storeMocks.MockStorage)
	mStore.On("EnsureBucket", mock.Anything, "files").Return(nil)
	svc := NewSyncService(SyncDeps{
		Scanner:      bs,
		Storage:      mStore,
		Transactions: newFakeTransactions(),
		Source:       newFakeRowStore(nil),
		Remote:       newFakeRowStore(nil),
	}, SyncOptions{Bucket: "files"})
	// a previous run left a failed report behind
	svc.(*syncService).progress = model.SyncProgressReport{Stage: model.StageError, ErrorMessages: []string{"upload failed"}}

	fresh, err := svc.StartSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StageReady, fresh.Stage)
	assert.Empty(t, fresh.ErrorMessages)

	// the slot is held before StartSync returns
	_, err = svc.StartSync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	<-bs.started
	close(bs.release)
	assert.Eventually(t, func() bool {
		return svc.Progress().Stage == model.StageCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestSyncService_MigrateToRemote(t *testing.T) {
	root := t.TempDir()
	writeUpload(t, root, "100/a.pdf", "a")
	writeUpload(t, root, "404/b.pdf", "b")
	writeUpload(t, root, "c.jpg", "c")

	mStore := new(storeMocks.MockStorage)
	mStore.On("EnsureBucket", mock.Anything, "files").Return(nil)
	mStore.On("Upload", mock.Anything, "files", "100/a.pdf", mock.Anything, mock.Anything).Return("https://cdn/files/100/a.pdf", true)
	mStore.On("Upload", mock.Anything, "files", "404/b.pdf", mock.Anything, mock.Anything).Return("https://cdn/files/404/b.pdf", true)
	mStore.On("Upload", mock.Anything, "files", "c.jpg", mock.Anything, mock.Anything).Return("", false)

	txns := newFakeTransactions(model.Transaction{ID: 100, Date: jan15})
	remote := newFakeRowStore(nil)
	svc := newTestSync(root, mStore, txns, newFakeRowStore(sourceTables()), remote, 50)

	res := svc.MigrateToRemote(context.Background())

	assert.Equal(t, 3, res.TotalFiles)
	assert.Equal(t, 2, res.UploadedFiles)
	assert.Equal(t, 1, res.FailedFiles)
	assert.Equal(t, 3, res.TotalTransactions)
	assert.Equal(t, 3, res.SyncedTransactions)
	require.Len(t, res.ErrorMessages, 2)
	assert.Contains(t, res.ErrorMessages[0], "could not link transaction 404")
	assert.Contains(t, res.ErrorMessages[1], "upload c.jpg failed")
	assert.Equal(t, "https://cdn/files/100/a.pdf", txns.get(100).FileURL)
	assert.Equal(t, 0, remote.count("projects"))
	assert.Equal(t, model.StageCompleted, svc.Progress().Stage)
}

func TestSyncService_FixOrphanedAttachments(t *testing.T) {
	root := t.TempDir()
	writeUpload(t, root, "100/a.pdf", "a")
	writeUpload(t, root, "1736899200000_receipt.pdf", "r")
	writeUpload(t, root, "already.pdf", "x")
	writeUpload(t, root, "migrated.png", "m")
	writeUpload(t, root, "999/x.pdf", "x")

	txns := newFakeTransactions(
		model.Transaction{ID: 100, Date: jan15},
		model.Transaction{ID: 200, Date: jan15},
		model.Transaction{ID: 300, Date: jan15, FileURL: "/uploads/already.pdf"},
		model.Transaction{ID: 400, Date: jan15, FileURL: "https://cdn.example.com/storage/files/migrated.png"},
		model.Transaction{ID: 999, Date: jan15, FileURL: "/uploads/other.pdf"},
	)
	svc := newTestSync(root, nil, txns, newFakeRowStore(nil), nil, 50)

	res := svc.FixOrphanedAttachments(context.Background())

	assert.Equal(t, 3, res.OrphanedFiles)
	assert.Equal(t, 2, res.TransactionsWithoutFiles)
	assert.Equal(t, 2, res.Linked)
	assert.Empty(t, res.ErrorMessages)
	assert.Equal(t, "/uploads/100/a.pdf", txns.get(100).FileURL)
	assert.Equal(t, "/uploads/1736899200000_receipt.pdf", txns.get(200).FileURL)
	assert.Equal(t, "application/pdf", txns.get(200).FileType)
	assert.Equal(t, "/uploads/other.pdf", txns.get(999).FileURL)

	again := svc.FixOrphanedAttachments(context.Background())
	assert.Equal(t, 0, again.Linked)
	assert.Equal(t, 1, again.OrphanedFiles)
	assert.Equal(t, 0, again.TransactionsWithoutFiles)
}

func TestSyncService_FixOrphanedAttachmentsOutsideWindow(t *testing.T) {
	root := t.TempDir()
	writeUpload(t, root, "1736985600000_late.pdf", "x") // 2025-01-16T00:00Z

	txns := newFakeTransactions(model.Transaction{ID: 1, Date: jan15})
	svc := newTestSync(root, nil, txns, newFakeRowStore(nil), nil, 50)

	res := svc.FixOrphanedAttachments(context.Background())
	assert.Equal(t, 0, res.Linked)
	assert.Equal(t, 1, res.OrphanedFiles)
	assert.False(t, txns.get(1).HasFile())
}

func TestSyncService_FixOrphanedAttachmentsUpdateError(t *testing.T) {
	root := t.TempDir()
	writeUpload(t, root, "7/a.pdf", "a")

	txns := newFakeTransactions(model.Transaction{ID: 7, Date: jan15})
	txns.failIDs[7] = errors.New("deadlock")
	svc := newTestSync(root, nil, txns, newFakeRowStore(nil), nil, 50)

	res := svc.FixOrphanedAttachments(context.Background())
	assert.Equal(t, 0, res.Linked)
	require.Len(t, res.ErrorMessages, 1)
	assert.Contains(t, res.ErrorMessages[0], "link 7/a.pdf to transaction 7: deadlock")
}

func TestSyncService_FixOrphanedAttachmentsListError(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *fakeTransactions)
		want    string
	}{
		{
			name:    "all transactions",
			prepare: func(f *fakeTransactions) { f.listErr = errors.New("timeout") },
			want:    "list transactions: timeout",
		},
		{
			name:    "transactions without file",
			prepare: func(f *fakeTransactions) { f.withoutErr = errors.New("timeout") },
			want:    "list transactions without file: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns := newFakeTransactions(model.Transaction{ID: 1, Date: jan15})
			tt.prepare(txns)
			svc := newTestSync(t.TempDir(), nil, txns, newFakeRowStore(nil), nil, 50)

			res := svc.FixOrphanedAttachments(context.Background())
			assert.Equal(t, []string{tt.want}, res.ErrorMessages)
			assert.Zero(t, res.Linked)
		})
	}
}

func TestSyncService_GetAttachmentStatus(t *testing.T) {
	root := t.TempDir()
	writeUpload(t, root, "1/a.pdf", "aaaa")
	writeUpload(t, root, "b.pdf", "b")

	txns := newFakeTransactions(
		model.Transaction{ID: 1, Date: jan15, FileURL: "/uploads/1/a.pdf"},
		model.Transaction{ID: 2, Date: jan15},
	)
	svc := newTestSync(root, nil, txns, newFakeRowStore(nil), nil, 50)

	st := svc.GetAttachmentStatus(context.Background())
	assert.Equal(t, 2, st.TotalFiles)
	assert.Equal(t, 1, st.TransactionsWithFiles)
	assert.Equal(t, 1, st.OrphanedFiles)
	require.Len(t, st.FileList, 2)

	byPath := map[string]model.AttachmentFile{}
	for _, f := range st.FileList {
		byPath[f.RelPath] = f
	}
	assert.True(t, byPath["1/a.pdf"].Linked)
	assert.Equal(t, int64(4), byPath["1/a.pdf"].Size)
	assert.Equal(t, int64(1), byPath["1/a.pdf"].EntityID)
	assert.False(t, byPath["b.pdf"].Linked)
}
