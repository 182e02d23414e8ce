package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hasnin090/iq-sub003/internal/logging"
	"github.com/hasnin090/iq-sub003/internal/matcher"
	"github.com/hasnin090/iq-sub003/internal/metrics"
	"github.com/hasnin090/iq-sub003/internal/model"
	"github.com/hasnin090/iq-sub003/internal/repository"
	"github.com/hasnin090/iq-sub003/internal/rowmap"
	"github.com/hasnin090/iq-sub003/internal/scanner"
	"github.com/hasnin090/iq-sub003/internal/storage"
)

var (
	ErrRemoteUnavailable = errors.New("remote store is not configured: check MINIO_* and REMOTE_DB_* settings")
	ErrSyncInProgress    = errors.New("a sync run is already in progress")
)

var tracer = otel.Tracer("github.com/hasnin090/iq-sub003/internal/service")

// DefaultBatchSize is the number of transaction rows per upsert call.
const DefaultBatchSize = 50

// FileScanner enumerates files under the uploads root.
type FileScanner interface {
	Scan(root string) ([]model.FileDescriptor, error)
}

// metadataTable is an auxiliary table mirrored after transactions.
type metadataTable struct {
	name        string
	conflictKey string
	stripSecret bool
	skipEmpty   bool
}

var metadataTables = []metadataTable{
	{name: "projects", conflictKey: "id"},
	{name: "users", conflictKey: "id", stripSecret: true},
	{name: "expense_categories", conflictKey: "id"},
	{name: "employees", conflictKey: "id", skipEmpty: true},
	{name: "settings", conflictKey: "key"},
}

// SyncService moves local attachments and rows to the remote store and
// repairs attachment links. Problems are reported in the result; the only
// error returned is ErrSyncInProgress when the run slot is taken.
type SyncService interface {
	// MigrateToRemote uploads every local file and mirrors all transaction rows.
	MigrateToRemote(ctx context.Context) model.MigrationResult

	// Migrate is MigrateToRemote returning ErrSyncInProgress instead of
	// recording it in the result.
	Migrate(ctx context.Context) (model.MigrationResult, error)

	// SyncAllData runs the full staged sync: files, transactions, then metadata tables.
	SyncAllData(ctx context.Context) model.SyncProgressReport

	// RunSync is SyncAllData returning ErrSyncInProgress instead of
	// recording it in the report.
	RunSync(ctx context.Context) (model.SyncProgressReport, error)

	// StartSync claims the run slot, starts SyncAllData in the background and
	// returns the freshly reset report.
	StartSync(ctx context.Context) (model.SyncProgressReport, error)

	// Progress returns a snapshot of the current or last run.
	Progress() model.SyncProgressReport

	// FixOrphanedAttachments links unreferenced local files to transactions without one.
	FixOrphanedAttachments(ctx context.Context) model.FixAttachmentsResult

	// GetAttachmentStatus reports how local files relate to transaction rows.
	GetAttachmentStatus(ctx context.Context) model.AttachmentStatus
}

// SyncDeps are the collaborators of the sync service. Storage and Remote
// may be nil when the remote store is not configured; operations that need
// them then report ErrRemoteUnavailable.
type SyncDeps struct {
	Scanner      FileScanner
	Storage      storage.Storage
	Transactions repository.TransactionRepository
	Source       repository.RowStore
	Remote       repository.RowStore
	Metrics      metrics.Recorder
	Log          *logging.Logger
}

// SyncOptions configures paths and batching.
type SyncOptions struct {
	UploadsRoot string
	URLPrefix   string
	Bucket      string
	BatchSize   int
}

type syncService struct {
	scanner FileScanner
	store   storage.Storage
	txns    repository.TransactionRepository
	source  repository.RowStore
	remote  repository.RowStore
	matcher *matcher.Matcher
	metrics metrics.Recorder
	log     *logging.Logger
	opts    SyncOptions

	mu       sync.Mutex
	running  bool
	progress model.SyncProgressReport
}

// NewSyncService constructs a new SyncService.
func NewSyncService(deps SyncDeps, opts SyncOptions) SyncService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Log == nil {
		deps.Log = logging.Nop()
	}
	return &syncService{
		scanner:  deps.Scanner,
		store:    deps.Storage,
		txns:     deps.Transactions,
		source:   deps.Source,
		remote:   deps.Remote,
		matcher:  matcher.New(opts.URLPrefix),
		metrics:  deps.Metrics,
		log:      deps.Log,
		opts:     opts,
		progress: model.SyncProgressReport{Stage: model.StageReady},
	}
}

func (s *syncService) Progress() model.SyncProgressReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Clone()
}

// begin claims the run slot and resets the progress report.
func (s *syncService) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.progress = model.SyncProgressReport{Stage: model.StageReady}
	return true
}

func (s *syncService) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *syncService) update(fn func(r *model.SyncProgressReport)) {
	s.mu.Lock()
	fn(&s.progress)
	s.mu.Unlock()
}

func (s *syncService) setStage(stage model.SyncStage) {
	s.update(func(r *model.SyncProgressReport) { r.Stage = stage })
	s.log.Info("sync_stage", map[string]any{"stage": string(stage)})
}

func (s *syncService) succeed(msg string) {
	s.update(func(r *model.SyncProgressReport) { r.SuccessMessages = append(r.SuccessMessages, msg) })
}

func (s *syncService) failItem(msg string) {
	s.update(func(r *model.SyncProgressReport) { r.ErrorMessages = append(r.ErrorMessages, msg) })
}

func (s *syncService) processed(n int) {
	s.update(func(r *model.SyncProgressReport) { r.ProcessedCount += n })
}

// abort moves the run into the error stage. Writes already made stay in place.
func (s *syncService) abort(err error) {
	s.update(func(r *model.SyncProgressReport) {
		r.Stage = model.StageError
		r.ErrorMessages = append(r.ErrorMessages, err.Error())
	})
	s.log.Error("sync_aborted", err, nil)
}

func (s *syncService) remoteReady() error {
	if s.store == nil || s.remote == nil {
		return ErrRemoteUnavailable
	}
	return nil
}

func (s *syncService) SyncAllData(ctx context.Context) model.SyncProgressReport {
	report, err := s.RunSync(ctx)
	if err != nil {
		report.ErrorMessages = append(report.ErrorMessages, err.Error())
	}
	return report
}

func (s *syncService) RunSync(ctx context.Context) (model.SyncProgressReport, error) {
	if !s.begin() {
		return s.Progress(), ErrSyncInProgress
	}
	return s.runSync(ctx), nil
}

func (s *syncService) StartSync(ctx context.Context) (model.SyncProgressReport, error) {
	if !s.begin() {
		return s.Progress(), ErrSyncInProgress
	}
	fresh := s.Progress()
	go s.runSync(ctx)
	return fresh, nil
}

// runSync executes a sync after begin has claimed the run slot.
func (s *syncService) runSync(ctx context.Context) (report model.SyncProgressReport) {
	ctx, span := tracer.Start(ctx, "SyncService.SyncAllData")
	defer span.End()
	defer s.end()
	defer func() {
		if rec := recover(); rec != nil {
			s.abort(fmt.Errorf("unexpected failure: %v", rec))
		}
		report = s.Progress()
		if report.Stage == model.StageError {
			span.SetStatus(codes.Error, "sync failed")
		}
		span.SetAttributes(
			attribute.Int("sync.processed", report.ProcessedCount),
			attribute.Int("sync.errors", len(report.ErrorMessages)),
		)
	}()

	if err := s.remoteReady(); err != nil {
		s.abort(err)
		return
	}

	s.setStage(model.StageScanning)
	files, err := s.scanner.Scan(s.opts.UploadsRoot)
	if err != nil {
		s.abort(fmt.Errorf("scan uploads: %w", err))
		return
	}
	// counted here for the total only; uploads below rewrite file_url
	pending, err := s.source.FetchAll(ctx, "transactions")
	if err != nil {
		s.abort(fmt.Errorf("read transactions: %w", err))
		return
	}
	s.update(func(r *model.SyncProgressReport) { r.TotalCount = len(files) + len(pending) })
	s.succeed(fmt.Sprintf("found %d files and %d transactions", len(files), len(pending)))

	if err := s.store.EnsureBucket(ctx, s.opts.Bucket); err != nil {
		s.abort(fmt.Errorf("prepare bucket %s: %w", s.opts.Bucket, err))
		return
	}

	s.setStage(model.StageUploadingFiles)
	s.uploadFiles(ctx, files)

	s.setStage(model.StageSyncingTransactions)
	rows, err := s.source.FetchAll(ctx, "transactions")
	if err != nil {
		s.abort(fmt.Errorf("read transactions: %w", err))
		return
	}
	if len(rows) != len(pending) {
		s.update(func(r *model.SyncProgressReport) { r.TotalCount += len(rows) - len(pending) })
	}
	s.syncTransactionRows(ctx, rows)

	s.setStage(model.StageSyncingMetadata)
	s.syncMetadata(ctx)

	s.setStage(model.StageCompleted)
	return
}

func (s *syncService) MigrateToRemote(ctx context.Context) model.MigrationResult {
	res, err := s.Migrate(ctx)
	if err != nil {
		res.ErrorMessages = append(res.ErrorMessages, err.Error())
	}
	return res
}

func (s *syncService) Migrate(ctx context.Context) (model.MigrationResult, error) {
	if !s.begin() {
		return model.MigrationResult{ErrorMessages: []string{}}, ErrSyncInProgress
	}
	return s.runMigrate(ctx), nil
}

// runMigrate executes a migration after begin has claimed the run slot.
func (s *syncService) runMigrate(ctx context.Context) (res model.MigrationResult) {
	ctx, span := tracer.Start(ctx, "SyncService.MigrateToRemote")
	defer span.End()
	defer s.end()

	res.ErrorMessages = []string{}
	defer func() {
		if rec := recover(); rec != nil {
			s.abort(fmt.Errorf("unexpected failure: %v", rec))
		}
		res.ErrorMessages = s.Progress().ErrorMessages
		if res.ErrorMessages == nil {
			res.ErrorMessages = []string{}
		}
		span.SetAttributes(
			attribute.Int("migration.uploaded", res.UploadedFiles),
			attribute.Int("migration.failed", res.FailedFiles),
		)
	}()

	if err := s.remoteReady(); err != nil {
		s.abort(err)
		return res
	}
	if err := s.store.EnsureBucket(ctx, s.opts.Bucket); err != nil {
		s.abort(fmt.Errorf("prepare bucket %s: %w", s.opts.Bucket, err))
		return res
	}

	s.setStage(model.StageScanning)
	files, err := s.scanner.Scan(s.opts.UploadsRoot)
	if err != nil {
		s.abort(fmt.Errorf("scan uploads: %w", err))
		return res
	}
	res.TotalFiles = len(files)

	s.setStage(model.StageUploadingFiles)
	res.UploadedFiles, res.FailedFiles = s.uploadFiles(ctx, files)

	s.setStage(model.StageSyncingTransactions)
	rows, err := s.source.FetchAll(ctx, "transactions")
	if err != nil {
		s.abort(fmt.Errorf("read transactions: %w", err))
		return res
	}
	res.TotalTransactions = len(rows)
	res.SyncedTransactions = s.syncTransactionRows(ctx, rows)

	s.setStage(model.StageCompleted)
	return res
}

// uploadFiles uploads every file and links it to its transaction when the
// file sits under an entity directory. One file failing never stops the loop.
func (s *syncService) uploadFiles(ctx context.Context, files []model.FileDescriptor) (uploaded, failed int) {
	for _, f := range files {
		if s.uploadOne(ctx, f) {
			uploaded++
			s.metrics.FileUploaded()
		} else {
			failed++
			s.metrics.FileFailed()
		}
		s.processed(1)
	}
	s.succeed(fmt.Sprintf("uploaded %d of %d files", uploaded, len(files)))
	return uploaded, failed
}

func (s *syncService) uploadOne(ctx context.Context, f model.FileDescriptor) bool {
	ctx, span := tracer.Start(ctx, "SyncService.uploadFile", trace.WithAttributes(
		attribute.String("file.rel_path", f.RelPath),
		attribute.Int64("file.size", f.SizeBytes),
	))
	defer span.End()

	fh, err := os.Open(f.AbsolutePath)
	if err != nil {
		span.SetStatus(codes.Error, "open failed")
		s.failItem(fmt.Sprintf("open %s: %v", f.RelPath, err))
		return false
	}
	defer fh.Close()

	publicURL, ok := s.store.Upload(ctx, s.opts.Bucket, f.RelPath, fh, storage.PutObjectOptions{
		Size:        f.SizeBytes,
		ContentType: f.MimeType,
		Metadata:    map[string]string{"original-filename": url.PathEscape(f.FileName)},
	})
	if !ok {
		span.SetStatus(codes.Error, "upload failed")
		s.failItem(fmt.Sprintf("upload %s failed", f.RelPath))
		return false
	}

	if f.HasEntity() {
		if err := s.txns.UpdateFile(ctx, f.AssociatedEntityID, publicURL, f.MimeType); err != nil {
			s.failItem(fmt.Sprintf("uploaded %s but could not link transaction %d: %v", f.RelPath, f.AssociatedEntityID, err))
			return true
		}
		s.metrics.LinkRepaired("uploaded")
	}
	s.succeed(fmt.Sprintf("uploaded %s", f.RelPath))
	return true
}

// syncTransactionRows upserts normalized rows in fixed-size batches and
// returns how many rows were accepted. A failed batch is recorded and the
// next batch still runs.
func (s *syncService) syncTransactionRows(ctx context.Context, rows []map[string]any) int {
	rows = rowmap.NormalizeAll(rows)
	synced := 0
	for start := 0; start < len(rows); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		if err := s.remote.Upsert(ctx, "transactions", batch, "id"); err != nil {
			s.failItem(fmt.Sprintf("transactions batch %d-%d: %v", start+1, end, err))
			s.metrics.BatchFailed("transactions")
		} else {
			synced += len(batch)
			s.metrics.RowsUpserted("transactions", len(batch))
		}
		s.processed(len(batch))
	}
	s.succeed(fmt.Sprintf("synced %d of %d transactions", synced, len(rows)))
	return synced
}

// syncMetadata mirrors the auxiliary tables one upsert each, in order.
func (s *syncService) syncMetadata(ctx context.Context) {
	for _, t := range metadataTables {
		rows, err := s.source.FetchAll(ctx, t.name)
		if err != nil {
			s.failItem(fmt.Sprintf("read %s: %v", t.name, err))
			continue
		}
		if len(rows) == 0 && t.skipEmpty {
			s.succeed(fmt.Sprintf("%s: nothing to sync", t.name))
			continue
		}
		rows = rowmap.NormalizeAll(rows)
		if t.stripSecret {
			rows = rowmap.StripSecrets(rows)
		}
		if err := s.remote.Upsert(ctx, t.name, rows, t.conflictKey); err != nil {
			s.failItem(fmt.Sprintf("sync %s: %v", t.name, err))
			s.metrics.BatchFailed(t.name)
			continue
		}
		s.metrics.RowsUpserted(t.name, len(rows))
		s.succeed(fmt.Sprintf("synced %d %s", len(rows), t.name))
	}
}

func (s *syncService) FixOrphanedAttachments(ctx context.Context) model.FixAttachmentsResult {
	ctx, span := tracer.Start(ctx, "SyncService.FixOrphanedAttachments")
	defer span.End()

	res := model.FixAttachmentsResult{ErrorMessages: []string{}}

	files, err := s.scanner.Scan(s.opts.UploadsRoot)
	if err != nil {
		res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("scan uploads: %v", err))
		return res
	}
	all, err := s.txns.List(ctx)
	if err != nil {
		res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("list transactions: %v", err))
		return res
	}

	without, err := s.txns.ListWithoutFile(ctx)
	if err != nil {
		res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("list transactions without file: %v", err))
		return res
	}

	orphans := s.orphans(files, all)
	res.OrphanedFiles = len(orphans)
	res.TransactionsWithoutFiles = len(without)

	// files already inside an entity directory link straight to that row
	pending := make(map[int64]bool, len(without))
	for _, t := range without {
		pending[t.ID] = true
	}
	var loose []model.FileDescriptor
	for _, f := range orphans {
		if !f.HasEntity() {
			loose = append(loose, f)
			continue
		}
		if !pending[f.AssociatedEntityID] {
			continue
		}
		if err := s.txns.UpdateFile(ctx, f.AssociatedEntityID, scanner.LocalURL(s.opts.URLPrefix, f.RelPath), f.MimeType); err != nil {
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("link %s to transaction %d: %v", f.RelPath, f.AssociatedEntityID, err))
			continue
		}
		pending[f.AssociatedEntityID] = false
		res.Linked++
		s.metrics.LinkRepaired("direct")
	}

	var pool []model.Transaction
	for _, t := range without {
		if pending[t.ID] {
			pool = append(pool, t)
		}
	}
	matched := s.matcher.Match(loose, pool)
	for _, p := range matched.Pairs {
		if err := s.txns.UpdateFile(ctx, p.Transaction.ID, p.FileURL, p.FileType); err != nil {
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("link %s to transaction %d: %v", p.File.RelPath, p.Transaction.ID, err))
			continue
		}
		res.Linked++
		s.metrics.LinkRepaired("matched")
	}

	s.log.Info("attachments_fixed", map[string]any{
		"orphaned_files":             res.OrphanedFiles,
		"transactions_without_files": res.TransactionsWithoutFiles,
		"linked":                     res.Linked,
		"unmatched_files":            len(matched.UnmatchedFiles),
		"errors":                     len(res.ErrorMessages),
	})
	span.SetAttributes(attribute.Int("attachments.linked", res.Linked))
	return res
}

func (s *syncService) GetAttachmentStatus(ctx context.Context) model.AttachmentStatus {
	ctx, span := tracer.Start(ctx, "SyncService.GetAttachmentStatus")
	defer span.End()

	st := model.AttachmentStatus{FileList: []model.AttachmentFile{}}
	files, err := s.scanner.Scan(s.opts.UploadsRoot)
	if err != nil {
		st.ErrorMessages = append(st.ErrorMessages, fmt.Sprintf("scan uploads: %v", err))
		return st
	}
	all, err := s.txns.List(ctx)
	if err != nil {
		st.ErrorMessages = append(st.ErrorMessages, fmt.Sprintf("list transactions: %v", err))
		return st
	}

	refs := newReferenceSet(s.opts.URLPrefix, all)
	st.TotalFiles = len(files)
	for _, t := range all {
		if t.HasFile() {
			st.TransactionsWithFiles++
		}
	}
	for _, f := range files {
		linked := refs.has(f)
		if !linked {
			st.OrphanedFiles++
		}
		st.FileList = append(st.FileList, model.AttachmentFile{
			RelPath:  f.RelPath,
			Size:     f.SizeBytes,
			Linked:   linked,
			EntityID: f.AssociatedEntityID,
		})
	}
	return st
}

func (s *syncService) orphans(files []model.FileDescriptor, all []model.Transaction) []model.FileDescriptor {
	refs := newReferenceSet(s.opts.URLPrefix, all)
	var out []model.FileDescriptor
	for _, f := range files {
		if !refs.has(f) {
			out = append(out, f)
		}
	}
	return out
}

// referenceSet indexes the files transactions point at: local references by
// relative path, remote ones by object key suffix.
type referenceSet struct {
	local  map[string]struct{}
	remote []string
}

func newReferenceSet(prefix string, txns []model.Transaction) referenceSet {
	refs := referenceSet{local: map[string]struct{}{}}
	for _, t := range txns {
		if !t.HasFile() {
			continue
		}
		if scanner.IsRemoteURL(t.FileURL) {
			if u, err := url.Parse(t.FileURL); err == nil {
				refs.remote = append(refs.remote, u.Path)
			}
			continue
		}
		if rel, ok := scanner.RelFromURL(prefix, t.FileURL); ok {
			refs.local[rel] = struct{}{}
		}
	}
	return refs
}

func (r referenceSet) has(f model.FileDescriptor) bool {
	if _, ok := r.local[f.RelPath]; ok {
		return true
	}
	for _, p := range r.remote {
		if strings.HasSuffix(p, "/"+f.RelPath) {
			return true
		}
	}
	return false
}
