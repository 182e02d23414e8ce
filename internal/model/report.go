package model

// SyncStage is a step of the sync state machine.
type SyncStage string

const (
	StageReady               SyncStage = "ready"
	StageScanning            SyncStage = "scanning"
	StageUploadingFiles      SyncStage = "uploading_files"
	StageSyncingTransactions SyncStage = "syncing_transactions"
	StageSyncingMetadata     SyncStage = "syncing_metadata"
	StageCompleted           SyncStage = "completed"
	StageError               SyncStage = "error"
)

// SyncProgressReport describes one sync run. It is mutated as the run
// advances and read by the caller afterwards, or polled while it runs.
type SyncProgressReport struct {
	Stage           SyncStage `json:"stage"`
	ProcessedCount  int       `json:"processed_count"`
	TotalCount      int       `json:"total_count"`
	ErrorMessages   []string  `json:"error_messages"`
	SuccessMessages []string  `json:"success_messages"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r SyncProgressReport) Clone() SyncProgressReport {
	out := r
	out.ErrorMessages = append([]string(nil), r.ErrorMessages...)
	out.SuccessMessages = append([]string(nil), r.SuccessMessages...)
	return out
}

// MigrationResult is returned by a full files + rows migration.
type MigrationResult struct {
	TotalFiles         int      `json:"total_files"`
	UploadedFiles      int      `json:"uploaded_files"`
	FailedFiles        int      `json:"failed_files"`
	TotalTransactions  int      `json:"total_transactions"`
	SyncedTransactions int      `json:"synced_transactions"`
	ErrorMessages      []string `json:"error_messages"`
}

// FixAttachmentsResult is returned by the orphaned attachment repair.
type FixAttachmentsResult struct {
	OrphanedFiles            int      `json:"orphaned_files"`
	TransactionsWithoutFiles int      `json:"transactions_without_files"`
	Linked                   int      `json:"linked"`
	ErrorMessages            []string `json:"error_messages"`
}

// AttachmentFile is one entry of AttachmentStatus.FileList.
type AttachmentFile struct {
	RelPath  string `json:"rel_path"`
	Size     int64  `json:"size"`
	Linked   bool   `json:"linked"`
	EntityID int64  `json:"entity_id,omitempty"`
}

// AttachmentStatus summarises how local files relate to transaction rows.
type AttachmentStatus struct {
	TotalFiles            int              `json:"total_files"`
	TransactionsWithFiles int              `json:"transactions_with_files"`
	OrphanedFiles         int              `json:"orphaned_files"`
	FileList              []AttachmentFile `json:"file_list"`
	ErrorMessages         []string         `json:"error_messages,omitempty"`
}

// CleanupResult is returned by the database cleanup pass.
type CleanupResult struct {
	TotalTransactions       int      `json:"total_transactions"`
	TransactionsWithFiles   int      `json:"transactions_with_files"`
	BrokenLinksFound        int      `json:"broken_links_found"`
	BrokenLinksRemoved      int      `json:"broken_links_removed"`
	MissingFilesFound       int      `json:"missing_files_found"`
	ValidLocalFiles         int      `json:"valid_local_files"`
	ValidRemoteFiles        int      `json:"valid_remote_files"`
	FilesNeedReorganization int      `json:"files_need_reorganization"`
	ErrorMessages           []string `json:"error_messages"`
}

// OrganizeResult is returned by the reorganization pass.
type OrganizeResult struct {
	Organized     int      `json:"organized"`
	ErrorMessages []string `json:"error_messages"`
}

// SystemStatus is a read-only audit of rows and disk state.
type SystemStatus struct {
	TotalTransactions       int      `json:"total_transactions"`
	TransactionsWithFiles   int      `json:"transactions_with_files"`
	BrokenLinks             int      `json:"broken_links"`
	MissingFiles            int      `json:"missing_files"`
	ValidLocalFiles         int      `json:"valid_local_files"`
	ValidRemoteFiles        int      `json:"valid_remote_files"`
	FilesNeedReorganization int      `json:"files_need_reorganization"`
	DiskFileCount           int      `json:"disk_file_count"`
	DiskTotalBytes          int64    `json:"disk_total_bytes"`
	ErrorMessages           []string `json:"error_messages,omitempty"`
}

// Running reports whether a run in this stage has not finished yet.
func (s SyncStage) Running() bool {
	switch s {
	case StageScanning, StageUploadingFiles, StageSyncingTransactions, StageSyncingMetadata:
		return true
	}
	return false
}
