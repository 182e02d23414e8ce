package model

// FileDescriptor is one file found under the local uploads tree.
// It is built during a scan and never persisted.
type FileDescriptor struct {
	AbsolutePath string `json:"absolute_path"`
	// RelPath is slash-separated and relative to the scanned root.
	RelPath   string `json:"rel_path"`
	FileName  string `json:"file_name"`
	SizeBytes int64  `json:"size_bytes"`
	// AssociatedEntityID comes from the closest ancestor directory whose name
	// is a plain non-negative integer; 0 when there is none.
	AssociatedEntityID int64 `json:"associated_entity_id,omitempty"`
	// EmbeddedTimestamp is a leading 13-digit epoch-millis prefix; 0 when absent.
	EmbeddedTimestamp int64  `json:"embedded_timestamp,omitempty"`
	MimeType          string `json:"mime_type"`
}

// HasEntity reports whether the file sits under an entity directory.
func (f FileDescriptor) HasEntity() bool {
	return f.AssociatedEntityID > 0
}
