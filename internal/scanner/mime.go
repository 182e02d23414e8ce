package scanner

import (
	"path/filepath"
	"strings"
)

// DefaultMimeType is used for extensions missing from the table.
const DefaultMimeType = "application/octet-stream"

var mimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"txt":  "text/plain",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// MimeType infers a content type from the file extension.
func MimeType(name string) string {
	if t, ok := mimeTypes[extension(name)]; ok {
		return t
	}
	return DefaultMimeType
}

// extension is the lower-cased extension without the dot.
func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
