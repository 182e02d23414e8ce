package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hasnin090/iq-sub003/internal/logging"
	"github.com/hasnin090/iq-sub003/internal/model"
)

// DefaultExtensions is the allow-list used when none is given.
var DefaultExtensions = []string{"pdf", "jpg", "jpeg", "png", "gif", "doc", "docx", "webp", "txt"}

var timestampPrefix = regexp.MustCompile(`^(\d{13})(?:\D|$)`)

// Scanner walks an uploads tree. It keeps no state between calls.
type Scanner struct {
	allowed map[string]struct{}
	log     *logging.Logger
}

// New builds a Scanner for the given extension allow-list.
func New(allowed []string, log *logging.Logger) *Scanner {
	if len(allowed) == 0 {
		allowed = DefaultExtensions
	}
	if log == nil {
		log = logging.Nop()
	}
	set := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &Scanner{allowed: set, log: log}
}

// Scan returns every allow-listed file under root. Unreadable
// subdirectories are logged and skipped; a missing root is an error.
func (s *Scanner) Scan(root string) ([]model.FileDescriptor, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat uploads root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("uploads root %s is not a directory", root)
	}

	var out []model.FileDescriptor
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			s.log.Error("scan_dir_skipped", walkErr, map[string]any{"path": path})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if _, ok := s.allowed[extension(d.Name())]; !ok {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			s.log.Error("scan_file_skipped", err, map[string]any{"path": path})
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		out = append(out, model.FileDescriptor{
			AbsolutePath:       abs,
			RelPath:            rel,
			FileName:           d.Name(),
			SizeBytes:          fi.Size(),
			AssociatedEntityID: EntityID(rel),
			EmbeddedTimestamp:  EmbeddedTimestamp(d.Name()),
			MimeType:           MimeType(d.Name()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk uploads root: %w", err)
	}

	s.log.Info("scan_complete", map[string]any{"root": root, "files": len(out)})
	return out, nil
}

// EntityID returns the integer name of the closest ancestor directory of the
// slash-separated relative path rel, or 0 if no ancestor qualifies.
func EntityID(rel string) int64 {
	dirs := strings.Split(filepath.ToSlash(rel), "/")
	dirs = dirs[:len(dirs)-1]
	for i := len(dirs) - 1; i >= 0; i-- {
		if id, ok := parseID(dirs[i]); ok {
			return id
		}
	}
	return 0
}

func parseID(name string) (int64, bool) {
	if name == "" {
		return 0, false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// EmbeddedTimestamp parses a leading run of exactly 13 digits as epoch
// milliseconds, returning 0 when the name has no such prefix.
func EmbeddedTimestamp(name string) int64 {
	m := timestampPrefix.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// DiskUsage totals the size and count of every regular file under root,
// regardless of extension.
func DiskUsage(root string) (int64, int, error) {
	var total int64
	var count int
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += fi.Size()
		count++
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	return total, count, nil
}
