package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hasnin090/iq-sub003/internal/logging"
	"github.com/hasnin090/iq-sub003/internal/metrics"
	"github.com/hasnin090/iq-sub003/internal/model"
	"github.com/hasnin090/iq-sub003/internal/repository"
	"github.com/hasnin090/iq-sub003/internal/scanner"
)

// CleanupService audits and repairs transaction attachment references.
// Like SyncService it reports problems in its results.
type CleanupService interface {
	// CleanupDatabase clears references to decommissioned providers, foreign
	// URLs and local files that no longer exist.
	CleanupDatabase(ctx context.Context) model.CleanupResult

	// OrganizeExistingFiles moves local attachments into transactions/{id}/.
	OrganizeExistingFiles(ctx context.Context) model.OrganizeResult

	// GetSystemStatus reports reference health and disk usage without writing.
	GetSystemStatus(ctx context.Context) model.SystemStatus
}

// ProviderChecker recognises URLs of the storage provider currently in use.
type ProviderChecker interface {
	IsProviderURL(u string) bool
}

// CleanupOptions configures the auditor. Provider may be nil, in which case
// only decommissioned domains make a remote URL broken.
type CleanupOptions struct {
	UploadsRoot           string
	URLPrefix             string
	DecommissionedDomains []string
	Provider              ProviderChecker
	Now                   func() time.Time
}

type cleanupService struct {
	txns    repository.TransactionRepository
	opts    CleanupOptions
	metrics metrics.Recorder
	log     *logging.Logger
}

// NewCleanupService constructs a new CleanupService.
func NewCleanupService(txns repository.TransactionRepository, opts CleanupOptions, rec metrics.Recorder, log *logging.Logger) CleanupService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &cleanupService{txns: txns, opts: opts, metrics: rec, log: log}
}

type refKind int

const (
	refNone refKind = iota
	refBroken
	refRemote
	refMissing
	refLocal
)

// reference is the classification of one transaction's file_url.
type reference struct {
	kind refKind
	rel  string
	abs  string
}

func (c *cleanupService) classify(t model.Transaction) (reference, error) {
	if !t.HasFile() {
		return reference{kind: refNone}, nil
	}
	if scanner.IsRemoteURL(t.FileURL) {
		if c.isBrokenRemote(t.FileURL) {
			return reference{kind: refBroken}, nil
		}
		return reference{kind: refRemote}, nil
	}
	rel, ok := scanner.RelFromURL(c.opts.URLPrefix, t.FileURL)
	if !ok {
		return reference{kind: refMissing}, nil
	}
	abs := filepath.Join(c.opts.UploadsRoot, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return reference{kind: refMissing, rel: rel, abs: abs}, nil
		}
		return reference{}, fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return reference{kind: refMissing, rel: rel, abs: abs}, nil
	}
	return reference{kind: refLocal, rel: rel, abs: abs}, nil
}

func (c *cleanupService) isBrokenRemote(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range c.opts.DecommissionedDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	if c.opts.Provider != nil && !c.opts.Provider.IsProviderURL(raw) {
		return true
	}
	return false
}

// canonicalDir is the target directory for a transaction's attachments.
func canonicalDir(id int64) string {
	return fmt.Sprintf("transactions/%d/", id)
}

func isCanonical(rel string, id int64) bool {
	return strings.HasPrefix(rel, canonicalDir(id)) && !strings.Contains(strings.TrimPrefix(rel, canonicalDir(id)), "/")
}

func (c *cleanupService) CleanupDatabase(ctx context.Context) model.CleanupResult {
	ctx, span := tracer.Start(ctx, "CleanupService.CleanupDatabase")
	defer span.End()

	res := model.CleanupResult{ErrorMessages: []string{}}
	all, err := c.txns.List(ctx)
	if err != nil {
		res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("cleanup aborted: list transactions: %v", err))
		c.log.Error("cleanup_aborted", err, nil)
		return res
	}

	for _, t := range all {
		res.TotalTransactions++
		ref, err := c.classify(t)
		if err != nil {
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("transaction %d: %v", t.ID, err))
			continue
		}
		if ref.kind != refNone {
			res.TransactionsWithFiles++
		}
		switch ref.kind {
		case refBroken, refMissing:
			if ref.kind == refBroken {
				res.BrokenLinksFound++
			} else {
				res.MissingFilesFound++
			}
			if err := c.txns.ClearFile(ctx, t.ID); err != nil {
				res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("transaction %d: clear file reference: %v", t.ID, err))
				continue
			}
			res.BrokenLinksRemoved++
			c.metrics.LinkRepaired("cleared")
			c.log.Info("file_reference_cleared", map[string]any{"transaction_id": t.ID, "file_url": t.FileURL})
		case refRemote:
			res.ValidRemoteFiles++
		case refLocal:
			res.ValidLocalFiles++
			if !isCanonical(ref.rel, t.ID) {
				res.FilesNeedReorganization++
			}
		}
	}

	c.log.Info("cleanup_complete", map[string]any{
		"total":   res.TotalTransactions,
		"removed": res.BrokenLinksRemoved,
		"errors":  len(res.ErrorMessages),
	})
	span.SetAttributes(attribute.Int("cleanup.removed", res.BrokenLinksRemoved))
	return res
}

func (c *cleanupService) OrganizeExistingFiles(ctx context.Context) model.OrganizeResult {
	ctx, span := tracer.Start(ctx, "CleanupService.OrganizeExistingFiles")
	defer span.End()

	res := model.OrganizeResult{ErrorMessages: []string{}}
	all, err := c.txns.List(ctx)
	if err != nil {
		res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("organize aborted: list transactions: %v", err))
		return res
	}

	for _, t := range all {
		ref, err := c.classify(t)
		if err != nil {
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("transaction %d: %v", t.ID, err))
			continue
		}
		if ref.kind != refLocal || isCanonical(ref.rel, t.ID) {
			continue
		}
		if err := c.move(ctx, t, ref); err != nil {
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("transaction %d: %v", t.ID, err))
			continue
		}
		res.Organized++
		c.metrics.LinkRepaired("moved")
	}
	span.SetAttributes(attribute.Int("organize.moved", res.Organized))
	return res
}

// move copies the file into the canonical directory, repoints the row and
// removes the original. The row is updated before the original is deleted,
// so a crash in between leaves a stray unreferenced copy, never a dangling row.
func (c *cleanupService) move(ctx context.Context, t model.Transaction, ref reference) error {
	name := fmt.Sprintf("%d_%s", c.opts.Now().UnixMilli(), path.Base(ref.rel))
	dstRel := canonicalDir(t.ID) + name
	dst := filepath.Join(c.opts.UploadsRoot, filepath.FromSlash(dstRel))

	if err := copyFile(ref.abs, dst); err != nil {
		return fmt.Errorf("copy %s: %w", ref.rel, err)
	}

	fileType := t.FileType
	if fileType == "" {
		fileType = scanner.MimeType(name)
	}
	if err := c.txns.UpdateFile(ctx, t.ID, scanner.LocalURL(c.opts.URLPrefix, dstRel), fileType); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("update file reference: %w", err)
	}
	if err := os.Remove(ref.abs); err != nil {
		return fmt.Errorf("remove original %s: %w", ref.rel, err)
	}
	c.log.Info("file_reorganized", map[string]any{"transaction_id": t.ID, "from": ref.rel, "to": dstRel})
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

func (c *cleanupService) GetSystemStatus(ctx context.Context) model.SystemStatus {
	ctx, span := tracer.Start(ctx, "CleanupService.GetSystemStatus")
	defer span.End()

	var st model.SystemStatus
	all, err := c.txns.List(ctx)
	if err != nil {
		st.ErrorMessages = append(st.ErrorMessages, fmt.Sprintf("status aborted: list transactions: %v", err))
		return st
	}

	for _, t := range all {
		st.TotalTransactions++
		ref, err := c.classify(t)
		if err != nil {
			st.ErrorMessages = append(st.ErrorMessages, fmt.Sprintf("transaction %d: %v", t.ID, err))
			continue
		}
		if ref.kind != refNone {
			st.TransactionsWithFiles++
		}
		switch ref.kind {
		case refBroken:
			st.BrokenLinks++
		case refMissing:
			st.MissingFiles++
		case refRemote:
			st.ValidRemoteFiles++
		case refLocal:
			st.ValidLocalFiles++
			if !isCanonical(ref.rel, t.ID) {
				st.FilesNeedReorganization++
			}
		}
	}

	total, count, err := scanner.DiskUsage(c.opts.UploadsRoot)
	if err != nil {
		st.ErrorMessages = append(st.ErrorMessages, fmt.Sprintf("disk usage: %v", err))
	}
	st.DiskTotalBytes = total
	st.DiskFileCount = count
	return st
}
