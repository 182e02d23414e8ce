// Package matcher links orphaned upload files to transactions that have no
// attachment, by proximity of the file's embedded timestamp to the
// transaction date.
package matcher

import (
	"sort"

	"github.com/hasnin090/iq-sub003/internal/model"
	"github.com/hasnin090/iq-sub003/internal/scanner"
)

// WindowMillis is the exclusive upper bound on |timestamp - date| for a match.
const WindowMillis int64 = 24 * 60 * 60 * 1000

// Pair is one accepted link.
type Pair struct {
	File        model.FileDescriptor
	Transaction model.Transaction
	DiffMillis  int64
	FileURL     string
	FileType    string
}

// Result holds accepted pairs and whatever remained unmatched, both in
// processing order.
type Result struct {
	Pairs                 []Pair
	UnmatchedFiles        []model.FileDescriptor
	UnmatchedTransactions []model.Transaction
}

// Matcher derives file URLs relative to the uploads URL prefix.
type Matcher struct {
	urlPrefix string
}

// New returns a Matcher producing file URLs under urlPrefix.
func New(urlPrefix string) *Matcher {
	return &Matcher{urlPrefix: urlPrefix}
}

// Match assigns files to transactions greedily. Files are handled in
// ascending timestamp order (files without one count as 0, equal timestamps
// keep input order); each takes the closest remaining transaction, the
// earliest in pool order on ties, provided the distance is under
// WindowMillis. A transaction is linked at most once.
func (m *Matcher) Match(files []model.FileDescriptor, txns []model.Transaction) Result {
	ordered := append([]model.FileDescriptor(nil), files...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EmbeddedTimestamp < ordered[j].EmbeddedTimestamp
	})

	pool := append([]model.Transaction(nil), txns...)
	var res Result

	for _, f := range ordered {
		best := -1
		var bestDiff int64
		for i, tx := range pool {
			d := abs(f.EmbeddedTimestamp - tx.DateMillis())
			if best == -1 || d < bestDiff {
				best, bestDiff = i, d
			}
		}
		if best == -1 || bestDiff >= WindowMillis {
			res.UnmatchedFiles = append(res.UnmatchedFiles, f)
			continue
		}

		tx := pool[best]
		pool = append(pool[:best], pool[best+1:]...)
		res.Pairs = append(res.Pairs, Pair{
			File:        f,
			Transaction: tx,
			DiffMillis:  bestDiff,
			FileURL:     scanner.LocalURL(m.urlPrefix, f.RelPath),
			FileType:    f.MimeType,
		})
	}
	res.UnmatchedTransactions = pool
	return res
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
