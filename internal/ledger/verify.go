package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// VerifyReport summarizes a full chain verification.
type VerifyReport struct {
	OK             bool   `json:"ok"`
	Total          int    `json:"total"`
	LastIndex      int    `json:"last_index"`
	LastHash       string `json:"last_hash"`
	BrokenLinks    []int  `json:"broken_links,omitempty"`
	HashMismatches []int  `json:"hash_mismatches,omitempty"`
}

// IntegrityError lists the indices of blocks that failed verification.
type IntegrityError struct {
	Indices []int
}

func (e *IntegrityError) Error() string {
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = fmt.Sprint(idx)
	}
	return "chain integrity check failed at blocks " + strings.Join(parts, ", ")
}

// Err returns an IntegrityError for a failed report, nil otherwise.
func (r VerifyReport) Err() error {
	if r.OK {
		return nil
	}

	seen := make(map[int]struct{})
	var indices []int
	for _, idx := range append(append([]int(nil), r.BrokenLinks...), r.HashMismatches...) {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return &IntegrityError{Indices: indices}
}

// Verify checks previous-hash linkage like IsValid and additionally recomputes
// every block hash from its content. Nothing is repaired.
func (l *Ledger) Verify() VerifyReport {
	l.mu.RLock()
	defer l.mu.RUnlock()

	report := VerifyReport{
		Total:       len(l.chain),
		LastIndex:   -1,
		BrokenLinks: brokenLinks(l.chain),
	}
	if n := len(l.chain); n > 0 {
		report.LastIndex = l.chain[n-1].Index
		report.LastHash = l.chain[n-1].Hash
	}

	for _, b := range l.chain {
		if Hash(b.Index, b.Decisions, b.PrevHash, b.Timestamp) != b.Hash {
			report.HashMismatches = append(report.HashMismatches, b.Index)
		}
	}

	report.OK = len(report.BrokenLinks) == 0 && len(report.HashMismatches) == 0
	return report
}
