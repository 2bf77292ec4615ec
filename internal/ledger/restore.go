package ledger

import (
	"log/slog"

	"github.com/wellsgz/fwledger/internal/types"
)

// StartRestoration clears the in-memory chain and enters restoring mode.
// Append is rejected until FinishRestoration.
func (l *Ledger) StartRestoration() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.chain = nil
	l.nextIndex = 0
	l.restoring = true
}

// RestoreBlock appends a persisted block as-is. Its hash is trusted and not
// recomputed; use Verify to check it afterwards.
func (l *Ledger) RestoreBlock(b types.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.restoring {
		return ErrNotRestoring
	}
	l.appendLocked(b.Clone())
	return nil
}

// FinishRestoration leaves restoring mode. If nothing was restored a genesis
// block is created.
func (l *Ledger) FinishRestoration() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.restoring {
		return ErrNotRestoring
	}
	l.restoring = false

	if len(l.chain) == 0 {
		l.appendLocked(genesisBlock(l.now()))
	}

	slog.Info("ledger restored", "blocks", len(l.chain), "next_index", l.nextIndex)
	return nil
}

// Restoring reports whether a restoration session is open.
func (l *Ledger) Restoring() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.restoring
}
