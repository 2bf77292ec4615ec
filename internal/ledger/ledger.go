// Package ledger implements the append-only, hash-linked decision ledger.
package ledger

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wellsgz/fwledger/internal/types"
)

var (
	ErrRestoring    = errors.New("ledger is restoring")
	ErrNotRestoring = errors.New("ledger is not restoring")
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the block timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger is a single-writer hash chain of decision blocks.
// Appends and restoration calls take the write lock; readers share the read lock.
type Ledger struct {
	mu        sync.RWMutex
	chain     []types.Block
	nextIndex int
	restoring bool
	now       func() time.Time
}

// New creates an empty ledger. The genesis block is created on first append.
func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append binds decisions into a new block linked to the current tail.
// An empty decision list is a logged no-op and returns a zero block.
func (l *Ledger) Append(decisions []types.DecisionResult) (types.Block, error) {
	if len(decisions) == 0 {
		slog.Warn("ignoring append with no decisions")
		return types.Block{}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.restoring {
		return types.Block{}, ErrRestoring
	}

	if len(l.chain) == 0 {
		l.appendLocked(genesisBlock(l.now()))
	}

	tail := l.chain[len(l.chain)-1]
	b := newBlock(l.nextIndex, types.CloneDecisions(decisions), tail.Hash, l.now())
	l.appendLocked(b)

	return b.Clone(), nil
}

func (l *Ledger) appendLocked(b types.Block) {
	l.chain = append(l.chain, b)
	if b.Index+1 > l.nextIndex {
		l.nextIndex = b.Index + 1
	}
}

// IsValid checks previous-hash linkage of every adjacent pair. An empty chain is valid.
func (l *Ledger) IsValid() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(brokenLinks(l.chain)) == 0
}

func brokenLinks(chain []types.Block) []int {
	var broken []int
	for i := 1; i < len(chain); i++ {
		if chain[i].PrevHash != chain[i-1].Hash {
			broken = append(broken, chain[i].Index)
		}
	}
	return broken
}

// LastBlock returns the tail block, or false for an empty chain.
func (l *Ledger) LastBlock() (types.Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.chain) == 0 {
		return types.Block{}, false
	}
	return l.chain[len(l.chain)-1].Clone(), true
}

// Snapshot returns a defensive copy of the chain.
func (l *Ledger) Snapshot() []types.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return cloneBlocks(l.chain)
}

// BlocksSince returns copies of all blocks with Index >= index.
func (l *Ledger) BlocksSince(index int) []types.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.Block
	for _, b := range l.chain {
		if b.Index >= index {
			out = append(out, b.Clone())
		}
	}
	return out
}

// Size returns the number of blocks, including genesis.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.chain)
}

// Clear destroys history and resets the chain to a single fresh genesis block.
func (l *Ledger) Clear() types.Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	g := genesisBlock(l.now())
	l.chain = []types.Block{g}
	l.nextIndex = 1
	l.restoring = false

	slog.Info("ledger cleared", "genesis", g.Hash)
	return g
}

func cloneBlocks(blocks []types.Block) []types.Block {
	out := make([]types.Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}
