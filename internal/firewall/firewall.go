// Package firewall wires the detectors, decision engine, ledger and
// statistics into a single processing context.
package firewall

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wellsgz/fwledger/internal/config"
	"github.com/wellsgz/fwledger/internal/detector"
	"github.com/wellsgz/fwledger/internal/engine"
	"github.com/wellsgz/fwledger/internal/ledger"
	"github.com/wellsgz/fwledger/internal/stats"
	"github.com/wellsgz/fwledger/internal/types"
)

// Store persists ledger blocks.
type Store interface {
	AppendBlocks(blocks []types.Block) (int, error)
	LoadBlocks() ([]types.Block, error)
	ResetChain() error
}

// Option configures a Firewall.
type Option func(*options)

type options struct {
	now     func() time.Time
	metrics *stats.Metrics
}

// WithClock sets the timestamp source for decisions and blocks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithMetrics records every decision into m.
func WithMetrics(m *stats.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Firewall is the processing context. Process, Load and Clear are serialized.
type Firewall struct {
	mu        sync.Mutex
	cfg       config.Config
	analyzer  *detector.Analyzer
	engine    *engine.Engine
	ledger    *ledger.Ledger
	stats     *stats.Statistics
	metrics   *stats.Metrics
	persisted int // highest block index known to be stored, -1 for none
}

// New validates cfg and builds a firewall with an empty ledger.
func New(cfg *config.Config, opts ...Option) (*Firewall, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	blacklist, err := cfg.Blacklist()
	if err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	thresholds := engine.Thresholds{Block: cfg.BlockThreshold, Alert: cfg.AlertThreshold}
	return &Firewall{
		cfg:       *cfg,
		analyzer:  detector.NewAnalyzer(cfg.MinPacketSize, cfg.MaxPacketSize, cfg.SuspiciousWords),
		engine:    engine.New(thresholds, engine.WithClock(o.now), engine.WithBlacklist(blacklist)),
		ledger:    ledger.New(ledger.WithClock(o.now)),
		stats:     stats.New(cfg.HistorySize),
		metrics:   o.metrics,
		persisted: -1,
	}, nil
}

// Config returns a copy of the configuration the firewall was built with.
func (f *Firewall) Config() config.Config {
	return f.cfg
}

func (f *Firewall) Engine() *engine.Engine       { return f.engine }
func (f *Firewall) Ledger() *ledger.Ledger       { return f.ledger }
func (f *Firewall) Stats() *stats.Statistics     { return f.stats }
func (f *Firewall) Analyzer() *detector.Analyzer { return f.analyzer }

// Process evaluates one packet, records it in its own block and updates
// statistics.
func (f *Firewall) Process(p types.Packet) (types.DecisionResult, types.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, err := f.decide(p)
	if err != nil {
		return types.DecisionResult{}, types.Block{}, err
	}

	b, err := f.ledger.Append([]types.DecisionResult{d})
	if err != nil {
		return types.DecisionResult{}, types.Block{}, fmt.Errorf("appending block: %w", err)
	}
	f.record(d)

	return d, b, nil
}

// ProcessBatch evaluates packets in order and binds all decisions into one
// block. Nothing is recorded if any packet fails.
func (f *Firewall) ProcessBatch(packets []types.Packet) ([]types.DecisionResult, types.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	decisions := make([]types.DecisionResult, 0, len(packets))
	for i, p := range packets {
		d, err := f.decide(p)
		if err != nil {
			return nil, types.Block{}, fmt.Errorf("packet %d: %w", i, err)
		}
		decisions = append(decisions, d)
	}

	b, err := f.ledger.Append(decisions)
	if err != nil {
		return nil, types.Block{}, fmt.Errorf("appending block: %w", err)
	}
	for _, d := range decisions {
		f.record(d)
	}

	return decisions, b, nil
}

func (f *Firewall) decide(p types.Packet) (types.DecisionResult, error) {
	if f.engine.ShouldBlockImmediately(p) {
		slog.Debug("blacklisted packet dropped", "packet", p.String())
		return f.engine.ImmediateBlockResult(p), nil
	}
	return f.engine.Decide(p, f.analyzer.Analyze(p))
}

func (f *Firewall) record(d types.DecisionResult) {
	f.stats.Record(d)
	if f.metrics != nil {
		f.metrics.Observe(d, f.ledger.Size())
	}
}

// Verify recomputes and checks the whole chain.
func (f *Firewall) Verify() ledger.VerifyReport {
	report := f.ledger.Verify()
	if !report.OK && f.metrics != nil {
		f.metrics.IntegrityFailures.Inc()
	}
	return report
}

// Persisted returns the highest stored block index, or -1 if none.
func (f *Firewall) Persisted() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.persisted
}

// Save writes blocks not yet stored. It returns the number written.
func (f *Firewall) Save(store Store) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.saveLocked(store)
}

func (f *Firewall) saveLocked(store Store) (int, error) {
	blocks := f.ledger.BlocksSince(f.persisted + 1)
	if len(blocks) == 0 {
		return 0, nil
	}

	n, err := store.AppendBlocks(blocks)
	if err != nil {
		return 0, fmt.Errorf("saving blocks: %w", err)
	}
	f.persisted = blocks[len(blocks)-1].Index
	return n, nil
}

// Load replaces the in-memory chain with the stored one and replays its
// decisions into statistics. Stored hashes are trusted; call Verify to check
// them. An empty store yields a fresh genesis block.
func (f *Firewall) Load(store Store) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	blocks, err := store.LoadBlocks()
	if err != nil {
		return 0, fmt.Errorf("loading blocks: %w", err)
	}

	f.ledger.StartRestoration()
	for _, b := range blocks {
		if err := f.ledger.RestoreBlock(b); err != nil {
			return 0, fmt.Errorf("restoring block %d: %w", b.Index, err)
		}
	}
	if err := f.ledger.FinishRestoration(); err != nil {
		return 0, fmt.Errorf("finishing restoration: %w", err)
	}

	f.stats.Reset()
	for _, b := range blocks {
		for _, d := range b.Decisions {
			f.stats.Record(d)
		}
	}

	f.persisted = -1
	if n := len(blocks); n > 0 {
		f.persisted = blocks[n-1].Index
	}
	if f.metrics != nil {
		f.metrics.ChainBlocks.Set(float64(f.ledger.Size()))
	}

	return len(blocks), nil
}

// Clear resets the chain to a fresh genesis block and, when store is not
// nil, replaces the stored chain with it. If the stored chain cannot be
// reset the in-memory chain is left untouched.
func (f *Firewall) Clear(store Store) (types.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if store != nil {
		if err := store.ResetChain(); err != nil {
			return types.Block{}, fmt.Errorf("resetting stored chain: %w", err)
		}
	}

	g := f.ledger.Clear()
	f.persisted = -1
	if f.metrics != nil {
		f.metrics.ChainBlocks.Set(float64(f.ledger.Size()))
	}
	if store == nil {
		return g, nil
	}

	if _, err := f.saveLocked(store); err != nil {
		return g, err
	}
	return g, nil
}

// ResetStats zeroes counters, history and rollups. The ledger is untouched.
func (f *Firewall) ResetStats() {
	f.stats.Reset()
}
