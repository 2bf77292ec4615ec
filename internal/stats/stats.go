// Package stats aggregates decision counters, a bounded decision history and
// per-source and per-protocol rollups.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wellsgz/fwledger/internal/types"
)

// DefaultHistoryCap is the number of most recent decisions kept in memory.
const DefaultHistoryCap = 1000

// Rollup aggregates decisions sharing a key (source address or protocol).
type Rollup struct {
	Key        string `json:"key"`
	Packets    int64  `json:"packets"`
	Accepted   int64  `json:"accepted"`
	Blocked    int64  `json:"blocked"`
	TotalScore int64  `json:"total_score"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total      int64     `json:"total"`
	Accepted   int64     `json:"accepted"`
	Dropped    int64     `json:"dropped"`
	Alerted    int64     `json:"alerted"`
	Logged     int64     `json:"logged"`
	AcceptRate float64   `json:"accept_rate"`
	DropRate   float64   `json:"drop_rate"`
	AlertRate  float64   `json:"alert_rate"`
	LogRate    float64   `json:"log_rate"`
	HistoryLen int       `json:"history_len"`
	Sources    int       `json:"sources"`
	Protocols  int       `json:"protocols"`
	Since      time.Time `json:"since"`
}

// Statistics is safe for concurrent use. Counters are atomic for lock-free
// reads; every write, including counter bumps, holds the mutex.
type Statistics struct {
	total    atomic.Int64
	accepted atomic.Int64
	dropped  atomic.Int64
	alerted  atomic.Int64
	logged   atomic.Int64

	mu         sync.Mutex
	history    []types.DecisionResult
	historyCap int
	bySource   map[string]*Rollup
	byProtocol map[string]*Rollup
	since      time.Time
}

// New creates a statistics aggregator. A non-positive cap uses DefaultHistoryCap.
func New(historyCap int) *Statistics {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Statistics{
		historyCap: historyCap,
		history:    make([]types.DecisionResult, 0, historyCap),
		bySource:   make(map[string]*Rollup),
		byProtocol: make(map[string]*Rollup),
		since:      time.Now(),
	}
}

// Record counts one decision.
func (s *Statistics) Record(d types.DecisionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Counters move under the lock so Reset cannot split them from history.
	s.total.Add(1)
	switch d.Action {
	case types.ActionAccept:
		s.accepted.Add(1)
	case types.ActionDrop:
		s.dropped.Add(1)
	case types.ActionAlert:
		s.alerted.Add(1)
	case types.ActionLog:
		s.logged.Add(1)
	}

	if len(s.history) >= s.historyCap {
		// Evict the oldest entry.
		s.history = append(s.history[:0], s.history[1:]...)
	}
	s.history = append(s.history, d)

	bump(s.bySource, d.Packet.SrcAddr.String(), d)
	bump(s.byProtocol, d.Packet.Protocol, d)
}

func bump(m map[string]*Rollup, key string, d types.DecisionResult) {
	r, ok := m[key]
	if !ok {
		r = &Rollup{Key: key}
		m[key] = r
	}
	r.Packets++
	r.TotalScore += int64(d.TotalScore)
	switch {
	case d.Action == types.ActionAccept:
		r.Accepted++
	case d.Blocked():
		r.Blocked++
	}
}

// Snapshot returns the current counters and derived rates.
func (s *Statistics) Snapshot() Snapshot {
	snap := Snapshot{
		Total:    s.total.Load(),
		Accepted: s.accepted.Load(),
		Dropped:  s.dropped.Load(),
		Alerted:  s.alerted.Load(),
		Logged:   s.logged.Load(),
	}
	if snap.Total > 0 {
		total := float64(snap.Total)
		snap.AcceptRate = float64(snap.Accepted) / total * 100
		snap.DropRate = float64(snap.Dropped) / total * 100
		snap.AlertRate = float64(snap.Alerted) / total * 100
		snap.LogRate = float64(snap.Logged) / total * 100
	}

	s.mu.Lock()
	snap.HistoryLen = len(s.history)
	snap.Sources = len(s.bySource)
	snap.Protocols = len(s.byProtocol)
	snap.Since = s.since
	s.mu.Unlock()

	return snap
}

// History returns the retained decisions, oldest first.
func (s *Statistics) History() []types.DecisionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]types.DecisionResult(nil), s.history...)
}

// Recent returns up to n of the newest decisions, newest first.
func (s *Statistics) Recent(n int) []types.DecisionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]types.DecisionResult, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// TopSources returns up to n source addresses ordered by packet count.
func (s *Statistics) TopSources(n int) []Rollup {
	s.mu.Lock()
	defer s.mu.Unlock()

	return top(s.bySource, n)
}

// TopProtocols returns up to n protocols ordered by packet count.
func (s *Statistics) TopProtocols(n int) []Rollup {
	s.mu.Lock()
	defer s.mu.Unlock()

	return top(s.byProtocol, n)
}

func top(m map[string]*Rollup, n int) []Rollup {
	out := make([]Rollup, 0, len(m))
	for _, r := range m {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Packets != out[j].Packets {
			return out[i].Packets > out[j].Packets
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Reset clears all counters, history and rollups.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.Store(0)
	s.accepted.Store(0)
	s.dropped.Store(0)
	s.alerted.Store(0)
	s.logged.Store(0)

	s.history = make([]types.DecisionResult, 0, s.historyCap)
	s.bySource = make(map[string]*Rollup)
	s.byProtocol = make(map[string]*Rollup)
	s.since = time.Now()
}
