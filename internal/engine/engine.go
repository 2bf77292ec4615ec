// Package engine turns detector signals into firewall decisions.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/wellsgz/fwledger/internal/types"
)

// ImmediateBlockScore is the sentinel score of a blacklist short-circuit decision.
const ImmediateBlockScore = 99

var (
	ErrInvalidPacket = errors.New("packet is missing or was not validated")
)

// Thresholds configures the score cut-offs. Block > Alert >= 1 is enforced by config.
type Thresholds struct {
	Block int
	Alert int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the decision timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithBlacklist sets the addresses that are dropped without analysis.
func WithBlacklist(addrs []netip.Addr) Option {
	return func(e *Engine) {
		for _, a := range addrs {
			e.blacklist[a] = struct{}{}
		}
	}
}

// Engine applies the ordered rule table.
type Engine struct {
	thresholds Thresholds
	blacklist  map[netip.Addr]struct{}
	rules      []rule
	now        func() time.Time
}

// New creates a decision engine.
func New(thresholds Thresholds, opts ...Option) *Engine {
	e := &Engine{
		thresholds: thresholds,
		blacklist:  make(map[netip.Addr]struct{}),
		now:        time.Now,
	}
	e.rules = defaultRules(thresholds)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the configured thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Decide evaluates the rules in order; the first match wins.
// A nil signal slice is treated as no signals.
func (e *Engine) Decide(p types.Packet, signals []types.DetectionSignal) (types.DecisionResult, error) {
	if !p.SrcAddr.IsValid() || !p.DstAddr.IsValid() {
		return types.DecisionResult{}, ErrInvalidPacket
	}

	in := input{
		packet:  p,
		signals: signals,
		total:   types.TotalScore(signals),
	}

	for _, r := range e.rules {
		if !r.match(in) {
			continue
		}
		slog.Debug("rule matched", "rule", r.name, "packet", p.String(), "score", in.total)
		return types.DecisionResult{
			Packet:     p,
			Signals:    append([]types.DetectionSignal(nil), signals...),
			TotalScore: r.score(in),
			Action:     r.action,
			Reason:     r.reason(in),
			CreatedAt:  e.now(),
		}, nil
	}

	// The fallback rule always matches.
	return types.DecisionResult{}, fmt.Errorf("no rule matched packet %s", p)
}

// ShouldBlockImmediately reports whether either address is blacklisted.
// Callers check this before running the analyzer.
func (e *Engine) ShouldBlockImmediately(p types.Packet) bool {
	if _, ok := e.blacklist[p.SrcAddr]; ok {
		return true
	}
	_, ok := e.blacklist[p.DstAddr]
	return ok
}

// ImmediateBlockResult builds the DROP decision for a blacklisted packet.
func (e *Engine) ImmediateBlockResult(p types.Packet) types.DecisionResult {
	return types.DecisionResult{
		Packet:     p,
		Signals:    []types.DetectionSignal{},
		TotalScore: ImmediateBlockScore,
		Action:     types.ActionDrop,
		Reason:     fmt.Sprintf("blacklisted address (%s -> %s)", p.SrcAddr, p.DstAddr),
		CreatedAt:  e.now(),
	}
}

// EvaluateRiskLevel buckets a score relative to the configured thresholds.
// This is distinct from DetectionSignal.ThreatLevel, which uses fixed bands.
func (e *Engine) EvaluateRiskLevel(score int) types.ThreatLevel {
	switch {
	case score <= 0:
		return types.ThreatSafe
	case score < e.thresholds.Alert:
		return types.ThreatLow
	case score < e.thresholds.Block:
		return types.ThreatMedium
	case score < e.thresholds.Block+3:
		return types.ThreatHigh
	default:
		return types.ThreatCritical
	}
}
