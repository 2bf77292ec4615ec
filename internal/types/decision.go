package types

import (
	"strconv"
	"strings"
	"time"
)

// DecisionResult is the immutable outcome of evaluating one packet.
type DecisionResult struct {
	Packet     Packet            `json:"packet"`
	Signals    []DetectionSignal `json:"signals"`
	TotalScore int               `json:"total_score"`
	Action     Action            `json:"action"`
	Reason     string            `json:"reason"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CanonicalString is the stable textual form used for hashing and persistence:
// timestamp millis, source, destination, protocol, destination port, score,
// signal count and action name.
func (d DecisionResult) CanonicalString() string {
	return strings.Join([]string{
		strconv.FormatInt(d.CreatedAt.UnixMilli(), 10),
		d.Packet.SrcAddr.String(),
		d.Packet.DstAddr.String(),
		d.Packet.Protocol,
		strconv.Itoa(int(d.Packet.DstPort)),
		strconv.Itoa(d.TotalScore),
		strconv.Itoa(len(d.Signals)),
		d.Action.String(),
	}, ",")
}

// Blocked reports whether the decision stopped the packet.
func (d DecisionResult) Blocked() bool {
	return d.Action.Blocking()
}

// Clone returns a copy that shares no slices with d.
func (d DecisionResult) Clone() DecisionResult {
	if d.Signals != nil {
		signals := make([]DetectionSignal, len(d.Signals))
		for i, sig := range d.Signals {
			if sig.Matches != nil {
				sig.Matches = append([]string(nil), sig.Matches...)
			}
			signals[i] = sig
		}
		d.Signals = signals
	}
	return d
}

// CloneDecisions deep-copies a decision list. A nil list stays nil.
func CloneDecisions(decisions []DecisionResult) []DecisionResult {
	if decisions == nil {
		return nil
	}
	out := make([]DecisionResult, len(decisions))
	for i, d := range decisions {
		out[i] = d.Clone()
	}
	return out
}
