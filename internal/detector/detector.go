// Package detector implements the stateless packet signal detectors and the
// analyzer that runs them.
package detector

import (
	"fmt"
	"strings"

	"github.com/wellsgz/fwledger/internal/types"
)

// Detector inspects a packet and optionally emits a signal.
// Implementations must be safe for concurrent use.
type Detector interface {
	Name() string
	Detect(p types.Packet) (types.DetectionSignal, bool)
}

// SizeDetector flags packets whose size falls outside [Min, Max].
type SizeDetector struct {
	Min int
	Max int
}

func (d SizeDetector) Name() string { return "size" }

func (d SizeDetector) Detect(p types.Packet) (types.DetectionSignal, bool) {
	size := p.Size()
	if size >= d.Min && size <= d.Max {
		return types.DetectionSignal{}, false
	}
	return types.DetectionSignal{
		Kind:        types.SignalSize,
		Score:       1,
		Description: fmt.Sprintf("packet size %d outside [%d, %d]", size, d.Min, d.Max),
	}, true
}

// WordDetector scans payloads for suspicious words, case-insensitively.
type WordDetector struct {
	words []string
}

// NewWordDetector lower-cases and deduplicates the configured words.
func NewWordDetector(words []string) WordDetector {
	seen := make(map[string]struct{}, len(words))
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		normalized = append(normalized, w)
	}
	return WordDetector{words: normalized}
}

func (d WordDetector) Name() string { return "words" }

// Detect scores one point per distinct matched word, uncapped.
func (d WordDetector) Detect(p types.Packet) (types.DetectionSignal, bool) {
	if p.Payload == "" || len(d.words) == 0 {
		return types.DetectionSignal{}, false
	}

	payload := strings.ToLower(p.Payload)
	var matches []string
	for _, w := range d.words {
		if strings.Contains(payload, w) {
			matches = append(matches, w)
		}
	}
	if len(matches) == 0 {
		return types.DetectionSignal{}, false
	}

	return types.DetectionSignal{
		Kind:        types.SignalWords,
		Score:       len(matches),
		Description: "suspicious words: " + strings.Join(matches, ", "),
		Matches:     matches,
	}, true
}

const (
	oversizeThreshold = 1500
	privilegedPortMax = 1024
)

// HeuristicDetector flags oversized packets and privileged destination ports.
type HeuristicDetector struct{}

func (HeuristicDetector) Name() string { return "heuristic" }

func (HeuristicDetector) Detect(p types.Packet) (types.DetectionSignal, bool) {
	score := 0
	var reasons []string
	if p.Size() > oversizeThreshold {
		score++
		reasons = append(reasons, fmt.Sprintf("oversized packet (%d bytes)", p.Size()))
	}
	if p.DstPort < privilegedPortMax {
		score++
		reasons = append(reasons, fmt.Sprintf("privileged destination port %d", p.DstPort))
	}
	if score == 0 {
		return types.DetectionSignal{}, false
	}
	return types.DetectionSignal{
		Kind:        types.SignalHeuristic,
		Score:       score,
		Description: "heuristic anomaly: " + strings.Join(reasons, "; "),
	}, true
}
