package types

import "encoding/json"

// SignalKind identifies which detector produced a signal.
type SignalKind string

const (
	SignalSize      SignalKind = "size"
	SignalWords     SignalKind = "words"
	SignalHeuristic SignalKind = "heuristic"
)

// ThreatLevel is a discretized severity.
type ThreatLevel int

const (
	ThreatSafe ThreatLevel = iota
	ThreatLow
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

var threatLevelNames = map[ThreatLevel]string{
	ThreatSafe:     "SAFE",
	ThreatLow:      "LOW",
	ThreatMedium:   "MEDIUM",
	ThreatHigh:     "HIGH",
	ThreatCritical: "CRITICAL",
}

func (l ThreatLevel) String() string {
	if n, ok := threatLevelNames[l]; ok {
		return n
	}
	return "UNKNOWN"
}

func (l ThreatLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// criticalScore is the score at which a signal counts as critical.
const criticalScore = 5

// DetectionSignal is a single detector finding.
type DetectionSignal struct {
	Kind        SignalKind `json:"kind"`
	Score       int        `json:"score"`
	Description string     `json:"description"`
	Matches     []string   `json:"matches,omitempty"`
}

// Critical reports whether the score is at or above the critical mark.
func (s DetectionSignal) Critical() bool {
	return s.Score >= criticalScore
}

// ThreatLevel buckets the score into fixed bands: 0, 1-2, 3-4, 5-7, 8+.
func (s DetectionSignal) ThreatLevel() ThreatLevel {
	switch {
	case s.Score <= 0:
		return ThreatSafe
	case s.Score <= 2:
		return ThreatLow
	case s.Score <= 4:
		return ThreatMedium
	case s.Score <= 7:
		return ThreatHigh
	default:
		return ThreatCritical
	}
}

// TotalScore sums signal scores without capping or deduplication.
func TotalScore(signals []DetectionSignal) int {
	total := 0
	for _, s := range signals {
		total += s.Score
	}
	return total
}
