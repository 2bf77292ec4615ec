package detector

import "github.com/wellsgz/fwledger/internal/types"

// Analyzer runs every detector against a packet.
type Analyzer struct {
	detectors []Detector
}

// NewAnalyzer builds the standard size, word and heuristic detector set.
func NewAnalyzer(minSize, maxSize int, suspiciousWords []string) *Analyzer {
	return NewAnalyzerWith(
		SizeDetector{Min: minSize, Max: maxSize},
		NewWordDetector(suspiciousWords),
		HeuristicDetector{},
	)
}

// NewAnalyzerWith runs the given detectors in order.
func NewAnalyzerWith(detectors ...Detector) *Analyzer {
	return &Analyzer{detectors: detectors}
}

// Analyze returns the signals of all detectors that fired, in detector order.
func (a *Analyzer) Analyze(p types.Packet) []types.DetectionSignal {
	signals := make([]types.DetectionSignal, 0, len(a.detectors))
	for _, d := range a.detectors {
		if s, ok := d.Detect(p); ok {
			signals = append(signals, s)
		}
	}
	return signals
}

// Detectors returns the detector names in evaluation order.
func (a *Analyzer) Detectors() []string {
	names := make([]string, len(a.detectors))
	for i, d := range a.detectors {
		names[i] = d.Name()
	}
	return names
}
