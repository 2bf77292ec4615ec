package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wellsgz/fwledger/internal/types"
)

// Metrics exports the decision stream to Prometheus.
type Metrics struct {
	Decisions         *prometheus.CounterVec
	Scores            prometheus.Histogram
	ChainBlocks       prometheus.Gauge
	IntegrityFailures prometheus.Counter
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fwledger_decisions_total",
				Help: "Total number of firewall decisions by action and protocol.",
			},
			[]string{"action", "protocol"},
		),
		Scores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fwledger_decision_score",
				Help:    "Distribution of aggregated decision scores.",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 99},
			},
		),
		ChainBlocks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fwledger_chain_blocks",
				Help: "Number of blocks in the decision ledger, including genesis.",
			},
		),
		IntegrityFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fwledger_integrity_failures_total",
				Help: "Number of chain verifications that found broken or mismatched blocks.",
			},
		),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.Decisions,
		m.Scores,
		m.ChainBlocks,
		m.IntegrityFailures,
	)
}

// Observe records one decision and the resulting chain size.
func (m *Metrics) Observe(d types.DecisionResult, chainBlocks int) {
	m.Decisions.WithLabelValues(d.Action.String(), d.Packet.Protocol).Inc()
	m.Scores.Observe(float64(d.TotalScore))
	m.ChainBlocks.Set(float64(chainBlocks))
}
