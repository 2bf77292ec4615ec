package engine

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsgz/fwledger/internal/detector"
	"github.com/wellsgz/fwledger/internal/types"
)

var fixedTime = time.UnixMilli(1700000000000)

func newEngine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return fixedTime })}, opts...)
	return New(Thresholds{Block: 3, Alert: 2}, opts...)
}

func plain(t *testing.T, src string, dstPort int, payload string) types.Packet {
	t.Helper()
	p, err := types.NewPacket(src, "10.0.0.2", 40000, dstPort, "tcp", payload, fixedTime)
	require.NoError(t, err)
	return p
}

func sig(scores ...int) []types.DetectionSignal {
	out := make([]types.DetectionSignal, len(scores))
	for i, s := range scores {
		out[i] = types.DetectionSignal{Kind: types.SignalWords, Score: s}
	}
	return out
}

func TestDecideRules(t *testing.T) {
	e := newEngine()

	tests := []struct {
		name    string
		signals []types.DetectionSignal
		action  types.Action
		score   int
	}{
		{"no signals accepts", nil, types.ActionAccept, 0},
		{"empty signals accepts", sig(), types.ActionAccept, 0},
		{"below alert logs", sig(1), types.ActionLog, 1},
		{"alert with critical signal", sig(2), types.ActionAlert, 2},
		{"alert without critical signal", sig(1, 1), types.ActionLog, 2},
		{"block threshold drops", sig(1, 1, 1), types.ActionDrop, 3},
		{"large score drops", sig(12), types.ActionDrop, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Decide(plain(t, "10.0.0.1", 8080, ""), tt.signals)
			require.NoError(t, err)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.score, d.TotalScore)
			assert.Equal(t, fixedTime, d.CreatedAt)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestDecideMaliciousOverride(t *testing.T) {
	e := newEngine()
	p, err := types.NewMaliciousPacket("10.0.0.1", "10.0.0.2", 1, 8080, "udp", "", "DDOS", fixedTime)
	require.NoError(t, err)

	d, err := e.Decide(p, nil)
	require.NoError(t, err)
	assert.Equal(t, types.ActionDrop, d.Action)
	assert.Equal(t, 3, d.TotalScore)
	assert.Contains(t, d.Reason, "DDOS")

	d, err = e.Decide(p, sig(7))
	require.NoError(t, err)
	assert.Equal(t, types.ActionDrop, d.Action)
	assert.Equal(t, 7, d.TotalScore)
}

func TestDecideRejectsInvalidPacket(t *testing.T) {
	_, err := newEngine().Decide(types.Packet{}, nil)
	assert.True(t, errors.Is(err, ErrInvalidPacket))
}

func TestDecideCopiesSignals(t *testing.T) {
	signals := sig(1)
	d, err := newEngine().Decide(plain(t, "10.0.0.1", 8080, ""), signals)
	require.NoError(t, err)
	signals[0].Score = 9
	assert.Equal(t, 1, d.Signals[0].Score)
}

func TestTwoSuspiciousWordsAlert(t *testing.T) {
	e := newEngine()
	a := detector.NewAnalyzer(20, 65535, []string{"malware", "payload"})
	p := plain(t, "10.0.0.1", 8080, "malware payload inside")

	signals := a.Analyze(p)
	require.Len(t, signals, 1)
	assert.Equal(t, 2, signals[0].Score)

	d, err := e.Decide(p, signals)
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalScore)
	assert.Equal(t, types.ActionAlert, d.Action)
}

func TestEmptyPayloadAccepted(t *testing.T) {
	e := newEngine()
	a := detector.NewAnalyzer(20, 65535, []string{"malware"})
	p := plain(t, "10.0.0.1", 8080, "")

	d, err := e.Decide(p, a.Analyze(p))
	require.NoError(t, err)
	assert.Equal(t, types.ActionAccept, d.Action)
	assert.Equal(t, 0, d.TotalScore)
}

func TestImmediateBlock(t *testing.T) {
	bad := netip.MustParseAddr("6.6.6.6")
	e := newEngine(WithBlacklist([]netip.Addr{bad}))

	assert.True(t, e.ShouldBlockImmediately(plain(t, "6.6.6.6", 80, "")))
	assert.False(t, e.ShouldBlockImmediately(plain(t, "7.7.7.7", 80, "")))

	p, err := types.NewPacket("7.7.7.7", "6.6.6.6", 1, 80, "tcp", "", fixedTime)
	require.NoError(t, err)
	assert.True(t, e.ShouldBlockImmediately(p))

	d := e.ImmediateBlockResult(p)
	assert.Equal(t, types.ActionDrop, d.Action)
	assert.Equal(t, ImmediateBlockScore, d.TotalScore)
	assert.Empty(t, d.Signals)
}

func TestEvaluateRiskLevel(t *testing.T) {
	e := New(Thresholds{Block: 6, Alert: 3})

	tests := []struct {
		score int
		want  types.ThreatLevel
	}{
		{0, types.ThreatSafe},
		{1, types.ThreatLow},
		{2, types.ThreatLow},
		{3, types.ThreatMedium},
		{5, types.ThreatMedium},
		{6, types.ThreatHigh},
		{8, types.ThreatHigh},
		{9, types.ThreatCritical},
		{99, types.ThreatCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.EvaluateRiskLevel(tt.score), "score %d", tt.score)
	}
}
