package stats

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsgz/fwledger/internal/types"
)

func decision(t *testing.T, src, proto string, action types.Action, score int) types.DecisionResult {
	t.Helper()
	p, err := types.NewPacket(src, "10.9.9.9", 1000, 8080, proto, "", time.UnixMilli(1))
	require.NoError(t, err)
	return types.DecisionResult{Packet: p, Action: action, TotalScore: score, CreatedAt: time.UnixMilli(1)}
}

func TestRecordCounters(t *testing.T) {
	s := New(0)
	s.Record(decision(t, "10.0.0.1", "tcp", types.ActionAccept, 0))
	s.Record(decision(t, "10.0.0.1", "tcp", types.ActionDrop, 5))
	s.Record(decision(t, "10.0.0.2", "udp", types.ActionAlert, 2))
	s.Record(decision(t, "10.0.0.3", "udp", types.ActionLog, 1))

	snap := s.Snapshot()
	assert.Equal(t, int64(4), snap.Total)
	assert.Equal(t, int64(1), snap.Accepted)
	assert.Equal(t, int64(1), snap.Dropped)
	assert.Equal(t, int64(1), snap.Alerted)
	assert.Equal(t, int64(1), snap.Logged)
	assert.InDelta(t, 25.0, snap.DropRate, 0.001)
	assert.Equal(t, 4, snap.HistoryLen)
	assert.Equal(t, 3, snap.Sources)
	assert.Equal(t, 2, snap.Protocols)
}

func TestEmptySnapshotRates(t *testing.T) {
	snap := New(0).Snapshot()
	assert.Zero(t, snap.Total)
	assert.Zero(t, snap.AcceptRate)
}

func TestHistoryBounded(t *testing.T) {
	s := New(DefaultHistoryCap)
	for i := 0; i < 1500; i++ {
		d := decision(t, "10.0.0.1", "tcp", types.ActionAccept, 0)
		d.TotalScore = i
		s.Record(d)
	}

	history := s.History()
	require.Len(t, history, 1000)
	assert.Equal(t, 500, history[0].TotalScore)
	assert.Equal(t, 1499, history[999].TotalScore)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].TotalScore+1, history[i].TotalScore)
	}
	assert.Equal(t, int64(1500), s.Snapshot().Total)
}

func TestRecent(t *testing.T) {
	s := New(10)
	for i := 0; i < 5; i++ {
		d := decision(t, "10.0.0.1", "tcp", types.ActionLog, i)
		s.Record(d)
	}
	recent := s.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, 4, recent[0].TotalScore)
	assert.Equal(t, 3, recent[1].TotalScore)
	assert.Len(t, s.Recent(0), 5)
}

func TestTopRollups(t *testing.T) {
	s := New(0)
	for i := 0; i < 3; i++ {
		s.Record(decision(t, "10.0.0.5", "tcp", types.ActionDrop, 4))
	}
	s.Record(decision(t, "10.0.0.6", "udp", types.ActionAccept, 0))
	s.Record(decision(t, "10.0.0.7", "icmp", types.ActionAccept, 0))

	srcs := s.TopSources(2)
	require.Len(t, srcs, 2)
	assert.Equal(t, Rollup{Key: "10.0.0.5", Packets: 3, Blocked: 3, TotalScore: 12}, srcs[0])
	assert.Equal(t, "10.0.0.6", srcs[1].Key)

	protos := s.TopProtocols(0)
	require.Len(t, protos, 3)
	assert.Equal(t, "TCP", protos[0].Key)
	assert.Equal(t, "ICMP", protos[1].Key)
	assert.Equal(t, int64(1), protos[2].Accepted)
}

func TestConcurrentRecord(t *testing.T) {
	s := New(100)
	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p, _ := types.NewPacket(fmt.Sprintf("10.0.%d.1", w), "10.9.9.9", 1, 80, "tcp", "", time.UnixMilli(1))
				s.Record(types.DecisionResult{Packet: p, Action: types.ActionLog})
				_ = s.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(2000), snap.Total)
	assert.Equal(t, int64(2000), snap.Logged)
	assert.Equal(t, 100, snap.HistoryLen)
	assert.Equal(t, 10, snap.Sources)
}

func TestReset(t *testing.T) {
	s := New(0)
	s.Record(decision(t, "10.0.0.1", "tcp", types.ActionDrop, 3))
	s.Reset()

	snap := s.Snapshot()
	assert.Zero(t, snap.Total)
	assert.Zero(t, snap.Dropped)
	assert.Zero(t, snap.HistoryLen)
	assert.Empty(t, s.TopSources(5))
}

func TestResetDuringRecordKeepsCountersInStep(t *testing.T) {
	s := New(100000)
	d := decision(t, "10.0.0.1", "tcp", types.ActionAlert, 2)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Record(d)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.Reset()
		}
	}()
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(snap.HistoryLen), snap.Total)
	assert.Equal(t, snap.Total, snap.Alerted)
	var packets int64
	for _, r := range s.TopSources(10) {
		packets += r.Packets
	}
	assert.Equal(t, snap.Total, packets)
}

func TestMetricsObserve(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	m.Register(reg)

	m.Observe(decision(t, "10.0.0.1", "tcp", types.ActionDrop, 4), 7)
	m.Observe(decision(t, "10.0.0.1", "tcp", types.ActionDrop, 3), 8)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("DROP", "TCP")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.ChainBlocks))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Scores))
}
