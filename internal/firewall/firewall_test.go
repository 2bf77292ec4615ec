package firewall

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsgz/fwledger/internal/config"
	"github.com/wellsgz/fwledger/internal/engine"
	"github.com/wellsgz/fwledger/internal/stats"
	"github.com/wellsgz/fwledger/internal/storage"
	"github.com/wellsgz/fwledger/internal/types"
)

func testClock() func() time.Time {
	var mu sync.Mutex
	ts := time.UnixMilli(1700000000000)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts = ts.Add(time.Millisecond)
		return ts
	}
}

func newTestFirewall(t *testing.T, mutate func(*config.Config), opts ...Option) *Firewall {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(cfg)
	}
	fw, err := New(cfg, append([]Option{WithClock(testClock())}, opts...)...)
	require.NoError(t, err)
	return fw
}

func packet(t *testing.T, src string, dstPort int, payload string) types.Packet {
	t.Helper()
	p, err := types.NewPacket(src, "10.0.0.1", 40000, dstPort, "tcp", payload, time.UnixMilli(1700000000000))
	require.NoError(t, err)
	return p
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.BlockThreshold = cfg.AlertThreshold

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		dstPort    int
		payload    string
		wantAction types.Action
		wantScore  int
	}{
		{name: "clean packet accepted", src: "10.0.0.2", dstPort: 8080, payload: "", wantAction: types.ActionAccept, wantScore: 0},
		{name: "two words alert", src: "10.0.0.2", dstPort: 8080, payload: "attack exploit", wantAction: types.ActionAlert, wantScore: 2},
		{name: "privileged port logs", src: "10.0.0.2", dstPort: 22, payload: "", wantAction: types.ActionLog, wantScore: 1},
		{name: "words on privileged port drop", src: "10.0.0.2", dstPort: 22, payload: "attack exploit", wantAction: types.ActionDrop, wantScore: 3},
		{name: "blacklisted source drops", src: "192.168.1.100", dstPort: 8080, payload: "", wantAction: types.ActionDrop, wantScore: engine.ImmediateBlockScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw := newTestFirewall(t, func(c *config.Config) {
				c.BlacklistedIPs = []string{"192.168.1.100"}
			})

			d, b, err := fw.Process(packet(t, tt.src, tt.dstPort, tt.payload))
			require.NoError(t, err)

			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantScore, d.TotalScore)
			assert.Equal(t, 1, b.Index)
			require.Len(t, b.Decisions, 1)
			assert.Equal(t, 2, fw.Ledger().Size())

			snap := fw.Stats().Snapshot()
			assert.Equal(t, int64(1), snap.Total)
		})
	}
}

func TestProcessInvalidPacketRecordsNothing(t *testing.T) {
	fw := newTestFirewall(t, nil)

	_, _, err := fw.Process(types.Packet{})
	assert.True(t, errors.Is(err, engine.ErrInvalidPacket))
	assert.Equal(t, 0, fw.Ledger().Size())
	assert.Equal(t, int64(0), fw.Stats().Snapshot().Total)
}

func TestProcessBatch(t *testing.T) {
	fw := newTestFirewall(t, nil)

	packets := []types.Packet{
		packet(t, "10.0.0.2", 8080, ""),
		packet(t, "10.0.0.3", 22, ""),
		packet(t, "10.0.0.4", 8080, "malware"),
	}
	decisions, b, err := fw.ProcessBatch(packets)
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	assert.Len(t, b.Decisions, 3)
	assert.Equal(t, 1, b.Index)
	assert.Equal(t, int64(3), fw.Stats().Snapshot().Total)

	_, _, err = fw.ProcessBatch([]types.Packet{packets[0], {}})
	assert.Error(t, err)
	assert.Equal(t, 2, fw.Ledger().Size())
	assert.Equal(t, int64(3), fw.Stats().Snapshot().Total)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	fw := newTestFirewall(t, nil)
	for i := 0; i < 5; i++ {
		_, _, err := fw.Process(packet(t, fmt.Sprintf("10.0.0.%d", i+2), 22, "hack"))
		require.NoError(t, err)
	}

	n, err := fw.Save(db)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = fw.Save(db)
	require.NoError(t, err)
	assert.Zero(t, n)

	reloaded := newTestFirewall(t, nil)
	n, err = reloaded.Load(db)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	assert.True(t, reloaded.Verify().OK)
	want, _ := fw.Ledger().LastBlock()
	got, _ := reloaded.Ledger().LastBlock()
	assert.Equal(t, want.Hash, got.Hash)
	assert.Equal(t, fw.Stats().Snapshot().Dropped, reloaded.Stats().Snapshot().Dropped)
	assert.Equal(t, int64(5), reloaded.Stats().Snapshot().Total)

	_, b, err := reloaded.Process(packet(t, "10.0.0.9", 8080, ""))
	require.NoError(t, err)
	assert.Equal(t, 6, b.Index)
	assert.Equal(t, want.Hash, b.PrevHash)

	n, err = reloaded.Save(db)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadEmptyStoreCreatesGenesis(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	fw := newTestFirewall(t, nil)
	n, err := fw.Load(db)
	require.NoError(t, err)
	assert.Zero(t, n)

	g, ok := fw.Ledger().LastBlock()
	require.True(t, ok)
	assert.True(t, g.IsGenesis())
	assert.Equal(t, types.GenesisPrevHash, g.PrevHash)

	// The genesis block created on load is stored on the next save.
	n, err = fw.Save(db)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClearReplacesStoredChain(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	fw := newTestFirewall(t, nil)
	for i := 0; i < 3; i++ {
		_, _, err := fw.Process(packet(t, "10.0.0.2", 8080, ""))
		require.NoError(t, err)
	}
	_, err = fw.Save(db)
	require.NoError(t, err)

	g, err := fw.Clear(db)
	require.NoError(t, err)
	assert.True(t, g.IsGenesis())
	assert.Equal(t, 1, fw.Ledger().Size())

	blocks, err := db.LoadBlocks()
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, g.Hash, blocks[0].Hash)

	// Statistics survive a chain reset.
	assert.Equal(t, int64(3), fw.Stats().Snapshot().Total)
}

type failingResetStore struct {
	*storage.DB
}

func (s failingResetStore) ResetChain() error {
	return errors.New("disk full")
}

func TestClearKeepsChainWhenStoreResetFails(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	fw := newTestFirewall(t, nil)
	for i := 0; i < 3; i++ {
		_, _, err := fw.Process(packet(t, "10.0.0.2", 8080, ""))
		require.NoError(t, err)
	}
	_, err = fw.Save(db)
	require.NoError(t, err)
	before := fw.Ledger().Snapshot()

	_, err = fw.Clear(failingResetStore{db})
	require.Error(t, err)
	assert.Equal(t, before, fw.Ledger().Snapshot())
	assert.Equal(t, 3, fw.Persisted())

	_, b, err := fw.Process(packet(t, "10.0.0.3", 8080, ""))
	require.NoError(t, err)
	n, err := fw.Save(db)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	blocks, err := db.LoadBlocks()
	require.NoError(t, err)
	require.Len(t, blocks, 5)
	assert.Equal(t, b.Hash, blocks[4].Hash)
}

func TestSaveFailsOnDivergedStore(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	stored := newTestFirewall(t, nil)
	_, _, err = stored.Process(packet(t, "10.0.0.2", 8080, ""))
	require.NoError(t, err)
	_, err = stored.Save(db)
	require.NoError(t, err)

	fw := newTestFirewall(t, nil)
	_, _, err = fw.Process(packet(t, "10.0.0.9", 22, "hack"))
	require.NoError(t, err)

	_, err = fw.Save(db)
	require.ErrorIs(t, err, storage.ErrHashConflict)
	assert.Equal(t, -1, fw.Persisted())
}

func TestResetStatsKeepsLedger(t *testing.T) {
	fw := newTestFirewall(t, nil)
	_, _, err := fw.Process(packet(t, "10.0.0.2", 8080, ""))
	require.NoError(t, err)

	fw.ResetStats()
	assert.Equal(t, int64(0), fw.Stats().Snapshot().Total)
	assert.Equal(t, 2, fw.Ledger().Size())
}

func TestMetricsObserved(t *testing.T) {
	m := stats.NewMetrics()
	fw := newTestFirewall(t, nil, WithMetrics(m))

	_, _, err := fw.Process(packet(t, "10.0.0.2", 8080, "attack exploit"))
	require.NoError(t, err)
	_, _, err = fw.Process(packet(t, "10.0.0.3", 8080, ""))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("ALERT", "TCP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("ACCEPT", "TCP")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChainBlocks))

	assert.True(t, fw.Verify().OK)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.IntegrityFailures))
}

func TestConcurrentProcess(t *testing.T) {
	fw := newTestFirewall(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, _, err := fw.Process(packet(t, fmt.Sprintf("10.0.%d.%d", i, j+1), 8080, ""))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 201, fw.Ledger().Size())
	assert.Equal(t, int64(200), fw.Stats().Snapshot().Total)
	assert.True(t, fw.Verify().OK)
}
