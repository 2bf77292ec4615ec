package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsgz/fwledger/internal/ledger"
	"github.com/wellsgz/fwledger/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testDecision(t *testing.T, n int, action types.Action) types.DecisionResult {
	t.Helper()
	ts := time.UnixMilli(1700000000000 + int64(n)*1000)
	p, err := types.NewPacket(fmt.Sprintf("10.0.0.%d", n+1), "10.0.1.1", 40000+n, 22, "tcp", "attack exploit", ts)
	require.NoError(t, err)
	return types.DecisionResult{
		Packet: p,
		Signals: []types.DetectionSignal{
			{Kind: types.SignalWords, Score: 2, Description: "suspicious words: attack, exploit", Matches: []string{"attack", "exploit"}},
			{Kind: types.SignalHeuristic, Score: 1, Description: "privileged port"},
		},
		TotalScore: 3,
		Action:     action,
		Reason:     "test",
		CreatedAt:  ts,
	}
}

func buildLedger(t *testing.T, n int) *ledger.Ledger {
	t.Helper()
	ts := time.UnixMilli(1700000000000)
	l := ledger.New(ledger.WithClock(func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}))
	for i := 0; i < n; i++ {
		_, err := l.Append([]types.DecisionResult{testDecision(t, i, types.AllActions[i%len(types.AllActions)])})
		require.NoError(t, err)
	}
	return l
}

func restore(t *testing.T, blocks []types.Block) *ledger.Ledger {
	t.Helper()
	l := ledger.New()
	l.StartRestoration()
	for _, b := range blocks {
		require.NoError(t, l.RestoreBlock(b))
	}
	require.NoError(t, l.FinishRestoration())
	return l
}

func TestOpenCreatesDatabase(t *testing.T) {
	db := openTestDB(t)
	assert.FileExists(t, db.Path())

	idx, err := db.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	src := buildLedger(t, 5)
	original := src.Snapshot()

	n, err := db.AppendBlocks(original)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	loaded, err := db.LoadBlocks()
	require.NoError(t, err)
	require.Len(t, loaded, len(original))

	for i := range original {
		assert.Equal(t, original[i].Hash, loaded[i].Hash, "block %d", i)
		assert.Equal(t, original[i].CanonicalString(), loaded[i].CanonicalString(), "block %d", i)
		require.Len(t, loaded[i].Decisions, len(original[i].Decisions))
		for j := range original[i].Decisions {
			assert.Equal(t, original[i].Decisions[j].CanonicalString(), loaded[i].Decisions[j].CanonicalString())
			assert.Equal(t, original[i].Decisions[j].Signals, loaded[i].Decisions[j].Signals)
		}
	}
}

func TestRestoredChainReproducesHashes(t *testing.T) {
	db := openTestDB(t)
	src := buildLedger(t, 4)
	_, err := db.AppendBlocks(src.Snapshot())
	require.NoError(t, err)

	loaded, err := db.LoadBlocks()
	require.NoError(t, err)
	restored := restore(t, loaded)

	assert.True(t, restored.IsValid())
	report := restored.Verify()
	assert.True(t, report.OK, "report: %+v", report)

	for _, b := range restored.Snapshot() {
		assert.Equal(t, ledger.Hash(b.Index, b.Decisions, b.PrevHash, b.Timestamp), b.Hash, "block %d", b.Index)
	}

	srcTail, _ := src.LastBlock()
	tail, _ := restored.LastBlock()
	assert.Equal(t, srcTail.Hash, tail.Hash)

	next, err := restored.Append([]types.DecisionResult{testDecision(t, 9, types.ActionDrop)})
	require.NoError(t, err)
	assert.Equal(t, srcTail.Index+1, next.Index)
	assert.Equal(t, srcTail.Hash, next.PrevHash)
}

func TestAppendBlocksSkipsStored(t *testing.T) {
	db := openTestDB(t)
	src := buildLedger(t, 2)

	n, err := db.AppendBlocks(src.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = src.Append([]types.DecisionResult{testDecision(t, 7, types.ActionAlert)})
	require.NoError(t, err)

	n, err = db.AppendBlocks(src.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	idx, err := db.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	loaded, err := db.LoadBlocks()
	require.NoError(t, err)
	assert.Len(t, loaded, 4)
	assert.Len(t, loaded[3].Decisions, 1)
}

func TestAppendBlocksRejectsConflictingHash(t *testing.T) {
	db := openTestDB(t)
	_, err := db.AppendBlocks(buildLedger(t, 3).Snapshot())
	require.NoError(t, err)

	other := ledger.New(ledger.WithClock(func() time.Time { return time.UnixMilli(1800000000000) }))
	_, err = other.Append([]types.DecisionResult{testDecision(t, 9, types.ActionDrop)})
	require.NoError(t, err)

	n, err := db.AppendBlocks(other.Snapshot())
	assert.Equal(t, 0, n)
	require.ErrorIs(t, err, ErrHashConflict)
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "block 0", pe.Target)

	loaded, err := db.LoadBlocks()
	require.NoError(t, err)
	assert.Len(t, loaded, 4)
}

func TestTamperedRowDetectedAfterReload(t *testing.T) {
	db := openTestDB(t)
	_, err := db.AppendBlocks(buildLedger(t, 4).Snapshot())
	require.NoError(t, err)

	_, err = db.db.Exec("UPDATE decisions SET score = 0 WHERE block_idx = 2")
	require.NoError(t, err)

	loaded, err := db.LoadBlocks()
	require.NoError(t, err)
	restored := restore(t, loaded)

	// Stored hashes still link, only recomputation catches the edit.
	assert.True(t, restored.IsValid())

	report := restored.Verify()
	assert.False(t, report.OK)
	assert.Equal(t, []int{2}, report.HashMismatches)

	var ie *ledger.IntegrityError
	require.True(t, errors.As(report.Err(), &ie))
	assert.Equal(t, []int{2}, ie.Indices)
}

func TestResetChain(t *testing.T) {
	db := openTestDB(t)
	_, err := db.AppendBlocks(buildLedger(t, 3).Snapshot())
	require.NoError(t, err)

	require.NoError(t, db.ResetChain())

	loaded, err := db.LoadBlocks()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	idx, err := db.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}

func TestCountDecisionsByAction(t *testing.T) {
	db := openTestDB(t)
	_, err := db.AppendBlocks(buildLedger(t, 6).Snapshot())
	require.NoError(t, err)

	start := time.UnixMilli(1700000000000)
	counts, err := db.CountDecisionsByAction(start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, counts, 4)

	got := make(map[string]int64)
	for _, c := range counts {
		got[c.Action] = c.Count
	}
	assert.Equal(t, int64(2), got["ACCEPT"])
	assert.Equal(t, int64(2), got["LOG"])
	assert.Equal(t, int64(1), got["ALERT"])
	assert.Equal(t, int64(1), got["DROP"])

	// Only the first two decisions fall inside this window.
	counts, err = db.CountDecisionsByAction(start, start.Add(1500*time.Millisecond))
	require.NoError(t, err)
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	assert.Equal(t, int64(2), total)
}

func TestYesterdayIncludesLastSecond(t *testing.T) {
	db := openTestDB(t)
	ref := time.Date(2025, 3, 15, 12, 0, 0, 0, time.Local)
	late := time.Date(2025, 3, 14, 23, 59, 59, 750*int(time.Millisecond), time.Local)

	d := testDecision(t, 0, types.ActionLog)
	d.CreatedAt = late
	l := ledger.New(ledger.WithClock(func() time.Time { return late }))
	_, err := l.Append([]types.DecisionResult{d})
	require.NoError(t, err)
	_, err = db.AppendBlocks(l.Snapshot())
	require.NoError(t, err)

	start, end, err := ParseRange(RangeYesterday, ref)
	require.NoError(t, err)
	decisions, err := db.QueryDecisions(start, end, 0)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, late.UnixMilli(), decisions[0].CreatedAt.UnixMilli())
}

func TestQueryDecisions(t *testing.T) {
	db := openTestDB(t)
	_, err := db.AppendBlocks(buildLedger(t, 5).Snapshot())
	require.NoError(t, err)

	start := time.UnixMilli(1700000000000)
	decs, err := db.QueryDecisions(start, start.Add(time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, decs, 3)
	assert.Equal(t, "10.0.0.5", decs[0].Packet.SrcAddr.String())
	assert.True(t, decs[0].CreatedAt.After(decs[1].CreatedAt))

	all, err := db.QueryDecisions(start, start.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)

	v, err := db.GetMetadata("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, db.SetMetadata("last_verified", "ok"))
	require.NoError(t, db.SetMetadata("last_verified", "failed"))

	v, err = db.GetMetadata("last_verified")
	require.NoError(t, err)
	assert.Equal(t, "failed", v)
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := wrap("insert", "block 3", cause)

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "insert", pe.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insert block 3: disk full", err.Error())
	assert.NoError(t, wrap("insert", "x", nil))
}
