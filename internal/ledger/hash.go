package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/wellsgz/fwledger/internal/types"
)

// Hash computes the block hash: SHA-256 over the decimal index, the previous
// hash, the timestamp in epoch millis and each decision's canonical string,
// in list order, rendered as lowercase hex.
func Hash(index int, decisions []types.DecisionResult, prevHash string, ts time.Time) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(index)))
	h.Write([]byte(prevHash))
	h.Write([]byte(strconv.FormatInt(ts.UnixMilli(), 10)))
	for _, d := range decisions {
		h.Write([]byte(d.CanonicalString()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// newBlock builds and hashes a block.
func newBlock(index int, decisions []types.DecisionResult, prevHash string, ts time.Time) types.Block {
	// Millisecond precision keeps the in-memory block identical to its persisted form.
	ts = time.UnixMilli(ts.UnixMilli())
	return types.Block{
		Index:     index,
		PrevHash:  prevHash,
		Hash:      Hash(index, decisions, prevHash, ts),
		Timestamp: ts,
		Decisions: decisions,
		Summary:   types.Summarize(decisions),
	}
}

func genesisBlock(ts time.Time) types.Block {
	return newBlock(0, []types.DecisionResult{}, types.GenesisPrevHash, ts)
}
