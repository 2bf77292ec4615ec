// Package storage provides SQLite-based persistence for the decision ledger.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wellsgz/fwledger/internal/types"
)

// DB wraps SQLite database operations.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// schema defines the database tables.
const schema = `
-- One row per ledger block
CREATE TABLE IF NOT EXISTS blocks (
    idx INTEGER PRIMARY KEY,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL,
    timestamp INTEGER NOT NULL,  -- epoch millis
    src_addr TEXT NOT NULL DEFAULT '',
    dst_addr TEXT NOT NULL DEFAULT '',
    src_port INTEGER NOT NULL DEFAULT 0,
    dst_port INTEGER NOT NULL DEFAULT 0,
    protocol TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    packet_at INTEGER NOT NULL DEFAULT 0,  -- epoch millis, 0 for genesis
    action TEXT NOT NULL DEFAULT '',
    decisions INTEGER NOT NULL DEFAULT 0
);

-- Decisions recorded in each block, in list order
CREATE TABLE IF NOT EXISTS decisions (
    block_idx INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    created_at INTEGER NOT NULL,  -- epoch millis
    src_addr TEXT NOT NULL,
    dst_addr TEXT NOT NULL,
    src_port INTEGER NOT NULL,
    dst_port INTEGER NOT NULL,
    protocol TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '',
    attack_type TEXT NOT NULL DEFAULT '',
    packet_at INTEGER NOT NULL,
    score INTEGER NOT NULL,
    action TEXT NOT NULL,
    reason TEXT NOT NULL,
    signals TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (block_idx, seq)
);

-- Metadata
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_action ON decisions(action);
`

// Open opens or creates the SQLite database.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, wrap("create", dataDir, err)
	}

	dbPath := filepath.Join(dataDir, "ledger.db")

	// WAL mode lets the dashboard read while the persister writes
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, wrap("open", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, wrap("apply schema", dbPath, err)
	}

	slog.Info("database opened", "path", dbPath)

	return &DB{
		db:   db,
		path: dbPath,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d.db != nil {
		return wrap("close", d.path, d.db.Close())
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// AppendBlocks stores blocks and their decisions in one transaction. Blocks
// already stored with the same hash are skipped; a stored block with the same
// index but another hash fails the whole batch with ErrHashConflict. It
// returns the number written.
func (d *DB) AppendBlocks(blocks []types.Block) (int, error) {
	if len(blocks) == 0 {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return 0, wrap("begin", "blocks", err)
	}
	defer tx.Rollback()

	written := 0
	for _, b := range blocks {
		res, err := tx.Exec(`
			INSERT OR IGNORE INTO blocks (idx, prev_hash, hash, timestamp, src_addr, dst_addr,
				src_port, dst_port, protocol, size, packet_at, action, decisions)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.Index, b.PrevHash, b.Hash, b.Timestamp.UnixMilli(),
			b.Summary.SrcAddr, b.Summary.DstAddr, b.Summary.SrcPort, b.Summary.DstPort,
			b.Summary.Protocol, b.Summary.Size, millis(b.Summary.PacketAt), b.Summary.Action,
			len(b.Decisions))
		if err != nil {
			return 0, wrap("insert", fmt.Sprintf("block %d", b.Index), err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var stored string
			if err := tx.QueryRow(`SELECT hash FROM blocks WHERE idx = ?`, b.Index).Scan(&stored); err != nil {
				return 0, wrap("select", fmt.Sprintf("block %d", b.Index), err)
			}
			if stored != b.Hash {
				return 0, wrap("insert", fmt.Sprintf("block %d", b.Index), ErrHashConflict)
			}
			continue
		}

		for seq, dec := range b.Decisions {
			signals, err := json.Marshal(dec.Signals)
			if err != nil {
				return 0, wrap("encode signals", fmt.Sprintf("block %d decision %d", b.Index, seq), err)
			}
			p := dec.Packet
			_, err = tx.Exec(`
				INSERT INTO decisions (block_idx, seq, created_at, src_addr, dst_addr, src_port, dst_port,
					protocol, payload, attack_type, packet_at, score, action, reason, signals)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, b.Index, seq, dec.CreatedAt.UnixMilli(), p.SrcAddr.String(), p.DstAddr.String(),
				p.SrcPort, p.DstPort, p.Protocol, p.Payload, p.AttackType, millis(p.CreatedAt),
				dec.TotalScore, dec.Action.String(), dec.Reason, string(signals))
			if err != nil {
				return 0, wrap("insert", fmt.Sprintf("block %d decision %d", b.Index, seq), err)
			}
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, wrap("commit", "blocks", err)
	}
	return written, nil
}

// LoadBlocks returns every stored block in index order with its decisions.
func (d *DB) LoadBlocks() ([]types.Block, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`
		SELECT idx, prev_hash, hash, timestamp, src_addr, dst_addr, src_port, dst_port,
			protocol, size, packet_at, action, decisions
		FROM blocks
		ORDER BY idx
	`)
	if err != nil {
		return nil, wrap("query", "blocks", err)
	}
	defer rows.Close()

	var blocks []types.Block
	pos := make(map[int]int)
	for rows.Next() {
		var (
			b            types.Block
			ts, packetAt int64
		)
		if err := rows.Scan(&b.Index, &b.PrevHash, &b.Hash, &ts,
			&b.Summary.SrcAddr, &b.Summary.DstAddr, &b.Summary.SrcPort, &b.Summary.DstPort,
			&b.Summary.Protocol, &b.Summary.Size, &packetAt, &b.Summary.Action, &b.Summary.Decisions); err != nil {
			return nil, wrap("scan", "blocks", err)
		}
		b.Timestamp = time.UnixMilli(ts)
		b.Summary.PacketAt = fromMillis(packetAt)
		b.Decisions = []types.DecisionResult{}
		pos[b.Index] = len(blocks)
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("scan", "blocks", err)
	}

	decRows, err := d.db.Query(`
		SELECT block_idx, created_at, src_addr, dst_addr, src_port, dst_port, protocol,
			payload, attack_type, packet_at, score, action, reason, signals
		FROM decisions
		ORDER BY block_idx, seq
	`)
	if err != nil {
		return nil, wrap("query", "decisions", err)
	}
	defer decRows.Close()

	for decRows.Next() {
		blockIdx, dec, err := scanDecision(decRows)
		if err != nil {
			return nil, err
		}
		i, ok := pos[blockIdx]
		if !ok {
			return nil, wrap("load", fmt.Sprintf("block %d", blockIdx), errors.New("decision references missing block"))
		}
		blocks[i].Decisions = append(blocks[i].Decisions, dec)
	}
	if err := decRows.Err(); err != nil {
		return nil, wrap("scan", "decisions", err)
	}

	return blocks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(row scanner) (int, types.DecisionResult, error) {
	var (
		blockIdx                    int
		createdAt, packetAt         int64
		spec                        types.PacketSpec
		score                       int
		action, reason, signalsJSON string
	)
	if err := row.Scan(&blockIdx, &createdAt, &spec.SrcAddr, &spec.DstAddr, &spec.SrcPort, &spec.DstPort,
		&spec.Protocol, &spec.Payload, &spec.AttackType, &packetAt, &score, &action, &reason, &signalsJSON); err != nil {
		return 0, types.DecisionResult{}, wrap("scan", "decisions", err)
	}
	target := fmt.Sprintf("block %d decision", blockIdx)

	spec.Malicious = spec.AttackType != ""
	spec.CreatedAt = time.UnixMilli(packetAt)
	packet, err := spec.Build()
	if err != nil {
		return 0, types.DecisionResult{}, wrap("decode packet", target, err)
	}

	act, err := types.ParseAction(action)
	if err != nil {
		return 0, types.DecisionResult{}, wrap("decode action", target, err)
	}

	var signals []types.DetectionSignal
	if err := json.Unmarshal([]byte(signalsJSON), &signals); err != nil {
		return 0, types.DecisionResult{}, wrap("decode signals", target, err)
	}
	if signals == nil {
		signals = []types.DetectionSignal{}
	}

	return blockIdx, types.DecisionResult{
		Packet:     packet,
		Signals:    signals,
		TotalScore: score,
		Action:     act,
		Reason:     reason,
		CreatedAt:  time.UnixMilli(createdAt),
	}, nil
}

// LastIndex returns the highest stored block index, or -1 if none.
func (d *DB) LastIndex() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var idx int
	err := d.db.QueryRow("SELECT COALESCE(MAX(idx), -1) FROM blocks").Scan(&idx)
	if err != nil {
		return 0, wrap("query", "blocks", err)
	}
	return idx, nil
}

// ResetChain deletes all stored blocks and decisions.
func (d *DB) ResetChain() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return wrap("begin", "blocks", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM decisions"); err != nil {
		return wrap("delete", "decisions", err)
	}
	if _, err := tx.Exec("DELETE FROM blocks"); err != nil {
		return wrap("delete", "blocks", err)
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit", "blocks", err)
	}

	slog.Info("stored chain reset", "path", d.path)
	return nil
}

// ActionCount is the number of decisions with a given action.
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// CountDecisionsByAction counts stored decisions created within [start, end].
// Every action is present in the result, in ascending severity.
func (d *DB) CountDecisionsByAction(start, end time.Time) ([]ActionCount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`
		SELECT action, COUNT(*)
		FROM decisions
		WHERE created_at >= ? AND created_at <= ?
		GROUP BY action
	`, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, wrap("query", "decisions", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			action string
			n      int64
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, wrap("scan", "decisions", err)
		}
		counts[action] = n
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("scan", "decisions", err)
	}

	result := make([]ActionCount, 0, len(types.AllActions))
	for _, a := range types.AllActions {
		result = append(result, ActionCount{Action: a.String(), Count: counts[a.String()]})
	}
	return result, nil
}

// QueryDecisions returns stored decisions created within [start, end], newest
// first, up to limit rows (0 means no limit).
func (d *DB) QueryDecisions(start, end time.Time, limit int) ([]types.DecisionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(`
		SELECT block_idx, created_at, src_addr, dst_addr, src_port, dst_port, protocol,
			payload, attack_type, packet_at, score, action, reason, signals
		FROM decisions
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at DESC, block_idx DESC, seq DESC
		LIMIT ?
	`, start.UnixMilli(), end.UnixMilli(), limit)
	if err != nil {
		return nil, wrap("query", "decisions", err)
	}
	defer rows.Close()

	var result []types.DecisionResult
	for rows.Next() {
		_, dec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, dec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("scan", "decisions", err)
	}
	return result, nil
}

// GetMetadata retrieves a metadata value.
func (d *DB) GetMetadata(key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var value string
	err := d.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, wrap("get metadata", key, err)
}

// SetMetadata sets a metadata value.
func (d *DB) SetMetadata(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return wrap("set metadata", key, err)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
