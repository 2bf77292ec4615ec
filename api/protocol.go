// Package api defines the IPC protocol for daemon-client communication.
package api

import (
	"encoding/json"

	"github.com/wellsgz/fwledger/internal/ledger"
	"github.com/wellsgz/fwledger/internal/stats"
	"github.com/wellsgz/fwledger/internal/storage"
	"github.com/wellsgz/fwledger/internal/types"
)

// MaxMessageSize bounds one newline-delimited message on the socket.
const MaxMessageSize = 16 << 20

// Request is a JSON-RPC style request.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     int             `json:"id"`
}

// Response is a JSON-RPC style response.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	ID     int             `json:"id"`
}

// Error represents an RPC error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// Method names
const (
	MethodProcessPacket = "process_packet"
	MethodGetStats      = "get_stats"
	MethodGetTop        = "get_top"
	MethodGetChain      = "get_chain"
	MethodVerifyChain   = "verify_chain"
	MethodGetStatus     = "get_status"
	MethodClearChain    = "clear_chain"
	MethodResetStats    = "reset_stats"
	MethodFlush         = "flush"
	MethodGetHistory    = "get_history"
)

// ========== Request Parameters ==========

// ProcessParams carries raw packets. With Batch set all packets share one
// block and any invalid packet rejects the request.
type ProcessParams struct {
	Packets []types.PacketSpec `json:"packets"`
	Batch   bool               `json:"batch,omitempty"`
}

// LimitParams bounds list results.
type LimitParams struct {
	Limit int `json:"limit"`
}

// ChainParams selects blocks with Index >= Since.
type ChainParams struct {
	Since     int  `json:"since"`
	Limit     int  `json:"limit"`
	Decisions bool `json:"decisions"`
}

// HistoryParams selects stored decisions by range preset (today, yesterday,
// month, last-month or <n>d).
type HistoryParams struct {
	Range string `json:"range"`
	Limit int    `json:"limit"`
}

// ========== Response Types ==========

// ProcessedPacket is the outcome for one submitted packet.
type ProcessedPacket struct {
	Decision   *types.DecisionResult `json:"decision,omitempty"`
	RiskLevel  string                `json:"risk_level,omitempty"`
	BlockIndex int                   `json:"block_index"`
	BlockHash  string                `json:"block_hash,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// ProcessResult lists outcomes in submission order.
type ProcessResult struct {
	Results []ProcessedPacket `json:"results"`
}

// StatsResult contains counters and the most recent decisions.
type StatsResult struct {
	Stats  stats.Snapshot         `json:"stats"`
	Recent []types.DecisionResult `json:"recent,omitempty"`
}

// TopResult contains source and protocol rollups ordered by packet count.
type TopResult struct {
	Sources   []stats.Rollup `json:"sources"`
	Protocols []stats.Rollup `json:"protocols"`
}

// ChainResult contains a window of the chain.
type ChainResult struct {
	Blocks []types.Block `json:"blocks"`
	Total  int           `json:"total"`
	Valid  bool          `json:"valid"`
}

// VerifyResult wraps a full verification report.
type VerifyResult struct {
	Report  ledger.VerifyReport `json:"report"`
	Indices []int               `json:"indices,omitempty"`
}

// HistoryResult contains stored decisions for a date range.
type HistoryResult struct {
	StartDate string                 `json:"start_date"`
	EndDate   string                 `json:"end_date"`
	Counts    []storage.ActionCount  `json:"counts"`
	Decisions []types.DecisionResult `json:"decisions,omitempty"`
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running         bool     `json:"running"`
	Uptime          string   `json:"uptime"`
	StartTime       string   `json:"start_time"`
	BlockThreshold  int      `json:"block_threshold"`
	AlertThreshold  int      `json:"alert_threshold"`
	Detectors       []string `json:"detectors"`
	MonitoredPorts  []int    `json:"monitored_ports"`
	BlacklistedIPs  []string `json:"blacklisted_ips"`
	ChainBlocks     int      `json:"chain_blocks"`
	LastIndex       int      `json:"last_index"`
	LastHash        string   `json:"last_hash"`
	PersistedIndex  int      `json:"persisted_index"`
	DataDir         string   `json:"data_dir"`
	SocketPath      string   `json:"socket_path"`
	MetricsListen   string   `json:"metrics_listen,omitempty"`
	PersistInterval string   `json:"persist_interval"`
	Version         string   `json:"version"`
}

// ClearResult contains the fresh genesis block.
type ClearResult struct {
	Genesis types.Block `json:"genesis"`
}

// FlushResult reports how many blocks were written.
type FlushResult struct {
	Written int `json:"written"`
}

// SuccessResult indicates a successful operation.
type SuccessResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
