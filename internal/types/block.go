package types

import (
	"strconv"
	"strings"
	"time"
)

// GenesisPrevHash is the previous-hash value carried by the genesis block.
const GenesisPrevHash = "0"

// BlockSummary holds denormalized fields of a block's first decision for fast listing.
type BlockSummary struct {
	SrcAddr   string    `json:"src_addr,omitempty"`
	DstAddr   string    `json:"dst_addr,omitempty"`
	SrcPort   uint16    `json:"src_port,omitempty"`
	DstPort   uint16    `json:"dst_port,omitempty"`
	Protocol  string    `json:"protocol,omitempty"`
	Size      int       `json:"size,omitempty"`
	PacketAt  time.Time `json:"packet_at,omitempty"`
	Action    string    `json:"action,omitempty"`
	Decisions int       `json:"decisions"`
}

// Summarize derives the summary fields from the first decision.
func Summarize(decisions []DecisionResult) BlockSummary {
	if len(decisions) == 0 {
		return BlockSummary{}
	}
	first := decisions[0]
	return BlockSummary{
		SrcAddr:   first.Packet.SrcAddr.String(),
		DstAddr:   first.Packet.DstAddr.String(),
		SrcPort:   first.Packet.SrcPort,
		DstPort:   first.Packet.DstPort,
		Protocol:  first.Packet.Protocol,
		Size:      first.Packet.Size(),
		PacketAt:  first.Packet.CreatedAt,
		Action:    first.Action.String(),
		Decisions: len(decisions),
	}
}

// Block is an immutable ledger entry.
type Block struct {
	Index     int              `json:"index"`
	PrevHash  string           `json:"prev_hash"`
	Hash      string           `json:"hash"`
	Timestamp time.Time        `json:"timestamp"`
	Decisions []DecisionResult `json:"decisions,omitempty"`
	Summary   BlockSummary     `json:"summary"`
}

// IsGenesis reports whether this is the chain's first block.
func (b Block) IsGenesis() bool {
	return b.Index == 0
}

// CanonicalString is the stable textual join of the block's persisted fields.
func (b Block) CanonicalString() string {
	var packetAt int64
	if !b.Summary.PacketAt.IsZero() {
		packetAt = b.Summary.PacketAt.UnixMilli()
	}
	return strings.Join([]string{
		strconv.Itoa(b.Index),
		b.Summary.SrcAddr,
		b.Summary.DstAddr,
		strconv.Itoa(int(b.Summary.SrcPort)),
		strconv.Itoa(int(b.Summary.DstPort)),
		b.Summary.Protocol,
		strconv.Itoa(b.Summary.Size),
		strconv.FormatInt(b.Timestamp.UnixMilli(), 10),
		strconv.FormatInt(packetAt, 10),
		b.PrevHash,
		b.Hash,
		b.Summary.Action,
	}, ",")
}

// Clone returns a deep copy that shares no slices with b.
func (b Block) Clone() Block {
	b.Decisions = CloneDecisions(b.Decisions)
	return b
}
