// Package types defines shared data types used across the fwledger application.
package types

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// HeaderSize is the fixed header overhead added to every packet's payload length.
const HeaderSize = 20

// Packet is an immutable synthetic network packet.
type Packet struct {
	SrcAddr    netip.Addr
	DstAddr    netip.Addr
	SrcPort    uint16
	DstPort    uint16
	Protocol   string
	Payload    string
	AttackType string
	CreatedAt  time.Time
}

// PacketSpec holds raw, unvalidated packet fields as received from a packet source.
type PacketSpec struct {
	SrcAddr    string    `json:"src_addr"`
	DstAddr    string    `json:"dst_addr"`
	SrcPort    int       `json:"src_port"`
	DstPort    int       `json:"dst_port"`
	Protocol   string    `json:"protocol"`
	Payload    string    `json:"payload,omitempty"`
	AttackType string    `json:"attack_type,omitempty"`
	Malicious  bool      `json:"malicious,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// NewPacket validates a plain packet. A zero createdAt is replaced with time.Now().
func NewPacket(src, dst string, srcPort, dstPort int, protocol, payload string, createdAt time.Time) (Packet, error) {
	return PacketSpec{
		SrcAddr:   src,
		DstAddr:   dst,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Protocol:  protocol,
		Payload:   payload,
		CreatedAt: createdAt,
	}.Build()
}

// NewMaliciousPacket validates a packet tagged as a member of a known-malicious class.
func NewMaliciousPacket(src, dst string, srcPort, dstPort int, protocol, payload, attackType string, createdAt time.Time) (Packet, error) {
	return PacketSpec{
		SrcAddr:    src,
		DstAddr:    dst,
		SrcPort:    srcPort,
		DstPort:    dstPort,
		Protocol:   protocol,
		Payload:    payload,
		AttackType: attackType,
		Malicious:  true,
		CreatedAt:  createdAt,
	}.Build()
}

// Build validates the spec and returns the packet it describes.
func (s PacketSpec) Build() (Packet, error) {
	src, err := parseAddr("src_addr", s.SrcAddr)
	if err != nil {
		return Packet{}, err
	}
	dst, err := parseAddr("dst_addr", s.DstAddr)
	if err != nil {
		return Packet{}, err
	}
	if err := checkPort("src_port", s.SrcPort); err != nil {
		return Packet{}, err
	}
	if err := checkPort("dst_port", s.DstPort); err != nil {
		return Packet{}, err
	}

	proto := strings.ToUpper(strings.TrimSpace(s.Protocol))
	if proto == "" {
		return Packet{}, &ValidationError{Field: "protocol", Value: s.Protocol, Reason: "must not be empty"}
	}

	attack := strings.TrimSpace(s.AttackType)
	if s.Malicious && attack == "" {
		return Packet{}, &ValidationError{Field: "attack_type", Value: s.AttackType, Reason: "required for malicious packet"}
	}
	if !s.Malicious {
		attack = ""
	}

	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return Packet{
		SrcAddr:    src,
		DstAddr:    dst,
		SrcPort:    uint16(s.SrcPort),
		DstPort:    uint16(s.DstPort),
		Protocol:   proto,
		Payload:    s.Payload,
		AttackType: attack,
		CreatedAt:  createdAt,
	}, nil
}

// Spec returns the raw field form of the packet.
func (p Packet) Spec() PacketSpec {
	return PacketSpec{
		SrcAddr:    p.SrcAddr.String(),
		DstAddr:    p.DstAddr.String(),
		SrcPort:    int(p.SrcPort),
		DstPort:    int(p.DstPort),
		Protocol:   p.Protocol,
		Payload:    p.Payload,
		AttackType: p.AttackType,
		Malicious:  p.IsMalicious(),
		CreatedAt:  p.CreatedAt,
	}
}

// Size is the header constant plus the payload length in bytes.
func (p Packet) Size() int {
	return HeaderSize + len(p.Payload)
}

// IsMalicious reports whether the packet is tagged with a known attack type.
func (p Packet) IsMalicious() bool {
	return p.AttackType != ""
}

func (p Packet) String() string {
	s := fmt.Sprintf("%s:%d -> %s:%d %s size=%d", p.SrcAddr, p.SrcPort, p.DstAddr, p.DstPort, p.Protocol, p.Size())
	if p.IsMalicious() {
		s += " attack=" + p.AttackType
	}
	return s
}

func parseAddr(field, s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return netip.Addr{}, &ValidationError{Field: field, Value: s, Reason: "not a dotted-quad IPv4 address"}
	}
	return addr, nil
}

func checkPort(field string, port int) error {
	if port < 0 || port > 65535 {
		return &ValidationError{Field: field, Value: fmt.Sprint(port), Reason: "must be between 0 and 65535"}
	}
	return nil
}

func (p Packet) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Spec())
}

func (p *Packet) UnmarshalJSON(data []byte) error {
	var spec PacketSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	built, err := spec.Build()
	if err != nil {
		return err
	}
	*p = built
	return nil
}
