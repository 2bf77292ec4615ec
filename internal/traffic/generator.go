// Package traffic generates synthetic packets for exercising the daemon.
package traffic

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wellsgz/fwledger/internal/types"
)

var protocols = []string{"TCP", "TCP", "TCP", "UDP", "ICMP"}

var benignPayloads = []string{
	"",
	"GET /index.html HTTP/1.1",
	"SSH-2.0-OpenSSH_9.6",
	"ping",
	"hello world",
}

var attackTypes = []string{"SYN_FLOOD", "PORT_SCAN", "SQL_INJECTION", "BRUTE_FORCE"}

// Options tunes the generated mix. Rates are probabilities in [0, 1].
type Options struct {
	Seed           uint64
	Ports          []int
	Words          []string
	Blacklist      []string
	SuspiciousRate float64
	MaliciousRate  float64
	BlacklistRate  float64
	OversizeRate   float64
}

// Generator produces packet specs. It is not safe for concurrent use.
type Generator struct {
	opts Options
	rng  *rand.Rand
	now  func() time.Time
}

// New creates a generator. The same seed and options yield the same packets.
func New(opts Options) *Generator {
	if len(opts.Ports) == 0 {
		opts.Ports = []int{22, 80, 443}
	}
	words := make([]string, 0, len(opts.Words))
	for _, w := range opts.Words {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	opts.Words = words
	return &Generator{
		opts: opts,
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		now:  time.Now,
	}
}

// Next returns the next packet spec.
func (g *Generator) Next() types.PacketSpec {
	spec := types.PacketSpec{
		SrcAddr:   fmt.Sprintf("10.0.%d.%d", g.rng.IntN(4), 1+g.rng.IntN(254)),
		DstAddr:   fmt.Sprintf("10.1.0.%d", 1+g.rng.IntN(16)),
		SrcPort:   1024 + g.rng.IntN(64511),
		DstPort:   g.port(),
		Protocol:  protocols[g.rng.IntN(len(protocols))],
		Payload:   benignPayloads[g.rng.IntN(len(benignPayloads))],
		CreatedAt: g.now(),
	}

	if len(g.opts.Blacklist) > 0 && g.hit(g.opts.BlacklistRate) {
		spec.SrcAddr = g.opts.Blacklist[g.rng.IntN(len(g.opts.Blacklist))]
	}
	if len(g.opts.Words) > 0 && g.hit(g.opts.SuspiciousRate) {
		spec.Payload = g.suspiciousPayload()
	}
	if g.hit(g.opts.OversizeRate) {
		spec.Payload += strings.Repeat("A", 1500+g.rng.IntN(500))
	}
	if g.hit(g.opts.MaliciousRate) {
		spec.Malicious = true
		spec.AttackType = attackTypes[g.rng.IntN(len(attackTypes))]
	}
	return spec
}

// Batch returns n packet specs.
func (g *Generator) Batch(n int) []types.PacketSpec {
	out := make([]types.PacketSpec, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// port picks a monitored port three times out of four, otherwise an ephemeral one.
func (g *Generator) port() int {
	if g.rng.IntN(4) < 3 {
		return g.opts.Ports[g.rng.IntN(len(g.opts.Ports))]
	}
	return 1024 + g.rng.IntN(64511)
}

func (g *Generator) suspiciousPayload() string {
	n := 1 + g.rng.IntN(min(3, len(g.opts.Words)))
	picked := make([]string, 0, n)
	for _, i := range g.rng.Perm(len(g.opts.Words))[:n] {
		picked = append(picked, capitalize(g.opts.Words[i]))
	}
	return "payload: " + strings.Join(picked, " ")
}

// capitalize upper-cases the first rune of w.
func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}

func (g *Generator) hit(rate float64) bool {
	return rate > 0 && g.rng.Float64() < rate
}
