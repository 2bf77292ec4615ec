package engine

import (
	"fmt"

	"github.com/wellsgz/fwledger/internal/types"
)

// alertSignalScore is the minimum single-signal score that upgrades LOG to ALERT.
const alertSignalScore = 2

type input struct {
	packet  types.Packet
	signals []types.DetectionSignal
	total   int
}

func (in input) hasSignalAtLeast(score int) bool {
	for _, s := range in.signals {
		if s.Score >= score {
			return true
		}
	}
	return false
}

type rule struct {
	name   string
	action types.Action
	match  func(input) bool
	score  func(input) int
	reason func(input) string
}

func totalScore(in input) int { return in.total }

func defaultRules(th Thresholds) []rule {
	return []rule{
		{
			name:   "known-malicious",
			action: types.ActionDrop,
			match:  func(in input) bool { return in.packet.IsMalicious() },
			score: func(in input) int {
				return max(in.total, th.Block)
			},
			reason: func(in input) string {
				return fmt.Sprintf("known attack type %s", in.packet.AttackType)
			},
		},
		{
			name:   "block-threshold",
			action: types.ActionDrop,
			match:  func(in input) bool { return in.total >= th.Block },
			score:  totalScore,
			reason: func(in input) string {
				return fmt.Sprintf("score %d >= block threshold %d", in.total, th.Block)
			},
		},
		{
			name:   "alert-critical-signal",
			action: types.ActionAlert,
			match: func(in input) bool {
				return in.total >= th.Alert && in.hasSignalAtLeast(alertSignalScore)
			},
			score: totalScore,
			reason: func(in input) string {
				return fmt.Sprintf("score %d >= alert threshold %d with critical signal", in.total, th.Alert)
			},
		},
		{
			name:   "alert-threshold",
			action: types.ActionLog,
			match:  func(in input) bool { return in.total >= th.Alert },
			score:  totalScore,
			reason: func(in input) string {
				return fmt.Sprintf("score %d >= alert threshold %d, no critical signal", in.total, th.Alert)
			},
		},
		{
			name:   "clean",
			action: types.ActionAccept,
			match:  func(in input) bool { return in.total == 0 },
			score:  totalScore,
			reason: func(input) string { return "no threat signals" },
		},
		{
			name:   "precautionary",
			action: types.ActionLog,
			match:  func(input) bool { return true },
			score:  totalScore,
			reason: func(in input) string {
				return fmt.Sprintf("precautionary log, score %d below alert threshold %d", in.total, th.Alert)
			},
		},
	}
}
