package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wellsgz/fwledger/internal/types"
)

// viewDashboard renders the main dashboard
func (m Model) viewDashboard() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.connected && m.stats != nil {
		leftWidth := m.width/2 - 2
		rightWidth := m.width - leftWidth - 4

		counters := PanelStyle.Width(leftWidth).Render(m.renderCounters())
		top := PanelStyle.Width(rightWidth).Render(m.renderTop())
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, counters, " ", top))
		b.WriteString("\n")

		recent := PanelStyle.Width(leftWidth).Render(m.renderRecent())
		chain := PanelStyle.Width(rightWidth).Render(m.renderChain())
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, recent, " ", chain))
		b.WriteString("\n")

		b.WriteString(PanelStyle.Width(m.width - 2).Render(m.renderHistory()))
	} else {
		errMsg := ErrorStyle.Render("⚠ Not connected to daemon")
		if m.lastError != "" {
			errMsg += "\n" + LabelStyle.Render(m.lastError)
		}
		b.WriteString(PanelStyle.Width(m.width - 2).Render(errMsg))
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())

	return b.String()
}

// renderHeader renders the top header bar
func (m Model) renderHeader() string {
	var parts []string

	parts = append(parts, TitleStyle.Render("fwledger"))

	if m.connected {
		parts = append(parts, ConnectedStyle.Render(SymbolConn+" Connected"))
	} else {
		parts = append(parts, DisconnectedStyle.Render(SymbolDisconn+" Disconnected"))
	}

	if st := m.daemonStatus; st != nil {
		if st.Uptime != "" {
			parts = append(parts, LabelStyle.Render("Uptime: ")+ValueStyle.Render(st.Uptime))
		}
		parts = append(parts, LabelStyle.Render("Thresholds: ")+
			ValueStyle.Render(fmt.Sprintf("alert %d / block %d", st.AlertThreshold, st.BlockThreshold)))
		parts = append(parts, LabelStyle.Render(SymbolLink+" ")+
			ValueStyle.Render(fmt.Sprintf("%d blocks", st.ChainBlocks))+" "+HashStyle.Render(ShortHash(st.LastHash)))
	}

	if v := m.lastVerify; v != nil {
		at := m.lastVerifyAt.Format("15:04:05")
		if v.Report.OK {
			parts = append(parts, AcceptStyle.Render("verified "+at))
		} else {
			parts = append(parts, DropStyle.Render(fmt.Sprintf("TAMPERED %v (%s)", v.Indices, at)))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Center, "  "+strings.Join(parts, "  │  "))
}

// renderCounters renders decision counters with rate bars
func (m Model) renderCounters() string {
	var b strings.Builder

	b.WriteString(PanelTitleStyle.Render("Decisions"))
	b.WriteString("\n\n")

	s := m.stats.Stats
	b.WriteString(fmt.Sprintf("  %s Total: %s\n\n",
		TotalStyle.Render(SymbolTotal),
		ValueStyle.Render(fmt.Sprintf("%d", s.Total))))

	rows := []struct {
		action types.Action
		count  int64
		rate   float64
	}{
		{types.ActionAccept, s.Accepted, s.AcceptRate},
		{types.ActionLog, s.Logged, s.LogRate},
		{types.ActionAlert, s.Alerted, s.AlertRate},
		{types.ActionDrop, s.Dropped, s.DropRate},
	}

	barWidth := m.width/2 - 34
	if barWidth < 10 {
		barWidth = 10
	}

	for _, r := range rows {
		style := ActionStyle(r.action.String())
		b.WriteString(fmt.Sprintf("  %s %-6s %8d %6.1f%% %s\n",
			style.Render(r.action.Symbol()),
			r.action.String(),
			r.count,
			r.rate,
			style.Render(Bar(r.rate/100, barWidth))))
	}

	return b.String()
}

// renderTop renders the busiest sources and protocols
func (m Model) renderTop() string {
	var b strings.Builder

	b.WriteString(PanelTitleStyle.Render("Top Sources"))
	b.WriteString("\n\n")

	if m.top == nil || len(m.top.Sources) == 0 {
		b.WriteString(LabelStyle.Render("No traffic"))
		return b.String()
	}

	for _, r := range m.top.Sources {
		b.WriteString(fmt.Sprintf("  %-15s %6d pkts  %s %s\n",
			r.Key, r.Packets,
			DropStyle.Render(fmt.Sprintf("%d blocked", r.Blocked)),
			LabelStyle.Render(fmt.Sprintf("score %d", r.TotalScore))))
	}

	if len(m.top.Protocols) > 0 {
		var protos []string
		for _, r := range m.top.Protocols {
			protos = append(protos, fmt.Sprintf("%s %d", r.Key, r.Packets))
		}
		b.WriteString("\n  " + LabelStyle.Render("Protocols: ") + ValueStyle.Render(strings.Join(protos, ", ")))
	}

	return b.String()
}

// renderRecent renders the newest decisions
func (m Model) renderRecent() string {
	var b strings.Builder

	b.WriteString(PanelTitleStyle.Render("Recent Decisions"))
	b.WriteString("\n\n")

	if len(m.stats.Recent) == 0 {
		b.WriteString(LabelStyle.Render("No decisions yet"))
		return b.String()
	}

	for _, d := range m.stats.Recent {
		style := ActionStyle(d.Action.String())
		b.WriteString(fmt.Sprintf("  %s %s %-6s %s:%d %s %3d\n",
			LabelStyle.Render(d.CreatedAt.Format("15:04:05")),
			style.Render(d.Action.Symbol()),
			style.Render(d.Action.String()),
			d.Packet.SrcAddr, d.Packet.DstPort,
			LabelStyle.Render(d.Packet.Protocol),
			d.TotalScore))
	}

	return b.String()
}

// renderChain renders the tail of the ledger
func (m Model) renderChain() string {
	var b strings.Builder

	title := PanelTitleStyle.Render("Ledger")
	if m.chain != nil {
		if m.chain.Valid {
			title += " " + AcceptStyle.Render("linked")
		} else {
			title += " " + DropStyle.Render("BROKEN")
		}
	}
	b.WriteString(title)
	b.WriteString("\n\n")

	if m.chain == nil || len(m.chain.Blocks) == 0 {
		b.WriteString(LabelStyle.Render("Empty chain"))
		return b.String()
	}

	for i := len(m.chain.Blocks) - 1; i >= 0; i-- {
		blk := m.chain.Blocks[i]
		desc := LabelStyle.Render("genesis")
		if !blk.IsGenesis() {
			desc = ActionStyle(blk.Summary.Action).Render(fmt.Sprintf("%-6s", blk.Summary.Action)) +
				LabelStyle.Render(fmt.Sprintf(" %s x%d", blk.Summary.SrcAddr, blk.Summary.Decisions))
		}
		b.WriteString(fmt.Sprintf("  #%-5d %s ← %s  %s\n",
			blk.Index,
			HashStyle.Render(ShortHash(blk.Hash)),
			LabelStyle.Render(ShortHash(blk.PrevHash)),
			desc))
	}

	return b.String()
}

// renderHistory renders stored action counts for the selected range
func (m Model) renderHistory() string {
	var b strings.Builder

	title := PanelTitleStyle.Render("History")
	if m.history != nil {
		title += " " + LabelStyle.Render(fmt.Sprintf("(%s to %s)", m.history.StartDate, m.history.EndDate))
	}
	b.WriteString(title)
	b.WriteString("\n\n")

	if m.history == nil {
		b.WriteString(LabelStyle.Render("No historical data"))
		return b.String()
	}

	var maxCount int64
	for _, c := range m.history.Counts {
		if c.Count > maxCount {
			maxCount = c.Count
		}
	}
	if maxCount == 0 {
		b.WriteString(LabelStyle.Render("No decisions stored in this range"))
		return b.String()
	}

	chartWidth := m.width - 30
	if chartWidth < 20 {
		chartWidth = 20
	}

	for _, c := range m.history.Counts {
		style := ActionStyle(c.Action)
		b.WriteString(fmt.Sprintf("  %s %s %s\n",
			ChartLabel.Render(fmt.Sprintf("%-8s", c.Action)),
			style.Render(Bar(float64(c.Count)/float64(maxCount), chartWidth)),
			LabelStyle.Render(fmt.Sprintf("%d", c.Count))))
	}

	return b.String()
}

// renderHelpBar renders the bottom help bar
func (m Model) renderHelpBar() string {
	keys := []string{
		HelpKeyStyle.Render("q") + HelpStyle.Render(" quit"),
		HelpKeyStyle.Render("d") + HelpStyle.Render(" range"),
		HelpKeyStyle.Render("v") + HelpStyle.Render(" verify"),
		HelpKeyStyle.Render("r") + HelpStyle.Render(" refresh"),
		HelpKeyStyle.Render("?") + HelpStyle.Render(" help"),
	}
	return "  " + strings.Join(keys, "  ")
}

// ShortHash abbreviates a hash for display.
func ShortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}

// Bar renders a filled bar for ratio in [0, 1] over width cells.
func Bar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	n := int(ratio * float64(width))
	if n == 0 && ratio > 0 {
		n = 1
	}
	return strings.Repeat(SymbolBar, n) + strings.Repeat(SymbolBarBg, width-n)
}
