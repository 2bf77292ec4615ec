package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// viewRangePicker renders the history range picker modal
func (m Model) viewRangePicker() string {
	var b strings.Builder

	b.WriteString(ModalTitleStyle.Render("Select History Range"))
	b.WriteString("\n\n")

	for i, preset := range rangePresets {
		cursor := "  "
		style := UnselectedStyle
		if i == m.presetCursor {
			cursor = "▶ "
			style = SelectedStyle
		}

		line := fmt.Sprintf("%s%s", cursor, style.Render(preset.label))
		if i == m.rangeIndex {
			line += LabelStyle.Render(" (current)")
		}

		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ navigate  Enter select  Esc cancel"))

	return m.centerModal(b.String())
}

// viewHelp renders the help modal
func (m Model) viewHelp() string {
	var b strings.Builder

	b.WriteString(ModalTitleStyle.Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")

	helpItems := []struct{ key, desc string }{
		{"q", "Quit"},
		{"d", "Change history range"},
		{"v", "Verify chain hashes"},
		{"r", "Refresh data"},
		{"?", "Toggle help"},
		{"Esc", "Close modal"},
	}

	for _, item := range helpItems {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			HelpKeyStyle.Render(fmt.Sprintf("%-6s", item.key)),
			HelpStyle.Render(item.desc)))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press Esc or ? to close"))

	return m.centerModal(b.String())
}

// centerModal frames content and pads it to the middle of the screen.
func (m Model) centerModal(content string) string {
	modal := ModalStyle.Render(content)

	padLeft := max((m.width-lipgloss.Width(modal))/2, 0)
	padTop := max((m.height-lipgloss.Height(modal))/2, 0)

	var out strings.Builder
	out.WriteString(strings.Repeat("\n", padTop))
	for _, line := range strings.Split(modal, "\n") {
		out.WriteString(strings.Repeat(" ", padLeft))
		out.WriteString(line)
		out.WriteString("\n")
	}
	return out.String()
}
