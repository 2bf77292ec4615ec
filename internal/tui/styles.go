// Package tui provides the terminal dashboard for fwledger.
package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	accentColor    = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	infoColor      = lipgloss.Color("#3B82F6") // Blue
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	textColor      = lipgloss.Color("#F3F4F6") // Light gray
	bgColor        = lipgloss.Color("#1F2937") // Dark gray
)

// Styles
var (
	// Base styles
	BaseStyle = lipgloss.NewStyle().
			Foreground(textColor)

	// Title bar
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Background(bgColor).
			Padding(0, 1)

	// Status indicators
	ConnectedStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	DisconnectedStyle = lipgloss.NewStyle().
				Foreground(errorColor).
				Bold(true)

	// Panel styles
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// Stats display
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	// Action styles
	AcceptStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	LogStyle = lipgloss.NewStyle().
			Foreground(infoColor).
			Bold(true)

	AlertStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	DropStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	TotalStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	HashStyle = lipgloss.NewStyle().
			Foreground(infoColor)

	// Chart styles

	ChartLabel = lipgloss.NewStyle().
			Foreground(mutedColor)

	// Help bar
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	HelpKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// Modal styles
	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			Background(bgColor)

	ModalTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 1)

	UnselectedStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Padding(0, 1)

	// Error display
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)
)

// Symbols
const (
	SymbolTotal   = "Σ"
	SymbolConn    = "●"
	SymbolDisconn = "○"
	SymbolBar     = "█"
	SymbolBarBg   = "░"
	SymbolLink    = "⛓"
)

// ActionStyle returns the style for an action name.
func ActionStyle(action string) lipgloss.Style {
	switch action {
	case "ACCEPT":
		return AcceptStyle
	case "LOG":
		return LogStyle
	case "ALERT":
		return AlertStyle
	case "DROP":
		return DropStyle
	default:
		return ValueStyle
	}
}
