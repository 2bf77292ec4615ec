package tui

import (
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wellsgz/fwledger/api"
	"github.com/wellsgz/fwledger/internal/client"
	"github.com/wellsgz/fwledger/internal/storage"
)

// View represents the current view state
type View int

const (
	ViewDashboard View = iota
	ViewRangePicker
	ViewHelp
)

// rangePreset pairs a history range preset with its label.
type rangePreset struct {
	value string
	label string
}

var rangePresets = []rangePreset{
	{storage.RangeToday, "Today"},
	{storage.RangeYesterday, "Yesterday"},
	{"7d", "Last 7 days"},
	{"30d", "Last 30 days"},
	{storage.RangeMonth, "This month"},
	{storage.RangeLastMonth, "Last month"},
}

// KeyMap defines the key bindings
type KeyMap struct {
	Quit    key.Binding
	Range   key.Binding
	Refresh key.Binding
	Verify  key.Binding
	Help    key.Binding
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Escape  key.Binding
}

var DefaultKeyMap = KeyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Range:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "history range")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Verify:  key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "verify chain")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Escape:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
}

// Number of rows requested for the list panels.
const (
	recentRows = 8
	topRows    = 5
	chainRows  = 6
)

var errNotConnected = errors.New("not connected to daemon")

// Messages
type tickMsg time.Time

type statsMsg struct {
	client  *client.Client
	status  *api.StatusResult
	stats   *api.StatsResult
	top     *api.TopResult
	chain   *api.ChainResult
	history *api.HistoryResult
	err     error
}

type verifyMsg struct {
	result *api.VerifyResult
	at     time.Time
	err    error
}

// Model is the main TUI model
type Model struct {
	// Connection
	client     *client.Client
	socketPath string
	connected  bool
	lastError  string

	// State
	currentView   View
	width, height int

	// Data
	daemonStatus *api.StatusResult
	stats        *api.StatsResult
	top          *api.TopResult
	chain        *api.ChainResult
	history      *api.HistoryResult
	lastVerify   *api.VerifyResult
	lastVerifyAt time.Time

	// History range
	rangeIndex   int
	presetCursor int

	// UI state
	keys KeyMap
}

// New creates a new TUI model
func New(socketPath string) Model {
	return Model{
		socketPath:  socketPath,
		currentView: ViewDashboard,
		keys:        DefaultKeyMap,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchStats(),
		m.tick(),
	)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchStats loads everything the dashboard shows. A new connection is
// handed back through statsMsg so the model keeps it.
func (m Model) fetchStats() tea.Cmd {
	c := m.client
	preset := rangePresets[m.rangeIndex].value
	return func() tea.Msg {
		if c == nil {
			c = client.New(m.socketPath)
			if err := c.Connect(); err != nil {
				return statsMsg{err: err}
			}
		}

		status, err := c.GetStatus()
		if err != nil {
			return statsMsg{err: err}
		}
		stats, err := c.GetStats(recentRows)
		if err != nil {
			return statsMsg{err: err}
		}
		top, err := c.GetTop(topRows)
		if err != nil {
			return statsMsg{err: err}
		}
		chain, err := c.GetChain(0, chainRows, false)
		if err != nil {
			return statsMsg{err: err}
		}
		history, err := c.GetHistory(preset, 0)
		if err != nil {
			return statsMsg{err: err}
		}

		return statsMsg{
			client:  c,
			status:  status,
			stats:   stats,
			top:     top,
			chain:   chain,
			history: history,
		}
	}
}

func (m Model) verifyChain() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		if c == nil {
			return verifyMsg{err: errNotConnected}
		}
		result, err := c.VerifyChain()
		return verifyMsg{result: result, at: time.Now(), err: err}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tea.Batch(m.fetchStats(), m.tick())

	case statsMsg:
		if msg.err != nil {
			m.connected = false
			m.lastError = msg.err.Error()
			if m.client != nil {
				m.client.Close()
				m.client = nil
			}
		} else {
			m.client = msg.client
			m.connected = true
			m.lastError = ""
			m.daemonStatus = msg.status
			m.stats = msg.stats
			m.top = msg.top
			m.chain = msg.chain
			m.history = msg.history
		}
		return m, nil

	case verifyMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.lastVerify = msg.result
		m.lastVerifyAt = msg.at
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.currentView {
	case ViewDashboard:
		return m.handleDashboardKey(msg)
	case ViewRangePicker:
		return m.handleRangePickerKey(msg)
	case ViewHelp:
		return m.handleHelpKey(msg)
	}
	return m, nil
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.client != nil {
			m.client.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Range):
		m.presetCursor = m.rangeIndex
		m.currentView = ViewRangePicker
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.currentView = ViewHelp
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchStats()

	case key.Matches(msg, m.keys.Verify):
		return m, m.verifyChain()
	}
	return m, nil
}

func (m Model) handleRangePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.currentView = ViewDashboard
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.presetCursor > 0 {
			m.presetCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.presetCursor < len(rangePresets)-1 {
			m.presetCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		m.rangeIndex = m.presetCursor
		m.currentView = ViewDashboard
		return m, m.fetchStats()
	}
	return m, nil
}

func (m Model) handleHelpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Help), key.Matches(msg, m.keys.Quit):
		m.currentView = ViewDashboard
		return m, nil
	}
	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.currentView {
	case ViewRangePicker:
		return m.viewRangePicker()
	case ViewHelp:
		return m.viewHelp()
	default:
		return m.viewDashboard()
	}
}
