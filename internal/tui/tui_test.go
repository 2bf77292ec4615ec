package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsgz/fwledger/api"
	"github.com/wellsgz/fwledger/internal/ledger"
	"github.com/wellsgz/fwledger/internal/stats"
)

func TestBar(t *testing.T) {
	assert.Equal(t, "██░░", Bar(0.5, 4))
	assert.Equal(t, "█░░░░░░░░░", Bar(0.01, 10))
	assert.Equal(t, "░░░", Bar(0, 3))
	assert.Equal(t, "███", Bar(7, 3))
	assert.Empty(t, Bar(0.5, 0))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "0", ShortHash("0"))
	assert.Equal(t, "2ac9a6746aca", ShortHash("2ac9a6746aca543af8dff39894cfe8173afba21eb01c6fae33d52947222855ef"))
}

func TestRangePickerSelection(t *testing.T) {
	m := New("/nonexistent.sock")
	m.width, m.height = 120, 40

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = next.(Model)
	require.Equal(t, ViewRangePicker, m.currentView)
	assert.Contains(t, m.View(), "Select History Range")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	assert.Equal(t, ViewDashboard, m.currentView)
	assert.Equal(t, 2, m.rangeIndex)
	assert.Equal(t, "7d", rangePresets[m.rangeIndex].value)
	assert.NotNil(t, cmd)
}

func TestDisconnectedDashboard(t *testing.T) {
	m := New("/nonexistent.sock")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	next, _ = m.Update(statsMsg{err: errors.New("dial unix: no such file")})
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, "Not connected to daemon")
	assert.Contains(t, view, "no such file")
}

func TestDashboardRendersData(t *testing.T) {
	m := New("/nonexistent.sock")
	m.width, m.height = 140, 50

	next, _ := m.Update(statsMsg{
		status: &api.StatusResult{Uptime: "00:01:00", AlertThreshold: 2, BlockThreshold: 3, ChainBlocks: 1, LastHash: "abcdef0123456789"},
		stats:  &api.StatsResult{Stats: stats.Snapshot{Total: 4, Accepted: 2, Dropped: 2, AcceptRate: 50, DropRate: 50}},
		top:    &api.TopResult{Sources: []stats.Rollup{{Key: "10.0.0.2", Packets: 4, Blocked: 2}}},
		chain:  &api.ChainResult{Valid: true},
		history: &api.HistoryResult{
			StartDate: "2025-01-01",
			EndDate:   "2025-01-01",
			Counts:    nil,
		},
	})
	m = next.(Model)
	require.True(t, m.connected)

	view := m.View()
	assert.Contains(t, view, "fwledger")
	assert.Contains(t, view, "10.0.0.2")
	assert.Contains(t, view, "abcdef012345")
	assert.Contains(t, view, "No decisions stored in this range")

	next, _ = m.Update(verifyMsg{result: &api.VerifyResult{Report: ledger.VerifyReport{OK: false}, Indices: []int{3}}})
	m = next.(Model)
	assert.True(t, strings.Contains(m.View(), "TAMPERED [3]"))
}
