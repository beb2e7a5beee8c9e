// Package tui renders a live dashboard of task execution states.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahaidachny/saha/internal/state"
)

// TaskRow is one task line on the dashboard.
type TaskRow struct {
	TaskID        string
	Phase         state.Phase
	Iteration     int
	MaxIterations int
	Tokens        int
	FixInfo       string
	FailureReason string
	UpdatedAt     time.Time
}

// RefreshFunc reloads the task rows. Called on every tick.
type RefreshFunc func() ([]TaskRow, error)

// Model is the bubbletea application model.
type Model struct {
	rows    []TaskRow
	refresh RefreshFunc
	spin    spinner.Model

	selectedRow int
	width       int
	height      int
	loadErr     error
	lastRefresh time.Time
}

// NewModel builds the dashboard model around a refresh callback.
func NewModel(refresh RefreshFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle
	return Model{
		refresh: refresh,
		spin:    sp,
	}
}

// Init loads the first snapshot and starts the tick loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, refreshCmd(m.refresh), tickCmd())
}

// TickMsg triggers a periodic refresh.
type TickMsg time.Time

// RefreshMsg carries a reloaded snapshot.
type RefreshMsg struct {
	Rows []TaskRow
	Err  error
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func refreshCmd(refresh RefreshFunc) tea.Cmd {
	return func() tea.Msg {
		rows, err := refresh()
		return RefreshMsg{Rows: rows, Err: err}
	}
}

// Active reports whether any task is mid-run.
func (m Model) Active() bool {
	for _, row := range m.rows {
		if !row.Phase.Terminal() && row.Phase != state.PhaseIdle {
			return true
		}
	}
	return false
}
