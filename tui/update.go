package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, refreshCmd(m.refresh)
		case "j", "down":
			if m.selectedRow < len(m.rows)-1 {
				m.selectedRow++
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(refreshCmd(m.refresh), tickCmd())

	case RefreshMsg:
		m.loadErr = msg.Err
		if msg.Err == nil {
			m.rows = msg.Rows
			m.lastRefresh = time.Now()
			if m.selectedRow >= len(m.rows) && len(m.rows) > 0 {
				m.selectedRow = len(m.rows) - 1
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}
