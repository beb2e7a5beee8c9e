package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/sahaidachny/saha/internal/state"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	completedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	selectedStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))
)

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	var active, completed, failed int
	for _, row := range m.rows {
		switch {
		case row.Phase == state.PhaseCompleted:
			completed++
		case row.Phase == state.PhaseFailed:
			failed++
		case row.Phase != state.PhaseIdle:
			active++
		}
	}

	header := fmt.Sprintf(" saha │ Tasks: %d │ Active: %d │ Completed: %d │ Failed: %d ",
		len(m.rows), active, completed, failed)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderTasks()))
	b.WriteString("\n")

	if m.loadErr != nil {
		b.WriteString(failedStyle.Width(m.width).Render(" refresh failed: " + m.loadErr.Error()))
		b.WriteString("\n")
	}

	footer := " q: quit │ r: refresh │ j/k: navigate "
	if !m.lastRefresh.IsZero() {
		footer += "│ refreshed " + humanize.Time(m.lastRefresh) + " "
	}
	b.WriteString(dimmedStyle.Render(footer))

	return b.String()
}

func (m Model) renderTasks() string {
	if len(m.rows) == 0 {
		return dimmedStyle.Render("No tasks. Start one with: saha run <task>")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-24s %-18s %-10s %-12s %s\n",
		"TASK", "PHASE", "ITER", "TOKENS", "DETAIL"))

	for i, row := range m.rows {
		phase := string(row.Phase)
		if !row.Phase.Terminal() && row.Phase != state.PhaseIdle {
			phase = m.spin.View() + phase
		}
		line := fmt.Sprintf("%-24s %-18s %-10s %-12s %s",
			truncate(row.TaskID, 24),
			phase,
			fmt.Sprintf("%d/%d", row.Iteration, row.MaxIterations),
			humanize.Comma(int64(row.Tokens)),
			truncate(m.detail(row), 40))
		switch {
		case i == m.selectedRow:
			line = selectedStyle.Render(line)
		case row.Phase == state.PhaseCompleted:
			line = completedStyle.Render(line)
		case row.Phase == state.PhaseFailed:
			line = failedStyle.Render(line)
		case row.Phase == state.PhaseIdle:
			line = dimmedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m Model) detail(row TaskRow) string {
	switch {
	case row.FailureReason != "":
		return row.FailureReason
	case row.FixInfo != "":
		return "fix: " + row.FixInfo
	case !row.UpdatedAt.IsZero():
		return humanize.Time(row.UpdatedAt)
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
