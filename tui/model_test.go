package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahaidachny/saha/internal/state"
)

func testRows() []TaskRow {
	return []TaskRow{
		{TaskID: "auth-fix", Phase: state.PhaseQA, Iteration: 2, MaxIterations: 10, Tokens: 15000},
		{TaskID: "billing", Phase: state.PhaseCompleted, Iteration: 3, MaxIterations: 10, Tokens: 42000},
		{TaskID: "search", Phase: state.PhaseFailed, FailureReason: "max iterations reached", Iteration: 10, MaxIterations: 10},
	}
}

func newTestModel(rows []TaskRow) Model {
	m := NewModel(func() ([]TaskRow, error) { return rows, nil })
	m.rows = rows
	m.width = 120
	m.height = 40
	return m
}

func TestViewRendersTasks(t *testing.T) {
	m := newTestModel(testRows())
	out := m.View()

	for _, want := range []string{"auth-fix", "billing", "search", "completed", "failed", "max iterations reached"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if !strings.Contains(out, "Active: 1") {
		t.Error("header should count one active task")
	}
	if !strings.Contains(out, "2/10") {
		t.Error("view missing iteration counter")
	}
}

func TestViewEmpty(t *testing.T) {
	m := newTestModel(nil)
	if !strings.Contains(m.View(), "No tasks") {
		t.Error("empty view should say so")
	}
}

func TestNavigationKeys(t *testing.T) {
	m := newTestModel(testRows())

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	m = next.(Model)
	if m.selectedRow != 1 {
		t.Errorf("selectedRow = %d after j", m.selectedRow)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	m = next.(Model)
	if m.selectedRow != 0 {
		t.Errorf("selectedRow = %d after k", m.selectedRow)
	}

	// Navigation clamps at the edges.
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	m = next.(Model)
	if m.selectedRow != 0 {
		t.Errorf("selectedRow = %d, want clamped to 0", m.selectedRow)
	}
}

func TestQuitKey(t *testing.T) {
	m := newTestModel(nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should produce a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestRefreshMsgReplacesRows(t *testing.T) {
	m := newTestModel(testRows())
	m.selectedRow = 2

	next, _ := m.Update(RefreshMsg{Rows: testRows()[:1]})
	m = next.(Model)
	if len(m.rows) != 1 {
		t.Errorf("rows = %d", len(m.rows))
	}
	if m.selectedRow != 0 {
		t.Errorf("selectedRow = %d, want clamped after shrink", m.selectedRow)
	}
	if m.lastRefresh.IsZero() {
		t.Error("lastRefresh not updated")
	}
}

func TestActive(t *testing.T) {
	m := newTestModel(testRows())
	if !m.Active() {
		t.Error("a task in qa phase means active")
	}

	m.rows = []TaskRow{{TaskID: "x", Phase: state.PhaseCompleted, UpdatedAt: time.Now()}}
	if m.Active() {
		t.Error("all terminal means inactive")
	}
}
