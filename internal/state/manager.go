package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrExists is returned by Create when the task already has a state file.
var ErrExists = errors.New("state already exists")

// ErrNotFound is returned by Load when the task has no state file.
var ErrNotFound = errors.New("state not found")

// Manager persists execution state as one YAML file per task. Writes go
// through a temp file and rename, so a failed write leaves the previous
// state intact.
type Manager struct {
	dir string
}

// NewManager creates a manager rooted at dir. The directory is created on
// the first write, not here.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Dir returns the state directory.
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) path(taskID string) string {
	return filepath.Join(m.dir, taskID+".yaml")
}

// Exists reports whether a state file exists for the task.
func (m *Manager) Exists(taskID string) bool {
	_, err := os.Stat(m.path(taskID))
	return err == nil
}

// Create writes a fresh state file, failing if one already exists.
func (m *Manager) Create(st *ExecutionState) error {
	if m.Exists(st.TaskID) {
		return fmt.Errorf("%w: task %q", ErrExists, st.TaskID)
	}
	return m.Save(st)
}

// Load reads and validates the state file for a task.
func (m *Manager) Load(taskID string) (*ExecutionState, error) {
	data, err := os.ReadFile(m.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: task %q", ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st ExecutionState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state for task %q: %w", taskID, err)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// Save writes the state atomically, refreshing UpdatedAt.
func (m *Manager) Save(st *ExecutionState) error {
	st.UpdatedAt = time.Now().UTC()

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(m.dir, st.TaskID+".*.tmp")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmpName, m.path(st.TaskID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// UpdatePhase transitions the state to a new phase and persists it.
func (m *Manager) UpdatePhase(st *ExecutionState, phase Phase) error {
	st.Phase = phase
	return m.Save(st)
}

// MarkCompleted transitions to the completed terminal phase.
func (m *Manager) MarkCompleted(st *ExecutionState) error {
	now := time.Now().UTC()
	st.Phase = PhaseCompleted
	st.CompletedAt = &now
	st.FixInfo = ""
	return m.Save(st)
}

// MarkFailed transitions to the failed terminal phase with a reason.
func (m *Manager) MarkFailed(st *ExecutionState, reason string) error {
	now := time.Now().UTC()
	st.Phase = PhaseFailed
	st.FailureReason = reason
	st.CompletedAt = &now
	return m.Save(st)
}

// ListTasks returns the IDs of every task with a state file, sorted.
func (m *Manager) ListTasks() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list state dir: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the state file for a task and reports whether anything
// was removed. A missing task is not an error.
func (m *Manager) Delete(taskID string) (bool, error) {
	err := os.Remove(m.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete state: %w", err)
	}
	return true, nil
}
