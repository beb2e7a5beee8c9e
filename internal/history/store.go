// Package history records every agent invocation in SQLite so operators
// can inspect token spend and failure patterns across runs.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sahaidachny/saha/internal/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS invocations (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	phase TEXT NOT NULL,
	runner TEXT NOT NULL,
	success INTEGER NOT NULL,
	error TEXT,
	exit_code INTEGER NOT NULL DEFAULT 0,
	tokens_input INTEGER NOT NULL DEFAULT 0,
	tokens_output INTEGER NOT NULL DEFAULT 0,
	tokens_total INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invocations_task ON invocations(task_id, created_at);
`

// Invocation is one recorded agent call.
type Invocation struct {
	ID           string
	TaskID       string
	Iteration    int
	Phase        state.Phase
	Runner       string
	Success      bool
	Error        string
	ExitCode     int
	TokensInput  int
	TokensOutput int
	TokensTotal  int
	Duration     time.Duration
	CreatedAt    time.Time
}

// Store provides SQLite-backed invocation history.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the history database at dbPath. Use ":memory:"
// for an ephemeral store.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one invocation, assigning an id and timestamp when absent.
func (s *Store) Record(inv *Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO invocations (id, task_id, iteration, phase, runner, success, error, exit_code, tokens_input, tokens_output, tokens_total, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID,
		inv.TaskID,
		inv.Iteration,
		string(inv.Phase),
		inv.Runner,
		inv.Success,
		inv.Error,
		inv.ExitCode,
		inv.TokensInput,
		inv.TokensOutput,
		inv.TokensTotal,
		inv.Duration.Milliseconds(),
		inv.CreatedAt,
	)
	return err
}

// ForTask returns every invocation of a task in chronological order.
func (s *Store) ForTask(taskID string) ([]*Invocation, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, iteration, phase, runner, success, error, exit_code, tokens_input, tokens_output, tokens_total, duration_ms, created_at
		FROM invocations WHERE task_id = ? ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invocations []*Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}
	return invocations, rows.Err()
}

// TaskSummary aggregates a task's history.
type TaskSummary struct {
	TaskID      string
	Invocations int
	Failures    int
	TokensTotal int
}

// Summaries returns per-task aggregates, most recently active first.
func (s *Store) Summaries() ([]*TaskSummary, error) {
	rows, err := s.db.Query(`
		SELECT task_id,
		       COUNT(*),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		       SUM(tokens_total)
		FROM invocations
		GROUP BY task_id
		ORDER BY MAX(created_at) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*TaskSummary
	for rows.Next() {
		var sum TaskSummary
		if err := rows.Scan(&sum.TaskID, &sum.Invocations, &sum.Failures, &sum.TokensTotal); err != nil {
			return nil, err
		}
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// Purge deletes every invocation of a task.
func (s *Store) Purge(taskID string) error {
	_, err := s.db.Exec(`DELETE FROM invocations WHERE task_id = ?`, taskID)
	return err
}

func scanInvocation(rows *sql.Rows) (*Invocation, error) {
	var inv Invocation
	var phase string
	var errText sql.NullString
	var durationMS int64
	if err := rows.Scan(
		&inv.ID, &inv.TaskID, &inv.Iteration, &phase, &inv.Runner,
		&inv.Success, &errText, &inv.ExitCode,
		&inv.TokensInput, &inv.TokensOutput, &inv.TokensTotal,
		&durationMS, &inv.CreatedAt,
	); err != nil {
		return nil, err
	}
	inv.Phase = state.Phase(phase)
	inv.Error = errText.String
	inv.Duration = time.Duration(durationMS) * time.Millisecond
	return &inv, nil
}
