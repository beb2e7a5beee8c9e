// Package state persists task execution state as YAML so an interrupted run
// can resume where it left off. One file per task under the workspace's
// .sahaidachny/state directory.
package state

import (
	"fmt"
	"time"

	"github.com/sahaidachny/saha/internal/runner"
)

// Phase names the step of the iteration cycle a task is in.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseImplementation  Phase = "implementation"
	PhaseQA              Phase = "qa"
	PhaseCodeQuality     Phase = "code_quality"
	PhaseManager         Phase = "manager"
	PhaseCompletionCheck Phase = "completion_check"
	PhaseCompleted       Phase = "completed"
	PhaseFailed          Phase = "failed"
)

// ParsePhase validates a phase string.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseIdle, PhaseImplementation, PhaseQA, PhaseCodeQuality,
		PhaseManager, PhaseCompletionCheck, PhaseCompleted, PhaseFailed:
		return Phase(s), nil
	}
	return "", fmt.Errorf("unknown phase: %q", s)
}

// Terminal reports whether the phase ends the task.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// PhaseResult records the outcome of one agent invocation within an
// iteration.
type PhaseResult struct {
	Success          bool               `yaml:"success"`
	Output           string             `yaml:"output,omitempty"`
	StructuredOutput map[string]any     `yaml:"structured_output,omitempty"`
	Error            string             `yaml:"error,omitempty"`
	ExitCode         int                `yaml:"exit_code,omitempty"`
	TokensUsed       int                `yaml:"tokens_used,omitempty"`
	TokenUsage       *runner.TokenUsage `yaml:"token_usage,omitempty"`
	CompletedAt      time.Time          `yaml:"completed_at"`
}

// FromRunnerResult converts an invocation result into a phase record.
func FromRunnerResult(res *runner.Result) *PhaseResult {
	return &PhaseResult{
		Success:          res.Success,
		Output:           res.Output,
		StructuredOutput: res.StructuredOutput,
		Error:            res.Error,
		ExitCode:         res.ExitCode,
		TokensUsed:       res.TokensUsed,
		TokenUsage:       res.TokenUsage,
		CompletedAt:      time.Now().UTC(),
	}
}

// IterationRecord holds every phase outcome of a single iteration. Phases
// that have not run yet are nil; resume uses that to skip completed work.
type IterationRecord struct {
	Iteration       int          `yaml:"iteration"`
	Implementation  *PhaseResult `yaml:"implementation,omitempty"`
	QA              *PhaseResult `yaml:"qa,omitempty"`
	CodeQuality     *PhaseResult `yaml:"code_quality,omitempty"`
	Manager         *PhaseResult `yaml:"manager,omitempty"`
	CompletionCheck *PhaseResult `yaml:"completion_check,omitempty"`
	FixInfo         string       `yaml:"fix_info,omitempty"`
	StartedAt       time.Time    `yaml:"started_at"`
}

// ResultFor returns the recorded result for a phase, nil when the phase has
// not run in this iteration.
func (it *IterationRecord) ResultFor(phase Phase) *PhaseResult {
	switch phase {
	case PhaseImplementation:
		return it.Implementation
	case PhaseQA:
		return it.QA
	case PhaseCodeQuality:
		return it.CodeQuality
	case PhaseManager:
		return it.Manager
	case PhaseCompletionCheck:
		return it.CompletionCheck
	}
	return nil
}

// SetResult records a phase outcome.
func (it *IterationRecord) SetResult(phase Phase, res *PhaseResult) {
	switch phase {
	case PhaseImplementation:
		it.Implementation = res
	case PhaseQA:
		it.QA = res
	case PhaseCodeQuality:
		it.CodeQuality = res
	case PhaseManager:
		it.Manager = res
	case PhaseCompletionCheck:
		it.CompletionCheck = res
	}
}

// TokensUsed sums the token counts of every recorded phase.
func (it *IterationRecord) TokensUsed() int {
	total := 0
	for _, res := range []*PhaseResult{it.Implementation, it.QA, it.CodeQuality, it.Manager, it.CompletionCheck} {
		if res != nil {
			total += res.TokensUsed
		}
	}
	return total
}

// ExecutionState is the full persisted state of one task.
type ExecutionState struct {
	TaskID           string             `yaml:"task_id"`
	TaskFile         string             `yaml:"task_file"`
	Phase            Phase              `yaml:"phase"`
	CurrentIteration int                `yaml:"current_iteration"`
	MaxIterations    int                `yaml:"max_iterations"`
	EnabledTools     []string           `yaml:"enabled_tools,omitempty"`
	Iterations       []*IterationRecord `yaml:"iterations"`
	FixInfo          string             `yaml:"fix_info,omitempty"`
	FailureReason    string             `yaml:"failure_reason,omitempty"`
	StartedAt        time.Time          `yaml:"started_at"`
	UpdatedAt        time.Time          `yaml:"updated_at"`
	CompletedAt      *time.Time         `yaml:"completed_at,omitempty"`
}

// NewExecutionState creates a fresh idle state for a task.
func NewExecutionState(taskID, taskFile string, maxIterations int) *ExecutionState {
	now := time.Now().UTC()
	return &ExecutionState{
		TaskID:           taskID,
		TaskFile:         taskFile,
		Phase:            PhaseIdle,
		CurrentIteration: 0,
		MaxIterations:    maxIterations,
		StartedAt:        now,
		UpdatedAt:        now,
	}
}

// BeginIteration appends a new iteration record and advances the counter.
// The counter always equals the number of started iterations while the task
// is live.
func (s *ExecutionState) BeginIteration() *IterationRecord {
	rec := &IterationRecord{
		Iteration: s.CurrentIteration + 1,
		StartedAt: time.Now().UTC(),
	}
	s.Iterations = append(s.Iterations, rec)
	s.CurrentIteration = len(s.Iterations)
	return rec
}

// CurrentRecord returns the record for the iteration in progress, nil when
// none has started.
func (s *ExecutionState) CurrentRecord() *IterationRecord {
	if len(s.Iterations) == 0 {
		return nil
	}
	return s.Iterations[len(s.Iterations)-1]
}

// TotalTokens sums token usage across all iterations.
func (s *ExecutionState) TotalTokens() int {
	total := 0
	for _, it := range s.Iterations {
		total += it.TokensUsed()
	}
	return total
}

// Validate checks the structural invariants of a loaded state file.
func (s *ExecutionState) Validate() error {
	if s.TaskID == "" {
		return fmt.Errorf("state: empty task_id")
	}
	if _, err := ParsePhase(string(s.Phase)); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if !s.Phase.Terminal() && s.CurrentIteration != len(s.Iterations) {
		return fmt.Errorf("state: current_iteration %d does not match %d recorded iterations",
			s.CurrentIteration, len(s.Iterations))
	}
	for i, it := range s.Iterations {
		if it.Iteration != i+1 {
			return fmt.Errorf("state: iteration %d recorded at position %d", it.Iteration, i+1)
		}
	}
	return nil
}
