// Package loop drives the implement-verify-fix cycle: an implementation
// agent produces changes, verification agents judge them, and failed
// verdicts feed fix instructions back into the next iteration until the
// task completes or the iteration ceiling is hit.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sahaidachny/saha/internal/history"
	"github.com/sahaidachny/saha/internal/hooks"
	"github.com/sahaidachny/saha/internal/runner"
	"github.com/sahaidachny/saha/internal/state"
)

// Agent roles, which double as the agent spec file stems.
const (
	RoleImplementation  = "implementation"
	RoleQA              = "qa"
	RoleCodeQuality     = "code_quality"
	RoleManager         = "manager"
	RoleCompletionCheck = "completion_check"
)

// Roles lists every agent role the loop invokes, in phase order.
var Roles = []string{RoleImplementation, RoleQA, RoleCodeQuality, RoleManager, RoleCompletionCheck}

// ErrNoState is returned by Resume when a task has no saved state.
var ErrNoState = errors.New("no saved state")

// ErrTerminal is returned when a run is requested for a task already in a
// terminal phase.
var ErrTerminal = errors.New("task already finished")

// RunConfig describes one run request.
type RunConfig struct {
	TaskID        string
	TaskPath      string
	MaxIterations int
	EnabledTools  []string
}

// Loop owns one task's execution at a time. It is not safe for concurrent
// use; phases and iterations are strictly sequential.
type Loop struct {
	runners *runner.Registry
	states  *state.Manager
	hooks   *hooks.Registry
	history *history.Store // nil disables invocation recording
	logger  *slog.Logger
}

// New assembles a loop from its collaborators. history may be nil.
func New(runners *runner.Registry, states *state.Manager, hookReg *hooks.Registry, hist *history.Store, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if hookReg == nil {
		hookReg = hooks.NewRegistry(logger)
	}
	return &Loop{
		runners: runners,
		states:  states,
		hooks:   hookReg,
		history: hist,
		logger:  logger,
	}
}

// Validate checks that every configured backend is installed. Called before
// any state is touched so a misconfigured run fails fast.
func (l *Loop) Validate() error {
	return l.runners.Validate(Roles...)
}

// Run creates or resumes the state for a task and drives it to a terminal
// phase. The returned state is always the last persisted one.
func (l *Loop) Run(ctx context.Context, cfg RunConfig) (*state.ExecutionState, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	st, err := l.states.Load(cfg.TaskID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		st = state.NewExecutionState(cfg.TaskID, cfg.TaskPath, cfg.MaxIterations)
		st.EnabledTools = cfg.EnabledTools
		if err := l.states.Create(st); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if st.Phase.Terminal() {
			return st, fmt.Errorf("%w: task %q is %s", ErrTerminal, st.TaskID, st.Phase)
		}
		l.logger.Info("resuming task", "task_id", st.TaskID, "phase", string(st.Phase), "iteration", st.CurrentIteration)
	}

	return l.drive(ctx, st)
}

// Resume continues an interrupted task. Unlike Run it refuses to start
// fresh: missing state is an error.
func (l *Loop) Resume(ctx context.Context, taskID string) (*state.ExecutionState, error) {
	st, err := l.states.Load(taskID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("%w for task %q", ErrNoState, taskID)
	}
	if err != nil {
		return nil, err
	}
	if st.Phase.Terminal() {
		return st, fmt.Errorf("%w: task %q is %s", ErrTerminal, st.TaskID, st.Phase)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	l.logger.Info("resuming task", "task_id", taskID, "phase", string(st.Phase), "iteration", st.CurrentIteration)
	return l.drive(ctx, st)
}

type verdict int

const (
	verdictContinue verdict = iota
	verdictCompleted
	verdictFailed
)

func (l *Loop) drive(ctx context.Context, st *state.ExecutionState) (*state.ExecutionState, error) {
	l.hooks.Fire(ctx, hooks.EventLoopStart, hooks.Payload{State: st})

	// On resume, the last record is picked up mid-iteration; recorded
	// phases replay without re-invoking their backends. Every later pass
	// starts a fresh iteration.
	rec := st.CurrentRecord()
	resuming := rec != nil && st.Phase != state.PhaseIdle

	for {
		if !resuming {
			// The iteration ceiling is checked before starting work, never
			// mid-iteration.
			if st.CurrentIteration >= st.MaxIterations {
				if err := l.states.MarkFailed(st, "max iterations reached"); err != nil {
					return st, err
				}
				l.hooks.Fire(ctx, hooks.EventLoopFailed, hooks.Payload{State: st})
				return st, nil
			}
			rec = st.BeginIteration()
			if err := l.states.Save(st); err != nil {
				return st, err
			}
			l.hooks.Fire(ctx, hooks.EventIterationStart, hooks.Payload{State: st})
		}
		resuming = false

		v, err := l.runIteration(ctx, st, rec)
		if err != nil {
			if ctx.Err() != nil {
				// Interrupt: state is already persisted, so a later resume
				// picks up mid-iteration.
				l.hooks.Fire(context.WithoutCancel(ctx), hooks.EventLoopStopped, hooks.Payload{State: st, Error: err.Error()})
				return st, err
			}
			// Infrastructure failure (unresolvable agent spec, broken
			// persistence): terminal.
			if failErr := l.states.MarkFailed(st, err.Error()); failErr != nil {
				l.logger.Error("mark failed", "task_id", st.TaskID, "error", failErr)
			}
			l.hooks.Fire(ctx, hooks.EventLoopError, hooks.Payload{State: st, Error: err.Error()})
			return st, err
		}

		l.hooks.Fire(ctx, hooks.EventIterationComplete, hooks.Payload{State: st})

		switch v {
		case verdictCompleted:
			l.hooks.Fire(ctx, hooks.EventLoopComplete, hooks.Payload{State: st})
			return st, nil
		case verdictFailed:
			l.hooks.Fire(ctx, hooks.EventLoopFailed, hooks.Payload{State: st})
			return st, nil
		}
		// verdictContinue: next pass of the for loop starts a fresh
		// iteration (or fails on the ceiling).
	}
}

// runIteration walks the phases of one iteration in order. Phases already
// recorded (an interrupted run being resumed) are replayed from their
// stored results instead of re-invoking the backend, so the decision logic
// below must rely only on what the record holds.
func (l *Loop) runIteration(ctx context.Context, st *state.ExecutionState, rec *state.IterationRecord) (verdict, error) {
	// Phase 1: implementation.
	impl, err := l.phaseResult(ctx, st, rec, state.PhaseImplementation, RoleImplementation, l.implementationPrompt(st))
	if err != nil {
		return 0, err
	}
	if !impl.Success {
		if impl.ExitCode == runner.ExitTimeout {
			// A timed-out attempt consumes the iteration and retries.
			st.FixInfo = impl.Error
			rec.FixInfo = st.FixInfo
			if err := l.states.Save(st); err != nil {
				return 0, err
			}
			return verdictContinue, nil
		}
		if err := l.states.MarkFailed(st, nonEmpty(impl.Error, "implementation failed")); err != nil {
			return 0, err
		}
		return verdictFailed, nil
	}

	// Phase 2: QA verification.
	qa, err := l.phaseResult(ctx, st, rec, state.PhaseQA, RoleQA, l.qaPrompt(st))
	if err != nil {
		return 0, err
	}
	dod := boolField(qa, "dod_achieved")
	if !dod {
		st.FixInfo = failureInfo(qa, "fix_info")
		rec.FixInfo = st.FixInfo
		if err := l.states.Save(st); err != nil {
			return 0, err
		}
		l.hooks.Fire(ctx, hooks.EventQAFailed, hooks.Payload{State: st, Phase: state.PhaseQA, Error: st.FixInfo})
		return verdictContinue, nil
	}

	// Phase 3: code quality.
	quality, err := l.phaseResult(ctx, st, rec, state.PhaseCodeQuality, RoleCodeQuality, l.codeQualityPrompt(st, impl))
	if err != nil {
		return 0, err
	}
	if !boolField(quality, "quality_passed") {
		st.FixInfo = failureInfo(quality, "fix_info")
		rec.FixInfo = st.FixInfo
		if err := l.states.Save(st); err != nil {
			return 0, err
		}
		l.hooks.Fire(ctx, hooks.EventQualityFailed, hooks.Payload{State: st, Phase: state.PhaseCodeQuality, Error: st.FixInfo})
		return verdictContinue, nil
	}

	// Phase 4: manager bookkeeping, best effort.
	manager, err := l.phaseResult(ctx, st, rec, state.PhaseManager, RoleManager, l.managerPrompt(st))
	if err != nil {
		return 0, err
	}
	if !manager.Success {
		l.logger.Warn("manager phase failed, continuing", "task_id", st.TaskID, "error", manager.Error)
	}

	// Phase 5: completion check.
	check, err := l.phaseResult(ctx, st, rec, state.PhaseCompletionCheck, RoleCompletionCheck, l.completionPrompt(st))
	if err != nil {
		return 0, err
	}
	if boolField(check, "task_complete") {
		if err := l.states.MarkCompleted(st); err != nil {
			return 0, err
		}
		return verdictCompleted, nil
	}

	if reason := stringField(check, "reasoning"); reason != "" {
		st.FixInfo = reason
	}
	if err := l.states.Save(st); err != nil {
		return 0, err
	}
	return verdictContinue, nil
}

// phaseResult returns the recorded result for a phase, invoking the agent
// only when no result exists yet. The phase transition is persisted before
// the invocation so an interrupt resumes into the right phase.
func (l *Loop) phaseResult(ctx context.Context, st *state.ExecutionState, rec *state.IterationRecord, phase state.Phase, role, prompt string) (*state.PhaseResult, error) {
	if res := rec.ResultFor(phase); res != nil {
		return res, nil
	}

	if err := l.states.UpdatePhase(st, phase); err != nil {
		return nil, err
	}
	l.hooks.Fire(ctx, hooks.EventPhaseStart, hooks.Payload{State: st, Phase: phase})

	res, err := l.invoke(ctx, st, role, prompt)
	if err != nil {
		return nil, err
	}

	phaseRes := state.FromRunnerResult(res)
	rec.SetResult(phase, phaseRes)
	if err := l.states.Save(st); err != nil {
		return nil, err
	}
	return phaseRes, nil
}

func (l *Loop) invoke(ctx context.Context, st *state.ExecutionState, role, prompt string) (*runner.Result, error) {
	r, err := l.runners.RunnerFor(role)
	if err != nil {
		return nil, err
	}
	cfg := l.runners.ConfigFor(role)

	// The mock backend resolves no spec file, so dry runs work in trees
	// without agent definitions.
	specPath := role
	if cfg.Runner != runner.KindMock {
		specPath, err = l.runners.AgentPath(role)
		if err != nil {
			return nil, err
		}
	}

	pctx := runner.PromptContext{
		"task_id":        st.TaskID,
		"task_path":      st.TaskFile,
		"iteration":      st.CurrentIteration,
		"max_iterations": st.MaxIterations,
	}
	if st.FixInfo != "" {
		pctx["fix_info"] = st.FixInfo
	}

	start := time.Now()
	res, runErr := r.RunAgent(ctx, specPath, prompt, pctx, cfg.Timeout)
	duration := time.Since(start)

	if runErr != nil {
		// Interrupted: the subprocess has been torn down and the state
		// reflects the last completed phase. Persist once more so
		// UpdatedAt marks the stop.
		if saveErr := l.states.Save(st); saveErr != nil {
			l.logger.Error("state save on interrupt failed", "task_id", st.TaskID, "error", saveErr)
		}
		return nil, runErr
	}

	l.recordInvocation(st, r.Name(), res, duration)
	return res, nil
}

func (l *Loop) recordInvocation(st *state.ExecutionState, runnerName string, res *runner.Result, duration time.Duration) {
	if l.history == nil {
		return
	}
	inv := &history.Invocation{
		TaskID:    st.TaskID,
		Iteration: st.CurrentIteration,
		Phase:     st.Phase,
		Runner:    runnerName,
		Success:   res.Success,
		Error:     res.Error,
		ExitCode:  res.ExitCode,
		Duration:  duration,
	}
	if res.TokenUsage != nil {
		inv.TokensInput = res.TokenUsage.Input
		inv.TokensOutput = res.TokenUsage.Output
	}
	inv.TokensTotal = res.TokensUsed
	if err := l.history.Record(inv); err != nil {
		l.logger.Warn("history record failed", "task_id", st.TaskID, "phase", string(st.Phase), "error", err)
	}
}

// boolField reads a boolean from a phase's structured output; absent or
// malformed output reads as false.
func boolField(res *state.PhaseResult, key string) bool {
	if !res.Success || res.StructuredOutput == nil {
		return false
	}
	v, _ := res.StructuredOutput[key].(bool)
	return v
}

func stringField(res *state.PhaseResult, key string) string {
	if res.StructuredOutput == nil {
		return ""
	}
	v, _ := res.StructuredOutput[key].(string)
	return v
}

// failureInfo picks the most useful fix description a failed verification
// offered: its structured field, then its error, then the raw output.
func failureInfo(res *state.PhaseResult, key string) string {
	if v := stringField(res, key); v != "" {
		return v
	}
	if res.Error != "" {
		return res.Error
	}
	return res.Output
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
