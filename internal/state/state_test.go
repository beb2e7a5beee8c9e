package state

import (
	"errors"
	"testing"

	"github.com/sahaidachny/saha/internal/runner"
)

func TestBeginIterationKeepsCounterInSync(t *testing.T) {
	st := NewExecutionState("task-1", "tasks/task-1.md", 5)
	if st.CurrentIteration != 0 || len(st.Iterations) != 0 {
		t.Fatalf("fresh state: iteration=%d records=%d", st.CurrentIteration, len(st.Iterations))
	}

	for i := 1; i <= 3; i++ {
		rec := st.BeginIteration()
		if rec.Iteration != i {
			t.Errorf("record %d numbered %d", i, rec.Iteration)
		}
		if st.CurrentIteration != len(st.Iterations) {
			t.Errorf("counter %d != %d records", st.CurrentIteration, len(st.Iterations))
		}
	}
	if err := st.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejectsCounterMismatch(t *testing.T) {
	st := NewExecutionState("task-1", "tasks/task-1.md", 5)
	st.BeginIteration()
	st.CurrentIteration = 3
	if err := st.Validate(); err == nil {
		t.Error("expected a validation error for a counter mismatch")
	}

	// Terminal states are exempt: the counter is frozen at failure time.
	st.Phase = PhaseFailed
	if err := st.Validate(); err != nil {
		t.Errorf("terminal state should skip the counter check: %v", err)
	}
}

func TestIterationRecordPhaseRoundTrip(t *testing.T) {
	rec := &IterationRecord{Iteration: 1}
	phases := []Phase{PhaseImplementation, PhaseQA, PhaseCodeQuality, PhaseManager, PhaseCompletionCheck}
	for _, p := range phases {
		if rec.ResultFor(p) != nil {
			t.Errorf("%s: expected nil before recording", p)
		}
	}

	res := FromRunnerResult(runner.Succeeded("done", nil, &runner.TokenUsage{Input: 10, Output: 5, Total: 15}))
	rec.SetResult(PhaseQA, res)
	if rec.ResultFor(PhaseQA) != res {
		t.Error("recorded result not returned")
	}
	if rec.ResultFor(PhaseImplementation) != nil {
		t.Error("other phases must stay nil")
	}
	if rec.TokensUsed() != 15 {
		t.Errorf("TokensUsed = %d, want 15", rec.TokensUsed())
	}
}

func TestPhaseParsing(t *testing.T) {
	for _, s := range []string{"idle", "implementation", "qa", "code_quality", "manager", "completion_check", "completed", "failed"} {
		if _, err := ParsePhase(s); err != nil {
			t.Errorf("ParsePhase(%q): %v", s, err)
		}
	}
	if _, err := ParsePhase("test_critique"); err == nil {
		t.Error("expected unknown phase error")
	}
	if !PhaseCompleted.Terminal() || !PhaseFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
	if PhaseQA.Terminal() {
		t.Error("qa is not terminal")
	}
}

func TestManagerCreateLoadRoundTrip(t *testing.T) {
	m := NewManager(t.TempDir())

	st := NewExecutionState("auth-fix", "tasks/auth-fix.md", 10)
	rec := st.BeginIteration()
	rec.SetResult(PhaseImplementation, FromRunnerResult(runner.Succeeded("implemented", map[string]any{
		"files_changed": []string{"auth.py"},
	}, &runner.TokenUsage{Input: 100, Output: 20, Total: 120})))
	st.Phase = PhaseQA
	st.FixInfo = "tests failing in test_login"

	if err := m.Create(st); err != nil {
		t.Fatal(err)
	}

	loaded, err := m.Load("auth-fix")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Phase != PhaseQA {
		t.Errorf("Phase = %q", loaded.Phase)
	}
	if loaded.FixInfo != "tests failing in test_login" {
		t.Errorf("FixInfo = %q", loaded.FixInfo)
	}
	if loaded.CurrentIteration != 1 || len(loaded.Iterations) != 1 {
		t.Errorf("iterations: counter=%d records=%d", loaded.CurrentIteration, len(loaded.Iterations))
	}
	impl := loaded.Iterations[0].Implementation
	if impl == nil || !impl.Success || impl.TokensUsed != 120 {
		t.Errorf("implementation record = %+v", impl)
	}
	if loaded.Iterations[0].QA != nil {
		t.Error("unrecorded phase must load as nil")
	}
}

func TestManagerCreateRefusesExisting(t *testing.T) {
	m := NewManager(t.TempDir())
	st := NewExecutionState("dup", "tasks/dup.md", 3)
	if err := m.Create(st); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(st); !errors.Is(err, ErrExists) {
		t.Errorf("err = %v, want ErrExists", err)
	}
}

func TestManagerLoadMissing(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.Load("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestManagerTerminalTransitions(t *testing.T) {
	m := NewManager(t.TempDir())
	st := NewExecutionState("t", "tasks/t.md", 3)
	st.FixInfo = "pending fixes"
	if err := m.Create(st); err != nil {
		t.Fatal(err)
	}

	if err := m.MarkCompleted(st); err != nil {
		t.Fatal(err)
	}
	loaded, err := m.Load("t")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Phase != PhaseCompleted || loaded.CompletedAt == nil {
		t.Errorf("completed state = %+v", loaded)
	}
	if loaded.FixInfo != "" {
		t.Error("fix info must be cleared on completion")
	}

	st2 := NewExecutionState("t2", "tasks/t2.md", 3)
	if err := m.Create(st2); err != nil {
		t.Fatal(err)
	}
	if err := m.MarkFailed(st2, "max iterations reached"); err != nil {
		t.Fatal(err)
	}
	loaded2, err := m.Load("t2")
	if err != nil {
		t.Fatal(err)
	}
	if loaded2.Phase != PhaseFailed || loaded2.FailureReason != "max iterations reached" {
		t.Errorf("failed state = %+v", loaded2)
	}
}

func TestManagerListAndDelete(t *testing.T) {
	m := NewManager(t.TempDir())
	for _, id := range []string{"b-task", "a-task"} {
		if err := m.Create(NewExecutionState(id, "tasks/"+id+".md", 3)); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := m.ListTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "a-task" || ids[1] != "b-task" {
		t.Errorf("ids = %v", ids)
	}

	removed, err := m.Delete("a-task")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("expected Delete to report removal")
	}
	if m.Exists("a-task") {
		t.Error("a-task should be gone")
	}
	removed, err = m.Delete("a-task")
	if err != nil {
		t.Error("deleting a missing task must not fail")
	}
	if removed {
		t.Error("second delete must report nothing removed")
	}
}

func TestManagerSavePreservesPriorStateOnFailure(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	st := NewExecutionState("keep", "tasks/keep.md", 3)
	if err := m.Create(st); err != nil {
		t.Fatal(err)
	}

	// Replacing the state dir with a file makes subsequent writes fail.
	sub := NewManager(dir + "/keep.yaml")
	bad := NewExecutionState("keep", "tasks/keep.md", 3)
	if err := sub.Save(bad); err == nil {
		t.Fatal("expected save to fail")
	}

	loaded, err := m.Load("keep")
	if err != nil {
		t.Fatalf("prior state must still load: %v", err)
	}
	if loaded.TaskID != "keep" {
		t.Errorf("TaskID = %q", loaded.TaskID)
	}
}
