//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sahaidachny/saha/internal/config"
	"github.com/sahaidachny/saha/internal/history"
	"github.com/sahaidachny/saha/internal/logging"
	"github.com/sahaidachny/saha/internal/loop"
	"github.com/sahaidachny/saha/internal/state"
)

// writeTestConfig writes a config pointing every path at dir.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	data := `[general]
state_dir = "` + filepath.Join(dir, "state") + `"
history_db = "` + filepath.Join(dir, "history.db") + `"
task_base_path = "` + filepath.Join(dir, "tasks") + `"
max_iterations = 2
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// A dry run drives the whole machine with the mock backend. The mock's
// role-aware default verdicts approve every phase, so the run completes in
// one iteration; what this verifies is that config, loop, state and history
// agree end to end and everything lands on disk.
func TestDryRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(writeTestConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}

	logger := logging.New(logging.Options{})
	lp, cleanup, err := loop.FromConfig(cfg, logger, loop.Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	st, err := lp.Run(context.Background(), loop.RunConfig{
		TaskID:        "dry-task",
		TaskPath:      filepath.Join(cfg.General.TaskBasePath, "dry-task"),
		MaxIterations: cfg.General.MaxIterations,
	})
	if err != nil {
		t.Fatal(err)
	}

	if st.Phase != state.PhaseCompleted {
		t.Errorf("Phase = %q, want completed", st.Phase)
	}
	if len(st.Iterations) != 1 {
		t.Errorf("iterations = %d, want 1", len(st.Iterations))
	}

	// The state round-trips from disk.
	states := state.NewManager(cfg.General.StateDir)
	loaded, err := states.Load("dry-task")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Phase != state.PhaseCompleted || len(loaded.Iterations) != 1 {
		t.Errorf("persisted state: phase=%q iterations=%d", loaded.Phase, len(loaded.Iterations))
	}

	// Every mock invocation was recorded.
	hist, err := history.New(cfg.General.HistoryDB)
	if err != nil {
		t.Fatal(err)
	}
	defer hist.Close()
	invocations, err := hist.ForTask("dry-task")
	if err != nil {
		t.Fatal(err)
	}
	if len(invocations) == 0 {
		t.Error("no invocations recorded")
	}
	for _, inv := range invocations {
		if inv.Runner != "mock" {
			t.Errorf("runner = %q, want mock", inv.Runner)
		}
	}
}
