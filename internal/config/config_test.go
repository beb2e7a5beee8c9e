package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.General.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.General.MaxIterations)
	}
	if cfg.Runners.Default != "claude" {
		t.Errorf("Runners.Default = %q, want claude", cfg.Runners.Default)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
	want := []string{"ruff", "ty", "complexity", "pytest"}
	got := cfg.EnabledTools()
	if len(got) != len(want) {
		t.Fatalf("EnabledTools = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EnabledTools[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
state_dir = "/var/saha"
max_iterations = 5

[runners]
default = "codex"
codex_model = "gpt-5-codex"

[agents.qa]
runner = "gemini"
timeout_seconds = 120

[tools.complexity]
enabled = false
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.StateDir != "/var/saha" {
		t.Errorf("StateDir = %q", cfg.General.StateDir)
	}
	if cfg.General.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.General.MaxIterations)
	}
	if cfg.Runners.Default != "codex" {
		t.Errorf("Runners.Default = %q, want codex", cfg.Runners.Default)
	}
	if cfg.Agents["qa"].Runner != "gemini" {
		t.Errorf("Agents[qa].Runner = %q, want gemini", cfg.Agents["qa"].Runner)
	}
	for _, name := range cfg.EnabledTools() {
		if name == "complexity" {
			t.Error("complexity should be disabled")
		}
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want defaults", cfg.General.MaxIterations)
	}
}

func TestAgentFor_Precedence(t *testing.T) {
	cfg := Default()
	cfg.Runners.Default = "claude"
	cfg.Runners.TimeoutSeconds = 300
	cfg.Agents["qa"] = AgentConfig{Runner: "gemini", Variant: "playwright"}

	// Explicit per-agent override wins.
	qa := cfg.AgentFor("qa")
	if qa.Runner != "gemini" || qa.Variant != "playwright" {
		t.Errorf("qa = %+v", qa)
	}
	// Missing fields inherit runner defaults.
	if qa.TimeoutSeconds != 300 {
		t.Errorf("qa timeout = %d, want inherited 300", qa.TimeoutSeconds)
	}
	if qa.Model != cfg.Runners.GeminiModel {
		t.Errorf("qa model = %q, want gemini default", qa.Model)
	}

	// Unconfigured roles get the global default.
	impl := cfg.AgentFor("implementation")
	if impl.Runner != "claude" {
		t.Errorf("implementation runner = %q, want claude", impl.Runner)
	}
	if impl.Timeout() != 300*time.Second {
		t.Errorf("implementation timeout = %s", impl.Timeout())
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SAHA_RUNNER", "codex")
	t.Setenv("SAHA_MAX_ITERATIONS", "3")
	t.Setenv("SAHA_AGENT_QA_RUNNER", "gemini")
	t.Setenv("SAHA_AGENT_QA_TIMEOUT", "60")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Runners.Default != "codex" {
		t.Errorf("Runners.Default = %q, want codex", cfg.Runners.Default)
	}
	if cfg.General.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", cfg.General.MaxIterations)
	}
	qa := cfg.AgentFor("qa")
	if qa.Runner != "gemini" || qa.TimeoutSeconds != 60 {
		t.Errorf("qa = %+v", qa)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
