package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRegistryDefaultsApply(t *testing.T) {
	reg := NewRegistry(t.TempDir(), "agents")
	reg.SetDefaults(AgentConfig{Runner: KindMock, Timeout: time.Minute})

	cfg := reg.ConfigFor("implementation")
	if cfg.Runner != KindMock || cfg.Timeout != time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestRegistryConfigureAgentInheritsDefaults(t *testing.T) {
	reg := NewRegistry(t.TempDir(), "agents")
	reg.SetDefaults(AgentConfig{Runner: KindMock, Timeout: 10 * time.Minute})
	reg.ConfigureAgent("qa", AgentConfig{Model: "fast-model"})

	cfg := reg.ConfigFor("qa")
	if cfg.Runner != KindMock {
		t.Errorf("Runner = %q, want inherited mock", cfg.Runner)
	}
	if cfg.Timeout != 10*time.Minute {
		t.Errorf("Timeout = %s, want inherited default", cfg.Timeout)
	}
	if cfg.Model != "fast-model" {
		t.Errorf("Model = %q", cfg.Model)
	}
}

func TestRegistryRunnerCachedPerKindAndModel(t *testing.T) {
	reg := NewRegistry(t.TempDir(), "agents")
	reg.ConfigureAgent("implementation", AgentConfig{Runner: KindMock})
	reg.ConfigureAgent("qa", AgentConfig{Runner: KindMock})

	a, err := reg.RunnerFor("implementation")
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.RunnerFor("qa")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected the same cached runner for identical configs")
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	reg := NewRegistry(t.TempDir(), "agents")
	reg.ConfigureAgent("manager", AgentConfig{Runner: Kind("nonsense")})
	if _, err := reg.RunnerFor("manager"); err == nil {
		t.Error("expected an error for an unregistered kind")
	}
}

func TestRegistryAgentPathVariant(t *testing.T) {
	agentsDir := t.TempDir()
	variantPath := filepath.Join(agentsDir, "qa-playwright.md")
	if err := os.WriteFile(variantPath, []byte("playwright qa\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	basePath := filepath.Join(agentsDir, "manager.md")
	if err := os.WriteFile(basePath, []byte("manager\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(t.TempDir(), agentsDir)
	reg.ConfigureAgent("qa", AgentConfig{Runner: KindMock, Variant: "playwright"})
	got, err := reg.AgentPath("qa")
	if err != nil {
		t.Fatal(err)
	}
	if got != variantPath {
		t.Errorf("AgentPath = %q, want %q", got, variantPath)
	}

	// A variant without a suffixed spec file falls back to the base path.
	reg.ConfigureAgent("manager", AgentConfig{Runner: KindMock, Variant: "playwright"})
	got, err = reg.AgentPath("manager")
	if err != nil {
		t.Fatal(err)
	}
	if got != basePath {
		t.Errorf("AgentPath = %q, want base fallback", got)
	}

	// Neither variant nor base file present.
	reg.ConfigureAgent("ghost", AgentConfig{Runner: KindMock})
	if _, err := reg.AgentPath("ghost"); err == nil {
		t.Error("expected an error when no spec file exists")
	}
}

func TestRegistryValidateMockAlwaysPasses(t *testing.T) {
	reg := NewRegistry(t.TempDir(), "agents")
	reg.SetDefaults(AgentConfig{Runner: KindMock, Timeout: time.Minute})
	if err := reg.Validate("implementation", "qa", "manager"); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"claude", "codex", "gemini", "mock"} {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("ParseKind(%q) = %v", s, err)
		}
	}
	if _, err := ParseKind("bard"); err == nil {
		t.Error("expected an error for an unknown kind")
	}
}
