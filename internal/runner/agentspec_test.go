package runner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadAgentSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "implementation.md")
	content := `---
name: implementation
description: Implements the task
skills:
  - tdd
  - refactoring
---

You are the implementation agent.
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadAgentSpec(path)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Name != "implementation" {
		t.Errorf("Name = %q", spec.Name)
	}
	if len(spec.Skills) != 2 || spec.Skills[0] != "tdd" || spec.Skills[1] != "refactoring" {
		t.Errorf("Skills = %v", spec.Skills)
	}
	if spec.Body != "You are the implementation agent." {
		t.Errorf("Body = %q", spec.Body)
	}
}

func TestLoadAgentSpecScalarSkills(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qa.md")
	content := "---\nname: qa\nskills: tdd, lint\n---\nbody\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadAgentSpec(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Skills) != 2 || spec.Skills[0] != "tdd" || spec.Skills[1] != "lint" {
		t.Errorf("Skills = %v", spec.Skills)
	}
}

func TestLoadAgentSpecMalformedFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.md")
	content := "---\n: not yaml [\n---\nstill a usable prompt\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadAgentSpec(path)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Name != "" {
		t.Errorf("Name = %q, want empty", spec.Name)
	}
	if spec.Body != "still a usable prompt" {
		t.Errorf("Body = %q", spec.Body)
	}
}

func TestLoadAgentSpecNoFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.md")
	if err := os.WriteFile(path, []byte("just a prompt\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadAgentSpec(path)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Body != "just a prompt" {
		t.Errorf("Body = %q", spec.Body)
	}
}

func TestLoadSkillFirstDirWins(t *testing.T) {
	primary := t.TempDir()
	secondary := t.TempDir()
	for dir, body := range map[string]string{primary: "primary body", secondary: "secondary body"} {
		skillDir := filepath.Join(dir, "tdd")
		if err := os.MkdirAll(skillDir, 0o755); err != nil {
			t.Fatal(err)
		}
		content := "---\nname: tdd\n---\n" + body + "\n"
		if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	body, ok := LoadSkill("tdd", []string{primary, secondary})
	if !ok {
		t.Fatal("skill not found")
	}
	if body != "primary body" {
		t.Errorf("body = %q", body)
	}

	if _, ok := LoadSkill("missing", []string{primary, secondary}); ok {
		t.Error("expected missing skill to report not found")
	}
}

func TestAssemblePromptOrder(t *testing.T) {
	got := AssemblePrompt("SYSTEM", "SKILLS", PromptContext{"iteration": 2}, "DO THE WORK")

	sys := strings.Index(got, "SYSTEM")
	skills := strings.Index(got, "SKILLS")
	ctx := strings.Index(got, "## Context")
	work := strings.Index(got, "DO THE WORK")
	if sys == -1 || skills == -1 || ctx == -1 || work == -1 {
		t.Fatalf("missing section in %q", got)
	}
	if !(sys < skills && skills < ctx && ctx < work) {
		t.Errorf("section order wrong: sys=%d skills=%d ctx=%d work=%d", sys, skills, ctx, work)
	}
	if !strings.Contains(got, `"iteration": 2`) {
		t.Errorf("context payload missing from %q", got)
	}
}

func TestAssemblePromptBarePrompt(t *testing.T) {
	if got := AssemblePrompt("", "", nil, "hello"); got != "hello" {
		t.Errorf("got %q, want the prompt unchanged", got)
	}
}

func TestAgentNameFromSpec(t *testing.T) {
	if got := AgentNameFromSpec("/x/agents/completion_check.md"); got != "completion-check" {
		t.Errorf("got %q", got)
	}
	if got := AgentNameFromSpec("qa.md"); got != "qa" {
		t.Errorf("got %q", got)
	}
}
