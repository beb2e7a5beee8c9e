package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentSpec is a parsed agent specification file: YAML frontmatter followed
// by a markdown body that becomes the backend's system prompt.
type AgentSpec struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Skills      skillList `yaml:"skills"`
	Body        string    `yaml:"-"`
}

// skillList accepts both a YAML sequence and a comma-separated scalar,
// since agent specs in the wild use either form.
type skillList []string

func (s *skillList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				*s = append(*s, part)
			}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*s = append(*s, items...)
		return nil
	}
	return fmt.Errorf("skills: unsupported YAML node kind %d", node.Kind)
}

// splitFrontmatter separates a leading "---" delimited YAML block from the
// body. Content without frontmatter is returned unchanged as the body.
func splitFrontmatter(content string) (frontmatter, body string) {
	if !strings.HasPrefix(content, "---\n") {
		return "", content
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return "", content
	}
	return rest[:end], strings.TrimPrefix(rest[end+4:], "\n")
}

// LoadAgentSpec reads and parses an agent specification file. A malformed
// frontmatter block degrades to an empty metadata set rather than failing:
// the body alone is still a usable system prompt.
func LoadAgentSpec(path string) (*AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent spec: %w", err)
	}

	frontmatter, body := splitFrontmatter(string(data))
	spec := &AgentSpec{Body: strings.TrimSpace(body)}
	if frontmatter != "" {
		if err := yaml.Unmarshal([]byte(frontmatter), spec); err != nil {
			return &AgentSpec{Body: strings.TrimSpace(body)}, nil
		}
	}
	return spec, nil
}

// LoadSkill searches candidate directories for a named skill and returns
// its body with frontmatter stripped. The first match wins. A skill lives
// at <dir>/<name>/SKILL.md.
func LoadSkill(name string, candidateDirs []string) (string, bool) {
	for _, dir := range candidateDirs {
		path := filepath.Join(dir, name, "SKILL.md")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		_, body := splitFrontmatter(string(data))
		return strings.TrimSpace(body), true
	}
	return "", false
}

// SkillDirsFor returns the candidate skill directories for a spec path:
// the "skills" sibling of an "agents" directory, then a workspace-local
// skills directory.
func SkillDirsFor(specPath, workingDir string) []string {
	var dirs []string
	specDir := filepath.Dir(specPath)
	if filepath.Base(specDir) == "agents" {
		dirs = append(dirs, filepath.Join(filepath.Dir(specDir), "skills"))
	}
	dirs = append(dirs, filepath.Join(workingDir, ".claude", "skills"))
	return dirs
}

// RenderSkills loads every referenced skill and concatenates the bodies
// into a single section. Missing skills are skipped silently; the prompt is
// still useful without them.
func RenderSkills(spec *AgentSpec, candidateDirs []string) string {
	var rendered []string
	for _, name := range spec.Skills {
		body, ok := LoadSkill(name, candidateDirs)
		if !ok {
			continue
		}
		rendered = append(rendered, fmt.Sprintf("## Skill: %s\n\n%s", name, body))
	}
	return strings.Join(rendered, "\n\n")
}

const sectionDivider = "\n\n---\n\n"

// AssemblePrompt builds the single prompt string for backends without
// native agent support: system prompt, skills, context block, then the
// caller's prompt, each separated by an explicit divider so the backend
// cannot confuse section boundaries.
func AssemblePrompt(systemPrompt, skillsSection string, pctx PromptContext, prompt string) string {
	var parts []string
	if systemPrompt != "" {
		parts = append(parts, systemPrompt)
	}
	if skillsSection != "" {
		parts = append(parts, skillsSection)
	}
	if block := RenderContextBlock(pctx); block != "" {
		parts = append(parts, block)
	}
	parts = append(parts, prompt)
	return strings.Join(parts, sectionDivider)
}

// RenderContextBlock renders the context mapping as a fenced JSON block.
func RenderContextBlock(pctx PromptContext) string {
	if len(pctx) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(pctx, "", "  ")
	if err != nil {
		return ""
	}
	return "## Context\n\n```json\n" + string(data) + "\n```"
}
