package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClaudeRunner drives the Claude Code CLI. Claude resolves named agents
// itself, so instead of embedding the agent specification into the prompt
// the runner passes `--agent <name>` and lets the CLI load the definition
// from the project's agent directory.
type ClaudeRunner struct {
	model      string
	workingDir string
	skipPerms  bool
}

type ClaudeOption func(*ClaudeRunner)

func WithClaudeModel(model string) ClaudeOption {
	return func(r *ClaudeRunner) { r.model = model }
}

func WithClaudeSkipPermissions() ClaudeOption {
	return func(r *ClaudeRunner) { r.skipPerms = true }
}

func NewClaudeRunner(workingDir string, opts ...ClaudeOption) *ClaudeRunner {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	r := &ClaudeRunner{workingDir: workingDir, skipPerms: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ClaudeRunner) Name() string {
	if r.model != "" {
		return fmt.Sprintf("claude-cli (%s)", r.model)
	}
	return "claude-cli"
}

func (r *ClaudeRunner) IsAvailable() bool {
	return lookPathOK("claude")
}

// AgentNameFromSpec derives the CLI agent name from a spec file path:
// the file stem with underscores normalized to hyphens.
func AgentNameFromSpec(specPath string) string {
	stem := strings.TrimSuffix(filepath.Base(specPath), filepath.Ext(specPath))
	return strings.ReplaceAll(stem, "_", "-")
}

func (r *ClaudeRunner) RunAgent(ctx context.Context, specPath, prompt string, pctx PromptContext, timeout time.Duration) (*Result, error) {
	// Skills and context still travel in the prompt; only the agent body
	// is resolved natively by the CLI, so an unreadable spec costs the
	// skills section but not the run.
	skillsSection := ""
	if spec, err := LoadAgentSpec(specPath); err == nil {
		skillsSection = RenderSkills(spec, SkillDirsFor(specPath, r.workingDir))
	} else {
		slog.Warn("agent spec unreadable, skills skipped", "path", specPath, "error", err)
	}
	full := AssemblePrompt("", skillsSection, pctx, prompt)
	return r.run(ctx, AgentNameFromSpec(specPath), full, timeout)
}

func (r *ClaudeRunner) RunPrompt(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (*Result, error) {
	full := AssemblePrompt(systemPrompt, "", nil, prompt)
	return r.run(ctx, "", full, timeout)
}

func (r *ClaudeRunner) run(ctx context.Context, agent, prompt string, timeout time.Duration) (*Result, error) {
	if !r.IsAvailable() {
		return Failure("claude CLI not found, is it installed?", ExitNotFound), nil
	}

	pre := TakeSnapshot(r.workingDir)

	outcome, err := runCommand(ctx, execRequest{
		argv:    r.buildArgs(agent, prompt),
		dir:     r.workingDir,
		timeout: timeout,
	})
	if err != nil {
		return Failure("interrupted", 130), err
	}

	switch {
	case outcome.timedOut:
		return Failure(fmt.Sprintf("command timed out after %s", timeout), ExitTimeout), nil
	case outcome.notFound:
		return Failure("claude CLI not found, is it installed?", ExitNotFound), nil
	case outcome.runErr != nil:
		return Failure(outcome.runErr.Error(), 1), nil
	case outcome.exitCode != 0:
		errMsg := outcome.stderr
		if errMsg == "" {
			errMsg = fmt.Sprintf("exit code: %d", outcome.exitCode)
		}
		res := Failure(errMsg, outcome.exitCode)
		res.Output = outcome.stdout
		return res, nil
	}

	text, usage := parseStreamOutput(outcome.stdout)
	structured := ExtractJSON(text)
	if usage == nil {
		usage = usageFromText(outcome.stdout)
	}

	changed, added := pre.Diff()
	if len(changed) > 0 || len(added) > 0 {
		if structured == nil {
			structured = make(map[string]any)
		}
		if _, ok := structured["files_changed"]; !ok {
			structured["files_changed"] = changed
		}
		if _, ok := structured["files_added"]; !ok {
			structured["files_added"] = added
		}
	}

	return Succeeded(text, structured, usage), nil
}

func (r *ClaudeRunner) buildArgs(agent, prompt string) []string {
	args := []string{
		"claude",
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}
	if agent != "" {
		args = append(args, "--agents", agent)
	}
	if r.model != "" {
		args = append(args, "--model", r.model)
	}
	if r.skipPerms {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, prompt)
	return args
}

// claudeStreamMessage covers the subset of the stream-json protocol the
// runner cares about. The final "result" message carries the text and
// cumulative token usage.
type claudeStreamMessage struct {
	Type   string `json:"type"`
	Result string `json:"result,omitempty"`
	Usage  struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	} `json:"usage,omitempty"`
}

// parseStreamOutput scans stream-json lines for the result message.
// If none is found (plain text output, older CLI), the raw output is
// returned unchanged with no usage.
func parseStreamOutput(raw string) (string, *TokenUsage) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var text string
	var usage *TokenUsage
	found := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var msg claudeStreamMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Type != "result" {
			continue
		}
		found = true
		text = msg.Result
		u := msg.Usage
		if u.InputTokens > 0 || u.OutputTokens > 0 {
			usage = &TokenUsage{
				Input:      u.InputTokens,
				Output:     u.OutputTokens,
				CacheRead:  u.CacheReadInputTokens,
				CacheWrite: u.CacheCreationInputTokens,
			}
			usage.Total = usage.Input + usage.Output
		}
	}
	if !found {
		return raw, nil
	}
	return text, usage
}
