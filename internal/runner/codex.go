package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CodexRunner drives the Codex CLI. Codex has no native concept of a named
// agent, so the agent specification and its skills are embedded into the
// prompt, which is delivered on stdin (`codex exec -`). File changes are
// detected by snapshot diffing because Codex emits no per-file events.
type CodexRunner struct {
	model         string
	workingDir    string
	sandbox       string // codex sandbox policy, e.g. "workspace-write"
	bypassSandbox bool
	sessionLogDir string // for the usage fallback chain
}

// CodexOption configures a CodexRunner.
type CodexOption func(*CodexRunner)

func WithCodexModel(model string) CodexOption {
	return func(r *CodexRunner) { r.model = model }
}

func WithCodexSandbox(policy string) CodexOption {
	return func(r *CodexRunner) { r.sandbox = policy }
}

func WithCodexBypassSandbox() CodexOption {
	return func(r *CodexRunner) { r.bypassSandbox = true }
}

// NewCodexRunner creates a runner operating in workingDir.
func NewCodexRunner(workingDir string, opts ...CodexOption) *CodexRunner {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	home, _ := os.UserHomeDir()
	logDir := filepath.Join(home, ".codex", "sessions")
	if env := os.Getenv("CODEX_HOME"); env != "" {
		logDir = filepath.Join(env, "sessions")
	}
	r := &CodexRunner{
		workingDir:    workingDir,
		sandbox:       "workspace-write",
		sessionLogDir: logDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *CodexRunner) Name() string {
	if r.model != "" {
		return fmt.Sprintf("codex-cli (%s)", r.model)
	}
	return "codex-cli"
}

func (r *CodexRunner) IsAvailable() bool {
	return lookPathOK("codex")
}

func (r *CodexRunner) RunAgent(ctx context.Context, specPath, prompt string, pctx PromptContext, timeout time.Duration) (*Result, error) {
	// The spec body is the system prompt here; running without it would
	// silently invoke a bare model.
	spec, err := LoadAgentSpec(specPath)
	if err != nil {
		return Failure(fmt.Sprintf("loading agent spec %s: %v", specPath, err), 1), nil
	}
	skillsSection := RenderSkills(spec, SkillDirsFor(specPath, r.workingDir))
	full := AssemblePrompt(spec.Body, skillsSection, pctx, prompt)
	return r.run(ctx, full, timeout)
}

func (r *CodexRunner) RunPrompt(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (*Result, error) {
	full := AssemblePrompt(systemPrompt, "", nil, prompt)
	return r.run(ctx, full, timeout)
}

func (r *CodexRunner) run(ctx context.Context, prompt string, timeout time.Duration) (*Result, error) {
	if !r.IsAvailable() {
		return Failure("codex CLI not found, is it installed?", ExitNotFound), nil
	}

	pre := TakeSnapshot(r.workingDir)

	outcome, err := runCommand(ctx, execRequest{
		argv:    r.buildArgs(),
		dir:     r.workingDir,
		stdin:   prompt,
		timeout: timeout,
	})
	if err != nil {
		return Failure("interrupted", 130), err
	}

	switch {
	case outcome.timedOut:
		return Failure(fmt.Sprintf("command timed out after %s", timeout), ExitTimeout), nil
	case outcome.notFound:
		return Failure("codex CLI not found, is it installed?", ExitNotFound), nil
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

	structured := ExtractJSON(outcome.stdout)

	usage := r.extractUsage(structured, outcome.stdout)

	changed, added := pre.Diff()
	if len(changed) > 0 || len(added) > 0 {
		if structured == nil {
			structured = make(map[string]any)
		}
		// An agent's own report takes precedence over the snapshot diff.
		if _, ok := structured["files_changed"]; !ok {
			structured["files_changed"] = changed
		}
		if _, ok := structured["files_added"]; !ok {
			structured["files_added"] = added
		}
	}

	return Succeeded(outcome.stdout, structured, usage), nil
}

// extractUsage runs the usage fallback chain: structured output first, then
// usage-shaped fragments in the raw output, then the newest session log.
// Absence is fine; an invocation never fails for lack of usage data.
func (r *CodexRunner) extractUsage(structured map[string]any, rawOutput string) *TokenUsage {
	if structured != nil {
		var candidates []map[string]any
		collectUsageCandidates(structured, &candidates)
		if len(candidates) > 0 {
			if usage := NormalizeUsage(candidates[len(candidates)-1]); usage != nil {
				return usage
			}
		}
	}
	if usage := usageFromText(rawOutput); usage != nil {
		return usage
	}
	return usageFromSessionLog(r.sessionLogDir, "rollout-*.jsonl")
}

func (r *CodexRunner) buildArgs() []string {
	args := []string{
		"codex", "exec", "-", // prompt on stdin
		"--color", "never",
		"--cd", r.workingDir,
		"--skip-git-repo-check",
	}
	if r.model != "" {
		args = append(args, "--model", r.model)
	}
	if r.bypassSandbox {
		args = append(args, "--dangerously-bypass-approvals-and-sandbox")
	} else if r.sandbox != "" {
		args = append(args, "--sandbox", r.sandbox)
	}
	return args
}
