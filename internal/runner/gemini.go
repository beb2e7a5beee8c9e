package runner

import (
	"context"
	"fmt"
	"os"
	"time"
)

// GeminiRunner drives the Gemini CLI. Like Codex it embeds the agent
// specification into the prompt, but the CLI takes the prompt as a `-p`
// argument rather than on stdin.
type GeminiRunner struct {
	model      string
	workingDir string
	yolo       bool
}

type GeminiOption func(*GeminiRunner)

func WithGeminiModel(model string) GeminiOption {
	return func(r *GeminiRunner) { r.model = model }
}

func WithGeminiYolo(enabled bool) GeminiOption {
	return func(r *GeminiRunner) { r.yolo = enabled }
}

func NewGeminiRunner(workingDir string, opts ...GeminiOption) *GeminiRunner {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	r := &GeminiRunner{workingDir: workingDir, yolo: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *GeminiRunner) Name() string {
	if r.model != "" {
		return fmt.Sprintf("gemini-cli (%s)", r.model)
	}
	return "gemini-cli"
}

func (r *GeminiRunner) IsAvailable() bool {
	return lookPathOK("gemini")
}

func (r *GeminiRunner) RunAgent(ctx context.Context, specPath, prompt string, pctx PromptContext, timeout time.Duration) (*Result, error) {
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

func (r *GeminiRunner) RunPrompt(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (*Result, error) {
	full := AssemblePrompt(systemPrompt, "", nil, prompt)
	return r.run(ctx, full, timeout)
}

func (r *GeminiRunner) run(ctx context.Context, prompt string, timeout time.Duration) (*Result, error) {
	if !r.IsAvailable() {
		return Failure("gemini CLI not found, is it installed?", ExitNotFound), nil
	}

	pre := TakeSnapshot(r.workingDir)

	outcome, err := runCommand(ctx, execRequest{
		argv:    r.buildArgs(prompt),
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
		return Failure("gemini CLI not found, is it installed?", ExitNotFound), nil
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

	var usage *TokenUsage
	if structured != nil {
		var candidates []map[string]any
		collectUsageCandidates(structured, &candidates)
		if len(candidates) > 0 {
			usage = NormalizeUsage(candidates[len(candidates)-1])
		}
	}
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

	return Succeeded(outcome.stdout, structured, usage), nil
}

func (r *GeminiRunner) buildArgs(prompt string) []string {
	args := []string{"gemini"}
	if r.model != "" {
		args = append(args, "-m", r.model)
	}
	if r.yolo {
		args = append(args, "--yolo")
	}
	args = append(args, "-p", prompt)
	return args
}
