package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// RuffTool wraps the ruff linter.
type RuffTool struct{}

func NewRuffTool() *RuffTool { return &RuffTool{} }

func (t *RuffTool) Name() string    { return "ruff" }
func (t *RuffTool) Command() string { return "ruff" }

type ruffFinding struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Location struct {
		Row int `json:"row"`
	} `json:"location"`
}

func (t *RuffTool) Run(ctx context.Context, target string, cfg Config) *Result {
	argv := []string{"ruff", "check", target}
	if configPath := cfg.str("config_path"); configPath != "" {
		argv = append(argv, "--config", configPath)
	}
	argv = append(argv, "--output-format", "json")

	exitCode, stdout, stderr := runCommand(ctx, argv, "", time.Duration(cfg.intOr("timeout_seconds", 0))*time.Second)

	var issues []Issue
	metrics := map[string]any{"total_issues": 0}
	byCode := map[string]int{}

	if strings.TrimSpace(stdout) != "" {
		var findings []ruffFinding
		if err := json.Unmarshal([]byte(stdout), &findings); err == nil {
			for _, f := range findings {
				issues = append(issues, Issue{
					File:     f.Filename,
					Line:     f.Location.Row,
					Code:     f.Code,
					Message:  f.Message,
					Blocking: true,
				})
				byCode[f.Code]++
			}
		} else {
			// Unexpected output shape, keep the raw lines.
			for _, line := range strings.Split(stdout, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					issues = append(issues, Issue{Message: line, Blocking: true})
				}
			}
		}
	}
	metrics["total_issues"] = len(issues)
	if len(byCode) > 0 {
		metrics["by_code"] = byCode
	}

	status := StatusSuccess
	if exitCode != 0 {
		status = StatusFailure
	}
	if exitCode > 1 {
		// ruff uses exit 2 for its own errors (bad config, crash).
		status = StatusError
	}

	return &Result{
		ToolName: t.Name(),
		Status:   status,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Issues:   issues,
		Metrics:  metrics,
	}
}

// RunFix runs ruff with --fix, auto-resolving what it can.
func (t *RuffTool) RunFix(ctx context.Context, target string, cfg Config) *Result {
	argv := []string{"ruff", "check", "--fix", target}
	if configPath := cfg.str("config_path"); configPath != "" {
		argv = append(argv, "--config", configPath)
	}
	exitCode, stdout, stderr := runCommand(ctx, argv, "", 0)

	status := StatusSuccess
	if exitCode != 0 {
		status = StatusPartial
	}
	return &Result{
		ToolName: t.Name(),
		Status:   status,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}
}
