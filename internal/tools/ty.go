package tools

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TyTool wraps the ty type checker.
type TyTool struct{}

func NewTyTool() *TyTool { return &TyTool{} }

func (t *TyTool) Name() string    { return "ty" }
func (t *TyTool) Command() string { return "ty" }

// Matches "path/to/file.py:12:3: error: message" style diagnostics.
var tyDiagPattern = regexp.MustCompile(`^(.+?):(\d+)(?::\d+)?:\s*(error|warning)\b`)

func (t *TyTool) Run(ctx context.Context, target string, cfg Config) *Result {
	argv := []string{"ty", "check", target}
	if cfg.boolOr("strict", false) {
		argv = append(argv, "--strict")
	}

	exitCode, stdout, stderr := runCommand(ctx, argv, "", time.Duration(cfg.intOr("timeout_seconds", 0))*time.Second)

	var issues []Issue
	errorCount := 0
	output := stdout
	if output == "" {
		output = stderr
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "error:") && !strings.Contains(lower, "warning:") {
			continue
		}
		issue := Issue{Message: line, Blocking: true}
		if m := tyDiagPattern.FindStringSubmatch(line); m != nil {
			issue.File = m[1]
			issue.Line, _ = strconv.Atoi(m[2])
			issue.Code = m[3]
		}
		if strings.Contains(lower, "error:") {
			errorCount++
		}
		issues = append(issues, issue)
	}

	status := StatusSuccess
	if exitCode != 0 {
		status = StatusFailure
	}

	return &Result{
		ToolName: t.Name(),
		Status:   status,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Issues:   issues,
		Metrics:  map[string]any{"total_errors": errorCount},
	}
}
