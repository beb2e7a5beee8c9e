package tools

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const defaultPytestTimeout = 5 * time.Minute

// PytestTool runs the project's test suite.
type PytestTool struct{}

func NewPytestTool() *PytestTool { return &PytestTool{} }

func (t *PytestTool) Name() string    { return "pytest" }
func (t *PytestTool) Command() string { return "pytest" }

func (t *PytestTool) Run(ctx context.Context, target string, cfg Config) *Result {
	argv := []string{"pytest", target}
	if cfg.boolOr("verbose", true) {
		argv = append(argv, "-v")
	}
	if pattern := cfg.str("test_pattern"); pattern != "" {
		argv = append(argv, "-k", pattern)
	}
	if extra, ok := cfg["extra_args"].([]string); ok {
		argv = append(argv, extra...)
	}

	timeout := time.Duration(cfg.intOr("timeout_seconds", 0)) * time.Second
	if timeout == 0 {
		timeout = defaultPytestTimeout
	}
	exitCode, stdout, stderr := runCommand(ctx, argv, "", timeout)

	metrics := map[string]int{"passed": 0, "failed": 0, "errors": 0, "skipped": 0}
	var issues []Issue
	parsePytestOutput(stdout, metrics, &issues)

	var status Status
	switch {
	case exitCode == 0:
		status = StatusSuccess
	case metrics["failed"] > 0 || metrics["errors"] > 0:
		status = StatusFailure
	default:
		// Non-zero exit with no recognizable failures: collection error,
		// usage error, or the runner itself broke.
		status = StatusError
	}

	return &Result{
		ToolName: t.Name(),
		Status:   status,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Issues:   issues,
		Metrics: map[string]any{
			"passed":  metrics["passed"],
			"failed":  metrics["failed"],
			"errors":  metrics["errors"],
			"skipped": metrics["skipped"],
		},
	}
}

// parsePytestOutput reads the summary line ("3 passed, 1 failed in 0.2s")
// and collects FAILED lines as issues.
func parsePytestOutput(output string, metrics map[string]int, issues *[]Issue) {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FAILED") {
			*issues = append(*issues, Issue{Message: trimmed, Blocking: true})
		}

		lower := strings.ToLower(trimmed)
		if !strings.Contains(lower, "passed") && !strings.Contains(lower, "failed") &&
			!strings.Contains(lower, "error") {
			continue
		}
		parts := strings.Fields(strings.Map(func(r rune) rune {
			if r == ',' {
				return ' '
			}
			return r
		}, lower))
		for i, part := range parts {
			if i == 0 {
				continue
			}
			n, err := strconv.Atoi(parts[i-1])
			if err != nil {
				continue
			}
			switch strings.Trim(part, ".,") {
			case "passed":
				metrics["passed"] = n
			case "failed":
				metrics["failed"] = n
			case "error", "errors":
				metrics["errors"] = n
			case "skipped":
				metrics["skipped"] = n
			}
		}
	}
}
