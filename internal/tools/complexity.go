package tools

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const defaultComplexityThreshold = 15

// ComplexityTool wraps complexipy, a cognitive-complexity analyzer.
type ComplexityTool struct{}

func NewComplexityTool() *ComplexityTool { return &ComplexityTool{} }

func (t *ComplexityTool) Name() string    { return "complexity" }
func (t *ComplexityTool) Command() string { return "complexipy" }

func (t *ComplexityTool) Run(ctx context.Context, target string, cfg Config) *Result {
	threshold := cfg.intOr("threshold", defaultComplexityThreshold)

	argv := []string{"complexipy", target, "--max-complexity", strconv.Itoa(threshold)}
	exitCode, stdout, stderr := runCommand(ctx, argv, "", time.Duration(cfg.intOr("timeout_seconds", 0))*time.Second)

	var issues []Issue
	var flagged []string

	// complexipy's table output varies between versions; scan each line for
	// a numeric score over the threshold rather than parsing the layout.
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(line), "complexity") && !strings.Contains(line, ":") {
			continue
		}
		for _, part := range strings.Fields(line) {
			score, err := strconv.Atoi(part)
			if err != nil {
				continue
			}
			if score > threshold {
				issues = append(issues, Issue{Message: line, Blocking: true})
				flagged = append(flagged, line)
			}
			break
		}
	}

	status := StatusSuccess
	if len(issues) > 0 {
		status = StatusFailure
	}

	return &Result{
		ToolName: t.Name(),
		Status:   status,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Issues:   issues,
		Metrics: map[string]any{
			"threshold":                 threshold,
			"high_complexity_functions": flagged,
		},
	}
}
