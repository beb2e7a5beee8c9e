// Package tools integrates the external quality tools (linter, type
// checker, complexity analyzer, test runner) that back the code-quality
// phase. Each tool is a subprocess whose machine-readable output is parsed
// into a common result shape.
package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// Status classifies a tool run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure" // the tool ran and found problems
	StatusError   Status = "error"   // the tool itself could not run
	StatusPartial Status = "partial" // fix mode resolved some but not all issues
)

// Issue is one finding reported by a tool. Blocking is decided later by the
// changed-range filter; a freshly parsed issue always starts blocking.
type Issue struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

// Result is the outcome of a single tool run.
type Result struct {
	ToolName string         `json:"tool_name"`
	Status   Status         `json:"status"`
	ExitCode int            `json:"exit_code"`
	Stdout   string         `json:"stdout,omitempty"`
	Stderr   string         `json:"stderr,omitempty"`
	Issues   []Issue        `json:"issues,omitempty"`
	Metrics  map[string]any `json:"metrics,omitempty"`
}

// Config carries tool-specific settings (config file path, thresholds,
// extra arguments). Tools read only the keys they understand.
type Config map[string]any

func (c Config) str(key string) string {
	if c == nil {
		return ""
	}
	v, _ := c[key].(string)
	return v
}

func (c Config) intOr(key string, fallback int) int {
	if c == nil {
		return fallback
	}
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func (c Config) boolOr(key string, fallback bool) bool {
	if c == nil {
		return fallback
	}
	if v, ok := c[key].(bool); ok {
		return v
	}
	return fallback
}

// Tool is an external quality tool.
type Tool interface {
	// Name identifies the tool in configuration and results.
	Name() string

	// Command is the binary probed for availability.
	Command() string

	// Run executes the tool against a file or directory.
	Run(ctx context.Context, target string, cfg Config) *Result
}

const defaultToolTimeout = 2 * time.Minute

// runCommand executes a tool subprocess, capturing output and mapping
// timeout and missing-binary failures to the conventional exit codes.
func runCommand(ctx context.Context, argv []string, dir string, timeout time.Duration) (exitCode int, stdout, stderr string) {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return 124, stdout, "command timed out"
	case err == nil:
		return 0, stdout, stderr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), stdout, stderr
	}
	if errors.Is(err, exec.ErrNotFound) {
		return 127, stdout, "command not found: " + argv[0]
	}
	return 1, stdout, err.Error()
}

func installed(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
