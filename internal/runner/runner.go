// Package runner abstracts the external LLM command-line backends that
// execute agents. Each backend family (claude, codex, gemini) has its own
// command syntax, prompt-delivery channel, and output format; the Runner
// interface hides those differences from the orchestration loop.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind identifies a backend family.
type Kind string

const (
	KindClaude Kind = "claude"
	KindCodex  Kind = "codex"
	KindGemini Kind = "gemini"
	KindMock   Kind = "mock"
)

// ParseKind validates a backend kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindClaude, KindCodex, KindGemini, KindMock:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown runner kind: %q", s)
}

// ErrUnavailable is returned by startup validation when a configured
// backend CLI is not installed.
var ErrUnavailable = errors.New("runner not available")

// PromptContext carries cross-iteration data rendered into the agent prompt
// (task id, iteration number, fix_info from a failed verification phase).
type PromptContext map[string]any

// TokenUsage holds normalized token counts for a single invocation.
type TokenUsage struct {
	Input      int `json:"input_tokens,omitempty" yaml:"input_tokens,omitempty"`
	Output     int `json:"output_tokens,omitempty" yaml:"output_tokens,omitempty"`
	CacheRead  int `json:"cache_read_input_tokens,omitempty" yaml:"cache_read_input_tokens,omitempty"`
	CacheWrite int `json:"cache_write_input_tokens,omitempty" yaml:"cache_write_input_tokens,omitempty"`
	Total      int `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty"`
}

// Result is what every runner invocation returns. Invocation-level errors
// (timeout, missing binary, non-zero exit) are captured here as data; the
// loop decides what they mean.
type Result struct {
	Success          bool
	Output           string
	StructuredOutput map[string]any
	Error            string
	ExitCode         int
	TokensUsed       int
	TokenUsage       *TokenUsage
}

// Failure builds a failed result. The error message must be non-empty.
func Failure(errMsg string, exitCode int) *Result {
	return &Result{Success: false, Error: errMsg, ExitCode: exitCode}
}

// Succeeded builds a successful result, deriving TokensUsed from the usage
// total when available.
func Succeeded(output string, structured map[string]any, usage *TokenUsage) *Result {
	res := &Result{
		Success:          true,
		Output:           output,
		StructuredOutput: structured,
		TokenUsage:       usage,
	}
	if usage != nil {
		res.TokensUsed = usage.Total
	}
	return res
}

// Exit codes mirroring the conventions of timeout(1) and the shell.
const (
	ExitTimeout  = 124
	ExitNotFound = 127
)

// Runner executes agents against one backend CLI.
//
// All invocation failures are reported inside Result; the error return is
// non-nil only when ctx was canceled (operator interrupt), after the
// subprocess has been terminated and cleanup has finished.
type Runner interface {
	// RunAgent executes a named unit of work described by the agent
	// specification file at specPath.
	RunAgent(ctx context.Context, specPath, prompt string, pctx PromptContext, timeout time.Duration) (*Result, error)

	// RunPrompt executes a bare prompt with an optional system prompt.
	RunPrompt(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (*Result, error)

	// IsAvailable reports whether the backend CLI is installed. It is a
	// pure capability probe with no side effects.
	IsAvailable() bool

	// Name returns a human-readable backend identifier.
	Name() string
}
