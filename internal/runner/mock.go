package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockCall records a single invocation made against a MockRunner.
type MockCall struct {
	SpecPath     string
	Prompt       string
	SystemPrompt string
	Context      PromptContext
	Timeout      time.Duration
}

// MockRunner returns scripted results in order and records every call.
// Once the script is exhausted it falls back to role-aware verdicts derived
// from the agent name, affirmative by default, so an unscripted dry run can
// drive the loop to completion. Used in tests and by the dry-run mode.
type MockRunner struct {
	mu           sync.Mutex
	results      []*Result
	calls        []MockCall
	err          error
	next         int
	failQA       int
	failQuality  int
	qaCalls      int
	qualityCalls int
}

func NewMockRunner(results ...*Result) *MockRunner {
	return &MockRunner{results: results}
}

// Enqueue appends another scripted result.
func (r *MockRunner) Enqueue(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

// FailWith makes every subsequent call return err alongside its result.
func (r *MockRunner) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// FailQA makes the first n unscripted QA verdicts report dod_achieved=false.
func (r *MockRunner) FailQA(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failQA = n
}

// FailQuality makes the first n unscripted quality verdicts report
// quality_passed=false.
func (r *MockRunner) FailQuality(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failQuality = n
}

func (r *MockRunner) Name() string { return "mock" }

func (r *MockRunner) IsAvailable() bool { return true }

func (r *MockRunner) RunAgent(ctx context.Context, specPath, prompt string, pctx PromptContext, timeout time.Duration) (*Result, error) {
	return r.record(MockCall{SpecPath: specPath, Prompt: prompt, Context: pctx, Timeout: timeout})
}

func (r *MockRunner) RunPrompt(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (*Result, error) {
	return r.record(MockCall{Prompt: prompt, SystemPrompt: systemPrompt, Timeout: timeout})
}

func (r *MockRunner) record(call MockCall) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.err != nil {
		return Failure("interrupted", 130), r.err
	}
	if r.next >= len(r.results) {
		return r.defaultResult(call.SpecPath), nil
	}
	res := r.results[r.next]
	r.next++
	return res, nil
}

// defaultResult synthesizes a verdict for the agent when no scripted result
// remains. Verification agents pass unless a failure count says otherwise.
// Called with r.mu held.
func (r *MockRunner) defaultResult(specPath string) *Result {
	if specPath == "" {
		return Succeeded("ok", nil, nil)
	}
	agent := AgentNameFromSpec(specPath)
	switch {
	case strings.Contains(agent, "implement"):
		return Succeeded("Implementation complete.", map[string]any{
			"status":        "success",
			"files_changed": []string{},
			"files_added":   []string{},
		}, nil)
	case strings.Contains(agent, "quality"):
		r.qualityCalls++
		if r.qualityCalls <= r.failQuality {
			return Succeeded("Code quality check failed.", map[string]any{
				"quality_passed": false,
				"fix_info":       fmt.Sprintf("quality failure #%d: fix the lint findings", r.qualityCalls),
			}, nil)
		}
		return Succeeded("Code quality check passed.", map[string]any{"quality_passed": true}, nil)
	case strings.Contains(agent, "qa"):
		r.qaCalls++
		if r.qaCalls <= r.failQA {
			return Succeeded("QA verification failed.", map[string]any{
				"dod_achieved": false,
				"fix_info":     fmt.Sprintf("qa failure #%d: acceptance criteria not met", r.qaCalls),
			}, nil)
		}
		return Succeeded("QA verification passed.", map[string]any{"dod_achieved": true}, nil)
	case strings.Contains(agent, "manager"):
		return Succeeded("Task status updated.", map[string]any{"status": "success"}, nil)
	case strings.Contains(agent, "completion"), strings.Contains(agent, "dod"):
		return Succeeded("Completion check finished.", map[string]any{
			"task_complete": true,
			"reasoning":     "all requirements met",
		}, nil)
	}
	return Succeeded("ok", nil, nil)
}

// Calls returns a copy of the recorded call history.
func (r *MockRunner) Calls() []MockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MockCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many invocations were made.
func (r *MockRunner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
