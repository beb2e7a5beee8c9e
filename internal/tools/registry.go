package tools

import (
	"context"
	"fmt"
	"sort"
)

// Registry holds the available tools and runs them by name.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// DefaultRegistry creates a registry with the standard tool set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewRuffTool())
	r.Register(NewTyTool())
	r.Register(NewComplexityTool())
	r.Register(NewPytestTool())
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool Tool) {
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// ListAll returns every registered tool name in registration order.
func (r *Registry) ListAll() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ListAvailable returns the names of tools whose binary is installed.
func (r *Registry) ListAvailable() []string {
	var out []string
	for _, name := range r.order {
		if installed(r.tools[name].Command()) {
			out = append(out, name)
		}
	}
	return out
}

// RunTool runs one tool by name. Unknown or uninstalled tools yield an
// error-status result rather than a Go error; the caller treats tool
// problems as data.
func (r *Registry) RunTool(ctx context.Context, name, target string, cfg Config) *Result {
	tool, ok := r.tools[name]
	if !ok {
		return &Result{
			ToolName: name,
			Status:   StatusError,
			ExitCode: 1,
			Stderr:   fmt.Sprintf("unknown tool: %s", name),
		}
	}
	if !installed(tool.Command()) {
		return &Result{
			ToolName: name,
			Status:   StatusError,
			ExitCode: 127,
			Stderr:   fmt.Sprintf("tool not installed: %s", name),
		}
	}
	return tool.Run(ctx, target, cfg)
}

// RunAll runs the named tools (all available ones when names is empty) and
// returns results keyed by tool name.
func (r *Registry) RunAll(ctx context.Context, target string, names []string, cfgs map[string]Config) map[string]*Result {
	if len(names) == 0 {
		names = r.ListAvailable()
	}
	results := make(map[string]*Result, len(names))
	for _, name := range names {
		results[name] = r.RunTool(ctx, name, target, cfgs[name])
	}
	return results
}

// Report aggregates the results of a quality check.
type Report struct {
	Passed     bool              `json:"passed"`
	Blocking   []Issue           `json:"blocking_issues,omitempty"`
	Advisory   []Issue           `json:"advisory_issues,omitempty"`
	ToolErrors map[string]string `json:"tool_errors,omitempty"`
	Degraded   bool              `json:"degraded,omitempty"`
}

// Aggregate folds per-tool results into a single verdict. The check passes
// iff no blocking issue exists; a tool that failed to run does not fail the
// check but is reported in ToolErrors.
func Aggregate(results map[string]*Result, degraded bool) *Report {
	report := &Report{Passed: true, Degraded: degraded}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := results[name]
		if res.Status == StatusError {
			if report.ToolErrors == nil {
				report.ToolErrors = make(map[string]string)
			}
			msg := res.Stderr
			if msg == "" {
				msg = fmt.Sprintf("exit code %d", res.ExitCode)
			}
			report.ToolErrors[name] = msg
			continue
		}
		for _, issue := range res.Issues {
			if issue.Blocking {
				report.Blocking = append(report.Blocking, issue)
			} else {
				report.Advisory = append(report.Advisory, issue)
			}
		}
	}

	report.Passed = len(report.Blocking) == 0
	return report
}
