package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// AgentConfig describes how a named agent role is executed: which backend,
// which spec variant, which model, and how long an invocation may take.
type AgentConfig struct {
	Runner  Kind
	Variant string
	Model   string
	Timeout time.Duration
}

// Factory builds a Runner for a backend kind.
type Factory func(workingDir string, cfg AgentConfig) (Runner, error)

// Registry maps agent roles to backend runners. Runner construction is lazy
// and cached per (kind, model) so two roles sharing a backend share the
// runner instance.
type Registry struct {
	mu         sync.Mutex
	workingDir string
	agentsDir  string
	factories  map[Kind]Factory
	configs    map[string]AgentConfig
	cache      map[string]Runner
	defaults   AgentConfig
}

// NewRegistry creates a registry with the built-in backend factories.
func NewRegistry(workingDir, agentsDir string) *Registry {
	r := &Registry{
		workingDir: workingDir,
		agentsDir:  agentsDir,
		factories:  make(map[Kind]Factory),
		configs:    make(map[string]AgentConfig),
		cache:      make(map[string]Runner),
		defaults: AgentConfig{
			Runner:  KindClaude,
			Timeout: 30 * time.Minute,
		},
	}
	r.Register(KindClaude, func(dir string, cfg AgentConfig) (Runner, error) {
		var opts []ClaudeOption
		if cfg.Model != "" {
			opts = append(opts, WithClaudeModel(cfg.Model))
		}
		return NewClaudeRunner(dir, opts...), nil
	})
	r.Register(KindCodex, func(dir string, cfg AgentConfig) (Runner, error) {
		var opts []CodexOption
		if cfg.Model != "" {
			opts = append(opts, WithCodexModel(cfg.Model))
		}
		return NewCodexRunner(dir, opts...), nil
	})
	r.Register(KindGemini, func(dir string, cfg AgentConfig) (Runner, error) {
		var opts []GeminiOption
		if cfg.Model != "" {
			opts = append(opts, WithGeminiModel(cfg.Model))
		}
		return NewGeminiRunner(dir, opts...), nil
	})
	r.Register(KindMock, func(dir string, cfg AgentConfig) (Runner, error) {
		return NewMockRunner(), nil
	})
	return r
}

// Register installs or replaces the factory for a backend kind.
func (r *Registry) Register(kind Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// SetDefaults changes the config applied to agents with no explicit entry.
func (r *Registry) SetDefaults(cfg AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = cfg
}

// ConfigureAgent binds an agent role to a backend configuration. Zero-value
// fields inherit the registry defaults.
func (r *Registry) ConfigureAgent(agent string, cfg AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.Runner == "" {
		cfg.Runner = r.defaults.Runner
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = r.defaults.Timeout
	}
	r.configs[agent] = cfg
}

// ConfigFor returns the effective configuration for an agent role.
func (r *Registry) ConfigFor(agent string) AgentConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg, ok := r.configs[agent]; ok {
		return cfg
	}
	return r.defaults
}

// RunnerFor returns the runner backing an agent role, constructing it on
// first use.
func (r *Registry) RunnerFor(agent string) (Runner, error) {
	cfg := r.ConfigFor(agent)

	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(cfg.Runner) + "\x00" + cfg.Model
	if runner, ok := r.cache[key]; ok {
		return runner, nil
	}
	factory, ok := r.factories[cfg.Runner]
	if !ok {
		return nil, fmt.Errorf("no factory registered for runner %q", cfg.Runner)
	}
	runner, err := factory(r.workingDir, cfg)
	if err != nil {
		return nil, err
	}
	r.cache[key] = runner
	return runner, nil
}

// AgentPath resolves the spec file for an agent role. A configured variant
// selects the suffixed file <agentsDir>/<agent>-<variant>.md, falling back
// to the unsuffixed <agentsDir>/<agent>.md. An error is returned only when
// neither file exists.
func (r *Registry) AgentPath(agent string) (string, error) {
	cfg := r.ConfigFor(agent)
	if cfg.Variant != "" {
		p := filepath.Join(r.agentsDir, agent+"-"+cfg.Variant+".md")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	base := filepath.Join(r.agentsDir, agent+".md")
	if _, err := os.Stat(base); err != nil {
		return "", fmt.Errorf("no spec file for agent %q under %s", agent, r.agentsDir)
	}
	return base, nil
}

// Validate checks that every configured agent's backend is installed.
// It reports all unavailable backends, not just the first.
func (r *Registry) Validate(agents ...string) error {
	missing := make(map[string]bool)
	for _, agent := range agents {
		cfg := r.ConfigFor(agent)
		if cfg.Runner == KindMock {
			continue
		}
		runner, err := r.RunnerFor(agent)
		if err != nil {
			return err
		}
		if !runner.IsAvailable() {
			missing[string(cfg.Runner)] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("%w: %v", ErrUnavailable, names)
}
