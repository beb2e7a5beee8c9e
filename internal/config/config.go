// Package config loads orchestrator configuration from a TOML file with
// SAHA_-prefixed environment overrides layered on top. Precedence:
// environment > config file > defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// AgentConfig selects the backend for one agent role.
type AgentConfig struct {
	Runner         string `toml:"runner"`
	Variant        string `toml:"variant"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// GeneralConfig holds the paths and limits every run shares.
type GeneralConfig struct {
	StateDir      string `toml:"state_dir"`
	TaskBasePath  string `toml:"task_base_path"`
	AgentsPath    string `toml:"agents_path"`
	HistoryDB     string `toml:"history_db"`
	MaxIterations int    `toml:"max_iterations"`
	Verbose       bool   `toml:"verbose"`
}

// RunnersConfig holds backend defaults.
type RunnersConfig struct {
	Default            string `toml:"default"`
	ClaudeModel        string `toml:"claude_model"`
	ClaudeSkipPerms    bool   `toml:"claude_dangerously_skip_permissions"`
	CodexModel         string `toml:"codex_model"`
	CodexSandbox       string `toml:"codex_sandbox"`
	CodexBypassSandbox bool   `toml:"codex_dangerously_bypass_sandbox"`
	GeminiModel        string `toml:"gemini_model"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// ToolConfig enables and tunes one quality tool.
type ToolConfig struct {
	Enabled    bool   `toml:"enabled"`
	ConfigPath string `toml:"config_path"`
	Strict     bool   `toml:"strict"`
	Threshold  int    `toml:"threshold"`
}

// HooksConfig configures notification hooks.
type HooksConfig struct {
	NtfyEnabled  bool   `toml:"ntfy_enabled"`
	NtfyTopic    string `toml:"ntfy_topic"`
	NtfyServer   string `toml:"ntfy_server"`
	NtfyToken    string `toml:"ntfy_token"`
	NtfyUser     string `toml:"ntfy_user"`
	NtfyPassword string `toml:"ntfy_password"`
}

// WebConfig holds the status server settings.
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Config is the full orchestrator configuration.
type Config struct {
	General GeneralConfig          `toml:"general"`
	Runners RunnersConfig          `toml:"runners"`
	Agents  map[string]AgentConfig `toml:"agents"`
	Tools   map[string]ToolConfig  `toml:"tools"`
	Hooks   HooksConfig            `toml:"hooks"`
	Web     WebConfig              `toml:"web"`
}

// Default returns a Config with working defaults.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			StateDir:      ".sahaidachny",
			TaskBasePath:  filepath.Join("docs", "tasks"),
			AgentsPath:    filepath.Join(".claude", "agents"),
			HistoryDB:     filepath.Join(".sahaidachny", "history.db"),
			MaxIterations: 10,
		},
		Runners: RunnersConfig{
			Default:        "claude",
			ClaudeModel:    "claude-sonnet-4-5",
			CodexSandbox:   "workspace-write",
			GeminiModel:    "gemini-2.5-pro",
			TimeoutSeconds: 300,
		},
		Agents: map[string]AgentConfig{},
		Tools: map[string]ToolConfig{
			"ruff":       {Enabled: true},
			"ty":         {Enabled: true},
			"complexity": {Enabled: true, Threshold: 15},
			"pytest":     {Enabled: true},
		},
		Hooks: HooksConfig{
			NtfyEnabled: false,
			NtfyTopic:   "sahaidachny",
			NtfyServer:  "https://ntfy.sh",
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8420,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	cfg.General.StateDir = ExpandPath(cfg.General.StateDir)
	cfg.General.TaskBasePath = ExpandPath(cfg.General.TaskBasePath)
	cfg.General.AgentsPath = ExpandPath(cfg.General.AgentsPath)
	cfg.General.HistoryDB = ExpandPath(cfg.General.HistoryDB)

	return cfg, nil
}

// AgentFor resolves the effective config for one agent role: per-agent
// override first, then runner defaults.
func (c *Config) AgentFor(role string) AgentConfig {
	agent := c.Agents[role]
	if agent.Runner == "" {
		agent.Runner = c.Runners.Default
	}
	if agent.TimeoutSeconds == 0 {
		agent.TimeoutSeconds = c.Runners.TimeoutSeconds
	}
	if agent.Model == "" {
		switch agent.Runner {
		case "claude":
			agent.Model = c.Runners.ClaudeModel
		case "codex":
			agent.Model = c.Runners.CodexModel
		case "gemini":
			agent.Model = c.Runners.GeminiModel
		}
	}
	return agent
}

// EnabledTools returns the names of the enabled tools, in the canonical
// registration order.
func (c *Config) EnabledTools() []string {
	var out []string
	for _, name := range []string{"ruff", "ty", "complexity", "pytest"} {
		if tc, ok := c.Tools[name]; ok && tc.Enabled {
			out = append(out, name)
		}
	}
	return out
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SAHA_STATE_DIR"); v != "" {
		c.General.StateDir = v
	}
	if v := os.Getenv("SAHA_TASK_BASE_PATH"); v != "" {
		c.General.TaskBasePath = v
	}
	if v := os.Getenv("SAHA_AGENTS_PATH"); v != "" {
		c.General.AgentsPath = v
	}
	if v := os.Getenv("SAHA_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.General.MaxIterations = n
		}
	}
	if v := os.Getenv("SAHA_RUNNER"); v != "" {
		c.Runners.Default = v
	}
	if v := os.Getenv("SAHA_CLAUDE_MODEL"); v != "" {
		c.Runners.ClaudeModel = v
	}
	if v := os.Getenv("SAHA_CODEX_MODEL"); v != "" {
		c.Runners.CodexModel = v
	}
	if v := os.Getenv("SAHA_GEMINI_MODEL"); v != "" {
		c.Runners.GeminiModel = v
	}
	if v := os.Getenv("SAHA_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Runners.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("SAHA_VERBOSE"); v != "" {
		c.General.Verbose = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SAHA_HOOK_NTFY_TOPIC"); v != "" {
		c.Hooks.NtfyEnabled = true
		c.Hooks.NtfyTopic = v
	}
	if v := os.Getenv("SAHA_HOOK_NTFY_SERVER"); v != "" {
		c.Hooks.NtfyServer = v
	}
	if v := os.Getenv("SAHA_HOOK_NTFY_TOKEN"); v != "" {
		c.Hooks.NtfyToken = v
	}

	// Per-agent overrides: SAHA_AGENT_<ROLE>_RUNNER and friends.
	for _, role := range []string{"implementation", "qa", "code_quality", "manager", "completion_check"} {
		prefix := "SAHA_AGENT_" + strings.ToUpper(role) + "_"
		agent := c.Agents[role]
		changed := false
		if v := os.Getenv(prefix + "RUNNER"); v != "" {
			agent.Runner = v
			changed = true
		}
		if v := os.Getenv(prefix + "VARIANT"); v != "" {
			agent.Variant = v
			changed = true
		}
		if v := os.Getenv(prefix + "MODEL"); v != "" {
			agent.Model = v
			changed = true
		}
		if v := os.Getenv(prefix + "TIMEOUT"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				agent.TimeoutSeconds = n
				changed = true
			}
		}
		if changed {
			if c.Agents == nil {
				c.Agents = map[string]AgentConfig{}
			}
			c.Agents[role] = agent
		}
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(".sahaidachny", "config.toml")
}
