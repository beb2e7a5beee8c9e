package loop

import (
	"log/slog"
	"time"

	"github.com/sahaidachny/saha/internal/config"
	"github.com/sahaidachny/saha/internal/history"
	"github.com/sahaidachny/saha/internal/hooks"
	"github.com/sahaidachny/saha/internal/runner"
	"github.com/sahaidachny/saha/internal/state"
)

// Options tweaks loop assembly.
type Options struct {
	// DryRun replaces every backend with the mock runner so the loop can
	// be exercised without invoking any CLI.
	DryRun bool

	// DisableHistory skips opening the invocation database.
	DisableHistory bool

	// ExtraHooks are registered after the configured hooks. Used to attach
	// observers the config cannot know about, like a websocket broadcaster.
	ExtraHooks []hooks.Hook
}

// FromConfig assembles a ready-to-run Loop from the effective
// configuration. The returned cleanup closes the history store.
func FromConfig(cfg *config.Config, logger *slog.Logger, opts Options) (*Loop, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	states := state.NewManager(cfg.General.StateDir)
	runners := BuildRegistry(cfg, opts.DryRun)
	hookReg := BuildHooks(cfg, logger)
	for _, h := range opts.ExtraHooks {
		hookReg.Register(h)
	}

	var hist *history.Store
	cleanup := func() {}
	if !opts.DisableHistory {
		var err error
		hist, err = history.New(cfg.General.HistoryDB)
		if err != nil {
			// History is an observability aid; a broken database must not
			// block the run itself.
			logger.Warn("history store unavailable", "path", cfg.General.HistoryDB, "error", err)
		} else {
			cleanup = func() { hist.Close() }
		}
	}

	return New(runners, states, hookReg, hist, logger), cleanup, nil
}

// BuildRegistry wires the runner registry from configuration.
func BuildRegistry(cfg *config.Config, dryRun bool) *runner.Registry {
	reg := runner.NewRegistry("", cfg.General.AgentsPath)

	defaultKind := runner.Kind(cfg.Runners.Default)
	if dryRun {
		defaultKind = runner.KindMock
	}
	reg.SetDefaults(runner.AgentConfig{
		Runner:  defaultKind,
		Timeout: time.Duration(cfg.Runners.TimeoutSeconds) * time.Second,
	})

	for _, role := range Roles {
		agent := cfg.AgentFor(role)
		kind := runner.Kind(agent.Runner)
		if dryRun {
			kind = runner.KindMock
		}
		reg.ConfigureAgent(role, runner.AgentConfig{
			Runner:  kind,
			Variant: agent.Variant,
			Model:   agent.Model,
			Timeout: agent.Timeout(),
		})
	}
	return reg
}

// BuildHooks wires the hook registry from configuration. The logging hook
// is always present; ntfy only when a topic is configured.
func BuildHooks(cfg *config.Config, logger *slog.Logger) *hooks.Registry {
	reg := hooks.NewRegistry(logger)
	reg.Register(hooks.NewLoggingHook(logger))

	if cfg.Hooks.NtfyEnabled && cfg.Hooks.NtfyTopic != "" {
		opts := []hooks.NtfyOption{hooks.WithNtfyServer(cfg.Hooks.NtfyServer)}
		if cfg.Hooks.NtfyToken != "" {
			opts = append(opts, hooks.WithNtfyToken(cfg.Hooks.NtfyToken))
		} else if cfg.Hooks.NtfyUser != "" {
			opts = append(opts, hooks.WithNtfyBasicAuth(cfg.Hooks.NtfyUser, cfg.Hooks.NtfyPassword))
		}
		reg.Register(hooks.NewNtfyHook(cfg.Hooks.NtfyTopic, opts...))
	}
	return reg
}
