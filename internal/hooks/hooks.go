// Package hooks provides lifecycle notifications for the agentic loop.
// Hooks observe state transitions; they never influence them. A failing
// hook is logged and swallowed so observers cannot break a run.
package hooks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sahaidachny/saha/internal/state"
)

// Event names a loop lifecycle moment.
type Event string

const (
	EventLoopStart         Event = "loop_start"
	EventLoopComplete      Event = "loop_complete"
	EventLoopFailed        Event = "loop_failed"
	EventLoopError         Event = "loop_error"
	EventLoopStopped       Event = "loop_stopped"
	EventIterationStart    Event = "iteration_start"
	EventIterationComplete Event = "iteration_complete"
	EventPhaseStart        Event = "phase_start"
	EventQAFailed          Event = "qa_failed"
	EventQualityFailed     Event = "quality_failed"
)

// Payload carries event-specific data. State is always the post-transition,
// already-persisted state; observers never see anything stale.
type Payload struct {
	State *state.ExecutionState
	Phase state.Phase
	Error string
}

// Hook observes loop events.
type Hook interface {
	// Name identifies the hook in logs.
	Name() string

	// Events returns the events this hook listens to. Empty means all.
	Events() []Event

	// Fire handles one event. Errors are reported to the registry, which
	// logs and discards them.
	Fire(ctx context.Context, event Event, payload Payload) error
}

// Registry dispatches events to registered hooks in registration order.
type Registry struct {
	mu     sync.Mutex
	hooks  []Hook
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register appends a hook.
func (r *Registry) Register(hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
	r.logger.Debug("registered hook", "hook", hook.Name())
}

// Unregister removes a hook by name and reports whether one was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, hook := range r.hooks {
		if hook.Name() == name {
			r.hooks = append(r.hooks[:i], r.hooks[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the registered hook names in order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.hooks))
	for i, hook := range r.hooks {
		names[i] = hook.Name()
	}
	return names
}

// Fire dispatches an event to every interested hook. Hook errors are
// logged, never returned.
func (r *Registry) Fire(ctx context.Context, event Event, payload Payload) {
	r.mu.Lock()
	hooks := make([]Hook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, hook := range hooks {
		if !listensTo(hook, event) {
			continue
		}
		if err := hook.Fire(ctx, event, payload); err != nil {
			r.logger.Error("hook failed",
				"hook", hook.Name(),
				"event", string(event),
				"error", err)
		}
	}
}

func listensTo(hook Hook, event Event) bool {
	events := hook.Events()
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}
