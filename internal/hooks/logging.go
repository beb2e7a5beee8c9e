package hooks

import (
	"context"
	"log/slog"
)

// LoggingHook writes every loop event to the structured log.
type LoggingHook struct {
	logger *slog.Logger
}

func NewLoggingHook(logger *slog.Logger) *LoggingHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) Name() string { return "logging" }

func (h *LoggingHook) Events() []Event { return nil } // all events

func (h *LoggingHook) Fire(ctx context.Context, event Event, payload Payload) error {
	attrs := []any{"event", string(event)}
	if payload.State != nil {
		attrs = append(attrs,
			"task_id", payload.State.TaskID,
			"iteration", payload.State.CurrentIteration,
			"phase", string(payload.State.Phase))
	}
	if payload.Phase != "" {
		attrs = append(attrs, "target_phase", string(payload.Phase))
	}
	if payload.Error != "" {
		attrs = append(attrs, "error", payload.Error)
		h.logger.Warn("loop event", attrs...)
		return nil
	}
	h.logger.Info("loop event", attrs...)
	return nil
}
