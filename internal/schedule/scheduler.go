// Package schedule runs task batches on cron expressions for unattended
// overnight execution.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc executes one due entry. It is called on its own goroutine with a
// context bounded by the entry's MaxDuration.
type RunFunc func(ctx context.Context, e Entry) error

// Scheduler ticks once a minute and launches entries whose cron schedule has
// come due since their last run.
type Scheduler struct {
	entries map[string]Entry
	parser  cron.Parser
	logger  *slog.Logger

	mu      sync.RWMutex
	lastRun map[string]time.Time
	running map[string]bool
}

// NewScheduler validates the entries and builds a scheduler.
func NewScheduler(entries []Entry, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		entries: make(map[string]Entry),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:  logger,
		lastRun: make(map[string]time.Time),
		running: make(map[string]bool),
	}

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		s.entries[e.Name] = e
	}

	return s, nil
}

// ParseCron parses a standard five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next fire time for an entry, or the zero time if the
// entry is unknown.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	sched, err := s.parser.Parse(e.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// ShouldRun reports whether an entry is due and not already running.
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok || s.running[name] {
		return false
	}
	sched, err := s.parser.Parse(e.Cron)
	if err != nil {
		return false
	}

	last := s.lastRun[name]
	if last.IsZero() {
		last = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(sched.Next(last))
}

// Entries returns all entry names.
func (s *Scheduler) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) markRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

func (s *Scheduler) markComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
}

// Run ticks until ctx is canceled, launching due entries. Entry failures are
// logged and do not stop the scheduler.
func (s *Scheduler) Run(ctx context.Context, run RunFunc) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.launchDue(ctx, run)
		}
	}
}

func (s *Scheduler) launchDue(ctx context.Context, run RunFunc) {
	s.mu.RLock()
	due := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		due = append(due, e)
	}
	s.mu.RUnlock()

	for _, e := range due {
		if !s.ShouldRun(e.Name) {
			continue
		}
		s.markRunning(e.Name)
		s.logger.Info("scheduled run starting", "entry", e.Name, "tasks", len(e.Tasks))
		go func(e Entry) {
			defer s.markComplete(e.Name)
			runCtx, cancel := context.WithTimeout(ctx, e.MaxDuration)
			defer cancel()
			if err := run(runCtx, e); err != nil {
				s.logger.Error("scheduled run failed", "entry", e.Name, "error", err)
			}
		}(e)
	}
}
