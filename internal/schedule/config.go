package schedule

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Entry is one scheduled batch of task runs.
type Entry struct {
	Name          string        `toml:"name"`
	Cron          string        `toml:"cron"`
	Tasks         []string      `toml:"tasks"`
	MaxIterations int           `toml:"max_iterations"`
	MaxDuration   time.Duration `toml:"max_duration"`
	StopOnFailure bool          `toml:"stop_on_failure"`
}

// Config holds all scheduled entries.
type Config struct {
	Entries []Entry `toml:"schedule"`
}

// Validate checks the entry and fills defaults.
func (e *Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("schedule entry name is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if len(e.Tasks) == 0 {
		return fmt.Errorf("schedule entry %q has no tasks", e.Name)
	}
	if e.MaxDuration <= 0 {
		e.MaxDuration = 4 * time.Hour
	}
	return nil
}

// LoadConfig loads the schedule from a TOML file. A missing file yields an
// empty config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Entries {
		if err := cfg.Entries[i].Validate(); err != nil {
			return nil, fmt.Errorf("schedule entry %d: %w", i, err)
		}
	}

	return &cfg, nil
}
