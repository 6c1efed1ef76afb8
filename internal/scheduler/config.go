package scheduler

import (
	"time"

	"github.com/smallbiznis/revenuepulse/internal/config"
)

// Config controls sweep intervals and batch sizes.
type Config struct {
	Enabled        bool
	RunInterval    time.Duration
	StallThreshold time.Duration
	BatchSize      int
	LockKey        string
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		RunInterval:    time.Minute,
		StallThreshold: 15 * time.Minute,
		BatchSize:      100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = defaults.StallThreshold
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

// NewConfig keeps the stall threshold above twice the job timeout and four
// worker heartbeats.
func NewConfig(cfg config.Config) Config {
	c := Config{
		Enabled:        cfg.Scheduler.Enabled,
		RunInterval:    cfg.Scheduler.RunInterval,
		StallThreshold: cfg.Scheduler.StallThreshold,
		BatchSize:      cfg.Scheduler.BatchSize,
		LockKey:        "revenuepulse:" + cfg.Queue.Name + ":scheduler",
	}
	floor := max(2*cfg.Worker.JobTimeout, 4*cfg.Worker.HeartbeatInterval)
	if c.StallThreshold < floor {
		c.StallThreshold = floor
	}
	return c.withDefaults()
}
