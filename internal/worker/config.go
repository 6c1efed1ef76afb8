package worker

import (
	"time"

	"github.com/smallbiznis/revenuepulse/internal/config"
)

// Config controls the job executor pool.
type Config struct {
	Concurrency     int
	LeaseWait       time.Duration
	JobTimeout      time.Duration
	ShutdownTimeout time.Duration
	DepthInterval   time.Duration
	ReportTimeout   time.Duration
	ErrorBackoff    time.Duration
	// HeartbeatInterval must stay well below the sweeper's stall threshold.
	HeartbeatInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Concurrency:       3,
		LeaseWait:         5 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		DepthInterval:     15 * time.Second,
		ReportTimeout:     5 * time.Second,
		ErrorBackoff:      time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

func NewConfig(cfg config.Config) Config {
	return Config{
		Concurrency:       cfg.Worker.Concurrency,
		LeaseWait:         cfg.Worker.LeaseWait,
		JobTimeout:        cfg.Worker.JobTimeout,
		ShutdownTimeout:   cfg.Worker.ShutdownTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	}.withDefaults()
}

// JobTimeout of zero means no per-job deadline.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.LeaseWait <= 0 {
		c.LeaseWait = defaults.LeaseWait
	}
	if c.JobTimeout < 0 {
		c.JobTimeout = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.DepthInterval <= 0 {
		c.DepthInterval = defaults.DepthInterval
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = defaults.ReportTimeout
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = defaults.ErrorBackoff
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	return c
}
