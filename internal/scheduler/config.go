package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/nodeboss/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled        bool
	RunInterval    time.Duration
	BatchSize      int
	PendingSaleTTL time.Duration
	// EnabledJobs limits which jobs run. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		RunInterval:    time.Minute,
		BatchSize:      100,
		PendingSaleTTL: 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	out := Config{
		Enabled:        cfg.SchedulerEnabled,
		RunInterval:    cfg.SchedulerInterval,
		BatchSize:      cfg.SchedulerBatchSize,
		PendingSaleTTL: cfg.PendingSaleTTL,
	}
	for _, job := range cfg.SchedulerJobs {
		if job = strings.TrimSpace(job); job != "" {
			out.EnabledJobs = append(out.EnabledJobs, job)
		}
	}
	return out.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PendingSaleTTL <= 0 {
		c.PendingSaleTTL = defaults.PendingSaleTTL
	}
	return c
}
