package scheduler

import (
	"time"

	"github.com/discedric/netbox-license/internal/config"
)

// Config controls the expiry sweep cadence and scope.
type Config struct {
	RunInterval time.Duration
	RunTimeout  time.Duration
	HorizonDays int
	BatchSize   int
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		RunTimeout:  time.Minute,
		HorizonDays: 90,
		BatchSize:   500,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.HorizonDays < 0 {
		c.HorizonDays = defaults.HorizonDays
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.ExpirySweep.Interval,
		HorizonDays: cfg.ExpirySweep.HorizonDays,
		BatchSize:   cfg.ExpirySweep.BatchSize,
	}.withDefaults()
}
