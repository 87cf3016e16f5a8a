package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/core/scheduler"
)

// SchedulerConfig controls the poll cadence.
type SchedulerConfig struct {
	// CheckInterval is in seconds, as exported by the add-on.
	CheckInterval    int           `json:"check_interval" yaml:"check_interval"`
	MaxInterval      time.Duration `json:"max_interval" yaml:"max_interval"`
	BackoffFactor    float64       `json:"backoff_factor" yaml:"backoff_factor"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	CycleTimeout     time.Duration `json:"cycle_timeout" yaml:"cycle_timeout"`
	Timezone         string        `json:"timezone" yaml:"timezone"`
	DayOffset        *int          `json:"day_offset" yaml:"day_offset"`
}

// SetDefaults applies defaults.
func (c *SchedulerConfig) SetDefaults() {
	if c.CheckInterval == 0 {
		c.CheckInterval = int(scheduler.DefaultInterval / time.Second)
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = scheduler.DefaultBackoffFactor
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = scheduler.DefaultFailureThreshold
	}
	if c.CycleTimeout == 0 {
		c.CycleTimeout = scheduler.DefaultCycleTimeout
	}
	if c.Timezone == "" {
		c.Timezone = scheduler.DefaultTimezone
	}
	if c.DayOffset == nil {
		one := 1
		c.DayOffset = &one
	}
}

// Interval returns CheckInterval as a duration.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

func (c SchedulerConfig) validate(cerr *ConfigError) {
	if c.Interval() < scheduler.MinInterval {
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("CHECK_INTERVAL %d below minimum of %d seconds", c.CheckInterval, int(scheduler.MinInterval/time.Second)))
	}
	if c.BackoffFactor < 1 {
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("scheduler.backoff_factor %.2f must be >= 1", c.BackoffFactor))
	}
	if c.FailureThreshold < 1 {
		cerr.Invalid = append(cerr.Invalid, "scheduler.failure_threshold must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("scheduler.timezone: %v", err))
	}
	if c.DayOffset != nil && *c.DayOffset < 0 {
		cerr.Invalid = append(cerr.Invalid, "scheduler.day_offset must not be negative")
	}
}

// Build returns the scheduler settings for q.
func (c SchedulerConfig) Build(q model.MeteringQuery) (scheduler.Config, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return scheduler.Config{}, err
	}
	offset := 1
	if c.DayOffset != nil {
		offset = *c.DayOffset
	}
	return scheduler.Config{
		Query:            q,
		Interval:         c.Interval(),
		MaxInterval:      c.MaxInterval,
		BackoffFactor:    c.BackoffFactor,
		FailureThreshold: c.FailureThreshold,
		CycleTimeout:     c.CycleTimeout,
		Location:         loc,
		DayOffset:        offset,
	}, nil
}
