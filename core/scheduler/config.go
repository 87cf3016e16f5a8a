package scheduler

import (
	"errors"
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/kilianp07/kenter-mqtt/core/model"
)

const (
	DefaultInterval         = time.Hour
	MinInterval             = time.Minute
	DefaultFailureThreshold = 3
	DefaultBackoffFactor    = 2.0
	DefaultCycleTimeout     = 2 * time.Minute
	DefaultTimezone         = "Europe/Amsterdam"
)

// Config holds the cycle parameters.
type Config struct {
	Query            model.MeteringQuery
	Interval         time.Duration
	MaxInterval      time.Duration
	BackoffFactor    float64
	FailureThreshold int
	CycleTimeout     time.Duration
	Location         *time.Location
	// DayOffset selects the polled day relative to today; 1 is yesterday.
	DayOffset int
}

// SetDefaults fills zero values. DayOffset is left alone since 0 is valid.
func (c *Config) SetDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 6 * c.Interval
	}
	if c.MaxInterval < c.Interval {
		c.MaxInterval = c.Interval
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = DefaultBackoffFactor
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.CycleTimeout == 0 {
		c.CycleTimeout = DefaultCycleTimeout
	}
	if c.Location == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		c.Location = loc
	}
}

// Validate checks the values SetDefaults cannot repair.
func (c Config) Validate() error {
	if err := c.Query.Validate(); err != nil {
		return err
	}
	if c.Interval < MinInterval {
		return fmt.Errorf("interval %s below minimum %s", c.Interval, MinInterval)
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor %.2f must be >= 1", c.BackoffFactor)
	}
	if c.FailureThreshold < 1 {
		return errors.New("failure threshold must be positive")
	}
	if c.CycleTimeout <= 0 {
		return errors.New("cycle timeout must be positive")
	}
	return nil
}

// NextInterval returns the wait before the next cycle after the given number
// of consecutive failures.
func (c Config) NextInterval(failures int) time.Duration {
	if failures < c.FailureThreshold {
		return c.Interval
	}
	exp := float64(failures - c.FailureThreshold + 1)
	d := float64(c.Interval) * math.Pow(c.BackoffFactor, exp)
	if math.IsInf(d, 0) || d >= float64(c.MaxInterval) {
		return c.MaxInterval
	}
	return time.Duration(d)
}

// PollDay is the start of the day to fetch, in the configured location.
func (c Config) PollDay(now time.Time) time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d-c.DayOffset, 0, 0, 0, 0, loc)
}
