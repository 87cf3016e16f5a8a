package events

import (
	"time"

	"github.com/kilianp07/kenter-mqtt/core/model"
)

// Stage names the step of a cycle an event refers to.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StagePublish Stage = "publish"
	StageCycle   Stage = "cycle"
)

// CycleEvent is published once per poll cycle. Err is nil on success and
// Stage then is StageCycle.
type CycleEvent struct {
	ID                  string
	Query               model.MeteringQuery
	Day                 time.Time
	Stage               Stage
	Err                 error
	Started             time.Time
	Duration            time.Duration
	Measurements        []model.Measurement
	Published           int
	ConsecutiveFailures int
	NextInterval        time.Duration
}

// Success reports whether the cycle completed.
func (e CycleEvent) Success() bool { return e.Err == nil }
