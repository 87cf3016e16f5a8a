package metrics

import (
	"errors"
	"time"

	"github.com/kilianp07/kenter-mqtt/core/model"
)

// CycleRecord summarises one poll cycle.
type CycleRecord struct {
	ID                  string
	ConnectionID        string
	MeteringPoint       string
	Stage               string
	Success             bool
	Error               string
	Duration            time.Duration
	Measurements        int
	Published           int
	ConsecutiveFailures int
	Time                time.Time
}

// MetricsSink records cycle outcomes.
type MetricsSink interface {
	RecordCycle(rec CycleRecord) error
}

// MeasurementRecorder is implemented by sinks that keep the readings themselves.
type MeasurementRecorder interface {
	RecordMeasurements(meteringPoint string, ms []model.Measurement) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordCycle(CycleRecord) error                        { return nil }
func (NopSink) RecordMeasurements(string, []model.Measurement) error { return nil }

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCycle forwards to all sinks. A failing sink does not stop the others.
func (m *MultiSink) RecordCycle(rec CycleRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordCycle(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closer is implemented by sinks holding connections or buffers.
type Closer interface {
	Close()
}

// Close closes the sinks that hold resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(Closer); ok {
			c.Close()
		}
	}
}

// RecordMeasurements forwards to the sinks that support it.
func (m *MultiSink) RecordMeasurements(meteringPoint string, ms []model.Measurement) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(MeasurementRecorder); ok {
			if err := r.RecordMeasurements(meteringPoint, ms); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
