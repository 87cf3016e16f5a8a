package model

import (
	"errors"
	"time"
)

// MeteringQuery identifies the meter whose data is fetched.
type MeteringQuery struct {
	ConnectionID    string
	MeteringPointID string
}

// Validate checks that both identifiers are present.
func (q MeteringQuery) Validate() error {
	if q.ConnectionID == "" {
		return errors.New("connection id is required")
	}
	if q.MeteringPointID == "" {
		return errors.New("metering point id is required")
	}
	return nil
}

// Measurement is a single reading of one channel.
type Measurement struct {
	Timestamp time.Time
	Value     float64 // energy in Unit, usually kWh per interval
	Channel   string
	Unit      string
}

// DailyTotal aggregates a channel's readings over one day.
type DailyTotal struct {
	Day     time.Time
	Channel string
	Unit    string
	Value   float64
	Samples int
}
