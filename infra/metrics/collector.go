package metrics

import (
	"context"
	"errors"

	"github.com/kilianp07/kenter-mqtt/core/events"
	coremetrics "github.com/kilianp07/kenter-mqtt/core/metrics"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
	"github.com/kilianp07/kenter-mqtt/internal/eventbus"
)

// StartEventCollector subscribes to the cycle bus and records every event in
// sink. It stops when the context is canceled or the bus is closed; the
// returned channel is closed once it has.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.CycleEvent], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := Record(sink, ev); err != nil {
					log.Errorf("record cycle %s: %v", ev.ID, err)
				}
			}
		}
	}()
	return done
}

// Record writes one cycle to sink, plus its readings when the sink keeps
// them and the cycle succeeded.
func Record(sink coremetrics.MetricsSink, ev events.CycleEvent) error {
	err := sink.RecordCycle(CycleRecord(ev))
	if !ev.Success() || len(ev.Measurements) == 0 {
		return err
	}
	if r, ok := sink.(coremetrics.MeasurementRecorder); ok {
		err = errors.Join(err, r.RecordMeasurements(ev.Query.MeteringPointID, ev.Measurements))
	}
	return err
}

// CycleRecord flattens a cycle event for the sinks.
func CycleRecord(ev events.CycleEvent) coremetrics.CycleRecord {
	rec := coremetrics.CycleRecord{
		ID:                  ev.ID,
		ConnectionID:        ev.Query.ConnectionID,
		MeteringPoint:       ev.Query.MeteringPointID,
		Stage:               string(ev.Stage),
		Success:             ev.Success(),
		Duration:            ev.Duration,
		Measurements:        len(ev.Measurements),
		Published:           ev.Published,
		ConsecutiveFailures: ev.ConsecutiveFailures,
		Time:                ev.Started.Add(ev.Duration),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}
