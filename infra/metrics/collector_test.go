package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/kenter-mqtt/core/events"
	coremetrics "github.com/kilianp07/kenter-mqtt/core/metrics"
	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/internal/eventbus"
)

type memSink struct {
	mu     sync.Mutex
	cycles []coremetrics.CycleRecord
	ms     int
}

func (m *memSink) RecordCycle(rec coremetrics.CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, rec)
	return nil
}

func (m *memSink) RecordMeasurements(_ string, ms []model.Measurement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ms += len(ms)
	return nil
}

func (m *memSink) snapshot() ([]coremetrics.CycleRecord, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]coremetrics.CycleRecord(nil), m.cycles...), m.ms
}

func TestEventCollector(t *testing.T) {
	bus := eventbus.New[events.CycleEvent](4)
	sink := &memSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, sink, nil)

	q := model.MeteringQuery{ConnectionID: "c", MeteringPointID: "mp1"}
	bus.Publish(events.CycleEvent{ID: "ok", Query: q, Stage: events.StageCycle, Measurements: make([]model.Measurement, 3), Published: 3})
	bus.Publish(events.CycleEvent{ID: "bad", Query: q, Stage: events.StageFetch, Err: errors.New("down"), ConsecutiveFailures: 1})

	deadline := time.Now().Add(time.Second)
	for {
		cycles, ms := sink.snapshot()
		if len(cycles) == 2 {
			if ms != 3 {
				t.Fatalf("expected 3 measurements recorded, got %d", ms)
			}
			if !cycles[0].Success || cycles[1].Success || cycles[1].Error != "down" || cycles[1].Stage != "fetch" {
				t.Fatalf("unexpected records %+v", cycles)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("collector did not record events: %+v", cycles)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestEventCollectorNilBus(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, &memSink{}, nil)
	select {
	case <-done:
	default:
		t.Fatal("expected closed channel")
	}
}
