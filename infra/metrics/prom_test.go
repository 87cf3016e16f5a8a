package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/kenter-mqtt/core/metrics"
	"github.com/kilianp07/kenter-mqtt/core/model"
)

func TestPromSink_RecordCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	now := time.Now()
	_ = sink.RecordCycle(coremetrics.CycleRecord{MeteringPoint: "mp1", Stage: "fetch", ConsecutiveFailures: 1, Duration: time.Second, Time: now})
	_ = sink.RecordCycle(coremetrics.CycleRecord{MeteringPoint: "mp1", Stage: "cycle", Success: true, Published: 3, Duration: time.Second, Time: now})

	if v := testutil.ToFloat64(sink.cycles.WithLabelValues("fetch", "failure")); v != 1 {
		t.Fatalf("failure counter %v", v)
	}
	if v := testutil.ToFloat64(sink.cycles.WithLabelValues("cycle", "success")); v != 1 {
		t.Fatalf("success counter %v", v)
	}
	if v := testutil.ToFloat64(sink.published.WithLabelValues("mp1")); v != 3 {
		t.Fatalf("published counter %v", v)
	}
	if v := testutil.ToFloat64(sink.failures); v != 0 {
		t.Fatalf("failures gauge not reset: %v", v)
	}
	if v := testutil.ToFloat64(sink.lastSuccess); v != float64(now.Unix()) {
		t.Fatalf("last success %v", v)
	}
	if n := testutil.CollectAndCount(sink.duration); n != 2 {
		t.Fatalf("expected 2 histogram series, got %d", n)
	}
}

func TestPromSink_LatestValuePerChannel(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ms := []model.Measurement{
		{Timestamp: ts.Add(15 * time.Minute), Value: 2, Channel: "consumption", Unit: "kWh"},
		{Timestamp: ts, Value: 1, Channel: "consumption", Unit: "kWh"},
		{Timestamp: ts, Value: 5, Channel: "feedin", Unit: "kWh"},
	}
	_ = sink.RecordMeasurements("mp1", ms)
	if v := testutil.ToFloat64(sink.lastValue.WithLabelValues("mp1", "consumption", "kWh")); v != 2 {
		t.Fatalf("expected latest consumption 2, got %v", v)
	}
	if v := testutil.ToFloat64(sink.lastValue.WithLabelValues("mp1", "feedin", "kWh")); v != 5 {
		t.Fatalf("expected feedin 5, got %v", v)
	}
}

func TestPromSink_ReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("second registration should reuse collectors: %v", err)
	}
	if a.cycles != b.cycles {
		t.Fatalf("expected shared collectors")
	}
}
