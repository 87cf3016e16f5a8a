package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/kenter-mqtt/core/metrics"
	"github.com/kilianp07/kenter-mqtt/core/model"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (b *bodyRecorder) get() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies...)
}

func TestInfluxSink_RecordCycle(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	err := sink.RecordCycle(coremetrics.CycleRecord{
		ID:                  "c1",
		MeteringPoint:       "mp1",
		Stage:               "fetch",
		Success:             false,
		Error:               "upstream down",
		Duration:            1500 * time.Millisecond,
		ConsecutiveFailures: 2,
		Time:                now,
	})
	if err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("kenter_cycle").
		AddTag("metering_point", "mp1").
		AddTag("stage", "fetch").
		AddTag("success", "false").
		AddField("cycle_id", "c1").
		AddField("duration_ms", 1500.0).
		AddField("measurements", 0).
		AddField("published", 0).
		AddField("failures", 2).
		AddField("error", "upstream down").
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if got := rec.get(); len(got) != 1 || got[0] != expected {
		t.Errorf("unexpected body: %#v", got)
	}
}

func TestInfluxSink_RecordMeasurements(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()

	ts := time.Date(2024, 3, 1, 0, 15, 0, 0, time.UTC)
	ms := []model.Measurement{
		{Timestamp: ts, Value: 1.23456, Channel: "consumption", Unit: "kWh"},
		{Timestamp: ts, Value: 0.5, Channel: "feedin", Unit: "kWh"},
	}
	if err := sink.RecordMeasurements("mp1", ms); err != nil {
		t.Fatalf("record: %v", err)
	}
	got := rec.get()
	if len(got) != 1 {
		t.Fatalf("expected a single write request, got %d", len(got))
	}
	lines := strings.Split(got[0], "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 points, got %q", got[0])
	}
	p := write.NewPointWithMeasurement("kenter_measurement").
		AddTag("metering_point", "mp1").
		AddTag("channel", "consumption").
		AddTag("unit", "kWh").
		AddField("value", 1.235).
		SetTime(ts)
	if exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond)); lines[0] != exp {
		t.Errorf("unexpected line %q, want %q", lines[0], exp)
	}
	if err := sink.RecordMeasurements("mp1", nil); err != nil || len(rec.get()) != 1 {
		t.Errorf("empty batch must not write")
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
