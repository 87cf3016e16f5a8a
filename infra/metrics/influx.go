package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/kenter-mqtt/core/metrics"
	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
)

// InfluxSink writes cycle outcomes and the readings themselves to InfluxDB,
// giving the add-on a history the broker does not keep.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails, so a missing database never blocks polling.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCycle writes one kenter_cycle point.
func (s *InfluxSink) RecordCycle(rec coremetrics.CycleRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("kenter_cycle").
		AddTag("metering_point", rec.MeteringPoint).
		AddTag("stage", rec.Stage).
		AddTag("success", boolTag(rec.Success)).
		AddField("cycle_id", rec.ID).
		AddField("duration_ms", round3(rec.Duration.Seconds()*1000)).
		AddField("measurements", rec.Measurements).
		AddField("published", rec.Published).
		AddField("failures", rec.ConsecutiveFailures)
	if rec.Error != "" {
		p = p.AddField("error", rec.Error)
	}
	p = p.SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordMeasurements writes every reading as a kenter_measurement point at
// its own timestamp, in a single request.
func (s *InfluxSink) RecordMeasurements(meteringPoint string, ms []model.Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(ms))
	for _, m := range ms {
		points = append(points, write.NewPointWithMeasurement("kenter_measurement").
			AddTag("metering_point", meteringPoint).
			AddTag("channel", m.Channel).
			AddTag("unit", m.Unit).
			AddField("value", round3(m.Value)).
			SetTime(m.Timestamp))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
