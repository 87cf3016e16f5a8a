package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/kenter-mqtt/core/metrics"
	"github.com/kilianp07/kenter-mqtt/core/model"
)

// PromSink records cycle outcomes and the last reading per channel as
// Prometheus metrics.
type PromSink struct {
	cycles      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	failures    prometheus.Gauge
	published   *prometheus.CounterVec
	lastSuccess prometheus.Gauge
	lastValue   *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.cycles, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kenter_cycles_total",
		Help: "Poll cycles by final stage and result",
	}, []string{"stage", "result"})); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kenter_cycle_duration_seconds",
		Help:    "Wall time of a poll cycle",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kenter_consecutive_failures",
		Help: "Number of consecutive failed poll cycles",
	})); err != nil {
		return nil, err
	}
	if s.published, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kenter_measurements_published_total",
		Help: "Measurements published to the broker",
	}, []string{"metering_point"})); err != nil {
		return nil, err
	}
	if s.lastSuccess, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kenter_last_success_timestamp_seconds",
		Help: "Unix time of the last successful cycle",
	})); err != nil {
		return nil, err
	}
	if s.lastValue, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kenter_measurement_value",
		Help: "Most recent reading per channel",
	}, []string{"metering_point", "channel", "unit"})); err != nil {
		return nil, err
	}
	return s, nil
}

// register reuses an already registered collector of the same shape, which
// happens when a sink is built twice against the default registerer.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCycle updates the cycle counters.
func (s *PromSink) RecordCycle(rec coremetrics.CycleRecord) error {
	result := "success"
	if !rec.Success {
		result = "failure"
	}
	s.cycles.WithLabelValues(rec.Stage, result).Inc()
	s.duration.WithLabelValues(result).Observe(rec.Duration.Seconds())
	s.failures.Set(float64(rec.ConsecutiveFailures))
	if rec.Published > 0 {
		s.published.WithLabelValues(rec.MeteringPoint).Add(float64(rec.Published))
	}
	if rec.Success {
		s.lastSuccess.Set(float64(rec.Time.Unix()))
	}
	return nil
}

// RecordMeasurements keeps the latest value of each channel.
func (s *PromSink) RecordMeasurements(meteringPoint string, ms []model.Measurement) error {
	latest := make(map[string]model.Measurement, len(ms))
	for _, m := range ms {
		if prev, ok := latest[m.Channel]; !ok || !m.Timestamp.Before(prev.Timestamp) {
			latest[m.Channel] = m
		}
	}
	for ch, m := range latest {
		s.lastValue.WithLabelValues(meteringPoint, ch, m.Unit).Set(m.Value)
	}
	return nil
}

func boolTag(b bool) string { return strconv.FormatBool(b) }
