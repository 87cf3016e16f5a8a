package metrics

import (
	"github.com/kilianp07/kenter-mqtt/core/factory"
	coremetrics "github.com/kilianp07/kenter-mqtt/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL        string `json:"url"`
			Token      string `json:"token"`
			Org        string `json:"org"`
			Bucket     string `json:"bucket"`
			SkipHealth bool   `json:"skip_health_check"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.SkipHealth {
			return NewInfluxSink(c.URL, c.Token, c.Org, c.Bucket), nil
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})
}
