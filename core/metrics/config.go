package metrics

import "github.com/kilianp07/kenter-mqtt/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
	// Addr is the listen address of the /metrics endpoint; empty disables it.
	Addr string `json:"addr" yaml:"addr"`
}
