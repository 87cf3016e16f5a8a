// Package infra holds the adapters behind the core interfaces: the paho MQTT
// publisher, the Prometheus and InfluxDB metric sinks, the Sentry monitor and
// the zerolog logger. Nothing in core imports these packages.
package infra
