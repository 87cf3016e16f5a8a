// Package metrics defines the sinks that record poll cycle outcomes and the
// readings they carried. Sinks are built from configuration through a
// registry; several configured sinks are combined into a MultiSink.
package metrics
