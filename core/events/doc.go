// Package events defines the events emitted on the event bus.
//
// Available event types:
//   - CycleEvent: outcome of one poll cycle
package events
