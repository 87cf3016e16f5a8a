// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings; factories decode the settings with Decode and return the concrete
// implementation.
package factory
