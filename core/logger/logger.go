package logger

// Logger is the logging surface used by the poller, the fetcher and the
// MQTT publisher. Implementations attach a component name to every entry.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	// Errorw logs an error entry carrying structured context such as the
	// failing stage and meter identifiers.
	Errorw(msg string, err error, fields map[string]any)
}
