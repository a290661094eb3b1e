package logging

import "log/slog"

// EnableTrace turns on per-candidate and per-job trace logs. It is set by
// the TRACE log level and stays off otherwise to reduce noise.
var EnableTrace = false

// TraceDefault logs to the default logger if EnableTrace is true.
func TraceDefault(msg string, args ...any) {
	if EnableTrace {
		slog.Debug(msg, args...)
	}
}
