package logging

import "log/slog"

// EnableTrace turns on Trace output. A "TRACE" log level sets it.
var EnableTrace = false

// Trace logs at DEBUG level only when EnableTrace is set. Used for per-tick
// narration progress that would drown everything else.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}
