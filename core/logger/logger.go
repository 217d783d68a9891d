// Package logger defines the logging contract shared by the schedulers.
package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StructuredLogger can log structured information at info level as well. It
// is implemented by the zerolog adapter.
type StructuredLogger interface {
	Debugw(msg string, fields map[string]any)
	Infow(msg string, fields map[string]any)
}

// NopLogger implements Logger with no-op methods.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// Infow logs fields at info level when l supports it, falling back to a
// formatted message otherwise.
func Infow(l Logger, msg string, fields map[string]any) {
	if sl, ok := l.(StructuredLogger); ok {
		sl.Infow(msg, fields)
		return
	}
	l.Infof("%s %v", msg, fields)
}
