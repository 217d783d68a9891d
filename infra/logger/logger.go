package logger

import (
	"sync/atomic"

	corelogger "github.com/kilianp07/foundry/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. The output format follows the
// APP_ENV variable and the level follows LOG_LEVEL, then SetLevel, then info.
func New(component string) Logger {
	return NewZerologLogger(component)
}

var defaultLevel atomic.Value

// SetLevel sets the level used by loggers created afterwards when LOG_LEVEL
// is unset.
func SetLevel(level string) {
	defaultLevel.Store(level)
}

func fallbackLevel() string {
	if v, ok := defaultLevel.Load().(string); ok {
		return v
	}
	return ""
}
