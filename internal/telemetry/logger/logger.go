package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	loggers  sync.Map // map[string]*slog.Logger
	handlers sync.Map // map[string]*subsystemHandler

	globalLogger     *slog.Logger
	globalLoggerOnce sync.Once
)

// Logger returns the Logger for subsystem, configured from
// PIPEFLOW_LOG_LEVEL. Repeated calls with the same subsystem return the
// same instance.
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	level := cfg.LevelForSubsystem(subsystem)

	handler := newHandler(subsystem, level, cfg.Format)
	log := slog.New(handler)

	actual, _ := loggers.LoadOrStore(subsystem, log)
	if h, ok := handler.(*subsystemHandler); ok {
		handlers.Store(subsystem, h)
	}

	return actual.(*slog.Logger)
}

// GlobalLogger returns the default "pipeflow" subsystem logger.
func GlobalLogger() *slog.Logger {
	globalLoggerOnce.Do(func() {
		globalLogger = Logger("pipeflow")
	})
	return globalLogger
}

// SetLevel adjusts a single subsystem's level at runtime.
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// SetGlobalLevel adjusts every subsystem's level at runtime.
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).SetLevel(level)
		return true
	})
}

// Discard returns a Logger that drops everything it is given. Test-only.
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// With returns subsystem's Logger with args bound.
func With(subsystem string, args ...any) *slog.Logger {
	return Logger(subsystem).With(args...)
}

func Debug(subsystem, msg string, args ...any) { Logger(subsystem).Debug(msg, args...) }
func Info(subsystem, msg string, args ...any)  { Logger(subsystem).Info(msg, args...) }
func Warn(subsystem, msg string, args ...any)  { Logger(subsystem).Warn(msg, args...) }
func Error(subsystem, msg string, args ...any) { Logger(subsystem).Error(msg, args...) }

// SetOutput redirects every logger's output. Call before the first Logger
// call in tests that need to assert on output; existing loggers pick up
// the change immediately since they write through dynamicWriter.
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
