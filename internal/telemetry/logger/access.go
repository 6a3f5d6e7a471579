package logger

import (
	"sync"

	"go.uber.org/zap"
)

// AccessLogger is the high-throughput sink for one structured line per
// completed stream (inbound or outbound). It is kept separate from the
// per-subsystem slog loggers: diagnostic logging is low-volume and
// human-oriented, access logging runs on the hot path and favors zap's
// allocation-free field encoding.
var (
	accessLogger     *zap.Logger
	accessLoggerOnce sync.Once
	accessLoggerMu   sync.RWMutex
)

func defaultAccessLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Access returns the shared access-log sink, building it from zap's
// production config on first use.
func Access() *zap.Logger {
	accessLoggerOnce.Do(func() {
		accessLoggerMu.Lock()
		accessLogger = defaultAccessLogger()
		accessLoggerMu.Unlock()
	})
	accessLoggerMu.RLock()
	defer accessLoggerMu.RUnlock()
	return accessLogger
}

// SetAccessLogger overrides the shared access-log sink, e.g. with a
// zaptest logger or zap.NewNop() in tests.
func SetAccessLogger(l *zap.Logger) {
	accessLoggerOnce.Do(func() {})
	accessLoggerMu.Lock()
	accessLogger = l
	accessLoggerMu.Unlock()
}
