// Package logger provides pipeflow's diagnostic logging system.
//
// Built on the standard library's log/slog, it supports:
//   - per-subsystem level configuration
//   - environment-variable configuration (PIPEFLOW_LOG_LEVEL, PIPEFLOW_LOG_FORMAT)
//   - structured logging
//
// Usage:
//
//	package mux
//
//	import "github.com/pipeflow/pipeflow/internal/telemetry/logger"
//
//	var log = logger.Logger("mux")
//
//	func foo() {
//	    log.Info("session opened", "cluster", key, "count", n)
//	    log.Debug("reply dispatched", "session", id)
//	}
//
// Environment variables:
//
//	# set every subsystem to info, mux to debug
//	PIPEFLOW_LOG_LEVEL=mux=debug,info
//
//	# use JSON output
//	PIPEFLOW_LOG_FORMAT=json
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogFormat selects the slog handler used for output.
type LogFormat int

const (
	// FormatText is the default, human-readable format.
	FormatText LogFormat = iota
	// FormatJSON emits one JSON object per line.
	FormatJSON
)

// Config holds the resolved logging configuration.
type Config struct {
	DefaultLevel    slog.Level
	SubsystemLevels map[string]slog.Level
	Format          LogFormat
	AddSource       bool
}

// LevelForSubsystem returns the configured level for subsystem, falling
// back to DefaultLevel.
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

var (
	configCache *Config
	configOnce  sync.Once
)

// ConfigFromEnv parses the environment once and caches the result.
//
//	PIPEFLOW_LOG_LEVEL: subsystem=level,subsystem=level,defaultLevel
//	PIPEFLOW_LOG_FORMAT: text or json
//	PIPEFLOW_LOG_ADD_SOURCE: true or false
func ConfigFromEnv() *Config {
	configOnce.Do(func() {
		configCache = parseConfig()
	})
	return configCache
}

func parseConfig() *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
		AddSource:       false,
	}

	if levelStr := os.Getenv("PIPEFLOW_LOG_LEVEL"); levelStr != "" {
		parseLevelConfig(cfg, levelStr)
	}

	if formatStr := os.Getenv("PIPEFLOW_LOG_FORMAT"); formatStr != "" {
		switch strings.ToLower(formatStr) {
		case "json":
			cfg.Format = FormatJSON
		default:
			cfg.Format = FormatText
		}
	}

	if addSourceStr := os.Getenv("PIPEFLOW_LOG_ADD_SOURCE"); addSourceStr != "" {
		cfg.AddSource = addSourceStr != "false" && addSourceStr != "0"
	}

	return cfg
}

// parseLevelConfig parses "subsystem=level,subsystem=level,defaultLevel".
func parseLevelConfig(cfg *Config, levelStr string) {
	parts := strings.Split(levelStr, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "=") {
			kv := strings.SplitN(part, "=", 2)
			if len(kv) == 2 {
				subsystem := strings.TrimSpace(kv[0])
				levelName := strings.TrimSpace(kv[1])
				if level, ok := parseLevel(levelName); ok {
					cfg.SubsystemLevels[subsystem] = level
				}
			}
		} else if level, ok := parseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ResetConfig clears the cached configuration. Test-only.
func ResetConfig() {
	configOnce = sync.Once{}
	configCache = nil
}
