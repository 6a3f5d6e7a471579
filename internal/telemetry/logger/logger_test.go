package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("test")
	log.Info("test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "subsystem=test")
}

func TestSetOutputExistingLogger(t *testing.T) {
	log := Logger("test2")

	buf := &bytes.Buffer{}
	SetOutput(buf)

	log.Info("after switch", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "after switch")
	assert.Contains(t, output, "key=value")
}

func TestSetLevelPerSubsystem(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("quiet")
	SetLevel("quiet", slog.LevelWarn)
	log.Info("should not appear")
	log.Warn("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should not appear")
	assert.Contains(t, output, "should appear")
}
