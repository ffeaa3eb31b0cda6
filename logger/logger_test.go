package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	for val, want := range map[string]LogLevel{
		"trace": LevelTrace,
		"DEBUG": LevelDebug,
		"info":  LevelInfo,
		"Warn":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
		"junk":  LevelInfo,
	} {
		t.Setenv("TIERCACHE_LOG_LEVEL", val)
		assert.Equal(t, want, GetLevelFromEnv(), "value %q", val)
	}
}

func TestConsoleLevelFiltering(t *testing.T) {
	log := NewConsoleLogger(LevelWarn)
	assert.False(t, log.IsLevelEnabled(LevelDebug))
	assert.False(t, log.IsLevelEnabled(LevelInfo))
	assert.True(t, log.IsLevelEnabled(LevelWarn))
	assert.True(t, log.IsLevelEnabled(LevelError))
}

func TestConsoleWithReturnsClone(t *testing.T) {
	base := NewConsoleLogger(LevelInfo)
	child := base.With(map[string]interface{}{"session": "abc"})
	assert.NotSame(t, base, child)
	grandchild := child.WithPrefix("[reaper]")
	assert.NotSame(t, child, grandchild)
}

func TestTestLoggerCapture(t *testing.T) {
	log := NewTestLogger()
	log.Info("hello %s", "world")
	log.Warn("watch out")

	entries := log.Logs()
	assert.Len(t, entries, 2)
	assert.Equal(t, "INFO", entries[0].Severity)
	assert.Equal(t, "hello %s", entries[0].Message)
	assert.Equal(t, "WARN", entries[1].Severity)
}

func TestTestLoggerWithSharesLog(t *testing.T) {
	log := NewTestLogger()
	child := log.With(map[string]interface{}{"k": "v"})
	child.Error("from child")
	assert.Len(t, log.Logs(), 1)
}
