package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesceNil(t *testing.T) {
	log := Coalesce(nil)
	assert.NotNil(t, log)
	// must be safe to use
	log.Info("no-op")
	assert.False(t, log.IsLevelEnabled(LevelError))
}

func TestCoalescePassthrough(t *testing.T) {
	tl := NewTestLogger()
	assert.Equal(t, Logger(tl), Coalesce(tl))
}

func TestTestLoggerRecords(t *testing.T) {
	tl := NewTestLogger()
	tl.Info("first", "k", "v")
	tl.Warn("second")

	logs := tl.Logs()
	assert.Len(t, logs, 2)
	assert.Equal(t, "INFO", logs[0].Severity)
	assert.Equal(t, "first", logs[0].Message)
	assert.Equal(t, "WARN", logs[1].Severity)
}

func TestTestLoggerWithSharesEntries(t *testing.T) {
	tl := NewTestLogger()
	child := tl.With(map[string]interface{}{"component": "cache"})
	child.Debug("from child")
	assert.Len(t, tl.Logs(), 1)
}

func TestGetLevelFromEnv(t *testing.T) {
	t.Setenv("QUERYLAYER_LOG_LEVEL", "warn")
	assert.Equal(t, LevelWarn, GetLevelFromEnv())

	t.Setenv("QUERYLAYER_LOG_LEVEL", "nonsense")
	assert.Equal(t, LevelInfo, GetLevelFromEnv())
}

func TestZapLoggerLevels(t *testing.T) {
	log := New(LevelWarn)
	assert.False(t, log.IsLevelEnabled(LevelDebug))
	assert.True(t, log.IsLevelEnabled(LevelWarn))
	assert.True(t, log.IsLevelEnabled(LevelError))
}
