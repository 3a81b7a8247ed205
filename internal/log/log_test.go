package log

import (
	"context"
	"testing"

	"github.com/pbinitiative/zenorchestrator/internal/appcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	previous := logger
	logger = zap.New(core).Sugar()
	t.Cleanup(func() { logger = previous })
	return logs
}

func TestContextLoggingAddsExecutionKey(t *testing.T) {
	// setup
	logs := observe(t)
	ctx := appcontext.WithExecutionKey(context.Background(), 7)

	// when
	Infof(ctx, "process %s started", "p-1")
	Info("engine %s ready", "e-1")

	// then
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "process p-1 started", entries[0].Message)
	assert.Equal(t, int64(7), entries[0].ContextMap()["executionKey"])
	assert.Equal(t, "engine e-1 ready", entries[1].Message)
	assert.NotContains(t, entries[1].ContextMap(), "executionKey")
}

func TestLevelsAreKept(t *testing.T) {
	// setup
	logs := observe(t)

	// when
	Debug("d")
	Warn("w")
	Errorf(context.Background(), "e")

	// then
	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}
