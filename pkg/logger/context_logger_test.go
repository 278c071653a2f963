package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLogger_AddsSessionFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithSession(context.Background(), "s-1", "u-1")
	ctx = WithTraceID(ctx, "trace-1")
	cl.LogInfo(ctx, "handled")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "s-1", fields["session_id"])
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, "trace-1", fields["trace_id"])
}

func TestContextLogger_NoFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := NewContextLogger(zap.New(core))

	cl.LogWarn(context.Background(), "bare")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Empty(t, entries[0].ContextMap())
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	log := New("loud")
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}
