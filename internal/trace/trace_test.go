package trace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpanDisabled(t *testing.T) {
	t.Setenv("LOG_TRACING_ENABLED", "false")
	require.NoError(t, Init())
	assert.False(t, Enabled())

	ctx, span := StartSpan(context.Background(), "noop")
	span.End()
	_, _, ok := GetTraceFields(ctx)
	assert.False(t, ok)
}

func TestSpansExportedToTraceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	t.Setenv("LOG_TRACING_ENABLED", "true")
	t.Setenv("TRACE_FILE", path)
	require.NoError(t, Init())
	t.Cleanup(func() { enabled = false; tracer = nil; tracerProvider = nil })

	ctx, span := StartSpan(context.Background(), "engine.tick")
	traceID, spanID, ok := GetTraceFields(ctx)
	require.True(t, ok)
	assert.Len(t, traceID, 32)
	assert.Len(t, spanID, 16)
	span.End()

	require.NoError(t, Shutdown(context.Background()))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "engine.tick")
	assert.Contains(t, string(b), serviceName)
}
