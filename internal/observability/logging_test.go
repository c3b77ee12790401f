package observability

import (
	"context"
	"errors"
	"testing"

	contextutils "examprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zap.AtomicLevel) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{Logger: zap.New(core)}, logs
}

func TestLogWithContextAddsTraceInfo(t *testing.T) {
	tracer := trace.NewTracerProvider().Tracer("test-tracer")
	logger, logs := newObservedLogger(zap.NewAtomicLevelAt(zap.InfoLevel))

	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	logger.Info(ctx, "test message", map[string]interface{}{"exam": "ielts"})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
	assert.Equal(t, "ielts", fields["exam"])
}

func TestLogWithContextNoSpan(t *testing.T) {
	logger, logs := newObservedLogger(zap.NewAtomicLevelAt(zap.InfoLevel))

	logger.Info(context.Background(), "test message", nil)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.NotContains(t, fields, "trace_id")
	assert.NotContains(t, fields, "span_id")
}

func TestLogIncludesRequestID(t *testing.T) {
	logger, logs := newObservedLogger(zap.NewAtomicLevelAt(zap.InfoLevel))

	ctx := contextutils.WithRequestID(context.Background(), "req-42")
	logger.Warn(ctx, "slow request")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()["request_id"])
}

func TestLoggerErrorMergesFields(t *testing.T) {
	logger, logs := newObservedLogger(zap.NewAtomicLevelAt(zap.InfoLevel))

	logger.Error(context.Background(), "generation failed", errors.New("boom"),
		map[string]interface{}{"exam": "toeic"}, map[string]interface{}{"attempt": 3})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.ErrorLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "toeic", fields["exam"])
	assert.EqualValues(t, 3, fields["attempt"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	logger, logs := newObservedLogger(zap.NewAtomicLevelAt(zap.WarnLevel))

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "hidden")
	logger.Warn(context.Background(), "shown")

	assert.Equal(t, 1, logs.Len())
}
