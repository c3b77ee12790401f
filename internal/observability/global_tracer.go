package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "examprep"

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer(tracerName)
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		globalTracer = otel.Tracer(tracerName)
	}
	return globalTracer
}

// TraceFunction starts a new span named "<service>.<function>".
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return GetGlobalTracer().Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceAIFunction starts a new span for an LLM gateway or grading call.
func TraceAIFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "ai", functionName, attributes...)
}

// TraceExamFunction starts a new span for an exam service function.
func TraceExamFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "exam", functionName, attributes...)
}

// TraceMediaFunction starts a new span for speech or image enrichment.
func TraceMediaFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "media", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeExam returns a tracing attribute for the exam kind.
func AttributeExam(exam string) attribute.KeyValue {
	return attribute.String("exam.kind", exam)
}

// AttributeSkill returns a tracing attribute for an IELTS skill or TOEIC section.
func AttributeSkill(skill string) attribute.KeyValue {
	return attribute.String("exam.skill", skill)
}

// AttributeDifficulty returns a tracing attribute for a difficulty.
func AttributeDifficulty(difficulty string) attribute.KeyValue {
	return attribute.String("exam.difficulty", difficulty)
}

// AttributeTestID returns a tracing attribute for a test ID.
func AttributeTestID(id int) attribute.KeyValue {
	return attribute.Int("test.id", id)
}

// AttributeHistoryID returns a tracing attribute for a test history ID.
func AttributeHistoryID(id int) attribute.KeyValue {
	return attribute.Int("history.id", id)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id int) attribute.KeyValue {
	return attribute.Int("user.id", id)
}
