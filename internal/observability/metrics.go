package observability

import (
	"context"

	"examprep/internal/config"
	contextutils "examprep/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes OpenTelemetry metrics
func InitMetrics(cfg *config.OpenTelemetryConfig) (result0 *metric.MeterProvider, err error) {
	ctx := context.Background()

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var exporter metric.Exporter
	switch cfg.Protocol {
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp grpc metric exporter: %w", err)
		}
	case "http":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp http metric exporter: %w", err)
		}
	default:
		return nil, contextutils.ErrorWithContextf("unsupported otel protocol: %s", cfg.Protocol)
	}

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter)),
		metric.WithResource(res),
	), nil
}

// ExamMetrics holds the domain counters recorded by the exam services.
// The zero value is not usable; build it with NewExamMetrics.
type ExamMetrics struct {
	testsGenerated      otelmetric.Int64Counter
	generationFailures  otelmetric.Int64Counter
	submissionsGraded   otelmetric.Int64Counter
	credentialRotations otelmetric.Int64Counter
}

// NewExamMetrics registers the exam counters on the global meter provider.
// With no provider configured the counters are no-ops.
func NewExamMetrics() *ExamMetrics {
	meter := otel.Meter("examprep")
	m := &ExamMetrics{}
	// instrument creation only fails on invalid names; the returned no-op is fine then
	m.testsGenerated, _ = meter.Int64Counter("exam.tests.generated",
		otelmetric.WithDescription("Tests materialized from AI completions"))
	m.generationFailures, _ = meter.Int64Counter("exam.tests.generation_failures",
		otelmetric.WithDescription("Test generations that failed after all retries"))
	m.submissionsGraded, _ = meter.Int64Counter("exam.submissions.graded",
		otelmetric.WithDescription("Test submissions graded"))
	m.credentialRotations, _ = meter.Int64Counter("llm.credential.rotations",
		otelmetric.WithDescription("Times the LLM gateway advanced to the next credential"))
	return m
}

// TestGenerated records a materialized test
func (m *ExamMetrics) TestGenerated(ctx context.Context, exam, skill string) {
	if m == nil {
		return
	}
	m.testsGenerated.Add(ctx, 1, otelmetric.WithAttributes(AttributeExam(exam), AttributeSkill(skill)))
}

// GenerationFailed records a generation that gave up
func (m *ExamMetrics) GenerationFailed(ctx context.Context, exam string) {
	if m == nil {
		return
	}
	m.generationFailures.Add(ctx, 1, otelmetric.WithAttributes(AttributeExam(exam)))
}

// SubmissionGraded records a graded submission
func (m *ExamMetrics) SubmissionGraded(ctx context.Context, exam string) {
	if m == nil {
		return
	}
	m.submissionsGraded.Add(ctx, 1, otelmetric.WithAttributes(AttributeExam(exam)))
}

// CredentialRotated records a credential switch after a failed completion
func (m *ExamMetrics) CredentialRotated(ctx context.Context, statusCode int) {
	if m == nil {
		return
	}
	m.credentialRotations.Add(ctx, 1, otelmetric.WithAttributes(attribute.Int("http.status_code", statusCode)))
}
