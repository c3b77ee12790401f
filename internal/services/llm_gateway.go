package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"examprep/internal/config"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LLMGateway produces a completion for a prompt
type LLMGateway interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CredentialRotator hands out API keys round-robin. The cursor is shared by
// every caller holding the same rotator; advancing it affects later calls too.
type CredentialRotator struct {
	keys   []string
	cursor atomic.Uint64
}

// NewCredentialRotator copies keys, dropping blank entries
func NewCredentialRotator(keys []string) *CredentialRotator {
	r := &CredentialRotator{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			r.keys = append(r.keys, k)
		}
	}
	return r
}

// Size is the number of usable credentials
func (r *CredentialRotator) Size() int {
	return len(r.keys)
}

// Current returns the index and key under the cursor. The pool must not be empty.
func (r *CredentialRotator) Current() (int, string) {
	idx := int(r.cursor.Load() % uint64(len(r.keys)))
	return idx, r.keys[idx]
}

// Advance moves the cursor to the next credential
func (r *CredentialRotator) Advance() {
	r.cursor.Add(1)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// statusError keeps the HTTP status of a failed completion call
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// OpenAIGateway calls an OpenAI-compatible chat completion endpoint, rotating
// credentials on every failure.
type OpenAIGateway struct {
	httpClient *http.Client
	cfg        config.LLMConfig
	rotator    *CredentialRotator
	metrics    *observability.ExamMetrics
	logger     *observability.Logger
}

// NewOpenAIGateway builds a gateway with an instrumented HTTP client
func NewOpenAIGateway(cfg config.LLMConfig, rotator *CredentialRotator, metrics *observability.ExamMetrics, logger *observability.Logger) *OpenAIGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.AIRequestTimeout
	}
	return &OpenAIGateway{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
			),
		},
		cfg:     cfg,
		rotator: rotator,
		metrics: metrics,
		logger:  logger,
	}
}

// Generate tries each credential at most once, starting from the shared cursor
func (g *OpenAIGateway) Generate(ctx context.Context, prompt string) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "generate",
		attribute.String("ai.model", g.cfg.Model),
		attribute.Int("prompt.length", len(prompt)),
		attribute.Int("credentials.count", g.rotator.Size()),
	)
	defer observability.FinishSpan(span, &err)

	if g.rotator.Size() == 0 {
		observability.SetCallResult(span, "no_credentials")
		return "", contextutils.NewErrorf(contextutils.ErrAIConfigInvalid, "no LLM API keys configured")
	}
	if g.cfg.BaseURL == "" {
		observability.SetCallResult(span, "no_url_configured")
		return "", contextutils.NewErrorf(contextutils.ErrAIConfigInvalid, "no LLM base URL configured")
	}

	var lastErr error
	size := g.rotator.Size()
	attempts := 0
	for attempts < size {
		attempts++
		idx, key := g.rotator.Current()
		content, callErr := g.complete(ctx, key, prompt)
		if callErr == nil {
			span.SetAttributes(attribute.Int("credentials.used_index", idx), attribute.Int("attempts", attempts))
			return content, nil
		}
		lastErr = callErr

		status := 0
		var se *statusError
		if errors.As(callErr, &se) {
			status = se.status
		}
		g.logger.Warn(ctx, "LLM call failed, rotating credential", map[string]interface{}{
			"credential_index": idx,
			"credential":       contextutils.MaskAPIKey(key),
			"status_code":      status,
			"attempt":          attempts,
			"error":            callErr.Error(),
		})
		g.rotator.Advance()
		g.metrics.CredentialRotated(ctx, status)

		if ctx.Err() != nil {
			observability.SetCallResult(span, "cancelled")
			return "", contextutils.WrapErrorf(contextutils.ErrGenerationFailure, "stopped after %d of %d credentials: %w", attempts, size, lastErr)
		}
	}

	observability.SetCallResult(span, "credentials_exhausted")
	return "", contextutils.WrapErrorf(contextutils.ErrGenerationFailure, "all %d credentials failed: %w", attempts, lastErr)
}

// complete issues a single completion request with one key
func (g *OpenAIGateway) complete(ctx context.Context, apiKey, prompt string) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "call_openai")
	defer observability.FinishSpan(span, &err)

	url := strings.TrimRight(g.cfg.BaseURL, "/") + g.cfg.CompletionsPath
	body, err := json.Marshal(chatRequest{
		Model:       g.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		observability.SetCallResult(span, "marshal_failed")
		return "", contextutils.WrapErrorf(err, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		observability.SetCallResult(span, "request_creation_failed")
		return "", contextutils.WrapErrorf(err, "failed to create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "examprep/1.0")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		observability.SetCallResult(span, "http_request_failed")
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "HTTP request failed after %v: %w", duration, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": cerr.Error()})
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.SetCallResult(span, "body_read_failed")
		return "", contextutils.WrapErrorf(err, "failed to read response body")
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode), attribute.String("duration", duration.String()))
	if resp.StatusCode != http.StatusOK {
		observability.SetCallResult(span, "http_error")
		return "", &statusError{
			status: resp.StatusCode,
			err:    contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "API request failed with status %d: %s", resp.StatusCode, truncate(string(raw), 500)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		observability.SetCallResult(span, "json_unmarshal_failed")
		return "", contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to parse AI response as JSON: %w", err)
	}
	if parsed.Error != nil {
		observability.SetCallResult(span, "api_error")
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		observability.SetCallResult(span, "no_choices")
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "no choices in AI response")
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		observability.SetCallResult(span, "empty_content")
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "AI returned empty content")
	}

	observability.SetCallResult(span, "success")
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
