package contextutils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "error with details",
			appError: &AppError{
				Code:     ErrorCodeInvalidInput,
				Severity: SeverityError,
				Message:  "Invalid input",
				Details:  "exam must be ielts or toeic",
			},
			expected: "INVALID_INPUT: Invalid input - exam must be ielts or toeic",
		},
		{
			name: "error without details",
			appError: &AppError{
				Code:     ErrorCodeInvalidSession,
				Severity: SeverityWarn,
				Message:  "Test is already completed",
			},
			expected: "INVALID_SESSION: Test is already completed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestAppError_Is(t *testing.T) {
	err1 := &AppError{Code: ErrorCodeGenerationFailure}
	err2 := &AppError{Code: ErrorCodeGenerationFailure}
	err3 := &AppError{Code: ErrorCodeRecordNotFound}

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(err3))
	assert.False(t, err1.Is(errors.New("regular error")))
}

func TestWrapError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, WrapError(nil, "context"))
	})

	t.Run("AppError keeps its code", func(t *testing.T) {
		wrapped := WrapError(ErrInvalidSession, "submit")

		var appErr *AppError
		require.True(t, errors.As(wrapped, &appErr))
		assert.Equal(t, ErrorCodeInvalidSession, appErr.Code)
		assert.Equal(t, "submit", appErr.Message)
		assert.True(t, errors.Is(wrapped, ErrInvalidSession))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		wrapped := WrapError(errors.New("boom"), "context")
		assert.Equal(t, ErrorCodeInternalError, GetErrorCode(wrapped))
		assert.Contains(t, wrapped.Error(), "boom")
	})
}

func TestWrapErrorf(t *testing.T) {
	cause := errors.New("429 too many requests")
	err := WrapErrorf(ErrGenerationFailure, "after %d attempts: %w", 3, cause)

	assert.True(t, errors.Is(err, ErrGenerationFailure))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestNewErrorf(t *testing.T) {
	err := NewErrorf(ErrQuestionNotFound, "Question not found: %d", 42)

	assert.True(t, errors.Is(err, ErrQuestionNotFound))
	assert.Equal(t, "QUESTION_NOT_FOUND: Question not found: 42", err.Error())
	assert.Equal(t, SeverityInfo, GetErrorSeverity(err))
}

func TestGetErrorCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrMalformedAIResponse)
	assert.Equal(t, ErrorCodeMalformedAIResponse, GetErrorCode(err))
	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(errors.New("x")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"generation failure", ErrGenerationFailure, true},
		{"malformed response", ErrMalformedAIResponse, true},
		{"timeout", ErrTimeout, true},
		{"invalid session", ErrInvalidSession, false},
		{"plain error", errors.New("x"), false},
		{"fatal timeout", &AppError{Code: ErrorCodeTimeout, Severity: SeverityFatal}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestAppError_ToJSON(t *testing.T) {
	err := NewAppErrorWithCause(ErrorCodeGenerationFailure, SeverityError, "All AI credentials failed", "3 keys", errors.New("last"))

	out := err.ToJSON()
	assert.Equal(t, "GENERATION_FAILURE", out["code"])
	assert.Equal(t, "All AI credentials failed", out["error"])
	assert.Equal(t, "3 keys", out["details"])
	assert.Equal(t, true, out["retryable"])
	assert.Equal(t, "last", out["cause"])
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, 0, GetUserIDFromContext(ctx))
	assert.Equal(t, "", GetRequestIDFromContext(ctx))

	ctx = WithRequestID(WithUserID(ctx, 7), "req-1")
	assert.Equal(t, 7, GetUserIDFromContext(ctx))
	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
}
