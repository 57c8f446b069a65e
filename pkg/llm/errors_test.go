package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/ekaya-inc/nps-engine/pkg/apperrors"
)

func TestError_Error_WithStatusCodeAndModel(t *testing.T) {
	err := NewErrorWithContext(ErrorTypeEndpoint, "server error", true, errors.New("boom"), "gpt-4o-mini", "https://api.openai.com/v1", 503)

	result := err.Error()
	for _, want := range []string{"endpoint", "HTTP 503", "model=gpt-4o-mini", "server error", "boom"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected error message to contain %q, got: %s", want, result)
		}
	}
}

func TestError_Error_MinimalContext(t *testing.T) {
	err := NewError(ErrorTypeAuth, "authentication failed", false, nil)
	if got := err.Error(); got != "auth authentication failed" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(ErrorTypeUnknown, "llm error", true, cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		errType   ErrorType
		retryable bool
		status    int
	}{
		{"openai 429", &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached"}, ErrorTypeUnknown, true, 429},
		{"openai 401", &openai.APIError{HTTPStatusCode: 401, Message: "Incorrect API key"}, ErrorTypeAuth, false, 401},
		{"openai 500", &openai.APIError{HTTPStatusCode: 500, Message: "internal"}, ErrorTypeEndpoint, true, 500},
		{"openai 400", &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}, ErrorTypeRequest, false, 400},
		{"request error 502", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, ErrorTypeEndpoint, true, 502},
		{"model missing", errors.New("The model `gpt-9` does not exist"), ErrorTypeModel, false, 0},
		{"anthropic overloaded", errors.New("anthropic api error type: overloaded_error, message: Overloaded"), ErrorTypeEndpoint, true, 0},
		{"anthropic rate limit", errors.New("anthropic api error type: rate_limit_error, message: slow down"), ErrorTypeUnknown, true, 0},
		{"anthropic auth", errors.New("anthropic api error type: authentication_error, message: invalid x-api-key"), ErrorTypeAuth, false, 0},
		{"status 529", errors.New("status code: 529"), ErrorTypeEndpoint, true, 529},
		{"connection refused", errors.New("dial tcp 127.0.0.1:443: connect: connection refused"), ErrorTypeEndpoint, true, 0},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorTypeEndpoint, true, 0},
		{"circuit open", fmt.Errorf("%w: probe in flight", apperrors.ErrCircuitOpen), ErrorTypeEndpoint, true, 0},
		{"unknown", errors.New("unexpected EOF"), ErrorTypeUnknown, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyError(tt.err)
			if result.Type != tt.errType {
				t.Errorf("expected type %q, got %q", tt.errType, result.Type)
			}
			if result.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, result.Retryable)
			}
			if result.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, result.StatusCode)
			}
		})
	}
}

func TestClassifyError_ContextCanceledNotRetryable(t *testing.T) {
	result := ClassifyError(fmt.Errorf("post: %w", context.Canceled))
	if result.Retryable {
		t.Error("context canceled should NOT be retryable")
	}
	if result.Message != "request cancelled" {
		t.Errorf("expected message 'request cancelled', got %s", result.Message)
	}
}

func TestClassifyError_PreservesExistingError(t *testing.T) {
	original := NewError(ErrorTypeModel, "model not found", false, nil)
	if got := ClassifyError(fmt.Errorf("wrapped: %w", original)); got != original {
		t.Errorf("expected existing *Error to be returned, got %v", got)
	}
	if ClassifyError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestExtractStatusCode_Precision(t *testing.T) {
	tests := []struct {
		errStr       string
		expectedCode int
	}{
		{"HTTP 503 Service Unavailable", 503},
		{"status 429 rate limited", 429},
		{"error, status code: 500, status: 500 Internal Server Error", 500},
		{"code: 504 timeout", 504},
		{"processed 503 records", 0},
		{"port 5432 connection failed", 0},
		{"Status: 404 Not Found", 404},
	}

	for _, tt := range tests {
		t.Run(tt.errStr, func(t *testing.T) {
			if got := extractStatusCode(tt.errStr); got != tt.expectedCode {
				t.Errorf("extractStatusCode(%q) = %d, expected %d", tt.errStr, got, tt.expectedCode)
			}
		})
	}
}

func TestGetErrorType(t *testing.T) {
	if got := GetErrorType(NewError(ErrorTypeAuth, "x", false, nil)); got != ErrorTypeAuth {
		t.Errorf("expected auth, got %q", got)
	}
	if got := GetErrorType(errors.New("plain")); got != ErrorTypeUnknown {
		t.Errorf("expected unknown for plain error, got %q", got)
	}
}
