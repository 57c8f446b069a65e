package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ekaya-inc/nps-engine/pkg/apperrors"
)

// ErrorType indicates which part of the provider setup an error points at.
type ErrorType string

const (
	ErrorTypeNone     ErrorType = ""
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeRequest  ErrorType = "request"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int    // HTTP status code if known
	Model      string // Model name if known
	Endpoint   string // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a structured LLM error carrying request context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// ClassifyError categorizes a provider error and returns a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	statusCode := statusCodeOf(err)
	classified := classify(err, statusCode)
	classified.StatusCode = statusCode
	return classified
}

// statusPattern matches a status code only where it is labelled as one.
var statusPattern = regexp.MustCompile(`(?i)\b(?:http|status|status code|code)[:\s]+([1-5]\d{2})\b`)

func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode
	}
	return extractStatusCode(err.Error())
}

func extractStatusCode(s string) int {
	m := statusPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

func classify(err error, statusCode int) *Error {
	lower := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.Canceled) || strings.Contains(lower, "context canceled"):
		return NewError(ErrorTypeUnknown, "request cancelled", false, err)

	case errors.Is(err, apperrors.ErrCircuitOpen):
		return NewError(ErrorTypeEndpoint, "circuit open", true, err)

	case statusCode == 401 || statusCode == 403 ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "authentication_error") ||
		strings.Contains(lower, "permission_error"):
		return NewError(ErrorTypeAuth, "authentication failed", false, err)

	case strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return NewError(ErrorTypeModel, "model not found", false, err)

	case statusCode == 404 || strings.Contains(lower, "not_found_error"):
		return NewError(ErrorTypeEndpoint, "endpoint not found", false, err)

	case statusCode == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit_error"):
		return NewError(ErrorTypeUnknown, "rate limited", true, err)

	case statusCode == 529 || strings.Contains(lower, "overloaded"):
		return NewError(ErrorTypeEndpoint, "provider overloaded", true, err)

	case strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host"):
		return NewError(ErrorTypeEndpoint, "connection failed", true, err)

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return NewError(ErrorTypeEndpoint, "request timeout", true, err)

	case statusCode >= 500 || strings.Contains(lower, "api_error"):
		return NewError(ErrorTypeEndpoint, "server error", true, err)

	case statusCode == 400 || strings.Contains(lower, "invalid_request_error"):
		return NewError(ErrorTypeRequest, "invalid request", false, err)
	}

	// Unknown transport failures are retried; the driver's attempt ceiling bounds them.
	return NewError(ErrorTypeUnknown, "llm error", true, err)
}

// IsRetryable returns true if the error is a retryable *Error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
