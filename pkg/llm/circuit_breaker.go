package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ekaya-inc/nps-engine/pkg/apperrors"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks requests until ResetAfter has elapsed.
	CircuitOpen
	// CircuitHalfOpen lets a single probe through.
	CircuitHalfOpen
)

// String returns a human-readable string for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long an open circuit waits before admitting a probe.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker stops calling a provider that keeps failing.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold <= 0 {
		config.Threshold = 1
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// CircuitOpenError is returned while the breaker rejects calls. It matches
// apperrors.ErrCircuitOpen with errors.Is.
type CircuitOpenError struct {
	Failures int
	// RetryAfter is the time until a probe is admitted. Zero while a probe is in flight.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("%s: probe in flight", apperrors.ErrCircuitOpen)
	}
	return fmt.Sprintf("%s: %d consecutive failures, next probe in %v",
		apperrors.ErrCircuitOpen, e.Failures, e.RetryAfter.Round(time.Millisecond))
}

func (e *CircuitOpenError) Unwrap() error { return apperrors.ErrCircuitOpen }

// CircuitRetryAfter reports whether err is an open-circuit rejection and how
// long the caller should wait before calling again.
func CircuitRetryAfter(err error) (time.Duration, bool) {
	var open *CircuitOpenError
	if !errors.As(err, &open) {
		return 0, false
	}
	return open.RetryAfter, true
}

// Allow reports whether a request may proceed. The returned error is a
// *CircuitOpenError when it may not.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return &CircuitOpenError{
			Failures:   cb.consecutiveFails,
			RetryAfter: cb.resetAfter - since + time.Millisecond,
		}
	default:
		return &CircuitOpenError{Failures: cb.consecutiveFails}
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure and trips the circuit at the threshold.
// A failed probe reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// abandonProbe returns a half-open circuit to open without counting a failure,
// so the next call is admitted as a fresh probe.
func (cb *CircuitBreaker) abandonProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of consecutive failures.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}

// breakerClient guards an LLMClient with a CircuitBreaker.
type breakerClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
}

// WithCircuitBreaker wraps client so calls fail fast while the breaker is open.
// Only provider-side failures count; rejected requests and cancellations do not.
func WithCircuitBreaker(client LLMClient, breaker *CircuitBreaker) LLMClient {
	return &breakerClient{inner: client, breaker: breaker}
}

func (b *breakerClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, jsonMode bool) (*GenerateResponseResult, error) {
	if err := b.breaker.Allow(); err != nil {
		return nil, NewError(ErrorTypeEndpoint, "provider unavailable", true, err)
	}

	result, err := b.inner.GenerateResponse(ctx, prompt, systemMessage, temperature, jsonMode)
	switch {
	case err == nil:
		b.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled):
		b.breaker.abandonProbe()
	case GetErrorType(err) == ErrorTypeEndpoint || IsRetryable(err):
		b.breaker.RecordFailure()
	default:
		// Auth and request errors say nothing about provider health.
		b.breaker.RecordSuccess()
	}
	return result, err
}

func (b *breakerClient) GetModel() string    { return b.inner.GetModel() }
func (b *breakerClient) GetEndpoint() string { return b.inner.GetEndpoint() }
