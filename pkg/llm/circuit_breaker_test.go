package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/nps-engine/pkg/apperrors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, resetAfter time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: resetAfter})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, 1, cb.ConsecutiveFailures())
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)
	cb.RecordFailure()
	require.Error(t, cb.Allow())

	clock.advance(31 * time.Second)
	require.NoError(t, cb.Allow(), "probe should be admitted after reset window")
	assert.Equal(t, CircuitHalfOpen, cb.State())

	err := cb.Allow()
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen, "second request during probe should be rejected")

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(3, 10*time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.advance(11 * time.Second)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Error(t, cb.Allow())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1000, ResetAfter: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Allow()
			if i%2 == 0 {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
			_ = cb.State()
		}(i)
	}
	wg.Wait()
}

func TestWithCircuitBreaker_FailsFastWhenOpen(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64, jsonMode bool) (*GenerateResponseResult, error) {
		return nil, NewError(ErrorTypeEndpoint, "server error", true, errors.New("HTTP 503"))
	}
	cb, _ := newTestBreaker(2, time.Minute)
	client := WithCircuitBreaker(mock, cb)

	for i := 0; i < 2; i++ {
		_, err := client.GenerateResponse(context.Background(), "p", "s", 0, true)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := client.GenerateResponse(context.Background(), "p", "s", 0, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 2, mock.Calls(), "open circuit must not reach the provider")

	wait, open := CircuitRetryAfter(err)
	assert.True(t, open)
	assert.Equal(t, time.Minute+time.Millisecond, wait)
}

func TestWithCircuitBreaker_CanceledProbeIsReadmitted(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64, jsonMode bool) (*GenerateResponseResult, error) {
		return nil, context.Canceled
	}
	cb, clock := newTestBreaker(1, time.Second)
	cb.RecordFailure()
	clock.advance(2 * time.Second)
	client := WithCircuitBreaker(mock, cb)

	_, err := client.GenerateResponse(context.Background(), "p", "s", 0, true)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.NoError(t, cb.Allow(), "a new probe should be admitted after an abandoned one")
}

func TestCircuitRetryAfter(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)
	cb.RecordFailure()

	clock.advance(10 * time.Second)
	wait, open := CircuitRetryAfter(cb.Allow())
	assert.True(t, open)
	assert.Equal(t, 20*time.Second+time.Millisecond, wait)

	clock.advance(21 * time.Second)
	require.NoError(t, cb.Allow())
	wait, open = CircuitRetryAfter(cb.Allow())
	assert.True(t, open, "rejection during a probe is still an open circuit")
	assert.Zero(t, wait)

	_, open = CircuitRetryAfter(errors.New("HTTP 503"))
	assert.False(t, open)
	_, open = CircuitRetryAfter(nil)
	assert.False(t, open)
}

func TestWithCircuitBreaker_AuthErrorsDoNotTrip(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64, jsonMode bool) (*GenerateResponseResult, error) {
		return nil, NewError(ErrorTypeAuth, "authentication failed", false, errors.New("HTTP 401"))
	}
	cb, _ := newTestBreaker(1, time.Minute)
	client := WithCircuitBreaker(mock, cb)

	for i := 0; i < 3; i++ {
		_, _ = client.GenerateResponse(context.Background(), "p", "s", 0, true)
	}
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, "mock-model", client.GetModel())
}
