package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64       // 0.0-1.0, proportional +/- jitter
	MaxJitter        time.Duration // additive random jitter in [0, MaxJitter)
	MaxSameErrorType int           // After N consecutive same-type errors, treat as permanent (DoIfRetryable only)

	// OnRetry is called after a failed attempt that will be retried.
	// attempt is 1-based.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig returns sensible defaults for database operations
// 3 retries with 100ms initial delay, capped at 5s, doubling each time, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// ForAttempts returns a config making at most attempts calls, waiting
// min(maxDelay, initial*2^n) plus up to one second of random jitter between them.
func ForAttempts(attempts int, initial, maxDelay time.Duration) *Config {
	if attempts < 1 {
		attempts = 1
	}
	return &Config{
		MaxRetries:   attempts - 1,
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Multiplier:   2.0,
		MaxJitter:    time.Second,
	}
}

// Backoff returns the un-jittered delay before retry number n (0-based).
func (c *Config) Backoff(n int) time.Duration {
	delay := c.InitialDelay
	for i := 0; i < n; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
		if c.MaxDelay > 0 && delay > c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// applyJitter adds random jitter to a delay to prevent thundering herd.
// Jitter is calculated as: delay +/- (delay * jitterFactor * random(-1 to +1)) + random(0 to maxJitter)
func applyJitter(delay time.Duration, jitterFactor float64, maxJitter time.Duration) time.Duration {
	if jitterFactor > 0 {
		jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
		delay = time.Duration(float64(delay) + jitter)
	}
	if maxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(maxJitter)))
	}
	return delay
}

// Do executes fn with exponential backoff retry logic
// Returns nil on success, or last error after all retries exhausted
// Respects context cancellation during wait periods
// Errors wrapped with Permanent end the loop immediately.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := run(ctx, cfg, func() (struct{}, error) { return struct{}{}, fn() }, stopPermanent)
	return err
}

// DoWithResult executes fn and returns both result and error
// Respects context cancellation during wait periods
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, fn, stopPermanent)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The wrapped error is still
// reachable through errors.Is and errors.As.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func stopPermanent(err error) error {
	if IsPermanent(err) {
		return err
	}
	return nil
}

// DoIfRetryable only retries if the error is transient
// For permanent errors (auth failures, bad requests, etc.), it returns immediately
// After N consecutive failures of the same error type, escalates to permanent failure
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	sameErrorCount := 0
	var lastErrorType string
	gate := func(err error) error {
		if IsPermanent(err) || !IsRetryable(err) {
			return err
		}
		currentErrorType := classifyErrorType(err)
		if currentErrorType == lastErrorType {
			sameErrorCount++
			if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, currentErrorType, err)
			}
		} else {
			sameErrorCount = 1
			lastErrorType = currentErrorType
		}
		return nil
	}

	_, err := run(ctx, cfg, func() (struct{}, error) { return struct{}{}, fn() }, gate)
	return err
}

// run is the shared retry loop. gate, when set, may stop retrying by
// returning a non-nil error, which is returned as-is.
func run[T any](ctx context.Context, cfg *Config, fn func() (T, error), gate func(error) error) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if gate != nil {
			if stop := gate(err); stop != nil {
				return result, stop
			}
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := applyJitter(cfg.Backoff(attempt), cfg.JitterFactor, cfg.MaxJitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		}
	}

	return result, lastErr
}

// RetryableError is an interface for errors that explicitly declare their retryability.
// LLM errors implement this interface to provide explicit retry behavior.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable determines if an error is transient and worth retrying.
//
// The function checks errors in this order:
// 1. If any error in the chain implements RetryableError, use its IsRetryable() method
// 2. Otherwise, pattern-match against known retryable error strings
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

var retryablePatterns = []string{
	// Connection errors
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	// HTTP status codes
	"429",
	"500",
	"502",
	"503",
	"504",
	"529",
	// HTTP error messages
	"rate limit",
	"overloaded",
	"service unavailable",
	"too many requests",
}

// classifyErrorType extracts a category from err for comparison.
// This is used to detect repeated failures of the same error type.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	errStr := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "529", "429", "404", "403", "401", "400"} {
		if strings.Contains(errStr, code) {
			return code
		}
	}

	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return "rate_limit"
	case strings.Contains(errStr, "overloaded"):
		return "overloaded"
	}
	return "unknown"
}
