package keba

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// TimeoutError is returned when the wallbox did not answer within the
// response timeout, after retries were exhausted.
type TimeoutError struct {
	Command  string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("keba: no response to %q after %d attempts", e.Command, e.Attempts)
}

func (e *TimeoutError) Timeout() bool { return true }

// IsTimeout reports whether err is a timeout: either a TimeoutError or a
// network error with deadline semantics.
func IsTimeout(err error) bool {
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// RetryConfig bounds RetryWithBackoff. The delay before attempt n (n >= 2)
// is BaseDelay * BackoffFactor^(n-2).
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64

	// sleep hook for tests. nil means time.Sleep.
	Sleep func(time.Duration)
}

// DefaultRetryConfig matches the wallbox link defaults: 3 attempts, 500ms
// base delay, factor 2.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		BackoffFactor: 2,
	}
}

// RetryWithBackoff runs fn until it succeeds or attempts are exhausted.
// Only timeouts are retried; any other error propagates immediately. When
// all attempts time out, the last error is returned wrapped so callers can
// still match it with IsTimeout.
func RetryWithBackoff[T any](cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			sleep(delay)
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		}
		value, err := fn()
		if err == nil {
			return value, nil
		}
		if !IsTimeout(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("retries exhausted: %w", lastErr)
}
