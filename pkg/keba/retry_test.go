package keba

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryTimeoutsThenSuccess(t *testing.T) {
	var delays []time.Duration
	cfg := RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		BackoffFactor: 2,
		Sleep:         func(d time.Duration) { delays = append(delays, d) },
	}

	calls := 0
	value, err := RetryWithBackoff(cfg, func() (string, error) {
		calls++
		if calls <= 2 {
			return "", &TimeoutError{Command: "report 2", Attempts: 1}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestRetryNonTimeoutAbortsImmediately(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		BackoffFactor: 2,
		Sleep:         func(time.Duration) { t.Fatal("must not sleep") },
	}

	boom := errors.New("socket unavailable")
	calls := 0
	_, err := RetryWithBackoff(cfg, func() (string, error) {
		calls++
		return "", boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustedKeepsTimeoutType(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:   2,
		BaseDelay:     time.Millisecond,
		BackoffFactor: 2,
		Sleep:         func(time.Duration) {},
	}

	calls := 0
	_, err := RetryWithBackoff(cfg, func() (string, error) {
		calls++
		return "", &TimeoutError{Command: "ena 1", Attempts: 1}
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, IsTimeout(err), "exhausted retries must still match IsTimeout")
}

func TestValidateResponse(t *testing.T) {
	// report read requires matching id plus one expected field
	good := ParseResponse(`{"ID": "2", "State": 2}`)
	assert.NoError(t, ValidateResponse("report 2", good))

	wrongID := ParseResponse(`{"ID": "3", "I1": 0}`)
	assert.Error(t, ValidateResponse("report 2", wrongID))

	empty := ParseResponse(`{"ID": "2"}`)
	assert.Error(t, ValidateResponse("report 2", empty))

	// mutations require the success marker
	assert.NoError(t, ValidateResponse("ena 1", Ack{Key: AckSuccessKey, Value: "done"}))
	assert.Error(t, ValidateResponse("ena 1", Ack{Key: AckErrorKey, Value: "blocked"}))
	assert.Error(t, ValidateResponse("curr 8000", ParseResponse(`{"ID": "2", "State": 2}`)))

	// unrecognized commands are accepted unconditionally
	assert.NoError(t, ValidateResponse("display 0 0 0 0 hello", Unknown{Raw: "?"}))
}
