package errs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestFallbackUsesBackupOnPrimaryFailure(t *testing.T) {
	v, err := Fallback(context.Background(),
		func(context.Context) (string, error) { return "", errors.New("primary down") },
		func(context.Context) (string, error) { return "demo-data", nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "demo-data", v)
}

// TestCircuitBreakerTripsAndRecovers reproduces the spec's scenario: with
// threshold=2 and a 50ms cooldown, two failures trip the breaker open, a
// third call is rejected without invoking fn, and after the cooldown elapses
// a success closes the breaker again.
func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	var tripped []string
	cb := NewCircuitBreaker("heating-zone-1", CircuitBreakerConfig{
		Threshold:  2,
		CooldownMs: 50 * time.Millisecond,
	}, func(name string) { tripped = append(tripped, name) })

	failing := func() error { return errors.New("actuator write failed") }

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, CircuitClosed, cb.State())

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, []string{"heating-zone-1"}, tripped)

	calledDuringOpen := false
	err := cb.Execute(func() error { calledDuringOpen = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, calledDuringOpen, "fn must not run while circuit is open")

	time.Sleep(80 * time.Millisecond)

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestGracefulDegradeReturnsFallbackOnError(t *testing.T) {
	v := GracefulDegrade(func() (int, error) { return 0, errors.New("boom") }, 42)
	assert.Equal(t, 42, v)

	v = GracefulDegrade(func() (int, error) { return 7, nil }, 42)
	assert.Equal(t, 7, v)
}

func TestWrapRecordsThenRethrows(t *testing.T) {
	h := NewHistory(nil)
	err := Wrap(h, "pool-pump", func() error { return errors.New("pump stalled") })
	require.Error(t, err)
	assert.Equal(t, 1, h.Len())
}
