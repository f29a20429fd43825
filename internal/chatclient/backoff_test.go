package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayDoubles(t *testing.T) {
	assert.Equal(t, 1*time.Second, RetryDelay(0))
	assert.Equal(t, 2*time.Second, RetryDelay(1))
	assert.Equal(t, 4*time.Second, RetryDelay(2))
	assert.Equal(t, 8*time.Second, RetryDelay(3))
	assert.Equal(t, 16*time.Second, RetryDelay(4))
}

func TestRetryDelayCaps(t *testing.T) {
	assert.Equal(t, retryDelayCap, RetryDelay(5))
	assert.Equal(t, retryDelayCap, RetryDelay(6))
	assert.Equal(t, retryDelayCap, RetryDelay(100))
}

func TestRetryDelayNeverDecreases(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := RetryDelay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
}

func TestReconnectWindowAllowsAttemptScheduledInside(t *testing.T) {
	assert.True(t, withinReconnectWindow(0))
	assert.True(t, withinReconnectWindow(31*time.Second))
	assert.True(t, withinReconnectWindow(reconnectWindow-time.Millisecond))
	assert.False(t, withinReconnectWindow(reconnectWindow))
	assert.False(t, withinReconnectWindow(2*reconnectWindow))

	// Walking the schedule: delays 1+2+4+8+16 put the sixth attempt at 31s
	// of downtime, still inside the window, so it runs even though its
	// capped 30s delay completes after the window closes.
	elapsed := time.Duration(0)
	attempts := 0
	for withinReconnectWindow(elapsed) {
		elapsed += RetryDelay(attempts)
		attempts++
	}
	assert.Equal(t, 6, attempts)
}

func TestRetryDelayClampsNegativeAttempt(t *testing.T) {
	assert.Equal(t, 1*time.Second, RetryDelay(-1))
	assert.Equal(t, 1*time.Second, RetryDelay(-100))
}
