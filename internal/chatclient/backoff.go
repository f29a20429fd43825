package chatclient

import "time"

const (
	// retryDelayCap bounds the delay between reconnect attempts.
	retryDelayCap = 30 * time.Second
	// reconnectWindow is how long after an unexpected drop automatic
	// reconnection keeps trying before giving up for good.
	reconnectWindow = 60 * time.Second
)

// withinReconnectWindow reports whether another reconnect attempt may still
// be scheduled after the given elapsed downtime. An attempt scheduled inside
// the window runs even if its delay completes outside it.
func withinReconnectWindow(elapsed time.Duration) bool {
	return elapsed < reconnectWindow
}

// RetryDelay returns the delay before reconnect attempt n (0-based):
// 2^n seconds, capped at 30 seconds.
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^5 = 32s already exceeds the cap
	if attempt >= 5 {
		return retryDelayCap
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}
