package consumer

import (
	"context"
	"math"
	"time"
)

const maxBackoff = time.Duration(math.MaxInt32) * time.Millisecond

// Backoff returns the wait after the given failed attempt (1-based):
// base, 2*base, 4*base and so on, capped at math.MaxInt32 milliseconds.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay >= float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
