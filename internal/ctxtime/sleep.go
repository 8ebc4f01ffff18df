// Package ctxtime holds the waiting helpers shared by the retry loops.
package ctxtime

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done. It returns ctx.Err() if the wait
// was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Linear returns the delay before retry number attempt (starting at 1):
// attempt times base, capped at max when max is positive.
func Linear(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := time.Duration(attempt) * base
	if max > 0 && (d > max || d/time.Duration(attempt) != base) {
		d = max
	}
	return d
}
