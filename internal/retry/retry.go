// Package retry holds the bounded exponential backoff shared by storage
// writes and encoder submissions.
package retry

import (
	"context"
	"time"
)

// Backoff computes capped exponential delays
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry number attempt (0-based): Base * 2^attempt, capped at Max
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
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

// Do calls fn up to attempts times, sleeping between failures. It stops early
// when fn returns an error that stop reports as final, or when ctx ends.
// The last error is returned.
func Do(ctx context.Context, attempts int, b Backoff, stop func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := Sleep(ctx, b.Delay(attempt-1)); serr != nil {
				return err
			}
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if stop != nil && stop(err) {
			return err
		}
	}
	return err
}
