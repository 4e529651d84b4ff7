package node

import (
	"context"
	"math/rand"
	"time"
)

// minBackoff is the first wait after a failed attempt.
const minBackoff = 10 * time.Millisecond

// backoff retries an operation with random exponential delays.
//
// Report, if non-nil, sees every failure and may return a non-nil error to
// abort the loop when waiting will not help.
type backoff struct {
	Report  func(error) error
	MaxWait time.Duration
}

// Retry calls try until it succeeds, Report aborts, or ctx is done.
func (c backoff) Retry(ctx context.Context, try func() error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	wait := minBackoff
	for {
		before := time.Now()
		err := try()
		if err == nil {
			return nil
		}
		elapsed := time.Since(before)

		if c.Report != nil {
			if err := c.Report(err); err != nil {
				return err
			}
		}

		// Never wait less than the failed attempt took.
		if wait <= elapsed {
			wait = elapsed
		}
		wait += time.Duration(rand.Int63n(int64(wait)))
		if c.MaxWait > 0 && wait > c.MaxWait {
			wait = c.MaxWait
		}

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
