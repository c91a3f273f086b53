// Package poll implements the caller-side polling contract: check a
// condition at a fixed interval until it holds, fails, or the budget runs out.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrStillProcessing reports that the budget ran out while the job was still
// working. It is not a failure of the job.
var ErrStillProcessing = errors.New("poll: still processing")

// Check reports whether the awaited condition holds. A non-nil error stops
// polling and is returned as is.
type Check func(ctx context.Context) (bool, error)

// Until invokes check immediately and then every interval until it reports
// true, returns an error, ctx ends, or budget elapses. A budget of zero means
// no budget; only ctx bounds the wait.
func Until(ctx context.Context, interval, budget time.Duration, check Check) error {
	if interval <= 0 {
		interval = time.Second
	}
	var deadline <-chan time.Time
	if budget > 0 {
		timer := time.NewTimer(budget)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrStillProcessing
		case <-ticker.C:
		}
	}
}
