package shell

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryOnce runs step once; if it fails, waits a short backoff interval
// and runs it exactly one more time, returning the second attempt's
// result. Install and startup steps get one automatic retry and never
// more than one, regardless of the error's class.
func RetryOnce(ctx context.Context, step func() error) error {
	var lastErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		lastErr = step()
		return struct{}{}, lastErr
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return lastErr
	}
	return nil
}

// startupGrace is the default grace period shutdown waits before escalating
// from a terminate signal to a kill signal.
const startupGrace = 10 * time.Second

// DefaultShutdownGrace returns the default shutdown grace period.
func DefaultShutdownGrace() time.Duration { return startupGrace }
