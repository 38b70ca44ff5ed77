package verification

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/server/mailer"
	"github.com/sethvargo/go-retry"
)

// linearBackoff waits base*n before the n-th retry.
func linearBackoff(base time.Duration) retry.Backoff {
	var n atomic.Int64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		return time.Duration(n.Add(1)) * base, false
	})
}

// permanent errors are returned without further attempts.
func permanent(err error) bool {
	return errors.Is(err, mailer.ErrInvalidParams) ||
		errors.Is(err, context.Canceled)
}

// withRetry runs fn up to attempts times, giving each attempt its own
// timeout and sleeping base*n between attempts.
func (o *Orchestrator) withRetry(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	attempts := o.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := retry.WithMaxRetries(uint64(attempts-1), linearBackoff(o.cfg.RetryBaseDelay))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++

		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := fn(actx)
		if err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}

		o.log.Warn(ctx, "attempt failed", "op", op, "attempt", attempt, "of", attempts, "error", err)
		return retry.RetryableError(err)
	})
}
