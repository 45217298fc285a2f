package elevation

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy is the bounded retry loop used for provider requests:
// every round tries each endpoint in order, up to MaxAttempts rounds,
// with a per-attempt timeout and no backoff. Cancellation is checked
// between attempts, so a canceled context stops the loop instead of
// running the budget out.
type RetryPolicy struct {
	MaxAttempts       int
	PerAttemptTimeout time.Duration
}

// DefaultRetryPolicy matches the provider's observed behavior: five
// rounds over the endpoint list, fifteen seconds per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		PerAttemptTimeout: 15 * time.Second,
	}
}

// Do runs attempt against each endpoint per round until one succeeds,
// the budget is exhausted, or ctx is canceled. The last attempt error
// is returned on exhaustion.
func (p RetryPolicy) Do(ctx context.Context, endpoints []string, attempt func(ctx context.Context, endpoint string) error) error {
	if p.MaxAttempts <= 0 {
		return errors.New("elevation: retry policy allows no attempts")
	}
	if len(endpoints) == 0 {
		return errors.New("elevation: no endpoints configured")
	}
	var lastErr error
	for round := 0; round < p.MaxAttempts; round++ {
		for _, ep := range endpoints {
			if err := ctx.Err(); err != nil {
				if lastErr != nil {
					return lastErr
				}
				return err
			}
			attemptCtx := ctx
			cancel := context.CancelFunc(func() {})
			if p.PerAttemptTimeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, p.PerAttemptTimeout)
			}
			err := attempt(attemptCtx, ep)
			cancel()
			if err == nil {
				return nil
			}
			lastErr = err
		}
	}
	return lastErr
}
