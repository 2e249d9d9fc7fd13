package providers

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	rateLimitBaseDelay  = 1 * time.Second
	transientRetryDelay = 1 * time.Second
)

// policyBackoff implements the per-kind delay schedule: exponential doubling
// for rate limits, a fixed short delay for server errors and timeouts. The
// retry ceiling is applied by retry.WithMaxRetries around it.
type policyBackoff struct {
	attempt  int
	lastKind *ErrorKind
}

func (b *policyBackoff) Next() (time.Duration, bool) {
	d := transientRetryDelay
	if *b.lastKind == KindRateLimited {
		d = rateLimitBaseDelay << b.attempt
	}
	b.attempt++
	return d, false
}

// generateWithRetry runs one provider call with the shared retry policy.
// Each attempt gets its own deadline; terminal error kinds stop immediately.
func generateWithRetry(
	ctx context.Context,
	maxRetries int,
	timeout time.Duration,
	call func(ctx context.Context) ([]byte, *Error),
) ([]byte, error) {
	var (
		result   []byte
		lastKind ErrorKind
	)

	backoff := retry.WithMaxRetries(uint64(maxRetries), &policyBackoff{lastKind: &lastKind})
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, perr := call(attemptCtx)
		if perr != nil {
			lastKind = perr.Kind
			if perr.Retryable() {
				return retry.RetryableError(perr)
			}
			return perr
		}
		result = out
		return nil
	})
	if err != nil {
		// Unwrap retry.RetryableError back to the typed provider error.
		var perr *Error
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, err
	}
	return result, nil
}
