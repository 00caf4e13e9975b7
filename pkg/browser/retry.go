package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/ktsuji/chatdrive/pkg/logging"
)

// ExecuteWithRetry invokes op up to maxRetries times, sleeping
// baseDelay*backoffFactor^(attempt-1) between attempts. It returns the
// first successful result, or the last error once the budget is spent.
// Context cancellation interrupts the backoff sleep and is returned
// as-is.
func ExecuteWithRetry[T any](ctx context.Context, op func() (T, error), maxRetries int, baseDelay time.Duration, backoffFactor float64, log *logging.Logger) (T, error) {
	var zero T
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		if log != nil {
			log.Warnf("Attempt %d/%d failed, retrying in %s: %v", attempt, maxRetries, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * backoffFactor)
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", maxRetries, lastErr)
}
