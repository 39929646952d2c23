package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"frago/internal/logging"
)

// RetryPolicy configures exponential backoff retry behavior for an
// operation run through Execute or ExecuteWithResult.
type RetryPolicy struct {
	MaxRetries      int           // retries after the initial attempt (default: 3)
	BaseDelay       time.Duration // delay before the first retry (default: 1s)
	MaxDelay        time.Duration // delay ceiling (default: 30s)
	ExponentialBase float64       // backoff growth rate: delay = BaseDelay * ExponentialBase^attempt (default: 2)
	Jitter          bool          // randomize each delay uniformly in [0, delay) (default: true)

	// RetryableException, when set, gates which failures get retried at
	// all: a failure it rejects is re-raised immediately without consuming
	// an attempt. A nil predicate retries every non-nil error.
	RetryableException func(error) bool
}

// DefaultRetryPolicy is the baseline profile: 3 retries, 1s base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
}

// AggressiveRetryPolicy retries more, sooner: 5 retries, 500ms base delay.
func AggressiveRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      5,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
}

// ConservativeRetryPolicy backs off slower and gives up sooner: 2 retries,
// 2s base delay.
func ConservativeRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      2,
		BaseDelay:       2 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
}

// ProxyConnectionRetryPolicy is scoped to proxy dial/connection failures: 5
// retries, 500ms base delay, a gentler 1.5x exponential base, and a 10s
// ceiling, since a broken proxy rarely recovers by waiting longer.
func ProxyConnectionRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         5,
		BaseDelay:          500 * time.Millisecond,
		MaxDelay:           10 * time.Second,
		ExponentialBase:    1.5,
		Jitter:             true,
		RetryableException: func(err error) bool { return IsProxyFailure(err) || IsConnectionFailure(err) },
	}
}

// ConnectionRetryPolicy is scoped to connection-class failures: 3 retries,
// 1s base delay, 15s ceiling.
func ConnectionRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         3,
		BaseDelay:          1 * time.Second,
		MaxDelay:           15 * time.Second,
		ExponentialBase:    2,
		Jitter:             true,
		RetryableException: IsConnectionFailure,
	}
}

// RetryableFunc is the operation a RetryPolicy executes and re-executes.
type RetryableFunc func(ctx context.Context) error

// Execute runs fn under the policy, retrying on failure with exponential
// backoff. It returns nil on the first success, the original error
// immediately if RetryableException rejects it, and a *Error of
// KindRetryExhausted wrapping the last failure once retries run out.
func (p RetryPolicy) Execute(ctx context.Context, op string, fn RetryableFunc) error {
	return p.ExecuteWithLog(ctx, op, fn, nil)
}

// ExecuteWithLog is Execute with an explicit logger; a nil logger falls back
// to the package's "retry" component logger.
func (p RetryPolicy) ExecuteWithLog(ctx context.Context, op string, fn RetryableFunc, logger *logging.ComponentLogger) error {
	if logger == nil {
		logger = logging.NewComponentLogger(logging.ComponentLoggerConfig{ComponentName: "retry"})
	}

	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			logger.Debug("%s: context cancelled, stopping retries", op)
			return fmt.Errorf("%s: context cancelled: %w", op, ctx.Err())
		default:
		}

		if attempt == 0 {
			logger.Debug("%s: executing (attempt 1/%d)", op, p.MaxRetries+1)
		} else {
			logger.Debug("%s: retrying (attempt %d/%d)", op, attempt+1, p.MaxRetries+1)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("%s: succeeded after %d attempts", op, attempt+1)
			}
			return nil
		}

		lastErr = err
		logger.Debug("%s: attempt %d failed: %v", op, attempt+1, err)

		if p.RetryableException != nil && !p.RetryableException(err) {
			logger.Debug("%s: error rejected by retryable predicate, stopping retries", op)
			return err
		}

		if attempt == p.MaxRetries {
			logger.Warn("%s: retries exhausted after %d attempts", op, p.MaxRetries+1)
			break
		}

		delay := p.backoffFor(attempt)
		logger.Debug("%s: waiting %v before next retry", op, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logger.Debug("%s: context cancelled during backoff", op)
			return fmt.Errorf("%s: context cancelled during retry: %w", op, ctx.Err())
		}
	}

	return E(KindRetryExhausted, op, lastErr)
}

// ExecuteWithResult is Execute for operations that produce a value.
func ExecuteWithResult[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return ExecuteWithResultAndLog[T](ctx, p, op, fn, nil)
}

// ExecuteWithResultAndLog is ExecuteWithResult with an explicit logger.
func ExecuteWithResultAndLog[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error), logger *logging.ComponentLogger) (T, error) {
	if logger == nil {
		logger = logging.NewComponentLogger(logging.ComponentLoggerConfig{ComponentName: "retry"})
	}

	var lastErr error
	var zero T

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: context cancelled: %w", op, ctx.Err())
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("%s: succeeded after %d attempts", op, attempt+1)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("%s: attempt %d failed: %v", op, attempt+1, err)

		if p.RetryableException != nil && !p.RetryableException(err) {
			return zero, err
		}

		if attempt == p.MaxRetries {
			logger.Warn("%s: retries exhausted after %d attempts", op, p.MaxRetries+1)
			break
		}

		delay := p.backoffFor(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", op, ctx.Err())
		}
	}

	return zero, E(KindRetryExhausted, op, lastErr)
}

// backoffFor computes the delay before the retry following the given
// zero-based attempt index: BaseDelay * ExponentialBase^attempt, capped at
// MaxDelay, then optionally full-jittered to a uniform value in [0, delay).
func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	base := p.ExponentialBase
	if base <= 0 {
		base = 2
	}
	multiplier := math.Pow(base, float64(attempt))
	delay := time.Duration(float64(p.BaseDelay) * multiplier)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < 0 {
		delay = p.MaxDelay
	}

	if p.Jitter && delay > 0 {
		delay = time.Duration(rand.Int63n(int64(delay)))
	}

	return delay
}

// calculateBackoff gives this package's tests direct access to backoff
// values without going through Execute.
func calculateBackoff(attempt int, p RetryPolicy) time.Duration {
	return p.backoffFor(attempt)
}
