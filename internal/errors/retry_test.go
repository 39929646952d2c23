package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noJitterPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       10 * time.Millisecond,
		MaxDelay:        100 * time.Millisecond,
		ExponentialBase: 2,
		Jitter:          false,
	}
}

func TestExecute_Success(t *testing.T) {
	policy := noJitterPolicy()

	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return nil
	}

	require.NoError(t, policy.Execute(context.Background(), "test", fn))
	assert.Equal(t, 1, attempts)
}

func TestExecute_SuccessAfterRetries(t *testing.T) {
	policy := noJitterPolicy()

	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return NewTransientError(errors.New("temporary failure"), "retry me")
		}
		return nil
	}

	require.NoError(t, policy.Execute(context.Background(), "test", fn))
	assert.Equal(t, 3, attempts)
}

func TestExecute_RejectedByPredicate(t *testing.T) {
	policy := noJitterPolicy()
	policy.RetryableException = func(err error) bool { return false }

	attempts := 0
	sentinel := errors.New("not our problem")
	fn := func(ctx context.Context) error {
		attempts++
		return sentinel
	}

	err := policy.Execute(context.Background(), "test", fn)
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, 1, attempts, "predicate should reject immediately")
}

func TestExecute_RetriesExhausted(t *testing.T) {
	policy := noJitterPolicy()

	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return NewTransientError(errors.New("always fails"), "transient")
	}

	err := policy.Execute(context.Background(), "test", fn)
	require.Error(t, err)
	assert.True(t, Is(err, KindRetryExhausted))
	assert.Equal(t, policy.MaxRetries+1, attempts)
}

func TestExecute_ContextCancellation(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:      10,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        1 * time.Second,
		ExponentialBase: 2,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return NewTransientError(errors.New("transient"), "keep trying")
	}

	err := policy.Execute(ctx, "test", fn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.LessOrEqual(t, attempts, 3, "should stop quickly after cancellation")
}

func TestExecuteWithResult_Success(t *testing.T) {
	policy := noJitterPolicy()

	attempts := 0
	fn := func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, NewTransientError(errors.New("transient"), "retry")
		}
		return 42, nil
	}

	result, err := ExecuteWithResult(context.Background(), policy, "test", fn)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestExecuteWithResult_Failure(t *testing.T) {
	policy := noJitterPolicy()
	policy.MaxRetries = 2

	attempts := 0
	fn := func(ctx context.Context) (string, error) {
		attempts++
		return "", NewTransientError(errors.New("always fails"), "transient")
	}

	result, err := ExecuteWithResult(context.Background(), policy, "test", fn)
	require.Error(t, err)
	assert.Empty(t, result)
	assert.Equal(t, policy.MaxRetries+1, attempts)
}

func TestCalculateBackoff(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2,
		Jitter:          false,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 0, expected: 1 * time.Second},
		{attempt: 1, expected: 2 * time.Second},
		{attempt: 2, expected: 4 * time.Second},
		{attempt: 3, expected: 8 * time.Second},
		{attempt: 4, expected: 16 * time.Second},
		{attempt: 5, expected: 30 * time.Second},  // 32s capped at 30s
		{attempt: 10, expected: 30 * time.Second}, // always capped at max
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, calculateBackoff(tt.attempt, policy))
		})
	}
}

func TestCalculateBackoff_WithJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}

	for attempt := 0; attempt < 5; attempt++ {
		delay := calculateBackoff(attempt, policy)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.LessOrEqual(t, delay, policy.MaxDelay)
	}
}

func TestExponentialBase_Custom(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 1.5,
		Jitter:          false,
	}

	assert.Equal(t, 500*time.Millisecond, calculateBackoff(0, policy))

	want1 := time.Duration(float64(500*time.Millisecond) * 1.5)
	assert.Equal(t, want1, calculateBackoff(1, policy))
}

func TestProfiles_ScopeRetryableException(t *testing.T) {
	proxy := ProxyConnectionRetryPolicy()
	require.NotNil(t, proxy.RetryableException)
	assert.False(t, proxy.RetryableException(errors.New("recipe not found")), "proxy profile should reject unrelated errors")
	assert.True(t, proxy.RetryableException(E(KindProxyConnectionError, "dial", errors.New("refused"))))

	conn := ConnectionRetryPolicy()
	require.NotNil(t, conn.RetryableException)
	assert.True(t, conn.RetryableException(E(KindConnection, "dial", errors.New("refused"))))
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 3, policy.MaxRetries)
	assert.Equal(t, 1*time.Second, policy.BaseDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
	assert.Equal(t, 2.0, policy.ExponentialBase)
}

// Benchmark tests

func BenchmarkExecute_ImmediateSuccess(b *testing.B) {
	policy := DefaultRetryPolicy()
	fn := func(ctx context.Context) error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = policy.Execute(context.Background(), "bench", fn)
	}
}

func BenchmarkExecute_WithRetries(b *testing.B) {
	policy := RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       1 * time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		ExponentialBase: 2,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		attempts := 0
		fn := func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return NewTransientError(errors.New("transient"), "retry")
			}
			return nil
		}
		_ = policy.Execute(context.Background(), "bench", fn)
	}
}
