package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errConflict = errors.New("version conflict")

func fastRetrier(opts ...Option) *Retrier {
	base := []Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}
	return New(append(base, opts...)...)
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := fastRetrier(WithMaxAttempts(4)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastErrorWhenAttemptsExhausted(t *testing.T) {
	calls := 0
	err := fastRetrier(WithMaxAttempts(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errConflict
	})

	assert.Equal(t, errConflict, err)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryIfRejects(t *testing.T) {
	calls := 0
	plain := errors.New("boom")
	r := fastRetrier(WithRetryIf(func(err error) bool { return errors.Is(err, errConflict) }))

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return plain
	})

	assert.Equal(t, plain, err)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetry(t *testing.T) {
	var retried []int
	calls := 0
	err := fastRetrier(
		WithMaxAttempts(5),
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
		}),
	).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return errConflict
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastRetrier().Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDo_CancelDuringWaitReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(WithInitialDelay(time.Hour), WithJitter(0), WithOnRetry(func(int, error, time.Duration) { cancel() }))

	calls := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		return errConflict
	})

	assert.Equal(t, errConflict, err)
	assert.Equal(t, 1, calls)
}

func TestConflictRetrier(t *testing.T) {
	calls := 0
	r := ConflictRetrier(3, func(err error) bool { return errors.Is(err, errConflict) })

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errConflict
	})

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 3, calls)
}

func TestDelay_CappedAtMax(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithMaxDelay(300*time.Millisecond), WithJitter(0))

	assert.Equal(t, 100*time.Millisecond, r.delay(1))
	assert.Equal(t, 200*time.Millisecond, r.delay(2))
	assert.Equal(t, 300*time.Millisecond, r.delay(3))
	assert.Equal(t, 300*time.Millisecond, r.delay(6))
}
