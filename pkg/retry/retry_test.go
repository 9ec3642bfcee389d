package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

func TestRetrier_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	r := New(WithMaxAttempts(3), WithBackoff(time.Millisecond, time.Millisecond, 1), WithJitter(0))

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errBusy)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsOnPlainErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errBusy
	}, WithMaxAttempts(5), WithBackoff(time.Millisecond, 0, 0))

	assert.Same(t, errBusy, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_UnwrapsAfterLastAttempt(t *testing.T) {
	err := Do(context.Background(), func(ctx context.Context) error {
		return Retryable(errBusy)
	}, WithMaxAttempts(2), WithBackoff(time.Millisecond, 0, 0))

	assert.Same(t, errBusy, err)
}

func TestConflictRetrier_RetriesOnce(t *testing.T) {
	calls := 0
	retried := 0
	r := ConflictRetrier(
		func(err error) bool { return errors.Is(err, errBusy) },
		func(attempt int, err error, delay time.Duration) { retried++ },
	)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errBusy
	})

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, retried)
}

func TestConflictRetrier_IgnoresOtherErrors(t *testing.T) {
	other := errors.New("other")
	calls := 0
	r := ConflictRetrier(func(err error) bool { return errors.Is(err, errBusy) }, nil)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return other
	})

	assert.Same(t, other, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_DelayIsCapped(t *testing.T) {
	r := New(WithBackoff(10*time.Millisecond, 25*time.Millisecond, 2), WithJitter(0))

	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 25*time.Millisecond, r.delay(3))
}

func TestRetrier_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
