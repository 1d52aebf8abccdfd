package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 4 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retried []error
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, func(err error, _ time.Duration) { retried = append(retried, err) })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, retried, 2)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, "down", err.Error())
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad request")
	assert.Equal(t, 1, calls)
}

func TestDo_SingleAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(1).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("nope")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastPolicy(3).Do(ctx, func(context.Context) error {
		calls++
		return nil
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestValue(t *testing.T) {
	calls := 0
	got, err := Value(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("once")
		}
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.BaseDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(Permanent(errors.New("bad"))))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", Permanent(errors.New("bad")))))
	assert.False(t, IsPermanent(errors.New("transient")))
}
