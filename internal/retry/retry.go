// Package retry applies a bounded exponential backoff around a single call.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how a call is retried.
type Policy struct {
	MaxAttempts int           `validate:"min=1"`
	BaseDelay   time.Duration `validate:"min=0"`
	Multiplier  float64       `validate:"gte=1"`
	MaxDelay    time.Duration `validate:"min=0"`
}

// DefaultPolicy is three attempts, starting at 2s, doubling, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// backOff builds the cenkalti schedule for the policy. Jitter is disabled so
// delays are predictable.
func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = p.Multiplier
	if bo.Multiplier < 1 {
		bo.Multiplier = 1
	}
	bo.MaxInterval = p.MaxDelay
	if bo.MaxInterval < bo.InitialInterval {
		bo.MaxInterval = bo.InitialInterval
	}
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// exhausted or ctx is done. onRetry, when non-nil, is told about every failed
// attempt that will be retried.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(err error, wait time.Duration)) error {
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return fn(ctx)
	}
	var notify backoff.Notify
	if onRetry != nil {
		notify = backoff.Notify(onRetry)
	}
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), onRetry func(err error, wait time.Duration)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, onRetry)
	return out, err
}
