package upstream

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry defaults.
const (
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMultiplier   = 2.0
	DefaultMaxDelay     = 30 * time.Second
)

// RetryPolicy describes an exponential backoff schedule.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64

	// MaxDelay caps a single wait.
	MaxDelay time.Duration
}

// NewRetryPolicy returns the default schedule (500ms, doubling) with the given
// number of attempts.
func NewRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
		MaxDelay:     DefaultMaxDelay,
	}
}

// normalized fills zero or invalid fields with defaults. A zero InitialDelay
// is kept so tests can retry without waiting.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Delays returns the waits between attempts, for logging and tests.
func (p RetryPolicy) Delays() []time.Duration {
	p = p.normalized()
	b := p.backOff()
	b.Reset()

	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}

// Retry runs op until it succeeds, the policy's attempts are exhausted, or
// ctx is done. notify, if set, is called after every failed attempt that will
// be retried. The last failure is returned unchanged; when ctx ends between
// attempts the last failure is still preferred over the context error.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error), notify func(attempt int, err error, wait time.Duration)) (T, error) {
	policy = policy.normalized()

	var (
		attempt int
		lastErr error
	)

	b := backoff.WithContext(
		backoff.WithMaxRetries(policy.backOff(), uint64(policy.MaxAttempts-1)),
		ctx,
	)

	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil {
			lastErr = err
		}
		return v, err
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	})

	if err != nil && ctx.Err() != nil && lastErr != nil {
		return result, lastErr
	}
	return result, err
}
