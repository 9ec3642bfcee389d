// Package retry re-runs operations that lost a race or hit a backing service
// that is not ready yet. Delays grow exponentially with jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryableError marks an error as worth another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so the default policy retries it. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// Policy describes how many attempts to make and how long to wait between them.
type Policy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the fraction of each delay that is randomised, in [0, 1].
	Jitter float64

	// ShouldRetry decides which errors are retried. Nil means IsRetryable.
	ShouldRetry func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the attempt limit. Non-positive values are ignored.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithBackoff sets the first delay, the cap and the growth factor.
func WithBackoff(base, max time.Duration, multiplier float64) Option {
	return func(p *Policy) {
		if base > 0 {
			p.BaseDelay = base
		}
		if max > 0 {
			p.MaxDelay = max
		}
		if multiplier >= 1 {
			p.Multiplier = multiplier
		}
	}
}

// WithJitter sets the jitter fraction. Values outside [0, 1] are ignored.
func WithJitter(j float64) Option {
	return func(p *Policy) {
		if j >= 0 && j <= 1 {
			p.Jitter = j
		}
	}
}

// WithRetryIf replaces the retry predicate.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *Policy) { p.ShouldRetry = fn }
}

// WithOnRetry installs a hook called before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// Retrier runs operations under a Policy. It is safe for concurrent use.
type Retrier struct {
	policy Policy
}

// New builds a Retrier: 3 attempts starting at 100ms, doubling up to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.1,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

// Do runs op until it succeeds, returns an error the policy does not retry,
// runs out of attempts or ctx ends. The returned error is the last one op
// produced, with any RetryableError wrapper removed.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	retryIf := r.policy.ShouldRetry
	if retryIf == nil {
		retryIf = IsRetryable
	}

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return unwrapRetryable(last)
			}
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if !retryIf(last) || attempt >= r.policy.MaxAttempts {
			return unwrapRetryable(last)
		}

		delay := r.delay(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, last, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unwrapRetryable(last)
		case <-timer.C:
		}
	}
}

// delay returns BaseDelay * Multiplier^(attempt-1), capped and jittered.
func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.policy.BaseDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.policy.MaxDelay))
	if r.policy.Jitter > 0 {
		d += d * r.policy.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

func unwrapRetryable(err error) error {
	var r *RetryableError
	if errors.As(err, &r) && r == err {
		return r.Err
	}
	return err
}

// Do runs op with a one-off Retrier.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// ConflictRetrier retries an operation exactly once when retryIf reports a lost
// storage race. The short delay lets the winning transaction commit first.
func ConflictRetrier(retryIf func(error) bool, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(2),
		WithBackoff(10*time.Millisecond, 50*time.Millisecond, 2),
		WithJitter(0.5),
		WithRetryIf(retryIf),
		WithOnRetry(onRetry),
	)
}

// StartupRetrier waits for backing services that are still coming up.
func StartupRetrier() *Retrier {
	return New(
		WithMaxAttempts(5),
		WithBackoff(500*time.Millisecond, 5*time.Second, 2),
		WithJitter(0.2),
	)
}
