// Package retry runs fallible calls under a bounded exponential backoff with
// additive jitter.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
}

// DefaultPolicy is 5 attempts, 1s doubling up to 30s, plus up to 1s of jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxJitter:   time.Second,
	}
}

// Delay is the delay before retrying after the given failed attempt
// (1-based), without jitter.
func (p Policy) Delay(attempt int) time.Duration {
	b := p.schedule()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (p Policy) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

type settings struct {
	policy   Policy
	classify func(error) bool
	onRetry  func(attempt int, err error, delay time.Duration)
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func(max time.Duration) time.Duration
}

// Option customises a retry loop.
type Option func(*settings)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(s *settings) { s.policy = p }
}

// WithClassifier replaces IsRetryable.
func WithClassifier(fn func(error) bool) Option {
	return func(s *settings) { s.classify = fn }
}

// OnRetry is called before each delay.
func OnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(s *settings) { s.onRetry = fn }
}

// WithSleep replaces the timer used between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *settings) { s.sleep = fn }
}

// WithJitter replaces the jitter source. fn returns a value in [0, max).
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(s *settings) { s.jitter = fn }
}

func newSettings(opts []Option) *settings {
	s := &settings{
		policy:   DefaultPolicy(),
		classify: IsRetryable,
		sleep:    sleepCtx,
		jitter:   uniformJitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.MaxAttempts < 1 {
		s.policy.MaxAttempts = 1
	}
	return s
}

// Do invokes op until it succeeds, fails with a non-retryable error, or the
// attempts run out. The returned error is the one op returned, unwrapped.
// If ctx ends while waiting, the last error of op is returned.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	s := newSettings(opts)
	schedule := s.policy.schedule()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= s.policy.MaxAttempts || !s.classify(err) {
			return zero, err
		}

		delay := schedule.NextBackOff() + s.jitter(s.policy.MaxJitter)
		if s.onRetry != nil {
			s.onRetry(attempt, err, delay)
		}
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return zero, err
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
