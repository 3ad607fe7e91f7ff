package change

import (
	"context"
	"math"
	"time"

	"github.com/network-synapse/synapse/pkg/config"
)

// Clock is the saga's view of time.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// RetryPolicy is bounded exponential backoff.
type RetryPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxAttempts     int
}

// DefaultRetryPolicy returns 5s initial, x2, 60s cap, 3 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 5 * time.Second,
		Multiplier:      2,
		MaxInterval:     60 * time.Second,
		MaxAttempts:     3,
	}
}

// PolicyFromConfig converts configuration, filling zero fields from the
// default policy.
func PolicyFromConfig(c config.PolicyConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if c.InitialInterval > 0 {
		p.InitialInterval = c.InitialInterval
	}
	if c.Multiplier >= 1 {
		p.Multiplier = c.Multiplier
	}
	if c.MaxInterval > 0 {
		p.MaxInterval = c.MaxInterval
	}
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	return p
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxInterval > 0 && d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. onRetry is called before each wait. The last error is
// returned; a cancelled wait returns the context error.
func (p RetryPolicy) Do(ctx context.Context, clock Clock, retryable func(error) bool,
	onRetry func(attempt int, err error, wait time.Duration), fn func(ctx context.Context) error) error {

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			return err
		}
		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if serr := clock.Sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return err
}
