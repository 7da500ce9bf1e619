// Package resilience retries remote calls that fail transiently.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Retry controls attempts with exponential backoff and optional jitter.
type Retry struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the wait before the second try; zero retries immediately.
	Backoff time.Duration
	// MaxBackoff caps a single wait. Zero means no cap.
	MaxBackoff time.Duration
	// Multiplier scales the wait after each try.
	Multiplier float64
	// Jitter adds up to +/-Jitter of the wait at random.
	Jitter float64

	// Retryable decides whether an error is worth another try. IsTransient
	// is used when nil.
	Retryable func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error)
}

// DefaultRetry makes three tries waiting 0.5s then 1s.
func DefaultRetry() Retry {
	return Retry{Attempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 30 * time.Second, Multiplier: 2}
}

// Do calls fn until it succeeds, fails with a non-retryable error, ctx ends
// or the attempts run out. The last error is returned.
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(r.Attempts, 1)
	retryable := r.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt >= attempts {
			return err
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}
		wait := time.NewTimer(r.Delay(attempt))
		select {
		case <-ctx.Done():
			wait.Stop()
			return err
		case <-wait.C:
		}
	}
}

// Delay returns the wait after the given failed attempt, counted from 1.
func (r Retry) Delay(attempt int) time.Duration {
	mult := r.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(r.Backoff) * math.Pow(mult, float64(attempt-1))
	if r.MaxBackoff > 0 {
		d = math.Min(d, float64(r.MaxBackoff))
	}
	if r.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * r.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// LogRetries returns an OnRetry callback logging each retry at debug level.
func LogRetries(component, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().With(zap.String("component", component)).Debug("retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
}
