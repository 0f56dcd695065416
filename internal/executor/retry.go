package executor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/taskweave/taskweave/internal/core"
)

// RetryPolicy defines retry behavior for a single provider. MaxRetries
// counts retries after the initial attempt, so MaxRetries=3 means up to
// four invocations.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0, 0 disables jitter
}

// DefaultRetryPolicy returns the standard policy: three retries with
// exponential backoff 1s, 2s, 4s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryPolicyOption configures a retry policy.
type RetryPolicyOption func(*RetryPolicy)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.MaxRetries = n
	}
}

// WithInitialDelay sets the first backoff delay.
func WithInitialDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.InitialDelay = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.MaxDelay = d
	}
}

// WithMultiplier sets the exponential factor.
func WithMultiplier(m float64) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.Multiplier = m
	}
}

// WithJitter enables randomized jitter on the backoff delay.
func WithJitter(factor float64) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.JitterFactor = factor
	}
}

// NewRetryPolicy creates a policy from the defaults plus options.
func NewRetryPolicy(opts ...RetryPolicyOption) *RetryPolicy {
	p := DefaultRetryPolicy()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// RetryNotifyFunc is called before each backoff wait.
type RetryNotifyFunc func(attempt int, err error, delay time.Duration)

// Execute runs fn until it succeeds, fails with a non-retryable error,
// the context is cancelled, or the retry budget is exhausted. notify
// may be nil.
func (p *RetryPolicy) Execute(ctx context.Context, fn RetryableFunc, notify RetryNotifyFunc) error {
	var lastErr error
	attempts := p.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !core.IsRetryable(err) {
			return err
		}

		if attempt == attempts {
			break
		}

		delay := p.CalculateDelay(attempt)
		if notify != nil {
			notify(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &RetryExhaustedError{
		Attempts: attempts,
		LastErr:  lastErr,
	}
}

// CalculateDelay computes the backoff before the retry that follows the
// given attempt: initialDelay * multiplier^(attempt-1), capped at
// MaxDelay.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFactor > 0 {
		jitter := delay * p.JitterFactor
		delay += (rand.Float64()*2 - 1) * jitter
	}
	return time.Duration(delay)
}

// RetryExhaustedError indicates all attempts on one provider failed.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	_, ok := err.(*RetryExhaustedError)
	return ok
}
