// Package retry re-runs index syncs after transient failures, waiting an
// exponentially growing, jittered delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Config controls how often and how fast Do retries.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero runs the operation once.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps any single wait.
	MaxBackoff time.Duration

	// Multiplier grows the wait after each retry.
	Multiplier float64

	// Jitter spreads each wait by up to this fraction in either direction (0..1).
	Jitter float64

	// IsRetryable classifies failures. Nil means DefaultIsRetryable.
	IsRetryable func(error) bool

	// OnRetry is called after a failed attempt that will be retried, with the
	// 1-based attempt number and the wait before the next one.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig retries three times starting at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		Jitter:         0.1,
		IsRetryable:    DefaultIsRetryable,
	}
}

// Reasons carried by Error.
var (
	ErrExhausted   = errors.New("retry: attempts exhausted")
	ErrPermanent   = errors.New("retry: permanent failure")
	ErrInterrupted = errors.New("retry: interrupted")
)

// Error reports why Do stopped. It matches both Reason and the last failure
// under errors.Is.
type Error struct {
	Attempts int
	Reason   error
	Last     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", e.Reason, e.Attempts, e.Last)
}

func (e *Error) Unwrap() []error {
	return []error{e.Reason, e.Last}
}

// Do runs fn until it succeeds, fails permanently, runs out of retries or ctx
// ends. A ctx that is already done returns its error without calling fn.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg = cfg.normalized()

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !cfg.IsRetryable(err) {
			return &Error{Attempts: attempt, Reason: ErrPermanent, Last: err}
		}
		if attempt > cfg.MaxRetries {
			return &Error{Attempts: attempt, Reason: ErrExhausted, Last: err}
		}

		wait := cfg.backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		if !sleep(ctx, wait) {
			return &Error{Attempts: attempt, Reason: ErrInterrupted, Last: err}
		}
	}
}

// DefaultIsRetryable retries everything except cancellation.
func DefaultIsRetryable(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// backoff returns the wait after the given 1-based attempt.
func (c Config) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(attempt-1))
	d = min(d, float64(c.MaxBackoff))
	if c.Jitter > 0 {
		d += d * c.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

func (c Config) normalized() Config {
	c.MaxRetries = max(c.MaxRetries, 0)
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	c.Jitter = min(max(c.Jitter, 0), 1)
	if c.IsRetryable == nil {
		c.IsRetryable = DefaultIsRetryable
	}
	return c
}

// sleep waits d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
