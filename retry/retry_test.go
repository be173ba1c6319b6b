package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDo(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
			calls++
			return errTransient
		})
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		if !errors.Is(err, ErrExhausted) || !errors.Is(err, errTransient) {
			t.Errorf("expected exhausted error wrapping the cause, got %v", err)
		}
		var re *Error
		if !errors.As(err, &re) || re.Attempts != 3 {
			t.Errorf("expected Error with 3 attempts, got %v", err)
		}
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		cfg := fastConfig(5)
		cfg.IsRetryable = func(err error) bool { return !errors.Is(err, errTransient) }
		err := Do(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			return errTransient
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		if !errors.Is(err, ErrPermanent) {
			t.Errorf("expected ErrPermanent, got %v", err)
		}
	})

	t.Run("done context skips the call", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := Do(ctx, fastConfig(3), func(ctx context.Context) error {
			calls++
			return nil
		})
		if calls != 0 {
			t.Errorf("calls = %d, want 0", calls)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("deadline during backoff", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		cfg := Config{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
		err := Do(ctx, cfg, func(ctx context.Context) error {
			return errTransient
		})
		if !errors.Is(err, ErrInterrupted) || !errors.Is(err, errTransient) {
			t.Errorf("expected interrupted error wrapping the cause, got %v", err)
		}
	})

	t.Run("OnRetry sees each retried failure", func(t *testing.T) {
		var attempts []int
		cfg := fastConfig(2)
		cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
			attempts = append(attempts, attempt)
			if !errors.Is(err, errTransient) || wait <= 0 {
				t.Errorf("OnRetry(%d, %v, %v)", attempt, err, wait)
			}
		}
		Do(context.Background(), cfg, func(ctx context.Context) error { return errTransient })
		if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
			t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
		}
	})
}

func TestDefaultIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errTransient, true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultIsRetryable(tt.err); got != tt.want {
				t.Errorf("DefaultIsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for i, w := range want {
		if got := cfg.backoff(i + 1); got != w {
			t.Errorf("attempt %d: backoff = %v, want %v", i+1, got, w)
		}
	}
}
