package blog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rbaliyan/blog/retry"
	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
)

func TestSentinelsWrapLowerLayers(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"not found", ErrNotFound, store.ErrNotFound},
		{"not connected", ErrNotConnected, store.ErrNotConnected},
		{"invalid query", ErrInvalidQuery, search.ErrQuerySyntax},
		{"invalid sort", ErrInvalidSort, store.ErrInvalidSort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("expected %v to wrap %v", tt.err, tt.target)
			}
		})
	}
}

func TestTranslateError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if translateError(nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("not found", func(t *testing.T) {
		err := translateError(fmt.Errorf("get: %w", store.ErrNotFound))
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("search not connected", func(t *testing.T) {
		if !errors.Is(translateError(search.ErrNotConnected), ErrNotConnected) {
			t.Error("expected ErrNotConnected")
		}
	})

	t.Run("query syntax keeps its message", func(t *testing.T) {
		_, cause := search.ParseQuery(store.KindTag, `name:"open`)
		err := translateError(cause)
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery, got %v", err)
		}
		if err.Error() != cause.Error() {
			t.Errorf("expected message %q, got %q", cause.Error(), err.Error())
		}
		var qe *search.QueryError
		if !errors.As(err, &qe) {
			t.Error("expected the QueryError to stay reachable")
		}
	})

	t.Run("other errors pass through", func(t *testing.T) {
		cause := errors.New("boom")
		if translateError(cause) != cause {
			t.Error("expected the error unchanged")
		}
	})
}

func TestReferenceError(t *testing.T) {
	err := referenceError(store.KindPost, &store.ReferenceError{Field: "mode", Kind: store.KindMode, ID: 9})
	fields := FieldErrors(err)
	if len(fields) != 1 || fields[0].Field != "mode" || fields[0].Entity != "post" {
		t.Fatalf("unexpected conversion %v", err)
	}
	if !errors.Is(err, ErrInvalidEntity) {
		t.Error("expected ErrInvalidEntity")
	}

	other := errors.New("boom")
	if referenceError(store.KindPost, other) != other {
		t.Error("expected non-reference errors unchanged")
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	err := ValidationErrors{
		{Entity: "mode", Field: "name", Message: "is required"},
		{Entity: "mode", Field: "handle", Message: "is required"},
	}
	want := "blog: validation failed for mode: name: is required; handle: is required"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ErrNotFound, false},
		{"validation", &ValidationError{Field: "name"}, false},
		{"bad request", badRequest(store.KindTag, ReasonIDNull, "x"), false},
		{"query syntax", fmt.Errorf("x: %w", search.ErrQuerySyntax), false},
		{"dangling reference", &store.ReferenceError{Field: "mode"}, false},
		{"transient", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIndexSyncErrorStopsRetryOnPermanentCause(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxRetries: 3, IsRetryable: IsRetryableError}, func(context.Context) error {
		calls++
		return fmt.Errorf("load: %w", store.ErrInvalidID)
	})
	if err == nil || calls != 1 {
		t.Errorf("expected one attempt, got %d (err %v)", calls, err)
	}
}
