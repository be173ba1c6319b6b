package blog

import (
	"testing"
	"time"

	"github.com/rbaliyan/blog/retry"
)

func TestDefaultOptions(t *testing.T) {
	o := newOptions()

	if o.maxFieldLength != DefaultMaxFieldLength {
		t.Errorf("maxFieldLength = %d", o.maxFieldLength)
	}
	if o.maxConcurrentIndexWrites != DefaultMaxConcurrentIndexWrites {
		t.Errorf("maxConcurrentIndexWrites = %d", o.maxConcurrentIndexWrites)
	}
	if o.indexTimeout != DefaultIndexTimeout {
		t.Errorf("indexTimeout = %v", o.indexTimeout)
	}
	if o.syncIndexing {
		t.Error("expected background indexing by default")
	}
	if o.onIndexFailure == nil || o.onEventPublishFailure == nil {
		t.Error("expected default failure handlers")
	}
	if o.indexRetry.IsRetryable == nil {
		t.Error("expected retry classifier")
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	o := newOptions(
		WithMaxFieldLength(0),
		WithMaxContentSize(-1),
		WithMaxConcurrentIndexWrites(0),
		WithIndexTimeout(0),
		WithShutdownTimeout(time.Millisecond),
		WithStore(nil),
		WithIndex(nil),
		WithLogger(nil),
		WithPlugin(nil),
	)
	if o.maxFieldLength != DefaultMaxFieldLength || o.maxContentSize != DefaultMaxContentSize {
		t.Error("expected field limits unchanged")
	}
	if o.maxConcurrentIndexWrites != DefaultMaxConcurrentIndexWrites {
		t.Error("expected concurrency unchanged")
	}
	if o.indexTimeout != DefaultIndexTimeout {
		t.Error("expected index timeout unchanged")
	}
	if o.shutdownTimeout != DefaultShutdownTimeout {
		t.Error("expected shutdown timeout below minimum to be ignored")
	}
	if o.store != nil || o.index != nil || o.logger == nil || len(o.plugins) != 0 {
		t.Error("expected nil values to be ignored")
	}
}

func TestWithIndexRetryDefaultsClassifier(t *testing.T) {
	o := newOptions(WithIndexRetry(retry.Config{MaxRetries: 1}))
	if o.indexRetry.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d", o.indexRetry.MaxRetries)
	}
	if o.indexRetry.IsRetryable == nil || o.indexRetry.IsRetryable(ErrNotFound) {
		t.Error("expected IsRetryableError as the classifier")
	}
}

func TestFailureHandlerPanicIsContained(t *testing.T) {
	o := newOptions(
		WithIndexFailureHandler(func(*IndexSyncError) { panic("boom") }),
		WithEventPublishFailureHandler(func(string, error) { panic("boom") }),
	)
	o.safeIndexFailure(&IndexSyncError{Err: errIndexDown})
	o.safeEventPublishFailure("EntityCreated", errIndexDown)
}
