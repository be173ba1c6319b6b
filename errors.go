package blog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
)

// Sentinel errors for the blog package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store- and search-level errors where
// applicable, so errors.Is(err, blog.ErrNotFound) matches both.
var (
	// ErrNotFound is returned when an entity cannot be found.
	ErrNotFound = fmt.Errorf("blog: %w", store.ErrNotFound)

	// ErrInvalidEntity is returned for entity validation failures.
	ErrInvalidEntity = errors.New("blog: invalid entity")

	// ErrBadRequest is returned when identifiers in a request are inconsistent.
	ErrBadRequest = errors.New("blog: bad request")

	// ErrInvalidQuery is returned for malformed search queries.
	ErrInvalidQuery = fmt.Errorf("blog: %w", search.ErrQuerySyntax)

	// ErrInvalidSort is returned for paging requests that sort by an unknown field.
	ErrInvalidSort = fmt.Errorf("blog: %w", store.ErrInvalidSort)

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("blog: store is required")

	// ErrIndexRequired is returned when no search index is configured.
	ErrIndexRequired = errors.New("blog: search index is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = fmt.Errorf("blog: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = fmt.Errorf("blog: %w", store.ErrAlreadyConnected)

	// ErrUnknownKind is returned for operations on a kind that is not indexed.
	ErrUnknownKind = errors.New("blog: unknown entity kind")
)

// Reasons carried by BadRequestAlertError.
const (
	ReasonIDExists   = "idexists"
	ReasonIDNull     = "idnull"
	ReasonIDInvalid  = "idinvalid"
	ReasonIDNotFound = "idnotfound"
)

// BadRequestAlertError reports an identifier violation on create or update.
// Reason is one of the Reason* constants.
type BadRequestAlertError struct {
	Entity  string
	Reason  string
	Message string
}

func (e *BadRequestAlertError) Error() string {
	return fmt.Sprintf("blog: %s: %s (%s)", e.Entity, e.Message, e.Reason)
}

func (e *BadRequestAlertError) Unwrap() error {
	return ErrBadRequest
}

func badRequest(kind store.Kind, reason, message string) error {
	return &BadRequestAlertError{Entity: string(kind), Reason: reason, Message: message}
}

// IsBadRequestAlert checks if the error is a bad request alert and returns details.
func IsBadRequestAlert(err error) (*BadRequestAlertError, bool) {
	var bre *BadRequestAlertError
	if errors.As(err, &bre) {
		return bre, true
	}
	return nil, false
}

// ValidationError provides details about a validation failure.
type ValidationError struct {
	Entity  string // The entity kind
	Field   string // The field that failed validation
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("blog: validation failed for %s.%s: %s", e.Entity, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEntity
}

// ValidationErrors collects every field failure of one entity.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Field + ": " + ve.Message
	}
	return fmt.Sprintf("blog: validation failed for %s: %s", e[0].Entity, strings.Join(parts, "; "))
}

func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, ve := range e {
		errs[i] = ve
	}
	return errs
}

// FieldErrors returns every field failure carried by err.
func FieldErrors(err error) []*ValidationError {
	var many ValidationErrors
	if errors.As(err, &many) {
		return many
	}
	var one *ValidationError
	if errors.As(err, &one) {
		return []*ValidationError{one}
	}
	return nil
}

// referenceError converts a store reference failure into a validation error.
func referenceError(kind store.Kind, err error) error {
	var re *store.ReferenceError
	if errors.As(err, &re) {
		return &ValidationError{
			Entity:  string(kind),
			Field:   re.Field,
			Message: fmt.Sprintf("references missing %s %d", re.Kind, re.ID),
		}
	}
	return err
}

// PluginError represents an error from a plugin.
type PluginError struct {
	Plugin string
	Op     string
	Err    error
}

func (e *PluginError) Error() string {
	return "plugin " + e.Plugin + " " + e.Op + ": " + e.Err.Error()
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// IndexSyncError reports that the search index could not be brought in line
// with the primary store for one entity. The outbox keeps the entity pending.
type IndexSyncError struct {
	Kind store.Kind
	ID   int64
	Err  error
}

func (e *IndexSyncError) Error() string {
	return fmt.Sprintf("blog: index sync failed for %s %d: %v", e.Kind, e.ID, e.Err)
}

func (e *IndexSyncError) Unwrap() error {
	return e.Err
}

// EventPublishError is returned when event publishing fails but the
// operation succeeded.
type EventPublishError struct {
	Event string
	Kind  store.Kind
	ID    int64
	Err   error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("blog: event %s publish failed for %s %d: %v", e.Event, e.Kind, e.ID, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// taggedError marks a lower-level error with a blog sentinel while keeping
// its message.
type taggedError struct {
	sentinel error
	cause    error
}

func (e *taggedError) Error() string {
	return e.cause.Error()
}

func (e *taggedError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}

// translateError maps store and search errors to blog sentinels.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrNotConnected), errors.Is(err, search.ErrNotConnected):
		return ErrNotConnected
	case errors.Is(err, store.ErrInvalidSort):
		return &taggedError{sentinel: ErrInvalidSort, cause: err}
	case errors.Is(err, search.ErrQuerySyntax):
		return &taggedError{sentinel: ErrInvalidQuery, cause: err}
	}
	return err
}

// IsRetryableError determines if an error is retryable.
// Returns true for temporary/transient errors, false for permanent errors.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	permanentErrors := []error{
		ErrNotFound,
		ErrInvalidEntity,
		ErrBadRequest,
		ErrInvalidQuery,
		ErrInvalidSort,
		ErrUnknownKind,
		store.ErrNotFound,
		store.ErrInvalidID,
		store.ErrInvalidReference,
		store.ErrInvalidSort,
		search.ErrQuerySyntax,
	}
	for _, permErr := range permanentErrors {
		if errors.Is(err, permErr) {
			return false
		}
	}

	// For unknown errors, default to retryable
	// as they might be transient network/timeout issues
	return true
}
