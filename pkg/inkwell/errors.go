package inkwell

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Error types
var (
	// ErrNotFound indicates a content head was not found
	ErrNotFound = errors.New("content not found")

	// ErrHistoryNotFound indicates a history revision was not found
	ErrHistoryNotFound = errors.New("history revision not found")

	// ErrVersionConflict is returned by connectors when a version-guarded
	// update finds the stored version has moved on
	ErrVersionConflict = errors.New("stored version changed since read")

	// ErrConnectorRequired indicates the service was built without a connector
	ErrConnectorRequired = errors.New("connector is required")
)

// ContentError wraps an error from a content operation with the uid and
// operation name.
type ContentError struct {
	UID string
	Op  string
	Err error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for %s: %v", e.Op, e.UID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// ConflictError signals an optimistic-concurrency failure: the caller's
// If-Match value no longer matches the stored etag, or a guarded state change
// (such as a slug change on published content) was attempted without
// confirmation. Expected is what the caller sent, Actual what is stored.
type ConflictError struct {
	Expected string
	Actual   string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("conflict: %s", e.Reason)
	}
	return fmt.Sprintf("conflict: expected etag %q, stored etag %q", e.Expected, e.Actual)
}

// LockedError signals that another actor holds a live edit lock.
type LockedError struct {
	UID      string
	HeldBy   string
	LockedAt time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("content %s locked by %s since %s", e.UID, e.HeldBy, e.LockedAt.Format(time.RFC3339))
}

// ValidationError carries a field-level detail map for shape and
// state-precondition failures.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s: %v", e.Message, keys)
}

func newValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}
