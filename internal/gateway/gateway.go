// Package gateway defines the capability set the reconciliation engine needs
// from a calendar backend. Concrete backends live in sub-packages.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"calsync/internal/model"
)

// Gateway is implemented by every calendar backend. Calls are made serially
// from a single goroutine; implementations need not be safe for concurrent
// use. Writes are persisted before the call returns.
type Gateway interface {
	// FindByTag returns the entry whose body carries the marker for
	// reference, or nil. When several entries match the backend picks the
	// first one it finds.
	FindByTag(ctx context.Context, reference string) (*model.CalendarEntry, error)
	// Create stores a new entry and returns its handle.
	Create(ctx context.Context, draft model.EntryDraft) (string, error)
	// Update rewrites the entry identified by handle.
	Update(ctx context.Context, handle string, draft model.EntryDraft) error
}

var (
	// ErrRead marks lookup failures.
	ErrRead = errors.New("calendar read failed")
	// ErrWrite marks create/update failures.
	ErrWrite = errors.New("calendar write failed")
	// ErrNotFound is returned by Update for an unknown handle.
	ErrNotFound = errors.New("entry not found")
)

// Op names the gateway operation that failed.
type Op string

const (
	OpFind   Op = "find"
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// Error wraps a backend failure with the operation and reference it
// concerned. errors.Is matches ErrRead for OpFind and ErrWrite otherwise.
type Error struct {
	Op        Op
	Reference string
	Err       error
}

func (e *Error) Error() string {
	if e.Reference == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Reference, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrRead:
		return e.Op == OpFind
	case ErrWrite:
		return e.Op == OpCreate || e.Op == OpUpdate
	}
	return false
}

// ReadError wraps err as a lookup failure.
func ReadError(reference string, err error) error {
	return &Error{Op: OpFind, Reference: reference, Err: err}
}

// WriteError wraps err as a create or update failure.
func WriteError(op Op, reference string, err error) error {
	return &Error{Op: op, Reference: reference, Err: err}
}
