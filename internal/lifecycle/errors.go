package lifecycle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/talent-search/internal/types"
)

var (
	// ErrNotFound signals an unknown search id.
	ErrNotFound = errors.New("search not found")
	// ErrStateConflict signals a transition that is illegal from the current status.
	ErrStateConflict = errors.New("search state conflict")
	// ErrStaleStatus is returned by a Store when the compare-and-set on status
	// lost to a concurrent writer.
	ErrStaleStatus = errors.New("search status changed concurrently")
)

// NotFoundError indicates the referenced search does not exist.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("search not found: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StateConflictError indicates the requested transition is not legal from the current status.
type StateConflictError struct {
	ID        uuid.UUID
	Current   types.Status
	Attempted types.Status
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("search %s is %s, cannot move to %s", e.ID, e.Current, e.Attempted)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }
