package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingRef indicates the required ref option was absent.
	ErrMissingRef = errors.New("ref is required")

	// ErrCommitNotFetched indicates the resolved commit is not present in
	// the object store.
	ErrCommitNotFetched = errors.New("commit not fetched")

	// ErrConflict indicates one or more paths would lose local changes.
	ErrConflict = errors.New("checkout conflict")

	// ErrInternal indicates the planner emitted error ops.
	ErrInternal = errors.New("internal checkout error")
)

// ConflictError reports every conflicting path found during planning.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: your local changes to %q would be overwritten", ErrConflict, e.Paths)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InternalError reports every error op accumulated during planning.
type InternalError struct {
	Messages []string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInternal, strings.Join(e.Messages, "; "))
}

func (e *InternalError) Unwrap() error { return ErrInternal }
