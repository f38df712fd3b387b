// Package common defines sentinel and typed errors shared by the repositories,
// services and the HTTP layer. Callers should use errors.Is / errors.As to
// match these values.
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Validation errors.
	ErrInvalidArgument = errors.New("invalid argument")

	// Reconstruction errors.
	ErrIncompleteSession  = errors.New("incomplete session")
	ErrIntegrityViolation = errors.New("integrity violation")
	ErrInsufficientMemory = errors.New("insufficient memory")

	// Handoff errors.
	ErrSinkFailure = errors.New("sink failure")
	ErrLeaseHeld   = errors.New("handoff lease held by another reconstruction")

	// Cleanup errors.
	ErrPartialCleanup = errors.New("partial cleanup failure")
)

// IncompleteSessionError is returned when reconstruction is attempted before
// every chunk has arrived.
type IncompleteSessionError struct {
	Received int
	Total    int
}

func (e *IncompleteSessionError) Error() string {
	return fmt.Sprintf("incomplete session: received %d of %d chunks", e.Received, e.Total)
}

func (e *IncompleteSessionError) Is(target error) bool {
	return target == ErrIncompleteSession
}

// IntegrityError reports a chunk that is missing, unreadable or does not match
// its recorded size/checksum. Index is -1 when the problem is not tied to one chunk.
type IntegrityError struct {
	SessionID string
	Index     int
	Reason    string
	Err       error
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("integrity violation in session %s", e.SessionID)
	if e.Index >= 0 {
		msg += fmt.Sprintf(" chunk %d", e.Index)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrityViolation
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// SinkError is returned when both the primary and the fallback upload paths
// failed. Fallback is nil when the payload was too large to retry.
type SinkError struct {
	Primary  error
	Fallback error
}

func (e *SinkError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("sink upload failed: %v", e.Primary)
	}
	return fmt.Sprintf("sink upload failed: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *SinkError) Is(target error) bool {
	return target == ErrSinkFailure
}

func (e *SinkError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// PartialCleanupError lists blob paths that could not be deleted.
type PartialCleanupError struct {
	SessionID string
	Paths     []string
	Err       error
}

func (e *PartialCleanupError) Error() string {
	return fmt.Sprintf("partial cleanup of session %s (%s): %v", e.SessionID, strings.Join(e.Paths, ", "), e.Err)
}

func (e *PartialCleanupError) Is(target error) bool {
	return target == ErrPartialCleanup
}

func (e *PartialCleanupError) Unwrap() error {
	return e.Err
}
