package errors

import (
	"errors"
	"fmt"
)

// Business-rule errors. Each one is recoverable by the caller and carries a
// stable kind (see Kind) that the HTTP layer maps to a status code.
var (
	// ErrUnauthenticated indicates a missing, invalid or expired token
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidCredentials is returned by login regardless of which check failed
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden indicates a valid principal that is not allowed to act
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition indicates a state machine rule violation
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrNoCapacity indicates the position had no free slot at reservation time
	ErrNoCapacity = errors.New("no capacity")

	// ErrDuplicateLiveApplication indicates the student already holds a live application for the position
	ErrDuplicateLiveApplication = errors.New("duplicate live application")

	// ErrPositionInactive indicates the position no longer accepts applications
	ErrPositionInactive = errors.New("position inactive")

	// ErrActiveAttachmentExists indicates the student already has an active attachment
	ErrActiveAttachmentExists = errors.New("active attachment exists")

	// ErrCapacityBelowReserved indicates a capacity update below the reserved count
	ErrCapacityBelowReserved = errors.New("capacity below reserved slots")

	// ErrInvalidRole indicates an unknown principal role
	ErrInvalidRole = errors.New("invalid role")

	// ErrDuplicateEmail indicates the email is already registered in its scope
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a concurrent modification lost a compare-and-set
	ErrConflict = errors.New("conflict")

	// ErrInternal indicates an infrastructure failure
	ErrInternal = errors.New("internal error")
)

// Kind is the stable, machine-readable name of an error category.
type Kind string

const (
	KindUnauthenticated          Kind = "unauthenticated"
	KindForbidden                Kind = "forbidden"
	KindNotFound                 Kind = "not_found"
	KindIllegalTransition        Kind = "illegal_transition"
	KindNoCapacity               Kind = "no_capacity"
	KindDuplicateLiveApplication Kind = "duplicate_live_application"
	KindPositionInactive         Kind = "position_inactive"
	KindActiveAttachmentExists   Kind = "active_attachment_exists"
	KindCapacityBelowReserved    Kind = "capacity_below_reserved"
	KindInvalidRole              Kind = "invalid_role"
	KindDuplicateEmail           Kind = "duplicate_email"
	KindInvalidInput             Kind = "invalid_input"
	KindConflict                 Kind = "conflict"
	KindInternal                 Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrInvalidCredentials, KindUnauthenticated},
	{ErrForbidden, KindForbidden},
	{ErrNotFound, KindNotFound},
	{ErrIllegalTransition, KindIllegalTransition},
	{ErrNoCapacity, KindNoCapacity},
	{ErrDuplicateLiveApplication, KindDuplicateLiveApplication},
	{ErrPositionInactive, KindPositionInactive},
	{ErrActiveAttachmentExists, KindActiveAttachmentExists},
	{ErrCapacityBelowReserved, KindCapacityBelowReserved},
	{ErrInvalidRole, KindInvalidRole},
	{ErrDuplicateEmail, KindDuplicateEmail},
	{ErrInvalidInput, KindInvalidInput},
	{ErrConflict, KindConflict},
}

// KindOf returns the kind of err. Anything not wrapping a known sentinel is internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsBusiness reports whether err is an expected business outcome rather than an infrastructure failure
func IsBusiness(err error) bool {
	return err != nil && KindOf(err) != KindInternal
}

// NotFoundError creates a not found error with context
func NotFoundError(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// ForbiddenError creates a forbidden error with context
func ForbiddenError(reason string) error {
	if reason != "" {
		return fmt.Errorf("%s: %w", reason, ErrForbidden)
	}
	return ErrForbidden
}

// InvalidInputError creates an invalid input error with context
func InvalidInputError(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, ErrInvalidInput)
}

// TransitionError describes a rejected state change
func TransitionError(from, to string) error {
	return fmt.Errorf("%w: cannot transition from '%s' to '%s'", ErrIllegalTransition, from, to)
}

// InternalError wraps an infrastructure failure
func InternalError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, ErrInternal)
	}
	return fmt.Errorf("%s: %w: %w", msg, ErrInternal, err)
}

// Is checks if an error matches a target error (works with wrapped errors)
func Is(err, target error) bool {
	return errors.Is(err, target)
}
