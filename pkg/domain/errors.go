package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup resolves to no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateIdentity is returned by the identity provider when the
	// email is already registered.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrUniqueViolation is returned by stores when an insert hits a
	// uniqueness constraint. Callers translate it to a domain error.
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrAlreadyLinked is returned when an inviter already shares an active
	// household.
	ErrAlreadyLinked = errors.New("already in an active household")
)

// ConflictError reports that an inviter already has a live pending invitation.
type ConflictError struct {
	InviterIdentityID uuid.UUID
	Existing          *Invitation
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("inviter %s already has a pending invitation", e.InviterIdentityID)
}

// StaleReason explains why an activation was refused.
type StaleReason string

const (
	StaleNotPending     StaleReason = "not pending"
	StaleTokenMismatch  StaleReason = "token mismatch"
	StaleExpired        StaleReason = "expired"
	StaleAlreadyInvitee StaleReason = "invitee already linked"
	StaleInviterLinked  StaleReason = "inviter already linked"
)

// StaleInvitationError reports an activation against an invitation that is
// no longer pending, has expired, or whose token does not match.
type StaleInvitationError struct {
	InvitationID uuid.UUID
	Reason       StaleReason
}

func (e *StaleInvitationError) Error() string {
	return fmt.Sprintf("invitation %s is stale: %s", e.InvitationID, e.Reason)
}

// IsStale reports whether err is (or wraps) a StaleInvitationError.
func IsStale(err error) bool {
	var stale *StaleInvitationError
	return errors.As(err, &stale)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}
