package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvitationStatus is the lifecycle state of an Invitation.
type InvitationStatus string

const (
	InvitationPending InvitationStatus = "pending"
	InvitationActive  InvitationStatus = "active"
	InvitationExpired InvitationStatus = "expired"
	InvitationRevoked InvitationStatus = "revoked"
)

// DefaultInvitationTTL is how long a pending invitation stays redeemable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Invitation is an offer from one identity to link a partner into a household.
// Rows are never deleted; superseded invitations move to expired or revoked.
type Invitation struct {
	ID                uuid.UUID        `json:"id"`
	InviterIdentityID uuid.UUID        `json:"inviter_identity_id"`
	InviteeEmail      string           `json:"invitee_email"`
	Token             string           `json:"token"`
	Status            InvitationStatus `json:"status"`
	InviteeIdentityID *uuid.UUID       `json:"invitee_identity_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	ExpiresAt         time.Time        `json:"expires_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Expired reports whether a pending invitation has outlived its TTL at now.
func (i Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Redeemable reports whether the invitation can still be activated at now.
func (i Invitation) Redeemable(now time.Time) bool {
	return i.Status == InvitationPending && !i.Expired(now)
}

// CanTransition reports whether from -> to is a legal status move.
// Status only moves forward out of pending.
func CanTransition(from, to InvitationStatus) bool {
	if from != InvitationPending {
		return false
	}
	switch to {
	case InvitationActive, InvitationExpired, InvitationRevoked:
		return true
	}
	return false
}

// ParseInvitationStatus converts a stored label to a status.
func ParseInvitationStatus(label string) (InvitationStatus, bool) {
	s := InvitationStatus(strings.ToLower(strings.TrimSpace(label)))
	switch s {
	case InvitationPending, InvitationActive, InvitationExpired, InvitationRevoked:
		return s, true
	}
	return "", false
}

// InvitationTransition describes a conditional status move on one invitation.
// The move applies only while the row is still in From and, when Token is
// set, still carries that token.
type InvitationTransition struct {
	ID                uuid.UUID
	Token             string
	From              InvitationStatus
	To                InvitationStatus
	InviteeIdentityID *uuid.UUID
	At                time.Time
}
