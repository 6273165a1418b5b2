package domain

import (
	"time"

	"github.com/google/uuid"
)

// CoupleStatus is the state of a household link.
type CoupleStatus string

const (
	CouplePending CoupleStatus = "pending"
	CoupleActive  CoupleStatus = "active"
	// CoupleRetired marks the link of an invitation that expired or was
	// revoked before anyone redeemed it.
	CoupleRetired CoupleStatus = "retired"
)

// Couple is the household link joining an inviter and an invitee.
// Its ID equals the ID of the invitation that created it.
type Couple struct {
	ID                uuid.UUID    `json:"id"`
	InviterIdentityID uuid.UUID    `json:"inviter_identity_id"`
	InviteeIdentityID *uuid.UUID   `json:"invitee_identity_id,omitempty"`
	Status            CoupleStatus `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Confirmed reports whether the link is active with both slots filled.
func (c Couple) Confirmed() bool {
	return c.Status == CoupleActive && c.InviterIdentityID != uuid.Nil &&
		c.InviteeIdentityID != nil && *c.InviteeIdentityID != uuid.Nil
}

// Partner returns the other member of the link, if any.
func (c Couple) Partner(identityID uuid.UUID) (uuid.UUID, bool) {
	switch {
	case c.InviteeIdentityID != nil && identityID == c.InviterIdentityID:
		return *c.InviteeIdentityID, true
	case c.InviteeIdentityID != nil && identityID == *c.InviteeIdentityID:
		return c.InviterIdentityID, true
	}
	return uuid.Nil, false
}
