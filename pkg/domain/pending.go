package domain

import (
	"time"

	"github.com/google/uuid"
)

// PendingProfileIntent stages a profile for an identity that may not exist
// or be confirmed yet. TempKey is generated by the client before signup.
type PendingProfileIntent struct {
	TempKey     uuid.UUID         `json:"temp_key"`
	IdentityID  *uuid.UUID        `json:"identity_id,omitempty"`
	Email       string            `json:"email"`
	DisplayName string            `json:"display_name"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Processed   bool              `json:"processed"`
	CreatedAt   time.Time         `json:"created_at"`
}

// PendingCoupleAssociation stages the binding of a new identity to an
// existing invitation's household.
type PendingCoupleAssociation struct {
	ID           uuid.UUID `json:"id"`
	IdentityID   uuid.UUID `json:"identity_id"`
	Email        string    `json:"email"`
	InvitationID uuid.UUID `json:"invitation_id"`
	Token        string    `json:"token"`
	Processed    bool      `json:"processed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile attribute keys written by the accept flow.
const (
	AttrGender        = "gender"
	AttrHouseholdRole = "household_role"
)
