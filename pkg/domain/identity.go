package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an authenticated principal issued by the identity provider.
// It is usable only once ConfirmedAt is set.
type Identity struct {
	ID          uuid.UUID         `json:"id"`
	Email       string            `json:"email"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Confirmed reports whether the identity has passed email confirmation.
func (i Identity) Confirmed() bool {
	return i.ConfirmedAt != nil && !i.ConfirmedAt.IsZero()
}

// Session is the signed-in identity as seen by this device.
type Session struct {
	IdentityID   uuid.UUID         `json:"identity_id"`
	Email        string            `json:"email"`
	ConfirmedAt  *time.Time        `json:"confirmed_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	AccessToken  string            `json:"access_token,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time         `json:"expires_at,omitempty"`
}

// Confirmed reports whether the session's identity is usable.
func (s Session) Confirmed() bool {
	return s.ConfirmedAt != nil && !s.ConfirmedAt.IsZero()
}

// AuthEventKind names an auth-state change.
type AuthEventKind string

const (
	SignedIn  AuthEventKind = "signed_in"
	SignedOut AuthEventKind = "signed_out"
)

// AuthEvent is published whenever the signed-in identity changes.
type AuthEvent struct {
	Kind    AuthEventKind
	Session Session
}
