package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the user-visible record of an identity.
type Profile struct {
	IdentityID  uuid.UUID         `json:"identity_id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"display_name"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MetadataDisplayName is the identity metadata key seeded at signup.
const MetadataDisplayName = "display_name"

// ResolveDisplayName picks the name to show for an identity.
// The profile record is authoritative; identity metadata is a fallback and
// the email local part is the last resort.
func ResolveDisplayName(profile *Profile, session Session) string {
	if profile != nil {
		if name := strings.TrimSpace(profile.DisplayName); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(session.Metadata[MetadataDisplayName]); name != "" {
		return name
	}
	email := NormalizeEmail(session.Email)
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
