package domain

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// InviteLink carries the three keys an invitee needs to redeem an invitation.
type InviteLink struct {
	InvitationID uuid.UUID
	InviterID    uuid.UUID
	Token        string
}

// LinkFor returns the link for inv.
func LinkFor(inv Invitation) InviteLink {
	return InviteLink{InvitationID: inv.ID, InviterID: inv.InviterIdentityID, Token: inv.Token}
}

// URL renders the link under base, e.g. https://twofold.app/accept?...
func (l InviteLink) URL(base string) string {
	q := url.Values{}
	q.Set("invitation", l.InvitationID.String())
	q.Set("inviter", l.InviterID.String())
	q.Set("token", l.Token)
	return strings.TrimRight(base, "/") + "/accept?" + q.Encode()
}

// ParseInviteLink reads a link produced by URL. A bare query string is
// accepted too, since users paste what they have.
func ParseInviteLink(raw string) (InviteLink, error) {
	raw = strings.TrimSpace(raw)
	query := raw
	if i := strings.Index(raw, "?"); i >= 0 {
		query = raw[i+1:]
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		return InviteLink{}, fmt.Errorf("parse invite link: %w", err)
	}
	var l InviteLink
	if l.InvitationID, err = uuid.Parse(q.Get("invitation")); err != nil {
		return InviteLink{}, fmt.Errorf("parse invite link: invitation: %w", err)
	}
	if l.InviterID, err = uuid.Parse(q.Get("inviter")); err != nil {
		return InviteLink{}, fmt.Errorf("parse invite link: inviter: %w", err)
	}
	if l.Token = q.Get("token"); l.Token == "" {
		return InviteLink{}, fmt.Errorf("parse invite link: missing token")
	}
	return l, nil
}
