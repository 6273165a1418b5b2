package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

// Table methods implement the relational-store contract over the hosted
// table API. Conditional writes are PATCH requests whose filters carry the
// expected prior state; the returned representation tells whether a row
// actually changed.

const restPrefix = "/rest/v1/"

// quote wraps a value for use inside an or=(...) filter list.
func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

func (c *Client) selectRows(ctx context.Context, table string, params url.Values, out any) error {
	if params.Get("select") == "" {
		params.Set("select", "*")
	}
	return c.get(ctx, restPrefix+table+"?"+params.Encode(), out)
}

func (c *Client) insertRow(ctx context.Context, table string, row any) error {
	return c.post(ctx, restPrefix+table, row, nil, "Prefer", "return=minimal")
}

// updateRows applies patch to every row matching params and returns how many changed.
func (c *Client) updateRows(ctx context.Context, table string, params url.Values, patch any) (int, error) {
	var rows []json.RawMessage
	if err := c.patch(ctx, restPrefix+table+"?"+params.Encode(), patch, &rows, "Prefer", "return=representation"); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// --- invitations ---

// InsertInvitation creates an invitation row.
func (c *Client) InsertInvitation(ctx context.Context, inv domain.Invitation) error {
	inv.InviteeEmail = domain.NormalizeEmail(inv.InviteeEmail)
	if err := c.insertRow(ctx, "invitations", inv); err != nil {
		return fmt.Errorf("client.InsertInvitation: %w", err)
	}
	return nil
}

// GetInvitation fetches an invitation by ID.
func (c *Client) GetInvitation(ctx context.Context, id uuid.UUID) (domain.Invitation, error) {
	inv, err := c.oneInvitation(ctx, url.Values{"id": {"eq." + id.String()}})
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("client.GetInvitation: %w", err)
	}
	return inv, nil
}

// InvitationByToken fetches the invitation carrying token.
func (c *Client) InvitationByToken(ctx context.Context, token string) (domain.Invitation, error) {
	inv, err := c.oneInvitation(ctx, url.Values{"token": {"eq." + token}})
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("client.InvitationByToken: %w", err)
	}
	return inv, nil
}

// PendingInvitationsByInviter lists an inviter's pending invitations, newest first.
func (c *Client) PendingInvitationsByInviter(ctx context.Context, inviterID uuid.UUID) ([]domain.Invitation, error) {
	params := url.Values{}
	params.Set("inviter_identity_id", "eq."+inviterID.String())
	params.Set("status", "eq."+string(domain.InvitationPending))
	params.Set("order", "created_at.desc")

	var invs []domain.Invitation
	if err := c.selectRows(ctx, "invitations", params, &invs); err != nil {
		return nil, fmt.Errorf("client.PendingInvitationsByInviter: %w", err)
	}
	return invs, nil
}

// TransitionInvitation applies a conditional status move.
func (c *Client) TransitionInvitation(ctx context.Context, t domain.InvitationTransition) (bool, error) {
	if !domain.CanTransition(t.From, t.To) {
		return false, fmt.Errorf("client.TransitionInvitation: illegal transition %s -> %s", t.From, t.To)
	}
	params := url.Values{}
	params.Set("id", "eq."+t.ID.String())
	params.Set("status", "eq."+string(t.From))
	if t.Token != "" {
		params.Set("token", "eq."+t.Token)
	}
	patch := map[string]any{"status": t.To, "updated_at": t.At}
	if t.InviteeIdentityID != nil {
		patch["invitee_identity_id"] = t.InviteeIdentityID
	}
	n, err := c.updateRows(ctx, "invitations", params, patch)
	if err != nil {
		return false, fmt.Errorf("client.TransitionInvitation: %w", err)
	}
	return n > 0, nil
}

func (c *Client) oneInvitation(ctx context.Context, params url.Values) (domain.Invitation, error) {
	params.Set("limit", "1")
	var invs []domain.Invitation
	if err := c.selectRows(ctx, "invitations", params, &invs); err != nil {
		return domain.Invitation{}, err
	}
	if len(invs) == 0 {
		return domain.Invitation{}, domain.ErrNotFound
	}
	return invs[0], nil
}

// --- couples ---

// UpsertCouple writes a household link. The table API cannot express a
// conditional upsert, so this patches first (only while pending or already
// naming the same invitee) and inserts when nothing matched. A losing insert
// race surfaces as a conflict and leaves the stored link untouched.
func (c *Client) UpsertCouple(ctx context.Context, cp domain.Couple) error {
	params := url.Values{}
	params.Set("id", "eq."+cp.ID.String())
	patch := map[string]any{"status": cp.Status, "updated_at": cp.UpdatedAt}
	if cp.InviteeIdentityID != nil {
		params.Set("or", fmt.Sprintf("(status.eq.pending,invitee_identity_id.eq.%s)", cp.InviteeIdentityID))
		patch["invitee_identity_id"] = cp.InviteeIdentityID
	} else {
		params.Set("status", "eq.pending")
	}
	n, err := c.updateRows(ctx, "couples", params, patch)
	if err != nil {
		return fmt.Errorf("client.UpsertCouple: %w", err)
	}
	if n > 0 {
		return nil
	}
	err = c.insertRow(ctx, "couples", cp)
	if err != nil && errors.Is(err, domain.ErrUniqueViolation) {
		if _, getErr := c.GetCouple(ctx, cp.ID); getErr == nil {
			// The row exists and is not ours to rewrite.
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("client.UpsertCouple: %w", err)
	}
	return nil
}

// GetCouple fetches a household link by ID.
func (c *Client) GetCouple(ctx context.Context, id uuid.UUID) (domain.Couple, error) {
	cp, err := c.oneCouple(ctx, url.Values{"id": {"eq." + id.String()}})
	if err != nil {
		return domain.Couple{}, fmt.Errorf("client.GetCouple: %w", err)
	}
	return cp, nil
}

// ActiveCoupleFor returns the active link holding identityID in either slot.
func (c *Client) ActiveCoupleFor(ctx context.Context, identityID uuid.UUID) (domain.Couple, error) {
	params := url.Values{}
	params.Set("status", "eq.active")
	params.Set("or", fmt.Sprintf("(invitee_identity_id.eq.%s,inviter_identity_id.eq.%s)", identityID, identityID))
	params.Set("order", "updated_at.desc")
	cp, err := c.oneCouple(ctx, params)
	if err != nil {
		return domain.Couple{}, fmt.Errorf("client.ActiveCoupleFor: %w", err)
	}
	return cp, nil
}

func (c *Client) oneCouple(ctx context.Context, params url.Values) (domain.Couple, error) {
	params.Set("limit", "1")
	var cps []domain.Couple
	if err := c.selectRows(ctx, "couples", params, &cps); err != nil {
		return domain.Couple{}, err
	}
	if len(cps) == 0 {
		return domain.Couple{}, domain.ErrNotFound
	}
	return cps[0], nil
}

// --- pending staging ---

// InsertPendingProfile stages a profile intent.
func (c *Client) InsertPendingProfile(ctx context.Context, p domain.PendingProfileIntent) error {
	p.Email = domain.NormalizeEmail(p.Email)
	if err := c.insertRow(ctx, "pending_profiles", p); err != nil {
		return fmt.Errorf("client.InsertPendingProfile: %w", err)
	}
	return nil
}

// BindPendingProfile attaches the real identity to a staged intent.
func (c *Client) BindPendingProfile(ctx context.Context, tempKey, identityID uuid.UUID) (bool, error) {
	params := url.Values{}
	params.Set("temp_key", "eq."+tempKey.String())
	params.Set("or", fmt.Sprintf("(identity_id.is.null,identity_id.eq.%s)", identityID))
	n, err := c.updateRows(ctx, "pending_profiles", params, map[string]any{"identity_id": identityID})
	if err != nil {
		return false, fmt.Errorf("client.BindPendingProfile: %w", err)
	}
	return n > 0, nil
}

// UnprocessedProfiles returns unprocessed intents for the identity, newest
// first. Unbound intents match by email only when staged by stagedBy.
func (c *Client) UnprocessedProfiles(ctx context.Context, identityID uuid.UUID, email string, stagedBy time.Time) ([]domain.PendingProfileIntent, error) {
	params := url.Values{}
	params.Set("processed", "is.false")
	if stagedBy.IsZero() {
		params.Set("identity_id", "eq."+identityID.String())
	} else {
		params.Set("or", fmt.Sprintf("(identity_id.eq.%s,and(identity_id.is.null,email.eq.%s,created_at.lte.%s))",
			identityID, quote(domain.NormalizeEmail(email)), quote(stagedBy.UTC().Format(time.RFC3339Nano))))
	}
	params.Set("order", "created_at.desc")

	var out []domain.PendingProfileIntent
	if err := c.selectRows(ctx, "pending_profiles", params, &out); err != nil {
		return nil, fmt.Errorf("client.UnprocessedProfiles: %w", err)
	}
	return out, nil
}

// MarkPendingProfileProcessed flips processed false -> true.
func (c *Client) MarkPendingProfileProcessed(ctx context.Context, tempKey uuid.UUID) (bool, error) {
	params := url.Values{}
	params.Set("temp_key", "eq."+tempKey.String())
	params.Set("processed", "is.false")
	n, err := c.updateRows(ctx, "pending_profiles", params, map[string]bool{"processed": true})
	if err != nil {
		return false, fmt.Errorf("client.MarkPendingProfileProcessed: %w", err)
	}
	return n > 0, nil
}

// InsertPendingAssociation stages a couple association.
func (c *Client) InsertPendingAssociation(ctx context.Context, a domain.PendingCoupleAssociation) error {
	a.Email = domain.NormalizeEmail(a.Email)
	if err := c.insertRow(ctx, "pending_couple_associations", a); err != nil {
		return fmt.Errorf("client.InsertPendingAssociation: %w", err)
	}
	return nil
}

// UnprocessedAssociations returns unprocessed associations, newest first.
func (c *Client) UnprocessedAssociations(ctx context.Context, identityID uuid.UUID) ([]domain.PendingCoupleAssociation, error) {
	params := url.Values{}
	params.Set("identity_id", "eq."+identityID.String())
	params.Set("processed", "is.false")
	params.Set("order", "created_at.desc")

	var out []domain.PendingCoupleAssociation
	if err := c.selectRows(ctx, "pending_couple_associations", params, &out); err != nil {
		return nil, fmt.Errorf("client.UnprocessedAssociations: %w", err)
	}
	return out, nil
}

// MarkPendingAssociationProcessed flips processed false -> true.
func (c *Client) MarkPendingAssociationProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	params := url.Values{}
	params.Set("id", "eq."+id.String())
	params.Set("processed", "is.false")
	n, err := c.updateRows(ctx, "pending_couple_associations", params, map[string]bool{"processed": true})
	if err != nil {
		return false, fmt.Errorf("client.MarkPendingAssociationProcessed: %w", err)
	}
	return n > 0, nil
}

// --- profiles ---

// UpsertProfile creates a profile or fills the blanks of an existing one.
func (c *Client) UpsertProfile(ctx context.Context, p domain.Profile) error {
	p.Email = domain.NormalizeEmail(p.Email)
	existing, err := c.GetProfile(ctx, p.IdentityID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		err = c.insertRow(ctx, "profiles", p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrUniqueViolation) {
			return fmt.Errorf("client.UpsertProfile: %w", err)
		}
		// Another writer created it first; fill its blanks instead.
		if existing, err = c.GetProfile(ctx, p.IdentityID); err != nil {
			return fmt.Errorf("client.UpsertProfile: %w", err)
		}
	case err != nil:
		return fmt.Errorf("client.UpsertProfile: %w", err)
	}

	patch := map[string]any{"updated_at": p.UpdatedAt}
	if strings.TrimSpace(existing.DisplayName) == "" && p.DisplayName != "" {
		patch["display_name"] = p.DisplayName
	}
	if len(existing.Attributes) == 0 && len(p.Attributes) > 0 {
		patch["attributes"] = p.Attributes
	}
	params := url.Values{}
	params.Set("identity_id", "eq."+p.IdentityID.String())
	if _, err := c.updateRows(ctx, "profiles", params, patch); err != nil {
		return fmt.Errorf("client.UpsertProfile: %w", err)
	}
	return nil
}

// GetProfile fetches the profile for an identity.
func (c *Client) GetProfile(ctx context.Context, identityID uuid.UUID) (domain.Profile, error) {
	params := url.Values{}
	params.Set("identity_id", "eq."+identityID.String())
	params.Set("limit", strconv.Itoa(1))
	var out []domain.Profile
	if err := c.selectRows(ctx, "profiles", params, &out); err != nil {
		return domain.Profile{}, fmt.Errorf("client.GetProfile: %w", err)
	}
	if len(out) == 0 {
		return domain.Profile{}, fmt.Errorf("client.GetProfile: %w", domain.ErrNotFound)
	}
	return out[0], nil
}

