// Package registry owns invitations: creating them, resolving a redeemed
// link back to one, and activating one into a household link.
package registry

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/store"
	"github.com/naveenspark/twofold/pkg/domain"
)

// ErrInvalidEmail is returned by Create for an address that cannot receive an invitation.
var ErrInvalidEmail = errors.New("invalid invitee email")

// tokenBytes is the entropy of an invitation token before hex encoding.
const tokenBytes = 32

// Store is the slice of the relational store the registry writes.
type Store interface {
	store.Invitations
	store.Couples
}

// Registry creates, resolves and activates invitations.
type Registry struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	token func() (string, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL sets how long new invitations stay redeemable.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New returns a registry over st.
func New(st Store, opts ...Option) *Registry {
	r := &Registry{
		store: st,
		ttl:   domain.DefaultInvitationTTL,
		now:   time.Now,
		token: newToken,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create issues a pending invitation from inviterID to inviteeEmail and the
// pending household link it will activate. An inviter holds at most one
// live pending invitation; a second attempt returns *domain.ConflictError
// carrying the existing one. Pending invitations past their TTL are moved
// to expired first. An inviter already in an active household gets
// domain.ErrAlreadyLinked.
func (r *Registry) Create(ctx context.Context, inviterID uuid.UUID, inviteeEmail string) (domain.Invitation, error) {
	email := domain.NormalizeEmail(inviteeEmail)
	if !domain.ValidEmail(email) {
		return domain.Invitation{}, fmt.Errorf("registry.Create: %w", ErrInvalidEmail)
	}
	now := r.now().UTC()

	switch _, err := r.store.ActiveCoupleFor(ctx, inviterID); {
	case err == nil:
		return domain.Invitation{}, fmt.Errorf("registry.Create: %w", domain.ErrAlreadyLinked)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Invitation{}, fmt.Errorf("registry.Create: %w", err)
	}

	pending, err := r.store.PendingInvitationsByInviter(ctx, inviterID)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("registry.Create: %w", err)
	}
	for i := range pending {
		inv := pending[i]
		if !inv.Expired(now) {
			return domain.Invitation{}, &domain.ConflictError{InviterIdentityID: inviterID, Existing: &inv}
		}
		if _, err := r.store.TransitionInvitation(ctx, domain.InvitationTransition{
			ID: inv.ID, From: domain.InvitationPending, To: domain.InvitationExpired, At: now,
		}); err != nil {
			return domain.Invitation{}, fmt.Errorf("registry.Create: expire %s: %w", inv.ID, err)
		}
		log.Printf("[registry] expired invitation %s", inv.ID)
		r.retireLink(ctx, inv, now)
	}

	token, err := r.token()
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("registry.Create: %w", err)
	}
	inv := domain.Invitation{
		ID:                uuid.New(),
		InviterIdentityID: inviterID,
		InviteeEmail:      email,
		Token:             token,
		Status:            domain.InvitationPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(r.ttl),
		UpdatedAt:         now,
	}
	if err := r.store.InsertInvitation(ctx, inv); err != nil {
		if errors.Is(err, domain.ErrUniqueViolation) {
			// Lost a race with another device creating an invitation.
			conflict := &domain.ConflictError{InviterIdentityID: inviterID}
			if again, lookErr := r.store.PendingInvitationsByInviter(ctx, inviterID); lookErr == nil && len(again) > 0 {
				conflict.Existing = &again[0]
			}
			return domain.Invitation{}, conflict
		}
		return domain.Invitation{}, fmt.Errorf("registry.Create: %w", err)
	}

	if err := r.store.UpsertCouple(ctx, domain.Couple{
		ID:                inv.ID,
		InviterIdentityID: inviterID,
		Status:            domain.CouplePending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		// Activation derives the link from the invitation, so a missing
		// pending link is repaired there.
		log.Printf("[registry] pending link for invitation %s: %v", inv.ID, err)
	}
	return inv, nil
}

// LookupByToken resolves a redeemed link. Token, inviter and invitation ID
// must all match; any mismatch is domain.ErrNotFound.
func (r *Registry) LookupByToken(ctx context.Context, token string, inviterID, invitationID uuid.UUID) (domain.Invitation, error) {
	if token == "" {
		return domain.Invitation{}, fmt.Errorf("registry.LookupByToken: %w", domain.ErrNotFound)
	}
	inv, err := r.store.InvitationByToken(ctx, token)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("registry.LookupByToken: %w", err)
	}
	if inv.ID != invitationID || inv.InviterIdentityID != inviterID {
		return domain.Invitation{}, fmt.Errorf("registry.LookupByToken: %w", domain.ErrNotFound)
	}
	return inv, nil
}

// Activate consumes a pending invitation on behalf of inviteeID and returns
// the new active household link. The conditional pending -> active update
// orders racing callers: exactly one wins and the rest get
// *domain.StaleInvitationError. When the invitation is already active for
// inviteeID but its link was never written, the link is written now and
// returned, so a crash between the two writes heals on the next call.
func (r *Registry) Activate(ctx context.Context, invitationID uuid.UUID, token string, inviteeID uuid.UUID) (domain.Couple, error) {
	now := r.now().UTC()

	inv, err := r.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return domain.Couple{}, fmt.Errorf("registry.Activate: %w", err)
	}
	if !tokenMatches(inv.Token, token) {
		return domain.Couple{}, stale(invitationID, domain.StaleTokenMismatch)
	}
	if inv.InviterIdentityID == inviteeID {
		return domain.Couple{}, stale(invitationID, domain.StaleAlreadyInvitee)
	}

	switch {
	case inv.Status == domain.InvitationActive && sameID(inv.InviteeIdentityID, inviteeID):
		return r.repairLink(ctx, inv, now)
	case inv.Status != domain.InvitationPending:
		return domain.Couple{}, stale(invitationID, domain.StaleNotPending)
	case inv.Expired(now):
		return domain.Couple{}, stale(invitationID, domain.StaleExpired)
	}

	// Neither side may already share another household; the inviter can
	// have joined one since the invitation was sent.
	for _, side := range []struct {
		id     uuid.UUID
		reason domain.StaleReason
	}{
		{inviteeID, domain.StaleAlreadyInvitee},
		{inv.InviterIdentityID, domain.StaleInviterLinked},
	} {
		existing, err := r.store.ActiveCoupleFor(ctx, side.id)
		switch {
		case err == nil && existing.ID != inv.ID:
			return domain.Couple{}, stale(invitationID, side.reason)
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return domain.Couple{}, fmt.Errorf("registry.Activate: %w", err)
		}
	}

	won, err := r.store.TransitionInvitation(ctx, domain.InvitationTransition{
		ID:                inv.ID,
		Token:             token,
		From:              domain.InvitationPending,
		To:                domain.InvitationActive,
		InviteeIdentityID: &inviteeID,
		At:                now,
	})
	if err != nil {
		return domain.Couple{}, fmt.Errorf("registry.Activate: %w", err)
	}
	if !won {
		return domain.Couple{}, stale(invitationID, domain.StaleNotPending)
	}

	inv.Status = domain.InvitationActive
	inv.InviteeIdentityID = &inviteeID
	inv.UpdatedAt = now
	log.Printf("[registry] invitation %s activated", inv.ID)
	return r.linkActive(ctx, inv, now)
}

// repairLink finishes an activation whose link write was lost. An
// activation that already completed is reported stale like any other
// consumed invitation.
func (r *Registry) repairLink(ctx context.Context, inv domain.Invitation, now time.Time) (domain.Couple, error) {
	current, err := r.store.GetCouple(ctx, inv.ID)
	switch {
	case err == nil && current.Confirmed():
		return domain.Couple{}, stale(inv.ID, domain.StaleNotPending)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.Couple{}, fmt.Errorf("registry.Activate: %w", err)
	}
	log.Printf("[registry] repairing link for invitation %s", inv.ID)
	return r.linkActive(ctx, inv, now)
}

// linkActive writes the active household link for an activated invitation.
func (r *Registry) linkActive(ctx context.Context, inv domain.Invitation, now time.Time) (domain.Couple, error) {
	link := domain.Couple{
		ID:                inv.ID,
		InviterIdentityID: inv.InviterIdentityID,
		InviteeIdentityID: inv.InviteeIdentityID,
		Status:            domain.CoupleActive,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         now,
	}
	if err := r.store.UpsertCouple(ctx, link); err != nil {
		if errors.Is(err, domain.ErrUniqueViolation) {
			// Another invitation linked this invitee in between.
			return domain.Couple{}, stale(inv.ID, domain.StaleAlreadyInvitee)
		}
		return domain.Couple{}, fmt.Errorf("registry.Activate: %w", err)
	}
	return link, nil
}

// Revoke withdraws a pending invitation. Only its inviter may revoke it.
func (r *Registry) Revoke(ctx context.Context, inviterID, invitationID uuid.UUID) error {
	inv, err := r.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return fmt.Errorf("registry.Revoke: %w", err)
	}
	if inv.InviterIdentityID != inviterID {
		return fmt.Errorf("registry.Revoke: %w", domain.ErrNotFound)
	}
	now := r.now().UTC()
	ok, err := r.store.TransitionInvitation(ctx, domain.InvitationTransition{
		ID: inv.ID, From: domain.InvitationPending, To: domain.InvitationRevoked, At: now,
	})
	if err != nil {
		return fmt.Errorf("registry.Revoke: %w", err)
	}
	if !ok {
		return stale(invitationID, domain.StaleNotPending)
	}
	r.retireLink(ctx, inv, now)
	return nil
}

// retireLink closes the pending link of an invitation that can no longer be
// redeemed. The store only rewrites links that are still pending. A failure
// leaves a pending row nothing reads as a household.
func (r *Registry) retireLink(ctx context.Context, inv domain.Invitation, now time.Time) {
	if err := r.store.UpsertCouple(ctx, domain.Couple{
		ID:                inv.ID,
		InviterIdentityID: inv.InviterIdentityID,
		Status:            domain.CoupleRetired,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         now,
	}); err != nil {
		log.Printf("[registry] retire link for invitation %s: %v", inv.ID, err)
	}
}

// PendingFor returns the inviter's live pending invitation, or
// domain.ErrNotFound. It lets an inviter resend the existing invitation
// after Create reports a conflict.
func (r *Registry) PendingFor(ctx context.Context, inviterID uuid.UUID) (domain.Invitation, error) {
	pending, err := r.store.PendingInvitationsByInviter(ctx, inviterID)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("registry.PendingFor: %w", err)
	}
	now := r.now().UTC()
	for _, inv := range pending {
		if !inv.Expired(now) {
			return inv, nil
		}
	}
	return domain.Invitation{}, fmt.Errorf("registry.PendingFor: %w", domain.ErrNotFound)
}

func tokenMatches(stored, presented string) bool {
	return stored != "" && subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

func stale(id uuid.UUID, reason domain.StaleReason) error {
	return &domain.StaleInvitationError{InvitationID: id, Reason: reason}
}

func sameID(p *uuid.UUID, id uuid.UUID) bool {
	return p != nil && *p == id
}
