// Package flow orchestrates the two human-facing paths: an inviter sending
// an invitation and an invitee redeeming it. It only creates invitations
// and staged rows; status transitions belong to reconciliation.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/ledger"
	"github.com/naveenspark/twofold/internal/reconcile"
	"github.com/naveenspark/twofold/pkg/domain"
)

var (
	// ErrInvitationInvalid is the one failure shown to an invitee: the link
	// does not resolve, or the invitation is no longer redeemable.
	ErrInvitationInvalid = errors.New("invitation invalid or expired")
	// ErrEmailMismatch means the invitee signed up under another address.
	ErrEmailMismatch = errors.New("email does not match the invitation")
)

// Registry is the invitation registry.
type Registry interface {
	Create(ctx context.Context, inviterID uuid.UUID, inviteeEmail string) (domain.Invitation, error)
	LookupByToken(ctx context.Context, token string, inviterID, invitationID uuid.UUID) (domain.Invitation, error)
	PendingFor(ctx context.Context, inviterID uuid.UUID) (domain.Invitation, error)
}

// Ledger is the staging side of the pending-state ledger.
type Ledger interface {
	StageProfile(ctx context.Context, tempKey uuid.UUID, email, displayName string, attributes map[string]string) (domain.PendingProfileIntent, error)
	BindProfileToIdentity(ctx context.Context, tempKey, identityID uuid.UUID) error
	StageCoupleAssociation(ctx context.Context, identityID uuid.UUID, email string, invitationID uuid.UUID, token string) (domain.PendingCoupleAssociation, error)
}

// Identities is the identity store.
type Identities interface {
	CreateIdentity(ctx context.Context, email, password string, metadata map[string]string) (domain.Identity, error)
	Lookup(ctx context.Context, id uuid.UUID) (domain.Identity, error)
}

// Mailer delivers an invitation to its invitee.
type Mailer interface {
	SendInvitation(ctx context.Context, inv domain.Invitation, inviterName string) error
}

// Flow wires the client-side paths to the kernel.
type Flow struct {
	registry   Registry
	ledger     Ledger
	identities Identities
	mailer     Mailer
	engine     reconcile.Reconciler
	now        func() time.Time
}

// New returns a Flow.
func New(registry Registry, l Ledger, identities Identities, mailer Mailer, engine reconcile.Reconciler) *Flow {
	return &Flow{
		registry:   registry,
		ledger:     l,
		identities: identities,
		mailer:     mailer,
		engine:     engine,
		now:        time.Now,
	}
}

var _ Ledger = (*ledger.Ledger)(nil)

// InvitePartner creates an invitation and emails it. When the inviter
// already has a live invitation the *domain.ConflictError is returned along
// with that invitation so the caller can offer to resend it. A delivery
// failure still returns the created invitation.
func (f *Flow) InvitePartner(ctx context.Context, inviterID uuid.UUID, inviterName, email string) (domain.Invitation, error) {
	inv, err := f.registry.Create(ctx, inviterID, email)
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) && conflict.Existing != nil {
			return *conflict.Existing, err
		}
		return domain.Invitation{}, fmt.Errorf("flow.InvitePartner: %w", err)
	}
	if err := f.mailer.SendInvitation(ctx, inv, inviterName); err != nil {
		return inv, fmt.Errorf("flow.InvitePartner: %w", err)
	}
	log.Printf("[flow] invitation %s sent", inv.ID)
	return inv, nil
}

// Resend emails the inviter's live invitation again.
func (f *Flow) Resend(ctx context.Context, inviterID uuid.UUID, inviterName string) (domain.Invitation, error) {
	inv, err := f.registry.PendingFor(ctx, inviterID)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("flow.Resend: %w", err)
	}
	if err := f.mailer.SendInvitation(ctx, inv, inviterName); err != nil {
		return inv, fmt.Errorf("flow.Resend: %w", err)
	}
	return inv, nil
}

// AcceptRequest is what an invitee submits from the accept screen.
type AcceptRequest struct {
	Link        domain.InviteLink
	Email       string
	Password    string
	DisplayName string
	Attributes  map[string]string
}

// AcceptInvitation validates the link, stages the profile, creates the
// identity and stages the household association. Nothing becomes durable
// state until the identity is confirmed and reconciled. If identity
// creation fails the staged profile is left behind unreferenced.
func (f *Flow) AcceptInvitation(ctx context.Context, req AcceptRequest) (domain.Identity, error) {
	inv, err := f.registry.LookupByToken(ctx, req.Link.Token, req.Link.InviterID, req.Link.InvitationID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, ErrInvitationInvalid
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("flow.AcceptInvitation: %w", err)
	}
	if !inv.Redeemable(f.now()) {
		return domain.Identity{}, ErrInvitationInvalid
	}
	if !domain.SameEmail(req.Email, inv.InviteeEmail) {
		return domain.Identity{}, ErrEmailMismatch
	}

	created, tempKey, err := f.register(ctx, req.Email, req.Password, req.DisplayName, req.Attributes)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("flow.AcceptInvitation: %w", err)
	}
	if _, err := f.ledger.StageCoupleAssociation(ctx, created.ID, created.Email, inv.ID, inv.Token); err != nil {
		return created, fmt.Errorf("flow.AcceptInvitation: %w", err)
	}
	log.Printf("[flow] %s staged for invitation %s (profile key %s)", created.ID, inv.ID, tempKey)
	return created, nil
}

// SignUpRequest is a plain account creation, without an invitation.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp creates an identity whose profile is materialized on its first
// confirmed reconciliation.
func (f *Flow) SignUp(ctx context.Context, req SignUpRequest) (domain.Identity, error) {
	created, _, err := f.register(ctx, req.Email, req.Password, req.DisplayName, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("flow.SignUp: %w", err)
	}
	return created, nil
}

// register stages the profile before the identity exists, then binds it.
func (f *Flow) register(ctx context.Context, email, password, displayName string, attrs map[string]string) (domain.Identity, uuid.UUID, error) {
	tempKey := uuid.New()
	if _, err := f.ledger.StageProfile(ctx, tempKey, email, displayName, attrs); err != nil {
		return domain.Identity{}, uuid.Nil, err
	}
	var meta map[string]string
	if displayName != "" {
		meta = map[string]string{domain.MetadataDisplayName: displayName}
	}
	created, err := f.identities.CreateIdentity(ctx, email, password, meta)
	if err != nil {
		return domain.Identity{}, uuid.Nil, err
	}
	if err := f.ledger.BindProfileToIdentity(ctx, tempKey, created.ID); err != nil {
		// Reconciliation falls back to the email match.
		log.Printf("[flow] bind profile %s: %v", tempKey, err)
	}
	return created, tempKey, nil
}
