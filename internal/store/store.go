// Package store defines the relational-store contracts the reconciliation
// kernel depends on. Every write that changes state is conditional on the
// row still being in its expected prior state, so racing callers degrade to
// one winner and one no-op instead of double effects.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

// Invitations is the invitations table.
type Invitations interface {
	// InsertInvitation returns domain.ErrUniqueViolation when the token is
	// taken or the inviter already has a pending row.
	InsertInvitation(ctx context.Context, inv domain.Invitation) error
	GetInvitation(ctx context.Context, id uuid.UUID) (domain.Invitation, error)
	InvitationByToken(ctx context.Context, token string) (domain.Invitation, error)
	PendingInvitationsByInviter(ctx context.Context, inviterID uuid.UUID) ([]domain.Invitation, error)
	// TransitionInvitation reports whether a row changed.
	TransitionInvitation(ctx context.Context, t domain.InvitationTransition) (bool, error)
}

// Couples is the household-link table.
type Couples interface {
	// UpsertCouple inserts a link or updates it by ID. An active link is
	// never rewritten to a different invitee.
	UpsertCouple(ctx context.Context, c domain.Couple) error
	GetCouple(ctx context.Context, id uuid.UUID) (domain.Couple, error)
	// ActiveCoupleFor returns the active link holding identityID in either slot.
	ActiveCoupleFor(ctx context.Context, identityID uuid.UUID) (domain.Couple, error)
}

// Pending is the staging area: pending_profiles and pending_couple_associations.
// There is deliberately no operation that clears a processed flag.
type Pending interface {
	InsertPendingProfile(ctx context.Context, p domain.PendingProfileIntent) error
	BindPendingProfile(ctx context.Context, tempKey, identityID uuid.UUID) (bool, error)
	// UnprocessedProfiles returns unprocessed intents bound to identityID, or
	// unbound ones staged under email no later than stagedBy, newest first.
	// A zero stagedBy matches bound intents only.
	UnprocessedProfiles(ctx context.Context, identityID uuid.UUID, email string, stagedBy time.Time) ([]domain.PendingProfileIntent, error)
	MarkPendingProfileProcessed(ctx context.Context, tempKey uuid.UUID) (bool, error)

	InsertPendingAssociation(ctx context.Context, a domain.PendingCoupleAssociation) error
	// UnprocessedAssociations returns unprocessed associations, newest first.
	UnprocessedAssociations(ctx context.Context, identityID uuid.UUID) ([]domain.PendingCoupleAssociation, error)
	MarkPendingAssociationProcessed(ctx context.Context, id uuid.UUID) (bool, error)
}

// Profiles is the durable profile table keyed by identity.
type Profiles interface {
	// UpsertProfile keeps an existing non-empty display name and attributes;
	// it only fills what is missing.
	UpsertProfile(ctx context.Context, p domain.Profile) error
	GetProfile(ctx context.Context, identityID uuid.UUID) (domain.Profile, error)
}

// Store is every table the kernel touches.
type Store interface {
	Invitations
	Couples
	Pending
	Profiles
}

// Identities backs the self-hosted identity provider.
type Identities interface {
	// InsertIdentity returns domain.ErrUniqueViolation when the email exists.
	InsertIdentity(ctx context.Context, identity domain.Identity, passwordHash string) error
	GetIdentity(ctx context.Context, id uuid.UUID) (domain.Identity, error)
	IdentityByEmail(ctx context.Context, email string) (domain.Identity, string, error)
	ConfirmIdentity(ctx context.Context, email string, at time.Time) (bool, error)
}
