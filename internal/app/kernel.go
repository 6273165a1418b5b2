package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/flow"
	"github.com/naveenspark/twofold/internal/reconcile"
	"github.com/naveenspark/twofold/pkg/domain"
)

// ErrSelfHostedOnly is returned by ConfirmEmail on the hosted backend, where
// confirmation happens through the emailed link.
var ErrSelfHostedOnly = errors.New("only available on a self-hosted backend")

// CurrentSession returns the signed-in session, or nil.
func (a *App) CurrentSession(ctx context.Context) (*domain.Session, error) {
	return a.Identity.CurrentSession(ctx)
}

// SignIn signs in and saves the session.
func (a *App) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	return a.Identity.SignIn(ctx, email, password)
}

// SignOut forgets the session.
func (a *App) SignOut(ctx context.Context) error {
	return a.Identity.SignOut(ctx)
}

// Profile returns the profile of identityID, or nil before it exists.
func (a *App) Profile(ctx context.Context, identityID uuid.UUID) (*domain.Profile, error) {
	p, err := a.Store.GetProfile(ctx, identityID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("app.Profile: %w", err)
	}
	return &p, nil
}

// Household returns the active link identityID belongs to, or nil.
func (a *App) Household(ctx context.Context, identityID uuid.UUID) (*domain.Couple, error) {
	c, err := a.Store.ActiveCoupleFor(ctx, identityID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("app.Household: %w", err)
	}
	return &c, nil
}

// InvitePartner creates and emails an invitation.
func (a *App) InvitePartner(ctx context.Context, inviterID uuid.UUID, inviterName, email string) (domain.Invitation, error) {
	return a.Flow.InvitePartner(ctx, inviterID, inviterName, email)
}

// Resend emails the inviter's live invitation again.
func (a *App) Resend(ctx context.Context, inviterID uuid.UUID, inviterName string) (domain.Invitation, error) {
	return a.Flow.Resend(ctx, inviterID, inviterName)
}

// InviteURL is the redeem link printed next to an invitation.
func (a *App) InviteURL(inv domain.Invitation) string {
	return a.Mailer.Link(inv)
}

// AcceptInvitation registers the invitee and stages the household link.
func (a *App) AcceptInvitation(ctx context.Context, req flow.AcceptRequest) (domain.Identity, error) {
	return a.Flow.AcceptInvitation(ctx, req)
}

// SignUp registers an inviter.
func (a *App) SignUp(ctx context.Context, req flow.SignUpRequest) (domain.Identity, error) {
	return a.Flow.SignUp(ctx, req)
}

// WaitForConfirmation polls with the configured policy, then reconciles.
func (a *App) WaitForConfirmation(ctx context.Context, identityID uuid.UUID) (reconcile.Result, error) {
	return a.Flow.WaitForConfirmation(ctx, identityID, a.RetryPolicy())
}

// Reconcile runs the manual trigger for the current session.
func (a *App) Reconcile(ctx context.Context) (reconcile.Result, error) {
	return a.Trigger.Now(ctx)
}

// ConfirmEmail marks email confirmed on a self-hosted backend.
func (a *App) ConfirmEmail(ctx context.Context, email string) (domain.Identity, error) {
	if a.Local == nil {
		return domain.Identity{}, fmt.Errorf("app.ConfirmEmail: %w", ErrSelfHostedOnly)
	}
	return a.Local.ConfirmEmail(ctx, email)
}
