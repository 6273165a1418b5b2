// Package ledger stages profile and household intents before the identity
// that will own them is confirmed, and hands them to reconciliation.
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/store"
	"github.com/naveenspark/twofold/pkg/domain"
)

// Ledger is the pending-state ledger.
type Ledger struct {
	store store.Pending
	now   func() time.Time
}

// New returns a ledger over the staging tables.
func New(st store.Pending) *Ledger {
	return &Ledger{store: st, now: time.Now}
}

// StageProfile records the profile a not-yet-created identity should get.
// tempKey is generated by the caller before signup.
func (l *Ledger) StageProfile(ctx context.Context, tempKey uuid.UUID, email, displayName string, attributes map[string]string) (domain.PendingProfileIntent, error) {
	p := domain.PendingProfileIntent{
		TempKey:     tempKey,
		Email:       domain.NormalizeEmail(email),
		DisplayName: displayName,
		Attributes:  attributes,
		CreatedAt:   l.now().UTC(),
	}
	if err := l.store.InsertPendingProfile(ctx, p); err != nil {
		return domain.PendingProfileIntent{}, fmt.Errorf("ledger.StageProfile: %w", err)
	}
	return p, nil
}

// BindProfileToIdentity attaches the created identity to a staged profile.
// Reconciliation can still find an unbound intent by email, so an unknown
// key is logged and otherwise ignored.
func (l *Ledger) BindProfileToIdentity(ctx context.Context, tempKey, identityID uuid.UUID) error {
	ok, err := l.store.BindPendingProfile(ctx, tempKey, identityID)
	if err != nil {
		return fmt.Errorf("ledger.BindProfileToIdentity: %w", err)
	}
	if !ok {
		log.Printf("[ledger] no bindable profile intent for key %s", tempKey)
	}
	return nil
}

// StageCoupleAssociation records that identityID signed up under an
// invitation. Repeated stagings are kept; FetchUnprocessed deduplicates.
func (l *Ledger) StageCoupleAssociation(ctx context.Context, identityID uuid.UUID, email string, invitationID uuid.UUID, token string) (domain.PendingCoupleAssociation, error) {
	a := domain.PendingCoupleAssociation{
		ID:           uuid.New(),
		IdentityID:   identityID,
		Email:        domain.NormalizeEmail(email),
		InvitationID: invitationID,
		Token:        token,
		CreatedAt:    l.now().UTC(),
	}
	if err := l.store.InsertPendingAssociation(ctx, a); err != nil {
		return domain.PendingCoupleAssociation{}, fmt.Errorf("ledger.StageCoupleAssociation: %w", err)
	}
	return a, nil
}

// Unprocessed is what is left to reconcile for one identity. The newest
// staged row of each kind wins; older ones are listed as superseded so the
// caller can retire them.
type Unprocessed struct {
	Profile     *domain.PendingProfileIntent
	Association *domain.PendingCoupleAssociation

	SupersededProfiles     []uuid.UUID
	SupersededAssociations []uuid.UUID
}

// Empty reports whether nothing is pending.
func (u Unprocessed) Empty() bool {
	return u.Profile == nil && u.Association == nil
}

// FetchUnprocessed returns the pending intents for identityID. Profile
// intents never bound to an identity are matched by email when staged no
// later than createdAt, the identity's creation time. Later ones come from a
// signup that collided with this account and stay orphaned.
func (l *Ledger) FetchUnprocessed(ctx context.Context, identityID uuid.UUID, email string, createdAt time.Time) (Unprocessed, error) {
	var out Unprocessed

	profiles, err := l.store.UnprocessedProfiles(ctx, identityID, email, createdAt)
	if err != nil {
		return Unprocessed{}, fmt.Errorf("ledger.FetchUnprocessed: %w", err)
	}
	for i := range profiles {
		if i == 0 {
			out.Profile = &profiles[0]
			continue
		}
		out.SupersededProfiles = append(out.SupersededProfiles, profiles[i].TempKey)
	}

	assocs, err := l.store.UnprocessedAssociations(ctx, identityID)
	if err != nil {
		return Unprocessed{}, fmt.Errorf("ledger.FetchUnprocessed: %w", err)
	}
	for i := range assocs {
		if i == 0 {
			out.Association = &assocs[0]
			continue
		}
		out.SupersededAssociations = append(out.SupersededAssociations, assocs[i].ID)
	}
	return out, nil
}

// MarkProfileProcessed retires a profile intent. It reports false when the
// intent was already processed.
func (l *Ledger) MarkProfileProcessed(ctx context.Context, tempKey uuid.UUID) (bool, error) {
	ok, err := l.store.MarkPendingProfileProcessed(ctx, tempKey)
	if err != nil {
		return false, fmt.Errorf("ledger.MarkProfileProcessed: %w", err)
	}
	return ok, nil
}

// MarkAssociationProcessed retires a couple association.
func (l *Ledger) MarkAssociationProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := l.store.MarkPendingAssociationProcessed(ctx, id)
	if err != nil {
		return false, fmt.Errorf("ledger.MarkAssociationProcessed: %w", err)
	}
	return ok, nil
}
