// Package reconcile converges staged intents into durable profile and
// household state once an identity is confirmed. Every step is a
// conditional write, so running it again, or concurrently on another
// device, is always safe.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/ledger"
	"github.com/naveenspark/twofold/internal/store"
	"github.com/naveenspark/twofold/pkg/domain"
)

// Identities reads confirmation state from the identity store.
type Identities interface {
	Lookup(ctx context.Context, id uuid.UUID) (domain.Identity, error)
}

// Ledger is the staging area the engine drains.
type Ledger interface {
	FetchUnprocessed(ctx context.Context, identityID uuid.UUID, email string, createdAt time.Time) (ledger.Unprocessed, error)
	MarkProfileProcessed(ctx context.Context, tempKey uuid.UUID) (bool, error)
	MarkAssociationProcessed(ctx context.Context, id uuid.UUID) (bool, error)
}

// Activator turns an invitation into a household link.
type Activator interface {
	Activate(ctx context.Context, invitationID uuid.UUID, token string, inviteeID uuid.UUID) (domain.Couple, error)
}

// Result is what one run achieved.
type Result struct {
	IdentityID uuid.UUID
	Outcome    domain.Outcome
	// Couple is set when Outcome is HouseholdLinked.
	Couple *domain.Couple
	// Skipped is set when another run for the identity was already in flight.
	Skipped bool
}

// Engine is the reconciliation engine.
type Engine struct {
	identities Identities
	ledger     Ledger
	registry   Activator
	profiles   store.Profiles
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

// New returns an engine.
func New(identities Identities, l Ledger, registry Activator, profiles store.Profiles) *Engine {
	return &Engine{
		identities: identities,
		ledger:     l,
		registry:   registry,
		profiles:   profiles,
		now:        time.Now,
		inFlight:   make(map[uuid.UUID]struct{}),
	}
}

func (e *Engine) acquire(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Engine) release(id uuid.UUID) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}

// Reconcile applies whatever is staged for identityID. It does nothing for
// an unconfirmed identity. On error the unfinished steps stay staged and
// the next call picks them up; the returned Result still reports what was
// achieved before the failure.
func (e *Engine) Reconcile(ctx context.Context, identityID uuid.UUID) (Result, error) {
	res := Result{IdentityID: identityID}
	if !e.acquire(identityID) {
		res.Skipped = true
		return res, nil
	}
	defer e.release(identityID)

	identity, err := e.identities.Lookup(ctx, identityID)
	if err != nil {
		return res, fmt.Errorf("reconcile.Reconcile: lookup: %w", err)
	}
	if !identity.Confirmed() {
		return res, nil
	}

	pending, err := e.ledger.FetchUnprocessed(ctx, identityID, identity.Email, identity.CreatedAt)
	if err != nil {
		return res, fmt.Errorf("reconcile.Reconcile: %w", err)
	}
	if pending.Empty() {
		return res, nil
	}

	// The profile goes first so a household link never names an identity
	// without a profile.
	outcome, err := e.applyProfile(ctx, identity, pending)
	res.Outcome = res.Outcome.Merge(outcome)
	if err != nil {
		return res, fmt.Errorf("reconcile.Reconcile: %w", err)
	}

	outcome, couple, err := e.applyAssociation(ctx, identity, pending)
	res.Outcome = res.Outcome.Merge(outcome)
	res.Couple = couple
	if err != nil {
		return res, fmt.Errorf("reconcile.Reconcile: %w", err)
	}
	if res.Outcome != domain.NoOp {
		log.Printf("[reconcile] %s: %s", identityID, res.Outcome)
	}
	return res, nil
}

func (e *Engine) applyProfile(ctx context.Context, identity domain.Identity, pending ledger.Unprocessed) (domain.Outcome, error) {
	for _, key := range pending.SupersededProfiles {
		if _, err := e.ledger.MarkProfileProcessed(ctx, key); err != nil {
			// Left for the next run; it stays superseded.
			log.Printf("[reconcile] retire profile intent %s: %v", key, err)
		}
	}
	intent := pending.Profile
	if intent == nil {
		return domain.NoOp, nil
	}

	now := e.now().UTC()
	name := intent.DisplayName
	if name == "" {
		name = identity.Metadata[domain.MetadataDisplayName]
	}
	if err := e.profiles.UpsertProfile(ctx, domain.Profile{
		IdentityID:  identity.ID,
		Email:       identity.Email,
		DisplayName: name,
		Attributes:  intent.Attributes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return domain.NoOp, fmt.Errorf("upsert profile: %w", err)
	}
	marked, err := e.ledger.MarkProfileProcessed(ctx, intent.TempKey)
	if err != nil {
		return domain.NoOp, fmt.Errorf("mark profile: %w", err)
	}
	if !marked {
		// A concurrent run got there first.
		return domain.NoOp, nil
	}
	return domain.ProfileCreated, nil
}

func (e *Engine) applyAssociation(ctx context.Context, identity domain.Identity, pending ledger.Unprocessed) (domain.Outcome, *domain.Couple, error) {
	for _, id := range pending.SupersededAssociations {
		if _, err := e.ledger.MarkAssociationProcessed(ctx, id); err != nil {
			log.Printf("[reconcile] retire association %s: %v", id, err)
		}
	}
	assoc := pending.Association
	if assoc == nil {
		return domain.NoOp, nil, nil
	}

	couple, err := e.registry.Activate(ctx, assoc.InvitationID, assoc.Token, identity.ID)
	switch {
	case err == nil:
	case domain.IsStale(err) || errors.Is(err, domain.ErrNotFound):
		// Superseded for good: retire it so it is not retried forever.
		log.Printf("[reconcile] association %s superseded: %v", assoc.ID, err)
		if _, markErr := e.ledger.MarkAssociationProcessed(ctx, assoc.ID); markErr != nil {
			return domain.NoOp, nil, fmt.Errorf("mark association: %w", markErr)
		}
		return domain.AlreadyLinked, nil, nil
	default:
		return domain.NoOp, nil, fmt.Errorf("activate: %w", err)
	}

	if _, err := e.ledger.MarkAssociationProcessed(ctx, assoc.ID); err != nil {
		// The link is written; the next run sees a consumed invitation,
		// retires the row and reports AlreadyLinked.
		return domain.HouseholdLinked, &couple, fmt.Errorf("mark association: %w", err)
	}
	return domain.HouseholdLinked, &couple, nil
}
