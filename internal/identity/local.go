package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/naveenspark/twofold/internal/session"
	"github.com/naveenspark/twofold/internal/store"
	"github.com/naveenspark/twofold/pkg/domain"
)

// Local is a self-hosted identity provider for the sqlite and postgres
// backends. Confirmation is explicit: ConfirmEmail stands in for the link
// a hosted provider would email.
type Local struct {
	identities store.Identities
	sessions   *session.File
	events     Notifier
	now        func() time.Time
	cost       int
}

// NewLocal returns a provider over the identities table.
func NewLocal(identities store.Identities, sessions *session.File) *Local {
	return &Local{
		identities: identities,
		sessions:   sessions,
		now:        time.Now,
		cost:       bcrypt.DefaultCost,
	}
}

// CreateIdentity registers an unconfirmed identity.
func (l *Local) CreateIdentity(ctx context.Context, email, password string, metadata map[string]string) (domain.Identity, error) {
	email = domain.NormalizeEmail(email)
	if !domain.ValidEmail(email) {
		return domain.Identity{}, fmt.Errorf("identity.CreateIdentity: invalid email %q", email)
	}
	if strings.TrimSpace(password) == "" {
		return domain.Identity{}, fmt.Errorf("identity.CreateIdentity: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity.CreateIdentity: hash password: %w", err)
	}
	created := domain.Identity{
		ID:        uuid.New(),
		Email:     email,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.identities.InsertIdentity(ctx, created, string(hash)); err != nil {
		if errors.Is(err, domain.ErrUniqueViolation) {
			return domain.Identity{}, fmt.Errorf("identity.CreateIdentity: %w", domain.ErrDuplicateIdentity)
		}
		return domain.Identity{}, fmt.Errorf("identity.CreateIdentity: %w", err)
	}
	log.Printf("[identity] created %s", created.ID)
	return created, nil
}

// SignIn checks the password and starts a session. Unconfirmed identities
// may sign in; the session reports them as unconfirmed.
func (l *Local) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	found, hash, err := l.identities.IdentityByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Session{}, fmt.Errorf("identity.SignIn: %w", ErrInvalidCredentials)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("identity.SignIn: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return domain.Session{}, fmt.Errorf("identity.SignIn: %w", ErrInvalidCredentials)
	}
	s := sessionFor(found)
	if err := l.sessions.Save(s); err != nil {
		return domain.Session{}, fmt.Errorf("identity.SignIn: %w", err)
	}
	l.events.Publish(domain.AuthEvent{Kind: domain.SignedIn, Session: s})
	return s, nil
}

// SignOut forgets the stored session.
func (l *Local) SignOut(_ context.Context) error {
	s, _ := l.sessions.Load() //nolint:errcheck // sign out regardless
	if err := l.sessions.Clear(); err != nil {
		return fmt.Errorf("identity.SignOut: %w", err)
	}
	ev := domain.AuthEvent{Kind: domain.SignedOut}
	if s != nil {
		ev.Session = *s
	}
	l.events.Publish(ev)
	return nil
}

// CurrentSession returns the stored session with confirmation state read
// fresh from the table.
func (l *Local) CurrentSession(ctx context.Context) (*domain.Session, error) {
	s, err := l.sessions.Load()
	if err != nil || s == nil {
		return nil, err
	}
	found, err := l.identities.GetIdentity(ctx, s.IdentityID)
	if errors.Is(err, domain.ErrNotFound) {
		_ = l.sessions.Clear() //nolint:errcheck // stale session
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity.CurrentSession: %w", err)
	}
	wasConfirmed := s.Confirmed()
	fresh := sessionFor(found)
	if !wasConfirmed && fresh.Confirmed() {
		if err := l.sessions.Save(fresh); err != nil {
			return nil, fmt.Errorf("identity.CurrentSession: %w", err)
		}
		l.events.Publish(domain.AuthEvent{Kind: domain.SignedIn, Session: fresh})
	}
	return &fresh, nil
}

// Lookup loads an identity by ID.
func (l *Local) Lookup(ctx context.Context, id uuid.UUID) (domain.Identity, error) {
	found, err := l.identities.GetIdentity(ctx, id)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity.Lookup: %w", err)
	}
	return found, nil
}

// ConfirmEmail marks the identity registered under email as confirmed.
// Confirming twice is a no-op. When the confirmed identity is the one
// signed in here, a SignedIn event carries the new confirmation state.
func (l *Local) ConfirmEmail(ctx context.Context, email string) (domain.Identity, error) {
	changed, err := l.identities.ConfirmIdentity(ctx, email, l.now().UTC())
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity.ConfirmEmail: %w", err)
	}
	found, _, err := l.identities.IdentityByEmail(ctx, email)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity.ConfirmEmail: %w", err)
	}
	if !changed {
		return found, nil
	}
	if s, err := l.sessions.Load(); err == nil && s != nil && s.IdentityID == found.ID {
		fresh := sessionFor(found)
		if err := l.sessions.Save(fresh); err != nil {
			return domain.Identity{}, fmt.Errorf("identity.ConfirmEmail: %w", err)
		}
		l.events.Publish(domain.AuthEvent{Kind: domain.SignedIn, Session: fresh})
	}
	return found, nil
}

// Subscribe listens for sign-in and sign-out events.
func (l *Local) Subscribe() (<-chan domain.AuthEvent, func()) {
	return l.events.Subscribe()
}

func sessionFor(i domain.Identity) domain.Session {
	return domain.Session{
		IdentityID:  i.ID,
		Email:       i.Email,
		ConfirmedAt: i.ConfirmedAt,
		Metadata:    i.Metadata,
	}
}
