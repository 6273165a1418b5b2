package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/session"
	"github.com/naveenspark/twofold/pkg/client"
	"github.com/naveenspark/twofold/pkg/domain"
)

// refreshSkew is how early an access token is refreshed before it expires.
const refreshSkew = time.Minute

// Hosted is the identity provider behind the hosted auth API.
type Hosted struct {
	api      *client.Client
	sessions *session.File
	events   Notifier
	now      func() time.Time

	mu      sync.Mutex
	current *domain.Session
	// awaiting holds the credentials of an identity created on this device
	// that could not sign in yet because it is unconfirmed.
	awaiting *credentials
}

type credentials struct {
	id              uuid.UUID
	email, password string
}

// NewHosted returns a provider that keeps its session in sessions.
func NewHosted(api *client.Client, sessions *session.File) *Hosted {
	return &Hosted{api: api, sessions: sessions, now: time.Now}
}

// CreateIdentity signs up a new identity and remembers its credentials so
// Lookup can sign it in once the email is confirmed.
func (h *Hosted) CreateIdentity(ctx context.Context, email, password string, metadata map[string]string) (domain.Identity, error) {
	created, err := h.api.SignUp(ctx, email, password, metadata)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity.CreateIdentity: %w", err)
	}
	h.mu.Lock()
	h.awaiting = &credentials{id: created.ID, email: created.Email, password: password}
	h.mu.Unlock()
	return *created, nil
}

// SignIn starts a session and announces it.
func (h *Hosted) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	s, err := h.api.SignIn(ctx, email, password)
	if err != nil {
		return domain.Session{}, fmt.Errorf("identity.SignIn: %w", signInError(err))
	}
	if err := h.adopt(*s); err != nil {
		return domain.Session{}, fmt.Errorf("identity.SignIn: %w", err)
	}
	return *s, nil
}

// SignOut ends the session locally even when the server call fails.
func (h *Hosted) SignOut(ctx context.Context) error {
	s, _ := h.CurrentSession(ctx) //nolint:errcheck // sign out regardless
	if err := h.api.SignOut(ctx); err != nil && !client.IsStatus(err, http.StatusUnauthorized) {
		log.Printf("[identity] server sign out: %v", err)
	}
	h.api.SetToken("")
	h.mu.Lock()
	h.current = nil
	h.mu.Unlock()
	if err := h.sessions.Clear(); err != nil {
		return fmt.Errorf("identity.SignOut: %w", err)
	}
	ev := domain.AuthEvent{Kind: domain.SignedOut}
	if s != nil {
		ev.Session = *s
	}
	h.events.Publish(ev)
	return nil
}

// CurrentSession loads the stored session, refreshes its token when due and
// re-reads confirmation state while it is still unconfirmed.
func (h *Hosted) CurrentSession(ctx context.Context) (*domain.Session, error) {
	h.mu.Lock()
	s := h.current
	h.mu.Unlock()
	if s == nil {
		loaded, err := h.sessions.Load()
		if err != nil {
			return nil, fmt.Errorf("identity.CurrentSession: %w", err)
		}
		if loaded == nil {
			return nil, nil
		}
		s = loaded
	}

	if h.needsRefresh(*s) {
		refreshed, err := h.api.Refresh(ctx, s.RefreshToken)
		if err != nil {
			if client.IsStatus(err, http.StatusBadRequest) || client.IsStatus(err, http.StatusUnauthorized) {
				// The refresh token is dead; the user has to sign in again.
				_ = h.sessions.Clear() //nolint:errcheck // best effort
				h.mu.Lock()
				h.current = nil
				h.mu.Unlock()
				return nil, nil
			}
			return nil, fmt.Errorf("identity.CurrentSession: %w", err)
		}
		s = refreshed
		if err := h.sessions.Save(*s); err != nil {
			return nil, fmt.Errorf("identity.CurrentSession: %w", err)
		}
	}
	h.api.SetToken(s.AccessToken)

	wasConfirmed := s.Confirmed()
	if !wasConfirmed {
		user, err := h.api.GetUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("identity.CurrentSession: %w", err)
		}
		s.ConfirmedAt = user.ConfirmedAt
		s.Metadata = user.Metadata
		if err := h.sessions.Save(*s); err != nil {
			return nil, fmt.Errorf("identity.CurrentSession: %w", err)
		}
	}

	h.mu.Lock()
	h.current = s
	h.mu.Unlock()
	if !wasConfirmed && s.Confirmed() {
		h.events.Publish(domain.AuthEvent{Kind: domain.SignedIn, Session: *s})
	}
	out := *s
	return &out, nil
}

// Lookup returns the identity with the given ID. The hosted API only
// exposes the caller's own identity, so this answers for the signed-in
// identity or for one created on this device and still awaiting
// confirmation, which it signs in as soon as the email is confirmed.
func (h *Hosted) Lookup(ctx context.Context, id uuid.UUID) (domain.Identity, error) {
	h.mu.Lock()
	current, awaiting := h.current, h.awaiting
	h.mu.Unlock()

	if current != nil && current.IdentityID == id {
		user, err := h.api.GetUser(ctx)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("identity.Lookup: %w", err)
		}
		return *user, nil
	}
	if awaiting == nil || awaiting.id != id {
		return domain.Identity{}, fmt.Errorf("identity.Lookup: %w", domain.ErrNotFound)
	}

	s, err := h.api.SignIn(ctx, awaiting.email, awaiting.password)
	if err != nil {
		err = signInError(err)
		if errors.Is(err, ErrNotConfirmed) {
			return domain.Identity{ID: id, Email: awaiting.email}, nil
		}
		return domain.Identity{}, fmt.Errorf("identity.Lookup: %w", err)
	}
	h.mu.Lock()
	h.awaiting = nil
	h.mu.Unlock()
	if err := h.adopt(*s); err != nil {
		return domain.Identity{}, fmt.Errorf("identity.Lookup: %w", err)
	}
	return domain.Identity{ID: s.IdentityID, Email: s.Email, ConfirmedAt: s.ConfirmedAt, Metadata: s.Metadata}, nil
}

// Subscribe listens for sign-in and sign-out events.
func (h *Hosted) Subscribe() (<-chan domain.AuthEvent, func()) {
	return h.events.Subscribe()
}

func (h *Hosted) adopt(s domain.Session) error {
	if err := h.sessions.Save(s); err != nil {
		return err
	}
	h.mu.Lock()
	h.current = &s
	h.mu.Unlock()
	h.events.Publish(domain.AuthEvent{Kind: domain.SignedIn, Session: s})
	return nil
}

func (h *Hosted) needsRefresh(s domain.Session) bool {
	if s.RefreshToken == "" {
		return false
	}
	if claims, err := client.ParseAccessToken(s.AccessToken); err == nil {
		return claims.NeedsRefresh(h.now(), refreshSkew)
	}
	return !s.ExpiresAt.IsZero() && !h.now().Add(refreshSkew).Before(s.ExpiresAt)
}

func signInError(err error) error {
	var httpErr *client.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	switch {
	case httpErr.Code == "email_not_confirmed" ||
		strings.Contains(strings.ToLower(httpErr.Message), "not confirmed"):
		return fmt.Errorf("%w: %w", ErrNotConfirmed, err)
	case httpErr.Code == "invalid_credentials" || httpErr.Code == "invalid_grant" ||
		httpErr.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return err
}
