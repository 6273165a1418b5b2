package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

// authUser is the user object returned by the auth API.
type authUser struct {
	ID               uuid.UUID         `json:"id"`
	Email            string            `json:"email"`
	EmailConfirmedAt *time.Time        `json:"email_confirmed_at,omitempty"`
	ConfirmedAt      *time.Time        `json:"confirmed_at,omitempty"`
	UserMetadata     map[string]any    `json:"user_metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

func (u authUser) toIdentity() domain.Identity {
	confirmed := u.EmailConfirmedAt
	if confirmed == nil {
		confirmed = u.ConfirmedAt
	}
	var meta map[string]string
	for k, v := range u.UserMetadata {
		if s, ok := v.(string); ok {
			if meta == nil {
				meta = make(map[string]string, len(u.UserMetadata))
			}
			meta[k] = s
		}
	}
	return domain.Identity{
		ID:          u.ID,
		Email:       domain.NormalizeEmail(u.Email),
		ConfirmedAt: confirmed,
		Metadata:    meta,
		CreatedAt:   u.CreatedAt,
	}
}

// tokenResponse is returned by the token endpoint.
type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	User         authUser `json:"user"`
}

func (t tokenResponse) toSession(now time.Time) domain.Session {
	identity := t.User.toIdentity()
	return domain.Session{
		IdentityID:   identity.ID,
		Email:        identity.Email,
		ConfirmedAt:  identity.ConfirmedAt,
		Metadata:     identity.Metadata,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(t.ExpiresIn) * time.Second),
	}
}

// SignUp registers a new identity. The identity stays unconfirmed until the
// user follows the confirmation email. Returns an error wrapping
// domain.ErrDuplicateIdentity when the email is taken.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Identity, error) {
	req := map[string]any{
		"email":    domain.NormalizeEmail(email),
		"password": password,
		"data":     metadata,
	}
	var u authUser
	if err := c.post(ctx, "/auth/v1/signup", req, &u); err != nil {
		return nil, fmt.Errorf("client.SignUp: %w", err)
	}
	identity := u.toIdentity()
	return &identity, nil
}

// SignIn exchanges email and password for a session and starts using its
// access token.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	req := map[string]string{"email": domain.NormalizeEmail(email), "password": password}
	var tok tokenResponse
	if err := c.post(ctx, "/auth/v1/token?grant_type=password", req, &tok); err != nil {
		return nil, fmt.Errorf("client.SignIn: %w", err)
	}
	s := tok.toSession(time.Now().UTC())
	c.SetToken(s.AccessToken)
	return &s, nil
}

// Refresh trades a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	var tok tokenResponse
	if err := c.post(ctx, "/auth/v1/token?grant_type=refresh_token", map[string]string{"refresh_token": refreshToken}, &tok); err != nil {
		return nil, fmt.Errorf("client.Refresh: %w", err)
	}
	s := tok.toSession(time.Now().UTC())
	c.SetToken(s.AccessToken)
	return &s, nil
}

// GetUser returns the identity behind the current access token, including
// its confirmation state.
func (c *Client) GetUser(ctx context.Context) (*domain.Identity, error) {
	var u authUser
	if err := c.get(ctx, "/auth/v1/user", &u); err != nil {
		return nil, fmt.Errorf("client.GetUser: %w", err)
	}
	identity := u.toIdentity()
	return &identity, nil
}

// SignOut revokes the current session server side.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.post(ctx, "/auth/v1/logout", nil, nil); err != nil {
		return fmt.Errorf("client.SignOut: %w", err)
	}
	c.SetToken("")
	return nil
}
