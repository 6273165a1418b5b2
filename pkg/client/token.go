package client

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims are the fields of an access token the client reads locally.
type AccessClaims struct {
	Subject   uuid.UUID
	Email     string
	ExpiresAt time.Time
}

type accessTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// ParseAccessToken decodes an access token without verifying its signature.
// The server verifies every request; locally the claims only decide whether
// a refresh is due before the next call.
func ParseAccessToken(token string) (AccessClaims, error) {
	var claims accessTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return AccessClaims{}, fmt.Errorf("client.ParseAccessToken: %w", err)
	}
	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("client.ParseAccessToken: subject: %w", err)
	}
	out := AccessClaims{Subject: sub, Email: claims.Email}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// NeedsRefresh reports whether the token expires within skew of now.
func (a AccessClaims) NeedsRefresh(now time.Time, skew time.Duration) bool {
	return a.ExpiresAt.IsZero() || !now.Add(skew).Before(a.ExpiresAt)
}
