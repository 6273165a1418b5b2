package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

// InsertIdentity registers a self-hosted identity.
func (s *Store) InsertIdentity(ctx context.Context, identity domain.Identity, passwordHash string) error {
	meta, err := json.Marshal(identity.Metadata)
	if err != nil {
		return fmt.Errorf("sqlstore.InsertIdentity: encode metadata: %w", err)
	}
	if identity.Metadata == nil {
		meta = []byte("{}")
	}
	_, err = s.exec(ctx, `
INSERT INTO identities (id, email, password_hash, metadata, confirmed_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		identity.ID.String(),
		domain.NormalizeEmail(identity.Email),
		passwordHash,
		string(meta),
		nullableNanos(identity.ConfirmedAt),
		toNanos(identity.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore.InsertIdentity: %w", err)
	}
	return nil
}

// GetIdentity loads an identity by ID.
func (s *Store) GetIdentity(ctx context.Context, id uuid.UUID) (domain.Identity, error) {
	identity, _, err := s.scanIdentity(s.queryRow(ctx, `
SELECT id, email, password_hash, metadata, confirmed_at, created_at
FROM identities WHERE id = ?`, id.String()))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("sqlstore.GetIdentity: %w", notFound(err))
	}
	return identity, nil
}

// IdentityByEmail loads an identity and its password hash by normalized email.
func (s *Store) IdentityByEmail(ctx context.Context, email string) (domain.Identity, string, error) {
	identity, hash, err := s.scanIdentity(s.queryRow(ctx, `
SELECT id, email, password_hash, metadata, confirmed_at, created_at
FROM identities WHERE email = ?`, domain.NormalizeEmail(email)))
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("sqlstore.IdentityByEmail: %w", notFound(err))
	}
	return identity, hash, nil
}

// ConfirmIdentity stamps the confirmation time once.
func (s *Store) ConfirmIdentity(ctx context.Context, email string, at time.Time) (bool, error) {
	res, err := s.exec(ctx, `
UPDATE identities SET confirmed_at = ?
WHERE email = ? AND confirmed_at IS NULL`, toNanos(at), domain.NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("sqlstore.ConfirmIdentity: %w", err)
	}
	return changed(res)
}

func (s *Store) scanIdentity(row *sql.Row) (domain.Identity, string, error) {
	var (
		identity    domain.Identity
		hash, meta  string
		confirmedAt sql.NullInt64
		createdAt   int64
	)
	if err := row.Scan(&identity.ID, &identity.Email, &hash, &meta, &confirmedAt, &createdAt); err != nil {
		return domain.Identity{}, "", err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &identity.Metadata); err != nil {
			return domain.Identity{}, "", fmt.Errorf("decode metadata: %w", err)
		}
	}
	identity.ConfirmedAt = timePtr(confirmedAt)
	identity.CreatedAt = fromNanos(createdAt)
	return identity, hash, nil
}
