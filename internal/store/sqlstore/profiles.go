package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

// UpsertProfile inserts a profile or fills the blanks of an existing one.
func (s *Store) UpsertProfile(ctx context.Context, p domain.Profile) error {
	attrs, err := encodeAttrs(p.Attributes)
	if err != nil {
		return fmt.Errorf("sqlstore.UpsertProfile: %w", err)
	}
	_, err = s.exec(ctx, `
INSERT INTO profiles (identity_id, email, display_name, attributes, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (identity_id) DO UPDATE SET
    display_name = CASE WHEN profiles.display_name = '' THEN excluded.display_name ELSE profiles.display_name END,
    attributes = CASE WHEN profiles.attributes = '{}' THEN excluded.attributes ELSE profiles.attributes END,
    updated_at = excluded.updated_at`,
		p.IdentityID.String(),
		domain.NormalizeEmail(p.Email),
		p.DisplayName,
		attrs,
		toNanos(p.CreatedAt),
		toNanos(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore.UpsertProfile: %w", err)
	}
	return nil
}

// GetProfile loads the profile for an identity.
func (s *Store) GetProfile(ctx context.Context, identityID uuid.UUID) (domain.Profile, error) {
	var (
		p                    domain.Profile
		attrs                string
		createdAt, updatedAt int64
	)
	err := s.queryRow(ctx, `
SELECT identity_id, email, display_name, attributes, created_at, updated_at
FROM profiles WHERE identity_id = ?`, identityID.String()).
		Scan(&p.IdentityID, &p.Email, &p.DisplayName, &attrs, &createdAt, &updatedAt)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("sqlstore.GetProfile: %w", notFound(err))
	}
	if p.Attributes, err = decodeAttrs(attrs); err != nil {
		return domain.Profile{}, fmt.Errorf("sqlstore.GetProfile: %w", err)
	}
	p.CreatedAt = fromNanos(createdAt)
	p.UpdatedAt = fromNanos(updatedAt)
	return p, nil
}
