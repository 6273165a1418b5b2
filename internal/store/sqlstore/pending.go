package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

const pendingProfileColumns = `temp_key, identity_id, email, display_name, attributes, processed, created_at`

const pendingAssociationColumns = `id, identity_id, email, invitation_id, token, processed, created_at`

// InsertPendingProfile stages a profile intent.
func (s *Store) InsertPendingProfile(ctx context.Context, p domain.PendingProfileIntent) error {
	attrs, err := encodeAttrs(p.Attributes)
	if err != nil {
		return fmt.Errorf("sqlstore.InsertPendingProfile: %w", err)
	}
	_, err = s.exec(ctx, `
INSERT INTO pending_profiles (`+pendingProfileColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.TempKey.String(),
		nullableUUID(p.IdentityID),
		domain.NormalizeEmail(p.Email),
		p.DisplayName,
		attrs,
		p.Processed,
		toNanos(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore.InsertPendingProfile: %w", err)
	}
	return nil
}

// BindPendingProfile attaches the real identity to a staged intent.
func (s *Store) BindPendingProfile(ctx context.Context, tempKey, identityID uuid.UUID) (bool, error) {
	res, err := s.exec(ctx, `
UPDATE pending_profiles SET identity_id = ?
WHERE temp_key = ? AND (identity_id IS NULL OR identity_id = ?)`,
		identityID.String(), tempKey.String(), identityID.String())
	if err != nil {
		return false, fmt.Errorf("sqlstore.BindPendingProfile: %w", err)
	}
	return changed(res)
}

// UnprocessedProfiles returns unprocessed intents for the identity, newest
// first. Unbound intents count only when staged by stagedBy; anything staged
// later under the same email belongs to a failed signup, not this identity.
func (s *Store) UnprocessedProfiles(ctx context.Context, identityID uuid.UUID, email string, stagedBy time.Time) ([]domain.PendingProfileIntent, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if stagedBy.IsZero() {
		rows, err = s.query(ctx, `
SELECT `+pendingProfileColumns+`
FROM pending_profiles
WHERE processed = FALSE AND identity_id = ?
ORDER BY created_at DESC`, identityID.String())
	} else {
		rows, err = s.query(ctx, `
SELECT `+pendingProfileColumns+`
FROM pending_profiles
WHERE processed = FALSE
  AND (identity_id = ? OR (identity_id IS NULL AND email = ? AND created_at <= ?))
ORDER BY created_at DESC`, identityID.String(), domain.NormalizeEmail(email), toNanos(stagedBy))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore.UnprocessedProfiles: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.PendingProfileIntent
	for rows.Next() {
		var (
			p         domain.PendingProfileIntent
			identity  uuid.NullUUID
			attrs     string
			createdAt int64
		)
		if err := rows.Scan(&p.TempKey, &identity, &p.Email, &p.DisplayName, &attrs, &p.Processed, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlstore.UnprocessedProfiles: %w", err)
		}
		if p.Attributes, err = decodeAttrs(attrs); err != nil {
			return nil, fmt.Errorf("sqlstore.UnprocessedProfiles: %w", err)
		}
		p.IdentityID = uuidPtr(identity)
		p.CreatedAt = fromNanos(createdAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore.UnprocessedProfiles: %w", err)
	}
	return out, nil
}

// MarkPendingProfileProcessed flips processed false -> true.
func (s *Store) MarkPendingProfileProcessed(ctx context.Context, tempKey uuid.UUID) (bool, error) {
	res, err := s.exec(ctx, `
UPDATE pending_profiles SET processed = TRUE
WHERE temp_key = ? AND processed = FALSE`, tempKey.String())
	if err != nil {
		return false, fmt.Errorf("sqlstore.MarkPendingProfileProcessed: %w", err)
	}
	return changed(res)
}

// InsertPendingAssociation stages a couple association.
func (s *Store) InsertPendingAssociation(ctx context.Context, a domain.PendingCoupleAssociation) error {
	_, err := s.exec(ctx, `
INSERT INTO pending_couple_associations (`+pendingAssociationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(),
		a.IdentityID.String(),
		domain.NormalizeEmail(a.Email),
		a.InvitationID.String(),
		a.Token,
		a.Processed,
		toNanos(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore.InsertPendingAssociation: %w", err)
	}
	return nil
}

// UnprocessedAssociations returns unprocessed associations, newest first.
func (s *Store) UnprocessedAssociations(ctx context.Context, identityID uuid.UUID) ([]domain.PendingCoupleAssociation, error) {
	rows, err := s.query(ctx, `
SELECT `+pendingAssociationColumns+`
FROM pending_couple_associations
WHERE identity_id = ? AND processed = FALSE
ORDER BY created_at DESC`, identityID.String())
	if err != nil {
		return nil, fmt.Errorf("sqlstore.UnprocessedAssociations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.PendingCoupleAssociation
	for rows.Next() {
		var (
			a         domain.PendingCoupleAssociation
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.IdentityID, &a.Email, &a.InvitationID, &a.Token, &a.Processed, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlstore.UnprocessedAssociations: %w", err)
		}
		a.CreatedAt = fromNanos(createdAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore.UnprocessedAssociations: %w", err)
	}
	return out, nil
}

// MarkPendingAssociationProcessed flips processed false -> true.
func (s *Store) MarkPendingAssociationProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.exec(ctx, `
UPDATE pending_couple_associations SET processed = TRUE
WHERE id = ? AND processed = FALSE`, id.String())
	if err != nil {
		return false, fmt.Errorf("sqlstore.MarkPendingAssociationProcessed: %w", err)
	}
	return changed(res)
}
