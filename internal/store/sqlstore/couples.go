package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

const coupleColumns = `id, inviter_identity_id, invitee_identity_id, status, created_at, updated_at`

// UpsertCouple writes a household link keyed by ID. The update branch only
// fires while the stored link is still pending or already names the same
// invitee, so an active link is never re-pointed.
func (s *Store) UpsertCouple(ctx context.Context, c domain.Couple) error {
	_, err := s.exec(ctx, `
INSERT INTO couples (`+coupleColumns+`)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    invitee_identity_id = COALESCE(excluded.invitee_identity_id, couples.invitee_identity_id),
    status = excluded.status,
    updated_at = excluded.updated_at
WHERE couples.status = 'pending' OR couples.invitee_identity_id = excluded.invitee_identity_id`,
		c.ID.String(),
		c.InviterIdentityID.String(),
		nullableUUID(c.InviteeIdentityID),
		string(c.Status),
		toNanos(c.CreatedAt),
		toNanos(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore.UpsertCouple: %w", err)
	}
	return nil
}

// GetCouple loads a household link by ID.
func (s *Store) GetCouple(ctx context.Context, id uuid.UUID) (domain.Couple, error) {
	row := s.queryRow(ctx, `SELECT `+coupleColumns+` FROM couples WHERE id = ?`, id.String())
	c, err := scanCouple(row.Scan)
	if err != nil {
		return domain.Couple{}, fmt.Errorf("sqlstore.GetCouple: %w", notFound(err))
	}
	return c, nil
}

// ActiveCoupleFor returns the active link holding identityID in either slot.
func (s *Store) ActiveCoupleFor(ctx context.Context, identityID uuid.UUID) (domain.Couple, error) {
	row := s.queryRow(ctx, `
SELECT `+coupleColumns+`
FROM couples
WHERE status = 'active' AND (invitee_identity_id = ? OR inviter_identity_id = ?)
ORDER BY updated_at DESC
LIMIT 1`, identityID.String(), identityID.String())
	c, err := scanCouple(row.Scan)
	if err != nil {
		return domain.Couple{}, fmt.Errorf("sqlstore.ActiveCoupleFor: %w", notFound(err))
	}
	return c, nil
}

func scanCouple(scan func(dest ...any) error) (domain.Couple, error) {
	var (
		c                    domain.Couple
		invitee              uuid.NullUUID
		status               string
		createdAt, updatedAt int64
	)
	if err := scan(&c.ID, &c.InviterIdentityID, &invitee, &status, &createdAt, &updatedAt); err != nil {
		return domain.Couple{}, err
	}
	c.InviteeIdentityID = uuidPtr(invitee)
	c.Status = domain.CoupleStatus(status)
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	return c, nil
}
