package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

const invitationColumns = `id, inviter_identity_id, invitee_email, token, status,
    invitee_identity_id, created_at, expires_at, updated_at`

// InsertInvitation persists a new invitation.
func (s *Store) InsertInvitation(ctx context.Context, inv domain.Invitation) error {
	_, err := s.exec(ctx, `
INSERT INTO invitations (`+invitationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(),
		inv.InviterIdentityID.String(),
		domain.NormalizeEmail(inv.InviteeEmail),
		inv.Token,
		string(inv.Status),
		nullableUUID(inv.InviteeIdentityID),
		toNanos(inv.CreatedAt),
		toNanos(inv.ExpiresAt),
		toNanos(inv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore.InsertInvitation: %w", err)
	}
	return nil
}

// GetInvitation loads an invitation by ID.
func (s *Store) GetInvitation(ctx context.Context, id uuid.UUID) (domain.Invitation, error) {
	row := s.queryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id.String())
	inv, err := scanInvitation(row.Scan)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("sqlstore.GetInvitation: %w", notFound(err))
	}
	return inv, nil
}

// InvitationByToken loads the single invitation carrying token.
func (s *Store) InvitationByToken(ctx context.Context, token string) (domain.Invitation, error) {
	row := s.queryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = ?`, token)
	inv, err := scanInvitation(row.Scan)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("sqlstore.InvitationByToken: %w", notFound(err))
	}
	return inv, nil
}

// PendingInvitationsByInviter lists the inviter's pending invitations, newest first.
func (s *Store) PendingInvitationsByInviter(ctx context.Context, inviterID uuid.UUID) ([]domain.Invitation, error) {
	rows, err := s.query(ctx, `
SELECT `+invitationColumns+`
FROM invitations
WHERE inviter_identity_id = ? AND status = ?
ORDER BY created_at DESC`, inviterID.String(), string(domain.InvitationPending))
	if err != nil {
		return nil, fmt.Errorf("sqlstore.PendingInvitationsByInviter: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlstore.PendingInvitationsByInviter: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore.PendingInvitationsByInviter: %w", err)
	}
	return out, nil
}

// TransitionInvitation applies a conditional status move.
func (s *Store) TransitionInvitation(ctx context.Context, t domain.InvitationTransition) (bool, error) {
	if !domain.CanTransition(t.From, t.To) {
		return false, fmt.Errorf("sqlstore.TransitionInvitation: illegal transition %s -> %s", t.From, t.To)
	}
	query := `
UPDATE invitations
SET status = ?, invitee_identity_id = COALESCE(?, invitee_identity_id), updated_at = ?
WHERE id = ? AND status = ?`
	args := []any{string(t.To), nullableUUID(t.InviteeIdentityID), toNanos(t.At), t.ID.String(), string(t.From)}
	if t.Token != "" {
		query += ` AND token = ?`
		args = append(args, t.Token)
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlstore.TransitionInvitation: %w", err)
	}
	ok, err := changed(res)
	if err != nil {
		return false, fmt.Errorf("sqlstore.TransitionInvitation: %w", err)
	}
	return ok, nil
}

func scanInvitation(scan func(dest ...any) error) (domain.Invitation, error) {
	var (
		inv                             domain.Invitation
		status                          string
		invitee                         uuid.NullUUID
		createdAt, expiresAt, updatedAt int64
	)
	if err := scan(
		&inv.ID,
		&inv.InviterIdentityID,
		&inv.InviteeEmail,
		&inv.Token,
		&status,
		&invitee,
		&createdAt,
		&expiresAt,
		&updatedAt,
	); err != nil {
		return domain.Invitation{}, err
	}
	parsed, ok := domain.ParseInvitationStatus(status)
	if !ok {
		return domain.Invitation{}, fmt.Errorf("unknown invitation status %q", status)
	}
	inv.Status = parsed
	inv.InviteeIdentityID = uuidPtr(invitee)
	inv.CreatedAt = fromNanos(createdAt)
	inv.ExpiresAt = fromNanos(expiresAt)
	inv.UpdatedAt = fromNanos(updatedAt)
	return inv, nil
}

