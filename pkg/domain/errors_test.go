package domain

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestIsStaleThroughWrapping(t *testing.T) {
	err := fmt.Errorf("registry.Activate: %w", &StaleInvitationError{InvitationID: uuid.New(), Reason: StaleNotPending})
	if !IsStale(err) {
		t.Error("IsStale should see through fmt.Errorf wrapping")
	}
	if IsConflict(err) {
		t.Error("stale error must not be reported as conflict")
	}
}

func TestIsConflictThroughWrapping(t *testing.T) {
	err := fmt.Errorf("flow.InvitePartner: %w", &ConflictError{InviterIdentityID: uuid.New()})
	if !IsConflict(err) {
		t.Error("IsConflict should see through fmt.Errorf wrapping")
	}
	if IsStale(err) {
		t.Error("conflict error must not be reported as stale")
	}
}
