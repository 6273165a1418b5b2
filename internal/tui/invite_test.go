package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

func testInvitation(email string) domain.Invitation {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Invitation{
		ID:                uuid.New(),
		InviterIdentityID: uuid.New(),
		InviteeEmail:      email,
		Token:             strings.Repeat("ab", 32),
		Status:            domain.InvitationPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(7 * 24 * time.Hour),
	}
}

func newTestInvite(k *fakeKernel) inviteModel {
	m := newInviteModel(k, uuid.New(), "Ana")
	m.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

// run feeds msg to m and, if a command comes back, its message too.
func run(m inviteModel, msg tea.Msg) inviteModel {
	m, cmd := m.Update(msg)
	if cmd != nil {
		m, _ = m.Update(cmd())
	}
	return m
}

func typeInto(m inviteModel, s string) inviteModel {
	for _, r := range s {
		m, _ = m.Update(key(string(r)))
	}
	return m
}

func TestInvite_Sent(t *testing.T) {
	inv := testInvitation("pat@x.com")
	k := &fakeKernel{inviteInv: inv}
	m := typeInto(newTestInvite(k), "pat@x.com")
	m = run(m, key("enter"))

	if len(k.invites) != 1 || k.invites[0] != "pat@x.com" {
		t.Fatalf("invites = %v", k.invites)
	}
	if m.editing() {
		t.Error("the form should close once the invitation exists")
	}
	v := m.View(0)
	for _, want := range []string{"Invitation sent to pat@x.com", "expires in 7d", "token=" + inv.Token} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestInvite_InvalidEmail(t *testing.T) {
	k := &fakeKernel{}
	m := typeInto(newTestInvite(k), "pat")
	m = run(m, key("enter"))
	if len(k.invites) != 0 {
		t.Error("an invalid email should not reach the kernel")
	}
	if !strings.Contains(m.View(0), "doesn't look right") {
		t.Errorf("expected a validation error:\n%s", m.View(0))
	}
}

func TestInvite_ConflictOffersResend(t *testing.T) {
	inv := testInvitation("pat@x.com")
	k := &fakeKernel{inviteInv: inv, inviteErr: &domain.ConflictError{InviterIdentityID: inv.InviterIdentityID, Existing: &inv}}
	m := typeInto(newTestInvite(k), "someone@x.com")
	m = run(m, key("enter"))

	if !m.conflict {
		t.Fatal("expected the conflict state")
	}
	if !strings.Contains(m.View(0), "You already invited") || !strings.Contains(m.help(), "resend") {
		t.Errorf("expected a resend offer:\n%s\n%s", m.View(0), m.help())
	}

	k.inviteErr = nil
	m = run(m, key("s"))
	if k.resends != 1 {
		t.Fatalf("resends = %d, want 1", k.resends)
	}
	if m.conflict {
		t.Error("a successful resend clears the conflict")
	}
	if !strings.Contains(m.View(0), "Invitation sent") {
		t.Errorf("expected the sent state after resend:\n%s", m.View(0))
	}
}

func TestInvite_ResendOnlyOnConflict(t *testing.T) {
	k := &fakeKernel{inviteInv: testInvitation("pat@x.com")}
	m := typeInto(newTestInvite(k), "pat@x.com")
	m = run(m, key("enter"))
	m = run(m, key("s"))
	if k.resends != 0 {
		t.Error("'s' should do nothing without a conflict")
	}
}

func TestInvite_DeliveryFailureStillShowsLink(t *testing.T) {
	inv := testInvitation("pat@x.com")
	k := &fakeKernel{inviteInv: inv, inviteErr: fmt.Errorf("flow.InvitePartner: %w", errors.New("sendgrid down"))}
	m := typeInto(newTestInvite(k), "pat@x.com")
	m = run(m, key("enter"))
	v := m.View(0)
	if !m.notSent || !strings.Contains(v, "Share the link yourself") {
		t.Errorf("expected the not-sent state:\n%s", v)
	}
	if !strings.Contains(v, inv.Token) {
		t.Errorf("the link should still be shown:\n%s", v)
	}
}

func TestInvite_Failure(t *testing.T) {
	k := &fakeKernel{inviteErr: errors.New("registry.Create: store down")}
	m := typeInto(newTestInvite(k), "pat@x.com")
	m = run(m, key("enter"))
	if !m.editing() {
		t.Error("a failed create should keep the form open")
	}
	if !strings.Contains(m.View(0), "Couldn't create the invitation") {
		t.Errorf("expected an error:\n%s", m.View(0))
	}
}

func TestInvite_AlreadyLinked(t *testing.T) {
	k := &fakeKernel{inviteErr: fmt.Errorf("flow.InvitePartner: registry.Create: %w", domain.ErrAlreadyLinked)}
	m := typeInto(newTestInvite(k), "cy@x.com")
	m = run(m, key("enter"))
	if !strings.Contains(m.View(0), "You already share a household") {
		t.Errorf("expected the household message:\n%s", m.View(0))
	}
}

func TestInvite_CopyLink(t *testing.T) {
	var copied string
	orig := copyToClipboard
	copyToClipboard = func(s string) error { copied = s; return nil }
	defer func() { copyToClipboard = orig }()

	inv := testInvitation("pat@x.com")
	k := &fakeKernel{inviteInv: inv}
	m := typeInto(newTestInvite(k), "pat@x.com")
	m = run(m, key("enter"))
	m = run(m, key("c"))

	if copied != k.InviteURL(inv) {
		t.Errorf("copied %q, want %q", copied, k.InviteURL(inv))
	}
	if !strings.Contains(m.View(0), "Link copied") {
		t.Errorf("expected a copy confirmation:\n%s", m.View(0))
	}
}

func TestInvite_CopyFailure(t *testing.T) {
	orig := copyToClipboard
	copyToClipboard = func(string) error { return errors.New("no clipboard utility") }
	defer func() { copyToClipboard = orig }()

	k := &fakeKernel{inviteInv: testInvitation("pat@x.com")}
	m := typeInto(newTestInvite(k), "pat@x.com")
	m = run(m, key("enter"))
	m = run(m, key("c"))
	if !strings.Contains(m.View(0), "Copy the link by hand") {
		t.Errorf("expected a clipboard error:\n%s", m.View(0))
	}
}

func TestApp_InviteFromHome(t *testing.T) {
	k := &fakeKernel{session: confirmedSession("ana@x.com"), inviteInv: testInvitation("pat@x.com")}
	a := loaded(t, k)
	a = step(t, a, key("i"))
	if a.view != viewInvite {
		t.Fatalf("view = %d, want invite", a.view)
	}
	a = typeText(t, a, "pat@x.com")
	a = step(t, a, key("enter"))
	if len(k.invites) != 1 {
		t.Fatalf("invites = %v", k.invites)
	}
	a = step(t, a, key("esc"))
	if a.view != viewHome {
		t.Errorf("esc should return home, view = %d", a.view)
	}
}

func TestApp_NoInviteWhenLinked(t *testing.T) {
	s := confirmedSession("ana@x.com")
	pat := uuid.New()
	k := &fakeKernel{
		session: s,
		couple:  &domain.Couple{ID: uuid.New(), InviterIdentityID: s.IdentityID, InviteeIdentityID: &pat, Status: domain.CoupleActive},
	}
	a := loaded(t, k)
	a = step(t, a, key("i"))
	if a.view != viewHome {
		t.Error("a linked user has no one left to invite")
	}
}
