package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/twofold/internal/flow"
	"github.com/naveenspark/twofold/internal/reconcile"
	"github.com/naveenspark/twofold/pkg/domain"
)

// fillAccept types a full accept form and submits it through the app.
func fillAccept(t *testing.T, a App, link, email string) App {
	t.Helper()
	m, _ := a.Update(pasteMsg(link))
	a = m.(App)
	a = step(t, a, key("enter"))
	a = typeText(t, a, email)
	a = step(t, a, key("enter"))
	a = typeText(t, a, "pw")
	a = step(t, a, key("enter"))
	a = typeText(t, a, "Pat")
	return step(t, a, key("enter"))
}

func TestApp_AcceptFromSignIn(t *testing.T) {
	inv := testInvitation("pat@x.com")
	k := &fakeKernel{waitResult: pendingLinked()}
	a := loaded(t, k)
	a = step(t, a, key("ctrl+l"))
	if a.view != viewAccept {
		t.Fatalf("view = %d, want accept", a.view)
	}

	a = fillAccept(t, a, k.InviteURL(inv), "pat@x.com")
	if len(k.accepts) != 1 {
		t.Fatalf("accepts = %d, want 1", len(k.accepts))
	}
	req := k.accepts[0]
	if req.Link != domain.LinkFor(inv) || req.Email != "pat@x.com" || req.Password != "pw" || req.DisplayName != "Pat" {
		t.Errorf("request = %+v", req)
	}
	if !a.waiting || !a.accept.waiting {
		t.Fatal("expected to wait for confirmation")
	}
	if !strings.Contains(a.View(), "confirmation email") {
		t.Errorf("expected the waiting screen:\n%s", a.View())
	}

	// esc is ignored while waiting
	a = step(t, a, key("esc"))
	if a.view != viewAccept {
		t.Error("esc should not abandon a pending confirmation")
	}

	a = step(t, a, confirmedMsg{result: k.waitResult, email: "pat@x.com", password: "pw"})
	if len(k.signIns) != 1 || k.signIns[0] != "pat@x.com" {
		t.Errorf("signIns = %v", k.signIns)
	}
	if !strings.Contains(a.status, "You're linked") {
		t.Errorf("status = %q", a.status)
	}
}

func pendingLinked() reconcile.Result {
	return reconcile.Result{Outcome: domain.HouseholdLinked}
}

func pasteMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s), Paste: true}
}

func TestApp_AcceptRejections(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid invitation", flow.ErrInvitationInvalid, "invalid or has expired"},
		{"email mismatch", flow.ErrEmailMismatch, "the invitation was sent to"},
		{"duplicate identity", fmt.Errorf("flow.AcceptInvitation: %w", domain.ErrDuplicateIdentity), "already has an account"},
		{"anything else", errors.New("ledger.StageProfile: disk full"), "Something went wrong"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k := &fakeKernel{acceptErr: tc.err}
			a := loaded(t, k)
			a = step(t, a, key("ctrl+l"))
			a = fillAccept(t, a, k.InviteURL(testInvitation("pat@x.com")), "pat@x.com")
			if a.waiting {
				t.Error("a rejected accept should not wait")
			}
			v := a.View()
			if !strings.Contains(v, tc.want) {
				t.Errorf("expected %q in:\n%s", tc.want, v)
			}
			if strings.Contains(v, "disk full") {
				t.Errorf("internal failures should not be shown:\n%s", v)
			}
		})
	}
}

func TestApp_AcceptBadLink(t *testing.T) {
	k := &fakeKernel{}
	a := loaded(t, k)
	a = step(t, a, key("ctrl+l"))
	a = fillAccept(t, a, "https://twofold.app/accept?token=abc", "pat@x.com")
	if len(k.accepts) != 0 {
		t.Error("a malformed link should not reach the kernel")
	}
	if !strings.Contains(a.View(), "doesn't look like an invitation link") {
		t.Errorf("expected a link error:\n%s", a.View())
	}
	if a.accept.form.focus != acceptLink {
		t.Errorf("focus = %d, want the link field", a.accept.form.focus)
	}
}

func TestApp_AcceptEscReturnsToSignIn(t *testing.T) {
	a := loaded(t, &fakeKernel{})
	a = step(t, a, key("ctrl+l"))
	a = typeText(t, a, "half a link")
	a = step(t, a, key("esc"))
	if a.view != viewSignIn {
		t.Errorf("view = %d, want sign-in", a.view)
	}
	if a.accept.form.raw(acceptLink) != "" {
		t.Error("leaving the accept view should reset it")
	}
}
