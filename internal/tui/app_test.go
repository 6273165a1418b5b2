package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/flow"
	"github.com/naveenspark/twofold/internal/identity"
	"github.com/naveenspark/twofold/internal/reconcile"
	"github.com/naveenspark/twofold/pkg/domain"
)

// fakeKernel records calls and returns canned results.
type fakeKernel struct {
	mu sync.Mutex

	session  *domain.Session
	profiles map[uuid.UUID]*domain.Profile
	couple   *domain.Couple

	signInErr  error
	signUpErr  error
	acceptErr  error
	inviteInv  domain.Invitation
	inviteErr  error
	resendErr  error
	waitResult reconcile.Result
	waitErr    error
	result     reconcile.Result
	resultErr  error

	signIns    []string
	signUps    []flow.SignUpRequest
	accepts    []flow.AcceptRequest
	invites    []string
	resends    int
	reconciles int
	signOuts   int
}

func (k *fakeKernel) CurrentSession(context.Context) (*domain.Session, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.session, nil
}

func (k *fakeKernel) SignIn(_ context.Context, email, _ string) (domain.Session, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signIns = append(k.signIns, email)
	if k.signInErr != nil {
		return domain.Session{}, k.signInErr
	}
	now := time.Now()
	k.session = &domain.Session{IdentityID: uuid.New(), Email: email, ConfirmedAt: &now}
	return *k.session, nil
}

func (k *fakeKernel) SignOut(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signOuts++
	k.session = nil
	return nil
}

func (k *fakeKernel) Profile(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.profiles[id], nil
}

func (k *fakeKernel) Household(context.Context, uuid.UUID) (*domain.Couple, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.couple, nil
}

func (k *fakeKernel) InvitePartner(_ context.Context, _ uuid.UUID, _, email string) (domain.Invitation, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.invites = append(k.invites, email)
	return k.inviteInv, k.inviteErr
}

func (k *fakeKernel) Resend(context.Context, uuid.UUID, string) (domain.Invitation, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.resends++
	return k.inviteInv, k.resendErr
}

func (k *fakeKernel) InviteURL(inv domain.Invitation) string {
	return domain.LinkFor(inv).URL("https://twofold.app")
}

func (k *fakeKernel) AcceptInvitation(_ context.Context, req flow.AcceptRequest) (domain.Identity, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.accepts = append(k.accepts, req)
	if k.acceptErr != nil {
		return domain.Identity{}, k.acceptErr
	}
	return domain.Identity{ID: uuid.New(), Email: req.Email}, nil
}

func (k *fakeKernel) SignUp(_ context.Context, req flow.SignUpRequest) (domain.Identity, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signUps = append(k.signUps, req)
	if k.signUpErr != nil {
		return domain.Identity{}, k.signUpErr
	}
	return domain.Identity{ID: uuid.New(), Email: req.Email}, nil
}

func (k *fakeKernel) WaitForConfirmation(context.Context, uuid.UUID) (reconcile.Result, error) {
	return k.waitResult, k.waitErr
}

func (k *fakeKernel) Reconcile(context.Context) (reconcile.Result, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.reconciles++
	return k.result, k.resultErr
}

func newTestApp(k *fakeKernel) App {
	a := NewApp(k, "dev")
	a.width = 100
	a.height = 40
	return a
}

func confirmedSession(email string) *domain.Session {
	now := time.Now()
	return &domain.Session{IdentityID: uuid.New(), Email: email, ConfirmedAt: &now}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "ctrl+n":
		return tea.KeyMsg{Type: tea.KeyCtrlN}
	case "ctrl+l":
		return tea.KeyMsg{Type: tea.KeyCtrlL}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// typeText sends one key per rune.
func typeText(t *testing.T, a App, s string) App {
	t.Helper()
	for _, r := range s {
		m, _ := a.Update(key(string(r)))
		a = m.(App)
	}
	return a
}

// step applies msg and runs the resulting command once, feeding its
// message back in. Batches and ticks are not followed.
func step(t *testing.T, a App, msg tea.Msg) App {
	t.Helper()
	m, cmd := a.Update(msg)
	a = m.(App)
	if cmd == nil {
		return a
	}
	next := cmd()
	if _, ok := next.(tea.BatchMsg); ok {
		return a
	}
	m, _ = a.Update(next)
	return m.(App)
}

func loaded(t *testing.T, k *fakeKernel) App {
	t.Helper()
	a := newTestApp(k)
	m, _ := a.Update(loadHousehold(context.Background(), k))
	return m.(App)
}

func TestApp_NoSessionShowsSignIn(t *testing.T) {
	a := loaded(t, &fakeKernel{})
	if a.view != viewSignIn {
		t.Fatalf("view = %d, want sign-in", a.view)
	}
	if !strings.Contains(a.View(), "Sign in") {
		t.Errorf("expected sign-in form:\n%s", a.View())
	}
}

func TestApp_SessionShowsHome(t *testing.T) {
	s := confirmedSession("ana@x.com")
	k := &fakeKernel{
		session:  s,
		profiles: map[uuid.UUID]*domain.Profile{s.IdentityID: {IdentityID: s.IdentityID, DisplayName: "Ana"}},
	}
	a := loaded(t, k)
	if a.view != viewHome {
		t.Fatalf("view = %d, want home", a.view)
	}
	v := a.View()
	if !strings.Contains(v, "Hi, Ana") {
		t.Errorf("home should greet by profile name:\n%s", v)
	}
	if !strings.Contains(v, "don't share a household") {
		t.Errorf("home should offer an invite:\n%s", v)
	}
}

func TestApp_HomeShowsPartner(t *testing.T) {
	s := confirmedSession("ana@x.com")
	pat := uuid.New()
	k := &fakeKernel{
		session: s,
		profiles: map[uuid.UUID]*domain.Profile{
			s.IdentityID: {IdentityID: s.IdentityID, DisplayName: "Ana"},
			pat:          {IdentityID: pat, DisplayName: "Pat"},
		},
		couple: &domain.Couple{ID: uuid.New(), InviterIdentityID: s.IdentityID, InviteeIdentityID: &pat, Status: domain.CoupleActive},
	}
	a := loaded(t, k)
	v := a.View()
	if !strings.Contains(v, "Pat") || !strings.Contains(v, "[active]") {
		t.Errorf("home should show the linked partner:\n%s", v)
	}
}

func TestApp_UnconfirmedHome(t *testing.T) {
	k := &fakeKernel{session: &domain.Session{IdentityID: uuid.New(), Email: "ana@x.com"}}
	a := loaded(t, k)
	if !strings.Contains(a.View(), "Confirm ana@x.com") {
		t.Errorf("unconfirmed home should ask for confirmation:\n%s", a.View())
	}
}

func TestApp_SignIn(t *testing.T) {
	k := &fakeKernel{}
	a := loaded(t, k)
	a = typeText(t, a, "ana@x.com")
	a = step(t, a, key("enter"))
	a = typeText(t, a, "pw")
	a = step(t, a, key("enter")) // signs in, then returns a load command
	if len(k.signIns) != 1 || k.signIns[0] != "ana@x.com" {
		t.Fatalf("signIns = %v", k.signIns)
	}
	a = step(t, a, loadHousehold(context.Background(), k))
	if a.view != viewHome {
		t.Errorf("view = %d, want home after sign-in", a.view)
	}
}

func TestApp_SignInErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"wrong password", identity.ErrInvalidCredentials, "Wrong email or password"},
		{"unconfirmed", identity.ErrNotConfirmed, "Confirm your email first"},
		{"transport", errors.New("client.SignIn: dial tcp: refused"), "Couldn't sign in"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k := &fakeKernel{signInErr: tc.err}
			a := loaded(t, k)
			a = typeText(t, a, "ana@x.com")
			a = step(t, a, key("tab"))
			a = typeText(t, a, "pw")
			a = step(t, a, key("enter"))
			if a.view != viewSignIn {
				t.Fatalf("view = %d, want sign-in", a.view)
			}
			if !strings.Contains(a.View(), tc.want) {
				t.Errorf("expected %q in:\n%s", tc.want, a.View())
			}
		})
	}
}

func TestApp_SignInValidation(t *testing.T) {
	k := &fakeKernel{}
	a := loaded(t, k)
	a = step(t, a, key("tab"))
	a = step(t, a, key("enter"))
	if !strings.Contains(a.View(), "Email is required") {
		t.Errorf("expected a required-field error:\n%s", a.View())
	}
	a = step(t, a, key("tab"))
	a = typeText(t, a, "nope")
	a = step(t, a, key("tab"))
	a = typeText(t, a, "pw")
	a = step(t, a, key("enter"))
	if !strings.Contains(a.View(), "doesn't look right") {
		t.Errorf("expected an email format error:\n%s", a.View())
	}
	if len(k.signIns) != 0 {
		t.Errorf("invalid form should not reach the kernel, got %v", k.signIns)
	}
}

func TestApp_SignUpWaitsThenSignsIn(t *testing.T) {
	k := &fakeKernel{waitResult: reconcile.Result{Outcome: domain.ProfileCreated}}
	a := loaded(t, k)
	a = step(t, a, key("ctrl+n"))
	if !a.signin.signUp {
		t.Fatal("ctrl+n should switch to sign-up")
	}
	a = typeText(t, a, "ana@x.com")
	a = step(t, a, key("tab"))
	a = typeText(t, a, "pw")
	a = step(t, a, key("tab"))
	a = typeText(t, a, "Ana")
	a = step(t, a, key("enter")) // SignUp -> signedUpMsg, which returns the wait command

	if len(k.signUps) != 1 || k.signUps[0].DisplayName != "Ana" {
		t.Fatalf("signUps = %+v", k.signUps)
	}
	if !a.waiting || !strings.Contains(a.View(), "Check ana@x.com") {
		t.Fatalf("expected to wait for confirmation:\n%s", a.View())
	}

	a = step(t, a, confirmedMsg{result: k.waitResult, email: "ana@x.com", password: "pw"})
	if a.waiting {
		t.Error("waiting should end after confirmation")
	}
	if len(k.signIns) != 1 {
		t.Errorf("confirmation should sign in, signIns = %v", k.signIns)
	}
	if !strings.Contains(a.View(), "profile is ready") {
		t.Errorf("expected the outcome message:\n%s", a.View())
	}
}

func TestApp_SignUpDuplicate(t *testing.T) {
	k := &fakeKernel{signUpErr: domain.ErrDuplicateIdentity}
	a := loaded(t, k)
	a = step(t, a, key("ctrl+n"))
	a = typeText(t, a, "ana@x.com")
	a = step(t, a, key("tab"))
	a = typeText(t, a, "pw")
	a = step(t, a, key("tab"))
	a = typeText(t, a, "Ana")
	a = step(t, a, key("enter"))
	if a.waiting {
		t.Error("a failed sign-up should not wait")
	}
	if !strings.Contains(a.View(), "already has an account") {
		t.Errorf("expected duplicate message:\n%s", a.View())
	}
}

func TestApp_ConfirmationTimeout(t *testing.T) {
	k := &fakeKernel{}
	a := loaded(t, k)
	a.waiting = true
	a = step(t, a, confirmedMsg{err: flow.ErrNotConfirmed, email: "ana@x.com", password: "pw"})
	if a.waiting || len(k.signIns) != 0 {
		t.Errorf("timeout should stop waiting without signing in (signIns=%v)", k.signIns)
	}
	if !strings.Contains(a.View(), "Still waiting") {
		t.Errorf("expected a gentle timeout message:\n%s", a.View())
	}
}

func TestApp_FocusReconciles(t *testing.T) {
	s := confirmedSession("pat@x.com")
	k := &fakeKernel{session: s, result: reconcile.Result{IdentityID: s.IdentityID, Outcome: domain.HouseholdLinked}}
	a := loaded(t, k)
	a = step(t, a, tea.FocusMsg{})
	if k.reconciles != 1 {
		t.Fatalf("reconciles = %d, want 1", k.reconciles)
	}
	if !strings.Contains(a.View(), "You're linked") {
		t.Errorf("expected the linked message:\n%s", a.View())
	}
}

func TestApp_FocusWithoutSessionDoesNothing(t *testing.T) {
	k := &fakeKernel{}
	a := loaded(t, k)
	_, cmd := a.Update(tea.FocusMsg{})
	if cmd != nil {
		t.Error("focus without a session should not reconcile")
	}
}

func TestApp_ManualReconcile(t *testing.T) {
	k := &fakeKernel{session: confirmedSession("ana@x.com")}
	a := loaded(t, k)
	a = step(t, a, key("r"))
	if k.reconciles != 1 {
		t.Fatalf("reconciles = %d, want 1", k.reconciles)
	}
	if !strings.Contains(a.View(), "up to date") {
		t.Errorf("manual NoOp should say so:\n%s", a.View())
	}
}

func TestApp_ReconcileFailureIsNotShown(t *testing.T) {
	k := &fakeKernel{session: confirmedSession("ana@x.com"), resultErr: errors.New("store down")}
	a := loaded(t, k)
	a = step(t, a, key("r"))
	if strings.Contains(a.View(), "store down") {
		t.Errorf("reconciliation failures should only be logged:\n%s", a.View())
	}
}

func TestApp_ListenerResults(t *testing.T) {
	tests := []struct {
		name   string
		result reconcile.Result
		want   string
	}{
		{"linked", reconcile.Result{Outcome: domain.HouseholdLinked}, "You're linked"},
		{"already linked", reconcile.Result{Outcome: domain.AlreadyLinked}, "already used"},
		{"skipped", reconcile.Result{Outcome: domain.NoOp, Skipped: true}, ""},
		{"noop", reconcile.Result{Outcome: domain.NoOp}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := loaded(t, &fakeKernel{session: confirmedSession("ana@x.com")})
			m, _ := a.Update(Reconciled(tc.result))
			a = m.(App)
			if tc.want == "" {
				if a.status != "" {
					t.Errorf("status = %q, want none", a.status)
				}
				return
			}
			if !strings.Contains(a.status, tc.want) {
				t.Errorf("status = %q, want %q", a.status, tc.want)
			}
		})
	}
}

func TestApp_SignOut(t *testing.T) {
	k := &fakeKernel{session: confirmedSession("ana@x.com")}
	a := loaded(t, k)
	a = step(t, a, key("x"))
	if k.signOuts != 1 || a.view != viewSignIn {
		t.Errorf("signOuts = %d, view = %d", k.signOuts, a.view)
	}
}

func TestApp_Quit(t *testing.T) {
	a := loaded(t, &fakeKernel{session: confirmedSession("ana@x.com")})
	_, cmd := a.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command on 'q'")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("'q' on home should quit")
	}
}

func TestApp_QTypesIntoForms(t *testing.T) {
	a := loaded(t, &fakeKernel{})
	a = typeText(t, a, "q")
	if got := a.signin.form.raw(0); got != "q" {
		t.Errorf("'q' on the sign-in form should be typed, field = %q", got)
	}
}

func TestApp_HelpOverlay(t *testing.T) {
	a := loaded(t, &fakeKernel{session: confirmedSession("ana@x.com")})
	a = step(t, a, key("?"))
	if !a.helpOpen {
		t.Fatal("'?' should open help")
	}
	if !strings.Contains(a.View(), "twofold invite <email>") {
		t.Errorf("help should list commands:\n%s", a.View())
	}
	a = step(t, a, key("j"))
	if a.helpCursor != 1 {
		t.Errorf("helpCursor = %d, want 1", a.helpCursor)
	}
	a = step(t, a, key("esc"))
	if a.helpOpen {
		t.Error("esc should close help")
	}
}

func TestApp_VersionNotice(t *testing.T) {
	a := loaded(t, &fakeKernel{session: confirmedSession("ana@x.com")})
	m, _ := a.Update(versionCheckMsg{latestVersion: "v9.9.9", hasUpdate: true})
	a = m.(App)
	if !strings.Contains(a.View(), "v9.9.9 available") {
		t.Errorf("expected update notice:\n%s", a.View())
	}
}
