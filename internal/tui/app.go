// Package tui is the terminal front end: sign-in, the household home
// screen, and the invite and accept flows.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/browser"
	"github.com/naveenspark/twofold/internal/flow"
	"github.com/naveenspark/twofold/internal/identity"
	"github.com/naveenspark/twofold/internal/reconcile"
	"github.com/naveenspark/twofold/pkg/domain"
)

// Kernel is everything the UI needs from the wired app.
type Kernel interface {
	CurrentSession(ctx context.Context) (*domain.Session, error)
	SignIn(ctx context.Context, email, password string) (domain.Session, error)
	SignOut(ctx context.Context) error
	Profile(ctx context.Context, identityID uuid.UUID) (*domain.Profile, error)
	Household(ctx context.Context, identityID uuid.UUID) (*domain.Couple, error)
	InvitePartner(ctx context.Context, inviterID uuid.UUID, inviterName, email string) (domain.Invitation, error)
	Resend(ctx context.Context, inviterID uuid.UUID, inviterName string) (domain.Invitation, error)
	InviteURL(inv domain.Invitation) string
	AcceptInvitation(ctx context.Context, req flow.AcceptRequest) (domain.Identity, error)
	SignUp(ctx context.Context, req flow.SignUpRequest) (domain.Identity, error)
	WaitForConfirmation(ctx context.Context, identityID uuid.UUID) (reconcile.Result, error)
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

type view int

const (
	viewLoading view = iota
	viewSignIn
	viewHome
	viewInvite
	viewAccept
)

// household is a snapshot of what the home screen shows.
type household struct {
	session *domain.Session
	profile *domain.Profile
	couple  *domain.Couple
	partner *domain.Profile
}

func (h household) displayName() string {
	if h.session == nil {
		return ""
	}
	return domain.ResolveDisplayName(h.profile, *h.session)
}

type householdLoadedMsg struct {
	snap household
	err  error
}

type reconciledMsg struct {
	result reconcile.Result
	err    error
	manual bool
}

// Reconciled wraps a result from the sign-in listener so it can be sent
// into a running program with tea.Program.Send.
func Reconciled(r reconcile.Result) tea.Msg {
	return reconciledMsg{result: r}
}

type signedInMsg struct {
	session domain.Session
	err     error
}

type signedOutMsg struct{ err error }

// confirmedMsg arrives when a new identity has confirmed its email and the
// first reconciliation has run, or when waiting gave up.
type confirmedMsg struct {
	result   reconcile.Result
	err      error
	email    string
	password string
}

// App is the root model.
type App struct {
	kernel  Kernel
	version string

	view   view
	home   homeModel
	signin signinModel
	invite inviteModel
	accept acceptModel

	status    string
	waiting   bool
	reconBusy bool

	helpOpen   bool
	helpCursor int

	latestVersion string
	width         int
	height        int
	frame         int
}

// NewApp builds the root model.
func NewApp(k Kernel, version string) App {
	return App{
		kernel:  k,
		version: version,
		signin:  newSigninModel(k),
		accept:  newAcceptModel(k),
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(shimmerTickCmd(), a.load(), checkVersion(a.version))
}

func (a App) load() tea.Cmd {
	k := a.kernel
	return func() tea.Msg {
		return loadHousehold(context.Background(), k)
	}
}

func loadHousehold(ctx context.Context, k Kernel) householdLoadedMsg {
	s, err := k.CurrentSession(ctx)
	if err != nil {
		return householdLoadedMsg{err: err}
	}
	snap := household{session: s}
	if s == nil {
		return householdLoadedMsg{snap: snap}
	}
	if snap.profile, err = k.Profile(ctx, s.IdentityID); err != nil {
		return householdLoadedMsg{snap: snap, err: err}
	}
	if snap.couple, err = k.Household(ctx, s.IdentityID); err != nil {
		return householdLoadedMsg{snap: snap, err: err}
	}
	if snap.couple != nil {
		if partnerID, ok := snap.couple.Partner(s.IdentityID); ok {
			// The hosted store may hide the partner's row; the name is optional.
			if p, err := k.Profile(ctx, partnerID); err == nil {
				snap.partner = p
			}
		}
	}
	return householdLoadedMsg{snap: snap}
}

func (a App) reconcile(manual bool) tea.Cmd {
	k := a.kernel
	return func() tea.Msg {
		r, err := k.Reconcile(context.Background())
		return reconciledMsg{result: r, err: err, manual: manual}
	}
}

func (a App) signIn(email, password string) tea.Cmd {
	k := a.kernel
	return func() tea.Msg {
		s, err := k.SignIn(context.Background(), email, password)
		return signedInMsg{session: s, err: err}
	}
}

func (a App) signOut() tea.Cmd {
	k := a.kernel
	return func() tea.Msg {
		return signedOutMsg{err: k.SignOut(context.Background())}
	}
}

// awaitConfirmation polls until identityID confirms its email, then
// reconciles it.
func awaitConfirmation(k Kernel, identityID uuid.UUID, email, password string) tea.Cmd {
	return func() tea.Msg {
		r, err := k.WaitForConfirmation(context.Background(), identityID)
		return confirmedMsg{result: r, err: err, email: email, password: password}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case shimmerTickMsg:
		a.frame++
		return a, shimmerTickCmd()

	case versionCheckMsg:
		if msg.hasUpdate {
			a.latestVersion = msg.latestVersion
		}
		return a, nil

	case householdLoadedMsg:
		if msg.err != nil {
			log.Printf("[tui] load household: %v", msg.err)
			a.status = errorStyle.Render("Couldn't load your household. Press r to retry.")
			if a.view == viewLoading {
				a.view = viewSignIn
			}
			return a, nil
		}
		a.home.snap = msg.snap
		switch {
		case msg.snap.session == nil && (a.view == viewHome || a.view == viewInvite || a.view == viewLoading):
			a.view = viewSignIn
		case msg.snap.session != nil && (a.view == viewLoading || a.view == viewSignIn):
			a.view = viewHome
		}
		return a, nil

	case tea.FocusMsg:
		if a.home.snap.session == nil || a.reconBusy {
			return a, nil
		}
		a.reconBusy = true
		return a, a.reconcile(false)

	case reconciledMsg:
		a.reconBusy = false
		if msg.err != nil {
			log.Printf("[tui] reconcile: %v", msg.err)
			return a, nil
		}
		if msg.result.Skipped || msg.result.Outcome == domain.NoOp {
			if msg.manual {
				a.status = dimStyle.Render("Everything is up to date.")
			}
			return a, nil
		}
		a.status = outcomeMessage(msg.result.Outcome)
		return a, a.load()

	case signedInMsg:
		a.signin.busy = false
		if msg.err != nil {
			a.signin.err = signInProblem(msg.err)
			return a, nil
		}
		a.signin = newSigninModel(a.kernel)
		return a, a.load()

	case signedOutMsg:
		if msg.err != nil {
			log.Printf("[tui] sign out: %v", msg.err)
		}
		a.home = homeModel{}
		a.status = ""
		a.view = viewSignIn
		return a, nil

	case signedUpMsg:
		var cmd tea.Cmd
		a.signin, cmd = a.signin.Update(msg)
		if cmd != nil {
			a.waiting = true
			a.status = dimStyle.Render(fmt.Sprintf("Check %s for a confirmation link. Waiting...", msg.email))
		}
		return a, cmd

	case acceptedMsg:
		var cmd tea.Cmd
		a.accept, cmd = a.accept.Update(msg)
		if cmd != nil {
			a.waiting = true
			a.status = dimStyle.Render(fmt.Sprintf("Check %s for a confirmation link. Waiting...", msg.email))
		}
		return a, cmd

	case confirmedMsg:
		a.waiting = false
		a.accept = newAcceptModel(a.kernel)
		if msg.err != nil {
			log.Printf("[tui] wait for confirmation: %v", msg.err)
			a.status = dimStyle.Render("Still waiting on your confirmation. Sign in once you've clicked the link.")
			a.view = viewSignIn
			return a, nil
		}
		a.status = outcomeMessage(msg.result.Outcome)
		a.view = viewSignIn
		return a, a.signIn(msg.email, msg.password)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.helpOpen {
			return a.updateHelp(msg)
		}
		if !a.isEditing() {
			switch msg.String() {
			case "q":
				return a, tea.Quit
			case "?":
				a.helpOpen = true
				a.helpCursor = 0
				return a, nil
			}
		}
		if a.view == viewHome {
			return a.updateHomeKeys(msg)
		}
		if msg.String() == "esc" {
			return a.back()
		}
		if a.view == viewSignIn && msg.String() == "ctrl+l" {
			a.view = viewAccept
			a.status = ""
			return a, nil
		}
	}

	var cmd tea.Cmd
	switch a.view {
	case viewSignIn:
		a.signin, cmd = a.signin.Update(msg)
	case viewInvite:
		a.invite, cmd = a.invite.Update(msg)
	case viewAccept:
		a.accept, cmd = a.accept.Update(msg)
	}
	return a, cmd
}

func (a App) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "?", "q":
		a.helpOpen = false
	case "j", "down":
		if a.helpCursor < len(helpItems)-1 {
			a.helpCursor++
		}
	case "k", "up":
		if a.helpCursor > 0 {
			a.helpCursor--
		}
	case "enter":
		url := helpItems[a.helpCursor].url
		if err := browser.Open(url); err != nil {
			log.Printf("[tui] open %s: %v", url, err)
		}
	}
	return a, nil
}

func (a App) updateHomeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := a.home.snap
	switch msg.String() {
	case "r":
		if a.reconBusy {
			return a, nil
		}
		a.reconBusy = true
		a.status = dimStyle.Render("Checking...")
		return a, a.reconcile(true)
	case "i":
		if snap.session == nil || snap.couple != nil {
			return a, nil
		}
		a.invite = newInviteModel(a.kernel, snap.session.IdentityID, snap.displayName())
		a.view = viewInvite
		a.status = ""
	case "x":
		return a, a.signOut()
	}
	return a, nil
}

func (a App) back() (tea.Model, tea.Cmd) {
	switch a.view {
	case viewInvite:
		a.view = viewHome
	case viewAccept:
		if a.accept.busy || a.waiting {
			return a, nil
		}
		a.accept = newAcceptModel(a.kernel)
		if a.home.snap.session != nil {
			a.view = viewHome
		} else {
			a.view = viewSignIn
		}
	}
	a.status = ""
	return a, nil
}

// isEditing reports whether printable keys belong to a text field.
func (a App) isEditing() bool {
	switch a.view {
	case viewSignIn, viewAccept:
		return true
	case viewInvite:
		return a.invite.editing()
	}
	return false
}

func (a App) View() string {
	logo := renderShimmerLogo(a.frame)
	header := center(logo, a.width, lipgloss.Width(logo))

	var parts []string
	if name := a.home.snap.displayName(); name != "" && a.view != viewSignIn {
		parts = append(parts, normalStyle.Render(truncStr(name, 32)))
	}
	if c := a.home.snap.couple; c != nil && a.view != viewSignIn {
		parts = append(parts, StatusBadge(string(c.Status)))
	}
	if a.latestVersion != "" {
		parts = append(parts, accentStyle.Render(a.latestVersion+" available"))
	}
	sub := metaStyle.Render(strings.Join(parts, metaStyle.Render(" · ")))
	header += "\n" + center(sub, a.width, lipgloss.Width(sub))

	var body, help string
	switch a.view {
	case viewLoading:
		body = "\n  " + dimStyle.Render("Loading...")
		help = helpBar("ctrl+c", "quit")
	case viewSignIn:
		body = a.signin.View(a.frame)
		help = helpBar("tab", "next", "enter", "submit", "ctrl+n", a.signin.toggleLabel(), "ctrl+l", "have a link?", "ctrl+c", "quit")
	case viewHome:
		body = a.home.View()
		if a.home.snap.couple == nil {
			help = helpBar("i", "invite", "r", "refresh", "x", "sign out", "?", "help", "q", "quit")
		} else {
			help = helpBar("r", "refresh", "x", "sign out", "?", "help", "q", "quit")
		}
	case viewInvite:
		body = a.invite.View(a.frame)
		help = a.invite.help()
	case viewAccept:
		body = a.accept.View(a.frame)
		help = helpBar("tab", "next", "enter", "submit", "esc", "back")
	}

	if a.helpOpen {
		body = helpView(a.helpCursor)
		help = helpBar("j/k", "nav", "enter", "open", "esc", "close")
	}

	status := ""
	if a.status != "" {
		status = " " + a.status
	}

	// header(2) + status(1) + help(1)
	chrome := 4
	body = strings.TrimRight(truncateToHeight(body, a.height-chrome), "\n")

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, body, status, help)
}

// signInProblem is the message shown for a failed sign-in.
func signInProblem(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "Wrong email or password."
	case errors.Is(err, identity.ErrNotConfirmed):
		return "Confirm your email first, then sign in."
	}
	log.Printf("[tui] sign in: %v", err)
	return "Couldn't sign in: " + friendlyError(err)
}
