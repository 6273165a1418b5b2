package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/twofold/internal/flow"
	"github.com/naveenspark/twofold/pkg/domain"
)

type acceptedMsg struct {
	identity domain.Identity
	email    string
	password string
	err      error
}

const (
	acceptLink = iota
	acceptEmail
	acceptPassword
	acceptName
)

// acceptModel redeems an invitation link by creating the invitee's account.
type acceptModel struct {
	kernel  Kernel
	form    form
	busy    bool
	waiting bool
	err     string
}

func newAcceptModel(k Kernel) acceptModel {
	return acceptModel{
		kernel: k,
		form: newForm(
			field{label: "Invitation link", placeholder: "paste the link from the email"},
			field{label: "Email", placeholder: "the address the invitation went to"},
			field{label: "Password", secret: true},
			field{label: "Your name", placeholder: "what your partner calls you"},
		),
	}
}

func (m acceptModel) Update(msg tea.Msg) (acceptModel, tea.Cmd) {
	switch msg := msg.(type) {
	case acceptedMsg:
		m.busy = false
		if msg.err != nil {
			m.err = acceptProblem(msg.err)
			return m, nil
		}
		m.err = ""
		m.waiting = true
		return m, awaitConfirmation(m.kernel, msg.identity.ID, msg.email, msg.password)

	case tea.KeyMsg:
		if m.busy || m.waiting {
			return m, nil
		}
		if msg.Paste {
			m.form.paste(string(msg.Runes))
			return m, nil
		}
		if msg.String() == "enter" {
			if !m.form.onLast() {
				m.form.focus++
				return m, nil
			}
			return m.submit()
		}
		m.form.handleKey(msg.String())
	}
	return m, nil
}

func (m acceptModel) submit() (acceptModel, tea.Cmd) {
	if label := m.form.missing(); label != "" {
		m.err = label + " is required."
		return m, nil
	}
	link, err := domain.ParseInviteLink(m.form.value(acceptLink))
	if err != nil {
		m.err = "That doesn't look like an invitation link."
		m.form.focus = acceptLink
		return m, nil
	}
	req := flow.AcceptRequest{
		Link:        link,
		Email:       m.form.value(acceptEmail),
		Password:    m.form.raw(acceptPassword),
		DisplayName: m.form.value(acceptName),
	}
	m.busy = true
	m.err = ""
	k := m.kernel
	return m, func() tea.Msg {
		id, err := k.AcceptInvitation(context.Background(), req)
		return acceptedMsg{identity: id, email: req.Email, password: req.Password, err: err}
	}
}

func (m acceptModel) View(frame int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n\n", titleStyle.Render("Join your partner's household"))
	if m.waiting {
		fmt.Fprintf(&b, "  %s\n", normalStyle.Render("Almost there. Open the confirmation email we just sent."))
		fmt.Fprintf(&b, "  %s\n", dimStyle.Render("This screen updates on its own once you've confirmed."))
		return b.String()
	}
	b.WriteString(m.form.view(frame))
	switch {
	case m.busy:
		fmt.Fprintf(&b, "\n  %s\n", dimStyle.Render("One moment..."))
	case m.err != "":
		fmt.Fprintf(&b, "\n  %s\n", errorStyle.Render(m.err))
	}
	return b.String()
}

// acceptProblem maps accept failures to what the invitee sees. Only
// invitation problems are specific; anything else is generic.
func acceptProblem(err error) string {
	switch {
	case errors.Is(err, flow.ErrInvitationInvalid):
		return "This invitation is invalid or has expired. Ask your partner for a new one."
	case errors.Is(err, flow.ErrEmailMismatch):
		return "Use the email address the invitation was sent to."
	case errors.Is(err, domain.ErrDuplicateIdentity):
		return "That email already has an account. Sign in instead."
	}
	log.Printf("[tui] accept: %v", err)
	return "Something went wrong. Please try again."
}
