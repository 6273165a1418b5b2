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

type signedUpMsg struct {
	identity domain.Identity
	email    string
	password string
	err      error
}

// signinModel signs an existing user in, or registers an inviter.
type signinModel struct {
	kernel Kernel
	form   form
	signUp bool
	busy   bool
	err    string
}

func newSigninModel(k Kernel) signinModel {
	return signinModel{kernel: k, form: signinForm(false)}
}

func signinForm(signUp bool) form {
	fields := []field{
		{label: "Email", placeholder: "you@example.com"},
		{label: "Password", secret: true},
	}
	if signUp {
		fields = append(fields, field{label: "Your name", placeholder: "what your partner calls you"})
	}
	return newForm(fields...)
}

func (m signinModel) toggleLabel() string {
	if m.signUp {
		return "have an account?"
	}
	return "new here?"
}

func (m signinModel) Update(msg tea.Msg) (signinModel, tea.Cmd) {
	switch msg := msg.(type) {
	case signedUpMsg:
		m.busy = false
		if msg.err != nil {
			m.err = signUpProblem(msg.err)
			return m, nil
		}
		m.err = ""
		return m, awaitConfirmation(m.kernel, msg.identity.ID, msg.email, msg.password)

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		if msg.Paste {
			m.form.paste(string(msg.Runes))
			return m, nil
		}
		switch msg.String() {
		case "ctrl+n":
			m.signUp = !m.signUp
			email := m.form.value(0)
			m.form = signinForm(m.signUp)
			m.form.fields[0].value = email
			m.err = ""
			return m, nil
		case "enter":
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

func (m signinModel) submit() (signinModel, tea.Cmd) {
	if label := m.form.missing(); label != "" {
		m.err = label + " is required."
		return m, nil
	}
	email := m.form.value(0)
	password := m.form.raw(1)
	if !domain.ValidEmail(email) {
		m.err = "That email address doesn't look right."
		return m, nil
	}
	m.busy = true
	m.err = ""
	k := m.kernel
	if !m.signUp {
		return m, func() tea.Msg {
			s, err := k.SignIn(context.Background(), email, password)
			return signedInMsg{session: s, err: err}
		}
	}
	name := m.form.value(2)
	return m, func() tea.Msg {
		id, err := k.SignUp(context.Background(), flow.SignUpRequest{Email: email, Password: password, DisplayName: name})
		return signedUpMsg{identity: id, email: email, password: password, err: err}
	}
}

func (m signinModel) View(frame int) string {
	var b strings.Builder
	title := "Sign in"
	if m.signUp {
		title = "Create your account"
	}
	fmt.Fprintf(&b, "\n  %s\n\n", titleStyle.Render(title))
	b.WriteString(m.form.view(frame))
	switch {
	case m.busy:
		fmt.Fprintf(&b, "\n  %s\n", dimStyle.Render("One moment..."))
	case m.err != "":
		fmt.Fprintf(&b, "\n  %s\n", errorStyle.Render(m.err))
	}
	return b.String()
}

func signUpProblem(err error) string {
	if errors.Is(err, domain.ErrDuplicateIdentity) {
		return "That email already has an account. Sign in instead."
	}
	log.Printf("[tui] sign up: %v", err)
	return "Couldn't create your account: " + friendlyError(err)
}
