package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

type invitedMsg struct {
	inv    domain.Invitation
	link   string
	err    error
	resent bool
}

type copiedMsg struct{ err error }

// copyToClipboard is swapped out in tests.
var copyToClipboard = clipboard.WriteAll

// inviteModel asks for the partner's email and shows the resulting link.
type inviteModel struct {
	kernel      Kernel
	inviterID   uuid.UUID
	inviterName string
	form        form
	busy        bool

	inv      *domain.Invitation
	link     string
	conflict bool
	notSent  bool
	copied   bool
	err      string
	now      func() time.Time
}

func newInviteModel(k Kernel, inviterID uuid.UUID, inviterName string) inviteModel {
	return inviteModel{
		kernel:      k,
		inviterID:   inviterID,
		inviterName: inviterName,
		form:        newForm(field{label: "Partner's email", placeholder: "partner@example.com"}),
		now:         time.Now,
	}
}

// editing reports whether the email field has the keyboard.
func (m inviteModel) editing() bool {
	return m.inv == nil
}

func (m inviteModel) help() string {
	switch {
	case m.inv == nil:
		return helpBar("enter", "send", "esc", "back")
	case m.conflict:
		return helpBar("s", "resend", "c", "copy link", "esc", "back")
	}
	return helpBar("c", "copy link", "esc", "back")
}

func (m inviteModel) Update(msg tea.Msg) (inviteModel, tea.Cmd) {
	switch msg := msg.(type) {
	case invitedMsg:
		m.busy = false
		m.conflict = domain.IsConflict(msg.err)
		m.notSent = false
		m.err = ""
		switch {
		case msg.err == nil:
		case m.conflict:
		case msg.inv.ID != uuid.Nil:
			// Created but the email didn't go out; the link still works.
			log.Printf("[tui] invitation %s not delivered: %v", msg.inv.ID, msg.err)
			m.notSent = true
		default:
			m.err = inviteProblem(msg.err)
			return m, nil
		}
		if msg.resent && msg.err == nil {
			m.conflict = false
		}
		inv := msg.inv
		m.inv = &inv
		m.link = msg.link
		m.copied = false
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			log.Printf("[tui] copy link: %v", msg.err)
			m.err = "Couldn't reach the clipboard. Copy the link by hand."
			return m, nil
		}
		m.copied = true
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		if m.inv != nil {
			switch msg.String() {
			case "c":
				link := m.link
				return m, func() tea.Msg { return copiedMsg{err: copyToClipboard(link)} }
			case "s":
				if !m.conflict {
					return m, nil
				}
				m.busy = true
				return m, m.resend()
			}
			return m, nil
		}
		if msg.Paste {
			m.form.paste(string(msg.Runes))
			return m, nil
		}
		if msg.String() == "enter" {
			return m.submit()
		}
		m.form.handleKey(msg.String())
	}
	return m, nil
}

func (m inviteModel) submit() (inviteModel, tea.Cmd) {
	email := m.form.value(0)
	if !domain.ValidEmail(email) {
		m.err = "That email address doesn't look right."
		return m, nil
	}
	m.busy = true
	m.err = ""
	k, inviter, name := m.kernel, m.inviterID, m.inviterName
	return m, func() tea.Msg {
		inv, err := k.InvitePartner(context.Background(), inviter, name, email)
		msg := invitedMsg{inv: inv, err: err}
		if inv.ID != uuid.Nil {
			msg.link = k.InviteURL(inv)
		}
		return msg
	}
}

func (m inviteModel) resend() tea.Cmd {
	k, inviter, name := m.kernel, m.inviterID, m.inviterName
	return func() tea.Msg {
		inv, err := k.Resend(context.Background(), inviter, name)
		msg := invitedMsg{inv: inv, err: err, resent: true}
		if inv.ID != uuid.Nil {
			msg.link = k.InviteURL(inv)
		}
		return msg
	}
}

func (m inviteModel) View(frame int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n\n", titleStyle.Render("Invite your partner"))

	if m.inv == nil {
		b.WriteString(m.form.view(frame))
		switch {
		case m.busy:
			fmt.Fprintf(&b, "\n  %s\n", dimStyle.Render("Sending..."))
		case m.err != "":
			fmt.Fprintf(&b, "\n  %s\n", errorStyle.Render(m.err))
		}
		return b.String()
	}

	inv := m.inv
	switch {
	case m.conflict:
		fmt.Fprintf(&b, "  %s\n", normalStyle.Render("You already invited "+selectedStyle.Render(inv.InviteeEmail)+"."))
	case m.notSent:
		fmt.Fprintf(&b, "  %s\n", errorStyle.Render("We couldn't email "+inv.InviteeEmail+". Share the link yourself."))
	default:
		fmt.Fprintf(&b, "  %s\n", successStyle.Render("Invitation sent to "+inv.InviteeEmail+"."))
	}
	fmt.Fprintf(&b, "  %s %s\n\n", StatusBadge(string(inv.Status)), metaStyle.Render(formatUntil(inv.ExpiresAt, m.now())))
	fmt.Fprintf(&b, "  %s\n", linkStyle.Render(m.link))

	switch {
	case m.busy:
		fmt.Fprintf(&b, "\n  %s\n", dimStyle.Render("Sending..."))
	case m.err != "":
		fmt.Fprintf(&b, "\n  %s\n", errorStyle.Render(m.err))
	case m.copied:
		fmt.Fprintf(&b, "\n  %s\n", accentStyle.Render("Link copied."))
	}
	return b.String()
}

func inviteProblem(err error) string {
	log.Printf("[tui] invite: %v", err)
	if errors.Is(err, domain.ErrAlreadyLinked) {
		return "You already share a household."
	}
	return "Couldn't create the invitation: " + friendlyError(err)
}
