package tui

import (
	"fmt"
	"strings"

	"github.com/naveenspark/twofold/pkg/domain"
)

type homeModel struct {
	snap household
}

func (m homeModel) partnerName() string {
	if m.snap.partner == nil {
		return "your partner"
	}
	return domain.ResolveDisplayName(m.snap.partner, domain.Session{Email: m.snap.partner.Email})
}

func (m homeModel) View() string {
	s := m.snap.session
	if s == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n\n", titleStyle.Render("Hi, "+m.snap.displayName()))

	if !s.Confirmed() {
		fmt.Fprintf(&b, "  %s\n", dimStyle.Render("Confirm "+s.Email+" to finish setting up."))
		fmt.Fprintf(&b, "  %s\n", dimStyle.Render("We'll pick up where you left off as soon as you do."))
		return b.String()
	}

	c := m.snap.couple
	switch {
	case c == nil:
		fmt.Fprintf(&b, "  %s\n\n", normalStyle.Render("You don't share a household yet."))
		fmt.Fprintf(&b, "  %s %s\n", accentStyle.Render("i"), dimStyle.Render("invite your partner by email"))
	case c.Confirmed():
		since := c.UpdatedAt.Format("January 2, 2006")
		fmt.Fprintf(&b, "  %s %s\n", StatusBadge(string(c.Status)), normalStyle.Render("Household shared with "+selectedStyle.Render(m.partnerName())))
		fmt.Fprintf(&b, "  %s\n", metaStyle.Render("since "+since))
	default:
		fmt.Fprintf(&b, "  %s %s\n", StatusBadge(string(c.Status)), dimStyle.Render("Waiting for your partner to join."))
	}

	if m.snap.profile == nil {
		fmt.Fprintf(&b, "\n  %s\n", metaStyle.Render("Your profile is still being set up. Press r to finish it now."))
	}
	return b.String()
}
