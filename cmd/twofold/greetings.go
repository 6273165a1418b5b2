package main

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/twofold/internal/tui"
)

var greetings = [...]string{
	"Two people, one budget, zero arguments about who paid for dinner.",
	"Your partner's coffee habit is about to become a shared line item.",
	"Splitting the rent is easy. Splitting the streaming subscriptions is diplomacy.",
	"Somebody has to be the one who remembers the water bill. Now you both can.",
	"Every household starts with an invitation. Yours is one command away.",
	"Couples who budget together argue about more interesting things.",
	"The spreadsheet you started in 2019 would like to retire.",
	"A shared ledger is just a love letter with columns.",
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f5b94a")).
			Bold(true)
	quoteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

func printHelp(out io.Writer) {
	cmdStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintf(out, "\n  %s\n\n  %s\n\n  Commands:\n", titleStyle.Render("T W O F O L D"), quoteStyle.Render(randomGreeting()))
	for _, c := range tui.Commands() {
		fmt.Fprintf(out, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-24s", c.Use)), hintStyle.Render(c.Desc))
	}
	fmt.Fprintf(out, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-24s", "twofold help")), hintStyle.Render("You are here"))

	fmt.Fprintf(out, "\n  %s\n", hintStyle.Render("Settings come from TWOFOLD_* environment variables (TWOFOLD_BACKEND=hosted|sqlite|postgres)."))
	fmt.Fprintf(out, "  %s\n\n", hintStyle.Render("https://twofold.app"))
}

// printGreeting nudges someone who isn't signed in yet.
func printGreeting(out io.Writer) {
	fmt.Fprintf(out, "\n%s\n\n%s\n\n%s\n\n",
		titleStyle.Render("TWOFOLD"),
		quoteStyle.Render(randomGreeting()),
		hintStyle.Render("To start: twofold"))
}

func randomGreeting() string {
	return greetings[rand.IntN(len(greetings))]
}
