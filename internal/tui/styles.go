package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/twofold/pkg/domain"
)

// Shimmer animation for the TWOFOLD logo.
type shimmerTickMsg time.Time

func shimmerTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return shimmerTickMsg(t)
	})
}

// renderShimmerLogo renders "T W O F O L D" as two waves of warm light
// folding toward the middle of the word.
// Dusk (#3a2418) -> amber (#f5b94a).
func renderShimmerLogo(frame int) string {
	const text = "TWOFOLD"
	n := len(text)
	mid := float64(n-1) / 2

	var out strings.Builder
	t := float64(frame)

	for i := 0; i < n; i++ {
		// Distance from the fold, so both halves light up together.
		x := math.Abs(float64(i)-mid) / mid

		phase := t*0.1 + x*2.5
		b := math.Sin(phase)*0.5 + 0.5
		b = math.Pow(b, 1.3)

		tide := math.Sin(t*0.035) * 0.12
		b = b*0.75 + tide + 0.18
		if b > 1.0 {
			b = 1.0
		} else if b < 0.05 {
			b = 0.05
		}

		r := clampByte(58 + b*(245-58))
		g := clampByte(36 + b*(185-36))
		bl := clampByte(24 + b*(74-24))

		s := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, bl)))
		out.WriteString(s.Render(string(text[i])))
		if i < n-1 {
			out.WriteString("  ")
		}
	}
	return out.String()
}

func clampByte(v float64) int {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return int(v)
}

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f5b94a"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f5b94a")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ade80"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#b45555"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22d3ee")).
			Underline(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#606878"))

	inputPromptStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#f5b94a")).
				Bold(true)

	inputPlaceholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#343c4a"))

	inputTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec"))

	// Household status badges
	statusColors = map[string]lipgloss.Color{
		"active":  lipgloss.Color("#4ade80"),
		"pending": lipgloss.Color("#d4a844"),
		"expired": lipgloss.Color("#8890a0"),
		"revoked": lipgloss.Color("#b45555"),
	}
)

// StatusStyle returns a bold style colored for an invitation or household status.
func StatusStyle(status string) lipgloss.Style {
	if c, ok := statusColors[status]; ok {
		return lipgloss.NewStyle().Foreground(c).Bold(true)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#606878")).Bold(true)
}

// StatusBadge returns a short colored badge, e.g. "[active]".
func StatusBadge(status string) string {
	if status == "" {
		return ""
	}
	return StatusStyle(status).Render("[" + status + "]")
}

// outcomeMessage is the single confirmation line shown after a
// reconciliation run. NoOp shows nothing.
func outcomeMessage(o domain.Outcome) string {
	switch o {
	case domain.HouseholdLinked:
		return successStyle.Render("You're linked. Welcome to your shared household.")
	case domain.AlreadyLinked:
		return dimStyle.Render("That invitation was already used or is no longer valid.")
	case domain.ProfileCreated:
		return successStyle.Render("Your profile is ready.")
	}
	return ""
}

// helpEntry renders a single "key label" pair for help bars.
func helpEntry(key, label string) string {
	return helpKeyStyle.Render(key) + " " + helpLabelStyle.Render(label)
}

// helpBar joins key/label pairs into a help line.
func helpBar(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(helpEntry(pairs[i], pairs[i+1]))
	}
	return " " + b.String()
}

// helpItem is a selectable link in the help overlay.
type helpItem struct {
	label string
	desc  string
	url   string
}

var helpItems = []helpItem{
	{"Getting started", "twofold.app/start", "https://twofold.app/start"},
	{"Inviting a partner", "twofold.app/invite", "https://twofold.app/invite"},
	{"Privacy Policy", "twofold.app/privacy", "https://twofold.app/privacy"},
	{"Website", "twofold.app", "https://twofold.app"},
}

// helpView renders the interactive help overlay with a cursor.
func helpView(cursor int) string {
	title := titleStyle.Render("T W O F O L D")
	tagline := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Italic(true).
		Render("One household. Two people. Zero spreadsheets.")

	cmdStyle := lipgloss.NewStyle().Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	cursorStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f5b94a"))
	linkDescStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)

	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n\n  %s\n\n", title, tagline)

	fmt.Fprintf(&b, "  %s\n", sectionStyle.Render("Commands"))
	for _, c := range commands {
		fmt.Fprintf(&b, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-24s", c.Use)), descStyle.Render(c.Desc))
	}

	fmt.Fprintf(&b, "\n  %s\n", sectionStyle.Render("Links (enter to open)"))
	for i, item := range helpItems {
		label := cmdStyle.Render(fmt.Sprintf("%-24s", item.label))
		prefix := "    "
		if i == cursor {
			label = cursorStyle.Render(fmt.Sprintf("%-24s", item.label))
			prefix = "  > "
		}
		fmt.Fprintf(&b, "%s%s  %s\n", prefix, label, linkDescStyle.Render(item.desc))
	}
	return b.String()
}

// Command describes one CLI entry point. cmd/twofold prints the same list.
type Command struct {
	Use  string
	Desc string
}

var commands = []Command{
	{"twofold", "Open the household (interactive TUI)"},
	{"twofold invite <email>", "Invite your partner"},
	{"twofold reconcile", "Finish any pending setup now"},
	{"twofold confirm <email>", "Confirm an email (self-hosted)"},
	{"twofold logout", "Clear your session"},
	{"twofold version", "Show version"},
}

// Commands returns the CLI commands shown in help screens.
func Commands() []Command {
	out := make([]Command, len(commands))
	copy(out, commands)
	return out
}
