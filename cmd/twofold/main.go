package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/naveenspark/twofold/internal/app"
	"github.com/naveenspark/twofold/internal/config"
	"github.com/naveenspark/twofold/internal/reconcile"
	"github.com/naveenspark/twofold/internal/session"
	"github.com/naveenspark/twofold/internal/tui"
	"github.com/naveenspark/twofold/pkg/domain"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// errNotSignedIn is returned by commands that act for the signed-in user.
var errNotSignedIn = errors.New("not signed in (run twofold to sign in)")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "--version", "version", "-v":
			fmt.Fprintln(out, "twofold "+version)
			return nil
		case "help", "--help", "-h":
			printHelp(out)
			return nil
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path, err := session.DefaultPath()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, session.NewFile(path))
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if len(args) == 0 {
		return runTUI(ctx, a)
	}
	switch args[0] {
	case "logout":
		return runLogout(ctx, a, out)
	case "invite":
		if len(args) < 2 {
			return errors.New("usage: twofold invite <email>")
		}
		return runInvite(ctx, a, args[1], out)
	case "reconcile":
		return runReconcile(ctx, a, out)
	case "confirm":
		if len(args) < 2 {
			return errors.New("usage: twofold confirm <email>")
		}
		return runConfirm(ctx, a, args[1], out)
	}
	return fmt.Errorf("unknown command %q (see twofold help)", args[0])
}

func runTUI(ctx context.Context, a *app.App) error {
	dir, err := session.Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	// Logs would tear the alt screen; send them to a file instead.
	logFile, err := tea.LogToFile(filepath.Join(dir, "twofold.log"), "twofold")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close() //nolint:errcheck

	p := tea.NewProgram(tui.NewApp(a, version),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	stop := a.Listen(ctx, func(r reconcile.Result) {
		p.Send(tui.Reconciled(r))
	})
	defer stop()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

func signedIn(ctx context.Context, a *app.App) (*domain.Session, error) {
	s, err := a.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errNotSignedIn
	}
	return s, nil
}

func runLogout(ctx context.Context, a *app.App, out io.Writer) error {
	s, err := a.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		fmt.Fprintln(out, "Already logged out.")
		return nil
	}
	if err := a.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Logged out.")
	return nil
}

func runInvite(ctx context.Context, a *app.App, email string, out io.Writer) error {
	s, err := signedIn(ctx, a)
	if err != nil {
		printGreeting(out)
		return err
	}
	if !s.Confirmed() {
		return fmt.Errorf("confirm %s before inviting anyone", s.Email)
	}
	profile, err := a.Profile(ctx, s.IdentityID)
	if err != nil {
		return err
	}
	name := domain.ResolveDisplayName(profile, *s)

	inv, err := a.InvitePartner(ctx, s.IdentityID, name, email)
	if errors.Is(err, domain.ErrAlreadyLinked) {
		return errors.New("you already share a household")
	}
	if domain.IsConflict(err) {
		fmt.Fprintf(out, "You already invited %s. Sending it again.\n", inv.InviteeEmail)
		inv, err = a.Resend(ctx, s.IdentityID, name)
	}
	switch {
	case err != nil && inv.ID == uuid.Nil:
		return err
	case err != nil:
		log.Printf("[invite] delivery failed: %v", err)
		fmt.Fprintf(out, "Couldn't email %s. Share this link yourself:\n", inv.InviteeEmail)
	default:
		fmt.Fprintf(out, "Invitation sent to %s.\n", inv.InviteeEmail)
	}
	fmt.Fprintf(out, "  %s\n  expires %s\n", a.InviteURL(inv), inv.ExpiresAt.Local().Format("January 2, 2006 15:04"))
	return nil
}

func runReconcile(ctx context.Context, a *app.App, out io.Writer) error {
	s, err := signedIn(ctx, a)
	if err != nil {
		return err
	}
	if !s.Confirmed() {
		fmt.Fprintf(out, "Waiting for %s to be confirmed. Nothing to do yet.\n", s.Email)
		return nil
	}
	r, err := a.Reconcile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, outcomeText(r))
	return nil
}

func runConfirm(ctx context.Context, a *app.App, email string, out io.Writer) error {
	id, err := a.ConfirmEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("no account for %s", email)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Confirmed %s.\n", id.Email)
	return nil
}

func outcomeText(r reconcile.Result) string {
	switch {
	case r.Skipped:
		return "Already running on this device."
	case r.Outcome == domain.HouseholdLinked:
		return "You're linked. Welcome to your shared household."
	case r.Outcome == domain.AlreadyLinked:
		return "That invitation was already used or is no longer valid."
	case r.Outcome == domain.ProfileCreated:
		return "Your profile is ready."
	}
	return "Everything is up to date."
}
