// Package app assembles the kernel for the configured backend.
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/naveenspark/twofold/internal/config"
	"github.com/naveenspark/twofold/internal/flow"
	"github.com/naveenspark/twofold/internal/identity"
	"github.com/naveenspark/twofold/internal/ledger"
	"github.com/naveenspark/twofold/internal/mail"
	"github.com/naveenspark/twofold/internal/reconcile"
	"github.com/naveenspark/twofold/internal/registry"
	"github.com/naveenspark/twofold/internal/session"
	"github.com/naveenspark/twofold/internal/store"
	"github.com/naveenspark/twofold/internal/store/sqlstore"
	"github.com/naveenspark/twofold/pkg/client"
)

var (
	_ store.Store      = (*client.Client)(nil)
	_ store.Store      = (*sqlstore.Store)(nil)
	_ store.Identities = (*sqlstore.Store)(nil)

	_ identity.Provider = (*identity.Hosted)(nil)
	_ identity.Provider = (*identity.Local)(nil)
)

// App is the wired kernel.
type App struct {
	Config   config.Config
	Identity identity.Provider
	// Local is the self-hosted provider, nil on the hosted backend.
	Local    *identity.Local
	Store    store.Store
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Engine   *reconcile.Engine
	Trigger  *reconcile.Trigger
	Flow     *flow.Flow
	Mailer   *mail.InvitationMailer

	close func() error
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.Config, sessions *session.File) (*App, error) {
	a := &App{Config: cfg, close: func() error { return nil }}

	switch cfg.Backend {
	case config.BackendHosted:
		api := client.New(cfg.APIURL, cfg.APIKey)
		a.Store = api
		a.Identity = identity.NewHosted(api, sessions)
	case config.BackendSQLite, config.BackendPostgres:
		st, err := openSQL(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Store = st
		a.Local = identity.NewLocal(st, sessions)
		a.Identity = a.Local
		a.close = st.Close
	default:
		return nil, fmt.Errorf("app.Open: unknown backend %q", cfg.Backend)
	}

	var sender mail.EmailClient = mail.LogClient{}
	if cfg.SendGridAPIKey != "" {
		sender = mail.NewSendGridClient(cfg.SendGridAPIKey)
	} else {
		log.Printf("[mail] WARN: SENDGRID_API_KEY is empty. Invitations are logged, not sent.")
	}
	a.Mailer = mail.NewInvitationMailer(sender, cfg.SendGridFrom, cfg.LinkBaseURL)

	a.Registry = registry.New(a.Store, registry.WithTTL(cfg.InviteTTL))
	a.Ledger = ledger.New(a.Store)
	a.Engine = reconcile.New(a.Identity, a.Ledger, a.Registry, a.Store)
	a.Trigger = reconcile.NewTrigger(a.Engine, a.Identity)
	a.Flow = flow.New(a.Registry, a.Ledger, a.Identity, a.Mailer, a.Engine)
	return a, nil
}

func openSQL(ctx context.Context, cfg config.Config) (*sqlstore.Store, error) {
	if cfg.Backend == config.BackendPostgres {
		st, err := sqlstore.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app.Open: %w", err)
		}
		return st, nil
	}
	path := cfg.SQLitePath
	if path == "" {
		dir, err := session.Dir()
		if err != nil {
			return nil, fmt.Errorf("app.Open: %w", err)
		}
		path = filepath.Join(dir, "twofold.db")
	}
	st, err := sqlstore.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("app.Open: %w", err)
	}
	return st, nil
}

// RetryPolicy is the configured confirmation polling policy.
func (a *App) RetryPolicy() flow.RetryPolicy {
	return flow.RetryPolicy{
		MaxAttempts:  a.Config.ConfirmAttempts,
		InitialDelay: a.Config.ConfirmInitialDelay,
		MaxDelay:     a.Config.ConfirmMaxDelay,
	}
}

// Listen reconciles on confirmed sign-in events until the returned stop
// function is called. report receives every result.
func (a *App) Listen(ctx context.Context, report func(reconcile.Result)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	events, unsubscribe := a.Identity.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Trigger.Listen(ctx, events, report)
	}()
	return func() {
		cancel()
		unsubscribe()
		<-done
	}
}

// Close releases the database, if any.
func (a *App) Close() error {
	return a.close()
}
