package reconcile

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

// Reconciler is the engine entry point every trigger calls.
type Reconciler interface {
	Reconcile(ctx context.Context, identityID uuid.UUID) (Result, error)
}

// Sessions yields the signed-in session.
type Sessions interface {
	CurrentSession(ctx context.Context) (*domain.Session, error)
}

// Trigger connects the three ways a run starts: a confirmed sign-in event,
// the app coming to the foreground, and an explicit request.
type Trigger struct {
	engine   Reconciler
	sessions Sessions
}

// NewTrigger returns a trigger for engine.
func NewTrigger(engine Reconciler, sessions Sessions) *Trigger {
	return &Trigger{engine: engine, sessions: sessions}
}

// Listen reconciles on every SignedIn event whose session is confirmed,
// until ctx is done or events is closed. report receives each result.
func (t *Trigger) Listen(ctx context.Context, events <-chan domain.AuthEvent, report func(Result)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != domain.SignedIn || !ev.Session.Confirmed() {
				continue
			}
			res, err := t.engine.Reconcile(ctx, ev.Session.IdentityID)
			if err != nil {
				log.Printf("[reconcile] sign-in run for %s: %v", ev.Session.IdentityID, err)
			}
			if report != nil && !res.Skipped {
				report(res)
			}
		}
	}
}

// Now reconciles the current session, if any. Foreground and manual
// triggers both land here.
func (t *Trigger) Now(ctx context.Context) (Result, error) {
	s, err := t.sessions.CurrentSession(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile.Now: %w", err)
	}
	if s == nil {
		return Result{}, nil
	}
	return t.engine.Reconcile(ctx, s.IdentityID)
}
