package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/naveenspark/twofold/internal/session"
	"github.com/naveenspark/twofold/internal/store/sqlstore"
	"github.com/naveenspark/twofold/pkg/client"
	"github.com/naveenspark/twofold/pkg/domain"
)

func TestNotifier(t *testing.T) {
	var n Notifier
	a, cancelA := n.Subscribe()
	b, cancelB := n.Subscribe()
	defer cancelB()

	n.Publish(domain.AuthEvent{Kind: domain.SignedIn})
	for _, ch := range []<-chan domain.AuthEvent{a, b} {
		select {
		case ev := <-ch:
			if ev.Kind != domain.SignedIn {
				t.Errorf("Kind = %q, want %q", ev.Kind, domain.SignedIn)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	cancelA()
	cancelA() // idempotent
	if _, ok := <-a; ok {
		t.Error("cancelled channel should be closed")
	}
	n.Publish(domain.AuthEvent{Kind: domain.SignedOut})
	if ev := <-b; ev.Kind != domain.SignedOut {
		t.Errorf("Kind = %q, want %q", ev.Kind, domain.SignedOut)
	}
}

func TestNotifier_SlowSubscriberDoesNotBlock(t *testing.T) {
	var n Notifier
	_, cancel := n.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Publish(domain.AuthEvent{Kind: domain.SignedIn})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func newLocal(t *testing.T) *Local {
	t.Helper()
	st, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "twofold.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	l := NewLocal(st, session.NewFile(filepath.Join(t.TempDir(), "session.json")))
	l.cost = bcrypt.MinCost
	return l
}

func TestLocal_CreateSignInConfirm(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	events, cancel := l.Subscribe()
	defer cancel()

	created, err := l.CreateIdentity(ctx, "Bo@Example.com", "hunter2", map[string]string{"display_name": "Bo"})
	if err != nil {
		t.Fatalf("CreateIdentity() error: %v", err)
	}
	if created.Confirmed() {
		t.Error("new identity should be unconfirmed")
	}

	if _, err := l.CreateIdentity(ctx, "bo@example.com", "other", nil); !errors.Is(err, domain.ErrDuplicateIdentity) {
		t.Fatalf("duplicate CreateIdentity() error = %v, want ErrDuplicateIdentity", err)
	}
	if _, err := l.SignIn(ctx, "bo@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("SignIn(wrong password) error = %v", err)
	}
	if _, err := l.SignIn(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("SignIn(unknown) error = %v", err)
	}

	s, err := l.SignIn(ctx, "bo@example.com", "hunter2")
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if s.IdentityID != created.ID || s.Confirmed() {
		t.Errorf("session = %+v", s)
	}
	if ev := <-events; ev.Kind != domain.SignedIn || ev.Session.Confirmed() {
		t.Errorf("sign-in event = %+v", ev)
	}

	confirmed, err := l.ConfirmEmail(ctx, "BO@example.com")
	if err != nil {
		t.Fatalf("ConfirmEmail() error: %v", err)
	}
	if !confirmed.Confirmed() {
		t.Error("identity not confirmed")
	}
	select {
	case ev := <-events:
		if ev.Kind != domain.SignedIn || !ev.Session.Confirmed() {
			t.Errorf("confirmation event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event after confirming the signed-in identity")
	}

	// Confirming again changes nothing and announces nothing.
	if _, err := l.ConfirmEmail(ctx, "bo@example.com"); err != nil {
		t.Fatalf("second ConfirmEmail() error: %v", err)
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v", ev)
	default:
	}

	cur, err := l.CurrentSession(ctx)
	if err != nil || cur == nil || !cur.Confirmed() {
		t.Fatalf("CurrentSession() = %+v, %v", cur, err)
	}
	looked, err := l.Lookup(ctx, created.ID)
	if err != nil || looked.Metadata["display_name"] != "Bo" {
		t.Errorf("Lookup() = %+v, %v", looked, err)
	}

	if err := l.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error: %v", err)
	}
	if ev := <-events; ev.Kind != domain.SignedOut || ev.Session.IdentityID != created.ID {
		t.Errorf("sign-out event = %+v", ev)
	}
	if cur, _ := l.CurrentSession(ctx); cur != nil {
		t.Error("session survived SignOut")
	}
}

func TestLocal_CurrentSessionNoticesConfirmation(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	if _, err := l.CreateIdentity(ctx, "cy@example.com", "pw", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SignIn(ctx, "cy@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	events, cancel := l.Subscribe()
	defer cancel()

	// Confirmed from another process: only the table changes.
	if _, err := l.identities.ConfirmIdentity(ctx, "cy@example.com", time.Now()); err != nil {
		t.Fatal(err)
	}
	cur, err := l.CurrentSession(ctx)
	if err != nil || cur == nil || !cur.Confirmed() {
		t.Fatalf("CurrentSession() = %+v, %v", cur, err)
	}
	select {
	case ev := <-events:
		if ev.Kind != domain.SignedIn {
			t.Errorf("Kind = %q", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no SignedIn event for newly confirmed session")
	}
}

func TestHosted_LookupSignsInAfterConfirmation(t *testing.T) {
	id := uuid.New()
	var confirmed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/signup":
			json.NewEncoder(w).Encode(map[string]any{"id": id, "email": "dee@example.com"}) //nolint:errcheck
		case "/auth/v1/token":
			if !confirmed.Load() {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
					"code": 400, "error_code": "email_not_confirmed", "msg": "Email not confirmed",
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
				"access_token": "acc", "refresh_token": "ref", "expires_in": 3600,
				"user": map[string]any{"id": id, "email": "dee@example.com", "email_confirmed_at": time.Now().UTC()},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	h := NewHosted(client.New(srv.URL, "anon"), session.NewFile(filepath.Join(t.TempDir(), "session.json")))
	events, cancel := h.Subscribe()
	defer cancel()

	if _, err := h.CreateIdentity(ctx, "dee@example.com", "pw", nil); err != nil {
		t.Fatalf("CreateIdentity() error: %v", err)
	}
	got, err := h.Lookup(ctx, id)
	if err != nil {
		t.Fatalf("Lookup() before confirmation error: %v", err)
	}
	if got.Confirmed() {
		t.Error("identity confirmed too early")
	}

	confirmed.Store(true)
	got, err = h.Lookup(ctx, id)
	if err != nil || !got.Confirmed() {
		t.Fatalf("Lookup() after confirmation = %+v, %v", got, err)
	}
	select {
	case ev := <-events:
		if ev.Kind != domain.SignedIn || ev.Session.IdentityID != id {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no SignedIn event")
	}

	if _, err := h.Lookup(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Lookup(stranger) error = %v, want ErrNotFound", err)
	}
}

func TestHosted_CurrentSessionDropsDeadRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error_code": "refresh_token_not_found"}) //nolint:errcheck
	}))
	defer srv.Close()

	file := session.NewFile(filepath.Join(t.TempDir(), "session.json"))
	if err := file.Save(domain.Session{
		IdentityID:   uuid.New(),
		AccessToken:  "opaque",
		RefreshToken: "dead",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	h := NewHosted(client.New(srv.URL, "anon"), file)

	s, err := h.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("CurrentSession() error: %v", err)
	}
	if s != nil {
		t.Errorf("CurrentSession() = %+v, want nil", s)
	}
	if stored, _ := file.Load(); stored != nil {
		t.Error("dead session left on disk")
	}
}
