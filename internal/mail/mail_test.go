package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/twofold/pkg/domain"
)

type capturedMail struct {
	from, to, subject, body string
}

type fakeClient struct {
	sent []capturedMail
	err  error
}

func (f *fakeClient) Send(_ context.Context, from, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, capturedMail{from, to, subject, body})
	return nil
}

func testInvitation() domain.Invitation {
	return domain.Invitation{
		ID:                uuid.New(),
		InviterIdentityID: uuid.New(),
		InviteeEmail:      "partner@x.com",
		Token:             "tok",
		ExpiresAt:         time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
	}
}

func TestSendInvitation(t *testing.T) {
	fc := &fakeClient{}
	m := NewInvitationMailer(fc, "hello@twofold.app", "https://twofold.app/")
	inv := testInvitation()

	if err := m.SendInvitation(context.Background(), inv, "Ana"); err != nil {
		t.Fatalf("SendInvitation() error: %v", err)
	}
	if len(fc.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(fc.sent))
	}
	got := fc.sent[0]
	if got.to != "partner@x.com" || got.from != "hello@twofold.app" {
		t.Errorf("envelope = %+v", got)
	}
	if !strings.Contains(got.subject, "Ana") {
		t.Errorf("subject = %q", got.subject)
	}
	link := m.Link(inv)
	if !strings.Contains(got.body, link) || !strings.HasPrefix(link, "https://twofold.app/accept?") {
		t.Errorf("body does not carry link %q:\n%s", link, got.body)
	}
	if !strings.Contains(got.body, "March 8, 2026") {
		t.Errorf("body missing expiry:\n%s", got.body)
	}

	parsed, err := domain.ParseInviteLink(link)
	if err != nil || parsed != domain.LinkFor(inv) {
		t.Errorf("link does not round-trip: %+v, %v", parsed, err)
	}
}

func TestSendInvitation_ClientError(t *testing.T) {
	boom := errors.New("smtp down")
	m := NewInvitationMailer(&fakeClient{err: boom}, "a@b.c", "https://x")
	if err := m.SendInvitation(context.Background(), testInvitation(), ""); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestSendGridClient_Send(t *testing.T) {
	var payload struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Subject          string `json:"subject"`
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sg-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&payload) //nolint:errcheck
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewSendGridClient("sg-key")
	c.host = srv.URL
	if err := c.Send(context.Background(), "hello@twofold.app", "partner@x.com", "hi", "body"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if payload.From.Email != "hello@twofold.app" || payload.Subject != "hi" {
		t.Errorf("payload = %+v", payload)
	}
	if len(payload.Personalizations) != 1 || payload.Personalizations[0].To[0].Email != "partner@x.com" {
		t.Errorf("recipients = %+v", payload.Personalizations)
	}
}

func TestSendGridClient_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"bad from"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewSendGridClient("sg-key")
	c.host = srv.URL
	if err := c.Send(context.Background(), "a@b.c", "d@e.f", "s", "b"); err == nil {
		t.Error("expected error for 400 response")
	}

	tests := []struct {
		name, key, from, to string
	}{
		{"no key", "", "a@b.c", "d@e.f"},
		{"no from", "k", "", "d@e.f"},
		{"no to", "k", "a@b.c", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewSendGridClient(tt.key).Send(context.Background(), tt.from, tt.to, "s", "b"); err == nil {
				t.Error("expected error")
			}
		})
	}
}
