// Package mail delivers invitation emails.
package mail

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/naveenspark/twofold/pkg/domain"
)

// EmailClient sends one plain-text message.
type EmailClient interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// InvitationMailer renders and sends invitation emails.
type InvitationMailer struct {
	client      EmailClient
	fromAddress string
	linkBaseURL string
}

// NewInvitationMailer returns a mailer that links to linkBaseURL.
func NewInvitationMailer(client EmailClient, fromAddress, linkBaseURL string) *InvitationMailer {
	return &InvitationMailer{
		client:      client,
		fromAddress: fromAddress,
		linkBaseURL: strings.TrimRight(linkBaseURL, "/"),
	}
}

// Link returns the redeem link for inv.
func (m *InvitationMailer) Link(inv domain.Invitation) string {
	return domain.LinkFor(inv).URL(m.linkBaseURL)
}

// SendInvitation emails inv to its invitee. inviterName may be empty.
func (m *InvitationMailer) SendInvitation(ctx context.Context, inv domain.Invitation, inviterName string) error {
	from := strings.TrimSpace(inviterName)
	if from == "" {
		from = "Your partner"
	}
	subject := fmt.Sprintf("%s invited you to share a household on twofold", from)
	body := fmt.Sprintf(`%s wants to manage your shared finances together on twofold.

Open this link to create your account and join the household:

  %s

The invitation expires on %s.

If you weren't expecting this, you can ignore this email.

-- 
twofold`,
		from,
		m.Link(inv),
		inv.ExpiresAt.UTC().Format("January 2, 2006"),
	)
	if err := m.client.Send(ctx, m.fromAddress, inv.InviteeEmail, subject, body); err != nil {
		return fmt.Errorf("mail.SendInvitation: %w", err)
	}
	return nil
}

// LogClient writes messages to the log instead of sending them. It stands
// in when no delivery provider is configured.
type LogClient struct{}

// Send logs the message.
func (LogClient) Send(_ context.Context, from, to, subject, body string) error {
	log.Printf("[mail] not sent (no provider configured) from=%s to=%s subject=%q\n%s", from, to, subject, body)
	return nil
}
