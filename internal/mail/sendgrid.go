package mail

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const defaultSendGridHost = "https://api.sendgrid.com"

// SendGridClient implements EmailClient with SendGrid.
type SendGridClient struct {
	apiKey string
	host   string
}

// NewSendGridClient returns a client for apiKey.
func NewSendGridClient(apiKey string) *SendGridClient {
	return &SendGridClient{apiKey: apiKey, host: defaultSendGridHost}
}

// Send sends an email using SendGrid.
func (c *SendGridClient) Send(ctx context.Context, from, to, subject, body string) error {
	if c.apiKey == "" {
		return fmt.Errorf("sendgrid api key is empty")
	}
	if from == "" {
		return fmt.Errorf("from address is empty")
	}
	if to == "" {
		return fmt.Errorf("to address is empty")
	}

	message := sgmail.NewSingleEmail(
		sgmail.NewEmail("twofold", from),
		subject,
		sgmail.NewEmail("", to),
		body,
		"<pre>"+html.EscapeString(body)+"</pre>",
	)

	client := sendgrid.NewSendClient(c.apiKey)
	client.BaseURL = strings.TrimRight(c.host, "/") + "/v3/mail/send"
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= 400 {
		log.Printf("[sendgrid] error status=%d, body=%s", response.StatusCode, response.Body)
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", response.StatusCode, response.Body)
	}

	log.Printf("[sendgrid] mail sent: status=%d to=%s", response.StatusCode, to)
	return nil
}
