// Package email implements outbound email delivery via Resend.
package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendSender sends transactional email through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a sender, or nil when no API key is configured so
// callers can treat email as disabled.
func NewResendSender(apiKey, from string) *ResendSender {
	if apiKey == "" {
		return nil
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Send delivers one HTML email.
func (s *ResendSender) Send(ctx context.Context, to, subject, html string) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %v", to, err)
	}
	return nil
}
