package utils

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Emailer sends transactional mail through SendGrid. A nil Emailer or empty
// API key disables sending; callers treat mail as best-effort.
type Emailer struct {
	apiKey string
}

// NewEmailer creates an Emailer. An empty apiKey yields a disabled client.
func NewEmailer(apiKey string) *Emailer {
	return &Emailer{apiKey: apiKey}
}

// Send delivers one email. Returns nil without sending when disabled.
func (e *Emailer) Send(toName, toEmail, subject, textContent, htmlContent string) error {
	if e == nil || e.apiKey == "" {
		return nil
	}

	from := mail.NewEmail("FitView", "no-reply@fitview.app")
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, textContent, htmlContent)

	response, err := sendgrid.NewSendClient(e.apiKey).Send(message)
	if err != nil {
		return fmt.Errorf("send email to %s: %w", toEmail, err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("send email to %s: status %d", toEmail, response.StatusCode)
	}
	return nil
}
