package backend

import (
	"context"
	"fmt"
	"net/http"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// EmailMessage is the body of POST /email/send.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// FormSubmission is the body of POST /email/submit-form.
type FormSubmission struct {
	To      string            `json:"to,omitempty"`
	Subject string            `json:"subject"`
	Fields  map[string]string `json:"fields"`
	HTML    string            `json:"html,omitempty"`
}

func (c *Client) SendEmail(ctx context.Context, msg EmailMessage) error {
	return c.call(ctx, "send email", http.MethodPost, "/email/send", msg, nil)
}

func (c *Client) SubmitForm(ctx context.Context, form FormSubmission) error {
	return c.call(ctx, "submit form", http.MethodPost, "/email/submit-form", form, nil)
}

// EmailSender delivers notification tasks through the backend mail endpoints.
type EmailSender struct {
	client *Client
}

// NewEmailSender wraps client.
func NewEmailSender(client *Client) *EmailSender {
	return &EmailSender{client: client}
}

// Send routes customer confirmations to /email/send and business notifications to /email/submit-form.
func (s *EmailSender) Send(ctx context.Context, task domain.NotificationTask) error {
	switch task.Kind {
	case domain.NotificationOrderConfirmation:
		return s.client.SendEmail(ctx, EmailMessage{To: task.To, Subject: task.Subject, HTML: task.HTML})
	case domain.NotificationBusiness:
		return s.client.SubmitForm(ctx, FormSubmission{To: task.To, Subject: task.Subject, Fields: task.Fields, HTML: task.HTML})
	default:
		return fmt.Errorf("backend: unknown notification kind %q", task.Kind)
	}
}
