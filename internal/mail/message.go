// Package mail builds and delivers transactional email.
package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
)

// JobTypeSendEmail identifies queued email jobs.
const JobTypeSendEmail = "send_email"

// VerificationSubject is the subject line of account verification email.
const VerificationSubject = "Verify your EcoShield360 account"

// ErrInvalidMessage is returned for messages without a recipient or subject.
var ErrInvalidMessage = errors.New("invalid email message")

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Message is a single outgoing HTML email.
type Message struct {
	To       string `json:"to"`
	ToName   string `json:"to_name,omitempty"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// Validate checks that the message can be delivered.
func (m Message) Validate() error {
	if m.To == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidMessage)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidMessage)
	}
	return nil
}

// Job is the queued form of a message.
type Job struct {
	JobType string  `json:"job_type"`
	Email   Message `json:"email"`
}

// Sender delivers a message immediately.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// VerificationMessage renders the account verification email.
func VerificationMessage(to, name, link string) (Message, error) {
	var body bytes.Buffer
	err := templates.ExecuteTemplate(&body, "verification.html", struct {
		Name            string
		VerificationURL string
	}{Name: name, VerificationURL: link})
	if err != nil {
		return Message{}, fmt.Errorf("render verification template: %w", err)
	}

	return Message{
		To:       to,
		ToName:   name,
		Subject:  VerificationSubject,
		HTMLBody: body.String(),
	}, nil
}
