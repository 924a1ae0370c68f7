// Package mail delivers outbound email. Every send is a single attempt:
// callers see the failure and nothing retries on their behalf, so a message
// is never delivered twice.
package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/mail"
	"strings"
)

// ErrInvalidMessage is wrapped by Validate failures.
var ErrInvalidMessage = errors.New("invalid mail message")

// Message is one outbound email. HTML is preferred; Text is used when HTML
// is empty.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Sender delivers a message in at most one attempt.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Validate checks the recipient address and that the message has a body.
func Validate(msg Message) error {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrInvalidMessage, msg.To, err)
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidMessage)
	}
	if msg.HTML == "" && msg.Text == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}
	return nil
}

// LogSender logs messages instead of delivering them. It is the sender used
// when no SMTP server is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	if err := Validate(msg); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Mail (not delivered)", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.HTML)+len(msg.Text))
	return nil
}

// Render substitutes {{name}} and {{email}} placeholders in a template body.
// Values are HTML-escaped.
func Render(body string, name, email string) string {
	if name == "" {
		name = "there"
	}
	return strings.NewReplacer(
		"{{name}}", html.EscapeString(name),
		"{{ name }}", html.EscapeString(name),
		"{{email}}", html.EscapeString(email),
		"{{ email }}", html.EscapeString(email),
	).Replace(body)
}

// Document wraps an HTML fragment in a minimal email document.
func Document(title, fragment string) string {
	return `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>` + html.EscapeString(title) + `</title></head>
<body style="font-family: sans-serif; line-height: 1.5;">
` + fragment + `
</body>
</html>
`
}
