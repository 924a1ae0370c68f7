package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/mail"
	"github.com/nstogner/glow/pkg/model"
)

// SendMail sends an arbitrary email on the user's request.
type SendMail struct {
	sender mail.Sender
}

// NewSendMail creates the send_mail tool.
func NewSendMail(sender mail.Sender) *SendMail {
	return &SendMail{sender: sender}
}

func (t *SendMail) Name() string { return domain.ToolSendMail }

func (t *SendMail) Description() string {
	return "Send an email. Each call sends one message: never retry a call, even if the result is unclear."
}

func (t *SendMail) InputSchema() *model.Schema {
	return &model.Schema{
		Type: model.TypeObject,
		Properties: map[string]*model.Schema{
			"to":      {Type: model.TypeString, Description: "Recipient email address."},
			"subject": {Type: model.TypeString, Description: "Subject line."},
			"body":    {Type: model.TypeString, Description: "Message body, plain text or HTML."},
		},
		Required: []string{"to", "subject", "body"},
	}
}

func (t *SendMail) Idempotent() bool { return false }

type mailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Execute sends the message once. Delivery failures are reported in the
// output.
func (t *SendMail) Execute(ctx context.Context, input map[string]any) (domain.ToolOutput, error) {
	var args mailArgs
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}

	msg := mail.Message{To: args.To, Subject: args.Subject}
	if strings.Contains(args.Body, "<") && strings.Contains(args.Body, ">") {
		msg.HTML = args.Body
	} else {
		msg.Text = args.Body
	}

	if err := t.sender.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Mail tool send failed", "to", args.To, "error", err)
		return &domain.MailOutput{
			Success: false,
			Message: fmt.Sprintf("Failed to send email to %s.", args.To),
			Error:   err.Error(),
		}, nil
	}
	return &domain.MailOutput{Success: true, Message: fmt.Sprintf("Email sent to %s.", args.To)}, nil
}
