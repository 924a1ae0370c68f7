// Package chat turns agent messages into something a person can read: a
// single content string for storage, a status label for in-flight tool
// calls, and markup for routine text.
package chat

import (
	"strings"

	"github.com/nstogner/glow/pkg/domain"
)

// ExtractMessageContent resolves the best human-readable string for msg.
// It never fails; a message with nothing readable yields "".
//
// Resolution order: explicit content, then a completed routine result, then
// the concatenated text parts, then the first tool output carrying a message
// or summary.
func ExtractMessageContent(msg domain.Message) string {
	if msg.Content != "" {
		return msg.Content
	}

	for _, p := range msg.Parts {
		if p.ToolName() != domain.ToolPlanAndSendRoutine || p.State != domain.StateOutputAvailable {
			continue
		}
		if out, ok := p.Output.(*domain.RoutineOutput); ok && out != nil {
			if out.Message != "" {
				return out.Message
			}
			if out.Value != nil && out.Value.Message != "" {
				return out.Value.Message
			}
		}
	}

	var b strings.Builder
	for _, p := range msg.Parts {
		if p.IsText() {
			b.WriteString(p.Text)
		}
	}
	if b.Len() > 0 {
		return b.String()
	}

	for _, p := range msg.Parts {
		if !p.IsTool() {
			continue
		}
		if s := outputText(p.Output); s != "" {
			return s
		}
	}
	return ""
}

// outputText returns the message of out, or its summary when it has no
// message.
func outputText(out domain.ToolOutput) string {
	switch o := out.(type) {
	case *domain.RoutineOutput:
		if o == nil {
			return ""
		}
		if o.Message != "" {
			return o.Message
		}
		if o.Value != nil {
			return o.Value.Message
		}
	case *domain.ProductsOutput:
		if o != nil {
			return o.Summary
		}
	case *domain.SkinTypeOutput:
		if o != nil {
			return o.Summary
		}
	case *domain.MailOutput:
		if o != nil {
			return o.Message
		}
	case domain.RawOutput:
		if s, ok := o["message"].(string); ok && s != "" {
			return s
		}
		if s, ok := o["summary"].(string); ok {
			return s
		}
	}
	return ""
}
