package agent

import (
	"encoding/json"
	"strings"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model"
)

// DefaultInstructions is the system prompt of the skincare assistant.
const DefaultInstructions = `You are Glow, a friendly skincare assistant.

## Tools

- find_best_products: search the product catalog by skin type, concerns, budget and gender. An empty result means nothing matched; say so instead of retrying.
- detect_skin_type_from_questions: classify skin type from the user's answers about shine, tightness, flakiness, reactions and pores.
- analyze_skin_type_from_image: classify skin type from a face photo the user uploaded.
- plan_and_send_routine: build a morning and evening routine and email it. Call it at most once per request, and only after you know the user's email and skin type.
- send_mail: send a short email the user asked for.

## Guidelines

- Ask for missing details (skin type, concerns, budget, email) before recommending or emailing.
- Keep answers short and practical. Never give medical diagnoses.
- Always finish with a reply to the user.`

// MetadataImageURL is the message metadata key carrying an uploaded photo.
const MetadataImageURL = "imageUrl"

// toModelMessages converts stored conversation messages into model context.
// System messages are folded into the instructions. Assistant tool parts
// become a tool call followed by a tool result message.
func toModelMessages(instructions string, messages []domain.Message) (string, []model.Message) {
	var (
		system []string
		out    []model.Message
	)
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			if text := messageText(m); text != "" {
				system = append(system, text)
			}
		case domain.RoleAssistant:
			out = append(out, assistantMessages(m)...)
		default:
			text := messageText(m)
			if url, _ := m.Metadata[MetadataImageURL].(string); url != "" {
				text = strings.TrimSpace(text + "\n\n[Uploaded photo: " + url + "]")
			}
			if text == "" {
				continue
			}
			out = append(out, model.Message{
				Role:    domain.RoleUser,
				Content: []model.Content{{Type: domain.ContentTypeText, Text: text}},
			})
		}
	}
	if len(system) > 0 {
		instructions += "\n\n## Additional Instructions\n\n" + strings.Join(system, "\n\n")
	}
	return instructions, out
}

// messageText returns Content, or the concatenated text parts when Content
// is empty.
func messageText(m domain.Message) string {
	if m.Content != "" {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.IsText() {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// assistantMessages splits an assistant message into model turns. Text that
// follows a tool part starts a new assistant turn after the tool results.
func assistantMessages(m domain.Message) []model.Message {
	if len(m.Parts) == 0 {
		if m.Content == "" {
			return nil
		}
		return []model.Message{{
			Role:    domain.RoleAssistant,
			Content: []model.Content{{Type: domain.ContentTypeText, Text: m.Content}},
		}}
	}

	var (
		out     []model.Message
		current model.Message
		results model.Message
	)
	flush := func() {
		if len(current.Content) > 0 {
			current.Role = domain.RoleAssistant
			out = append(out, current)
		}
		if len(results.Content) > 0 {
			results.Role = domain.RoleTool
			out = append(out, results)
		}
		current, results = model.Message{}, model.Message{}
	}

	for _, p := range m.Parts {
		switch {
		case p.IsText():
			if len(results.Content) > 0 {
				flush()
			}
			current.Content = append(current.Content, model.Content{Type: domain.ContentTypeText, Text: p.Text})
		case p.IsTool() && p.State.Terminal():
			call := domain.ToolCall{ID: p.ToolCallID, Name: p.ToolName(), Input: p.Input}
			result := storedResult(p)
			current.Content = append(current.Content, model.Content{Type: domain.ContentTypeToolCall, ToolCall: &call})
			results.Content = append(results.Content, model.Content{Type: domain.ContentTypeToolResult, ToolResult: &result})
		}
	}
	flush()
	return out
}

// storedResult rebuilds the model-facing result of a persisted tool part.
func storedResult(p domain.Part) domain.ToolResult {
	r := domain.ToolResult{ToolCallID: p.ToolCallID, Name: p.ToolName()}
	if p.State == domain.StateOutputError {
		r.IsError = true
		r.Content = "Error: " + p.ErrorText
		return r
	}
	if p.Output == nil {
		r.Content = "{}"
		return r
	}
	b, err := json.Marshal(p.Output)
	if err != nil {
		r.Content = "{}"
		return r
	}
	r.Content = string(b)
	return r
}
