package model

import (
	"context"

	"github.com/nstogner/glow/pkg/domain"
)

// Message represents a message in the model's conversation context.
type Message struct {
	// Role indicates the sender (user, assistant, tool).
	Role domain.Role
	// Content holds the message parts.
	Content []Content
}

// Content represents a single component of a message.
type Content struct {
	Type string // "text", "tool_call", "tool_result"

	// Text content (when Type == "text").
	Text string `json:"text,omitempty"`

	// Tool call (when Type == "tool_call").
	ToolCall *domain.ToolCall `json:"tool_call,omitempty"`

	// Tool result (when Type == "tool_result").
	ToolResult *domain.ToolResult `json:"tool_result,omitempty"`

	// ThoughtSignature is an opaque signature for the model's internal state.
	// Must be round-tripped back to the model on the next request.
	ThoughtSignature []byte `json:"thought_signature,omitempty"`
}

// Text returns the concatenated text content of m.
func (m Message) Text() string {
	var s string
	for _, c := range m.Content {
		if c.Type == domain.ContentTypeText {
			s += c.Text
		}
	}
	return s
}

// ToolCalls returns the tool calls requested in m, in order.
func (m Message) ToolCalls() []domain.ToolCall {
	var calls []domain.ToolCall
	for _, c := range m.Content {
		if c.Type == domain.ContentTypeToolCall && c.ToolCall != nil {
			calls = append(calls, *c.ToolCall)
		}
	}
	return calls
}

// ToolSpec declares a tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Provider represents a service that provides LLMs (e.g. Gemini, OpenAI).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini", "openai").
	Name() string

	// Stream sends a conversation context to the LLM and returns a stream of responses.
	// modelName identifies which model to use (e.g. "gemini-2.5-flash").
	// instructions is the system prompt.
	// messages is the conversation history.
	// tools are the functions the model may call; nil disables tool calling.
	Stream(ctx context.Context, modelName, instructions string, messages []Message, tools []ToolSpec) (ModelStream, error)
}

// ModelStream abstracts the stream of responses from the model.
type ModelStream interface {
	// FullMessage blocks until the complete response is available and returns it.
	FullMessage() (Message, error)

	// Close releases resources associated with this stream.
	Close() error
}

// Complete runs a single tool-free prompt and returns the text response.
func Complete(ctx context.Context, p Provider, modelName, instructions, prompt string) (string, error) {
	stream, err := p.Stream(ctx, modelName, instructions, []Message{{
		Role:    domain.RoleUser,
		Content: []Content{{Type: domain.ContentTypeText, Text: prompt}},
	}}, nil)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	msg, err := stream.FullMessage()
	if err != nil {
		return "", err
	}
	return msg.Text(), nil
}
