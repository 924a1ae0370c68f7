// Package fake provides a scripted model.Provider for tests.
package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model"
)

// ErrExhausted is returned once every scripted response has been used.
var ErrExhausted = errors.New("fake provider: no scripted responses left")

// Call records one Stream invocation.
type Call struct {
	Model        string
	Instructions string
	Messages     []model.Message
	Tools        []model.ToolSpec
}

// Provider replays scripted responses in order.
type Provider struct {
	mu        sync.Mutex
	responses []Response
	calls     []Call
}

// Response is one scripted reply. A non-nil Err fails the call.
type Response struct {
	Message model.Message
	Err     error
}

var _ model.Provider = (*Provider)(nil)

// New creates a Provider that replays responses.
func New(responses ...Response) *Provider {
	return &Provider{responses: responses}
}

// Text scripts a plain text reply.
func Text(s string) Response {
	return Response{Message: model.Message{
		Role:    domain.RoleAssistant,
		Content: []model.Content{{Type: domain.ContentTypeText, Text: s}},
	}}
}

// ToolCalls scripts a reply requesting the given tool calls, preceded by
// text when text is non-empty.
func ToolCalls(text string, calls ...domain.ToolCall) Response {
	msg := model.Message{Role: domain.RoleAssistant}
	if text != "" {
		msg.Content = append(msg.Content, model.Content{Type: domain.ContentTypeText, Text: text})
	}
	for i := range calls {
		msg.Content = append(msg.Content, model.Content{Type: domain.ContentTypeToolCall, ToolCall: &calls[i]})
	}
	return Response{Message: msg}
}

// Fail scripts an error reply.
func Fail(err error) Response {
	return Response{Err: err}
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) Stream(ctx context.Context, modelName, instructions string, messages []model.Message, tools []model.ToolSpec) (model.ModelStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{
		Model:        modelName,
		Instructions: instructions,
		Messages:     append([]model.Message(nil), messages...),
		Tools:        tools,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.responses) == 0 {
		return nil, ErrExhausted
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return stream{msg: r.Message}, nil
}

// Calls returns the recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

type stream struct {
	msg model.Message
}

func (s stream) FullMessage() (model.Message, error) { return s.msg, nil }
func (s stream) Close() error                        { return nil }
