package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model"
	openai "github.com/sashabaranov/go-openai"
)

// Provider implements model.Provider on the OpenAI chat completions API.
type Provider struct {
	client *openai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new OpenAI provider. baseURL may be empty to use the public
// endpoint.
func New(apiKey, baseURL string) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "openai" }

// Stream sends the conversation to the chat completions API. The response is
// requested in one piece, so the returned stream is already complete.
func (p *Provider) Stream(ctx context.Context, modelName, instructions string, messages []model.Message, tools []model.ToolSpec) (model.ModelStream, error) {
	slog.Debug("OpenAI.Stream", "model", modelName, "messageCount", len(messages), "toolCount", len(tools))

	req := openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: buildMessages(instructions, messages),
		Tools:    buildTools(tools),
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned from OpenAI API")
	}

	msg, err := convertResponse(resp.Choices[0].Message)
	if err != nil {
		return nil, err
	}
	return &completedStream{msg: msg}, nil
}

func buildMessages(instructions string, messages []model.Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if instructions != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instructions})
	}

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleTool:
			for _, c := range msg.Content {
				if c.ToolResult == nil {
					continue
				}
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    c.ToolResult.Content,
					Name:       c.ToolResult.Name,
					ToolCallID: c.ToolResult.ToolCallID,
				})
			}
		case domain.RoleAssistant:
			m := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Text()}
			for _, tc := range msg.ToolCalls() {
				args, _ := json.Marshal(tc.Input)
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, m)
		case domain.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Text()})
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Text()})
		}
	}
	return out
}

func buildTools(tools []model.ToolSpec) []openai.Tool {
	var out []openai.Tool
	for _, t := range tools {
		var params any = t.Parameters
		if t.Parameters == nil {
			params = &model.Schema{Type: model.TypeObject, Properties: map[string]*model.Schema{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func convertResponse(m openai.ChatCompletionMessage) (model.Message, error) {
	msg := model.Message{Role: domain.RoleAssistant}
	if m.Content != "" {
		msg.Content = append(msg.Content, model.Content{Type: domain.ContentTypeText, Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		args, err := model.ParseJSONObject(tc.Function.Arguments)
		if err != nil {
			return model.Message{}, fmt.Errorf("parsing arguments for %s: %w", tc.Function.Name, err)
		}
		id := tc.ID
		if id == "" {
			id = "call-" + uuid.New().String()
		}
		msg.Content = append(msg.Content, model.Content{
			Type: domain.ContentTypeToolCall,
			ToolCall: &domain.ToolCall{
				ID:    id,
				Name:  tc.Function.Name,
				Input: args,
			},
		})
	}
	return msg, nil
}

// completedStream is a ModelStream over an already received response.
type completedStream struct {
	msg model.Message
}

func (s *completedStream) FullMessage() (model.Message, error) { return s.msg, nil }

func (s *completedStream) Close() error { return nil }
