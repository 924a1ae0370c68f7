package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nstogner/glow/pkg/domain"
)

func routinePart(state domain.PartState, out *domain.RoutineOutput) domain.Part {
	p := domain.ToolPart(domain.ToolPlanAndSendRoutine, "c1", state, nil)
	if out != nil {
		p.Output = out
	}
	return p
}

func TestExtractMessageContent(t *testing.T) {
	tests := []struct {
		name string
		msg  domain.Message
		want string
	}{
		{
			name: "empty message",
			msg:  domain.Message{},
			want: "",
		},
		{
			name: "explicit content wins",
			msg: domain.Message{
				Content: "plain",
				Parts:   []domain.Part{routinePart(domain.StateOutputAvailable, &domain.RoutineOutput{Message: "R"})},
			},
			want: "plain",
		},
		{
			name: "routine message beats text parts",
			msg: domain.Message{Parts: []domain.Part{
				domain.TextPart("a"),
				routinePart(domain.StateOutputAvailable, &domain.RoutineOutput{Message: "R"}),
				domain.TextPart("b"),
			}},
			want: "R",
		},
		{
			name: "routine nested value",
			msg: domain.Message{Parts: []domain.Part{
				domain.TextPart("a"),
				routinePart(domain.StateOutputAvailable, &domain.RoutineOutput{Value: &domain.RoutineValue{Message: "V"}}),
			}},
			want: "V",
		},
		{
			name: "routine still running falls back to text",
			msg: domain.Message{Parts: []domain.Part{
				routinePart(domain.StateInputAvailable, nil),
				domain.TextPart("working"),
			}},
			want: "working",
		},
		{
			name: "text parts concatenated without separator",
			msg: domain.Message{Parts: []domain.Part{
				domain.TextPart("Hello, "),
				domain.TextPart("world"),
			}},
			want: "Hello, world",
		},
		{
			name: "summary fallback",
			msg: domain.Message{Parts: []domain.Part{
				{Type: "tool-find_best_products", State: domain.StateOutputAvailable, Output: &domain.ProductsOutput{Summary: "S"}},
			}},
			want: "S",
		},
		{
			name: "unknown tool raw output",
			msg: domain.Message{Parts: []domain.Part{
				{Type: "tool-foo", State: domain.StateOutputAvailable, Output: domain.RawOutput{"summary": "S"}},
			}},
			want: "S",
		},
		{
			name: "message preferred over summary in raw output",
			msg: domain.Message{Parts: []domain.Part{
				{Type: "tool-foo", State: domain.StateOutputAvailable, Output: domain.RawOutput{"summary": "S", "message": "M"}},
			}},
			want: "M",
		},
		{
			name: "first tool with text wins",
			msg: domain.Message{Parts: []domain.Part{
				{Type: "tool-detect_skin_type_from_questions", State: domain.StateOutputAvailable, Output: &domain.SkinTypeOutput{SkinType: "oily"}},
				{Type: "tool-send_mail", State: domain.StateOutputError, Output: &domain.MailOutput{Message: "failed to send"}},
				{Type: "tool-find_best_products", State: domain.StateOutputAvailable, Output: &domain.ProductsOutput{Summary: "later"}},
			}},
			want: "failed to send",
		},
		{
			name: "tool parts without output",
			msg: domain.Message{Parts: []domain.Part{
				{Type: "tool-send_mail", State: domain.StateInputAvailable},
				{Type: "tool-foo", Output: domain.RawOutput{"summary": 3}},
			}},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMessageContent(tt.msg))
		})
	}
}
