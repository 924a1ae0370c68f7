package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nstogner/glow/pkg/domain"
)

func TestToolDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		parts []domain.Part
		want  string
	}{
		{"no parts", nil, "Processing"},
		{"text only", []domain.Part{domain.TextPart("hi")}, "Processing"},
		{"routine", []domain.Part{{Type: "tool-plan_and_send_routine", State: domain.StateInputAvailable}}, "Generating Routine... (Normally takes 1 minute)"},
		{"mail", []domain.Part{{Type: "tool-send_mail", State: domain.StateInputStreaming}}, "Sending Mail..."},
		{"questions", []domain.Part{{Type: "tool-detect_skin_type_from_questions"}}, "Analyzing Skin Type (Questions)"},
		{"image", []domain.Part{{Type: "tool-analyze_skin_type_from_image"}}, "Analyzing Skin Type (Image)"},
		{"unknown", []domain.Part{{Type: "tool-foo"}}, "Using foo"},
		{"products uses generic label", []domain.Part{{Type: "tool-find_best_products"}}, "Using find_best_products"},
		{"routine fragment checked first", []domain.Part{{Type: "tool-send_mail_routine"}}, "Generating Routine... (Normally takes 1 minute)"},
		{
			"first tool part wins",
			[]domain.Part{domain.TextPart("x"), {Type: "tool-send_mail"}, {Type: "tool-plan_and_send_routine"}},
			"Sending Mail...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToolDisplayName(domain.Message{Parts: tt.parts}))
		})
	}
}
