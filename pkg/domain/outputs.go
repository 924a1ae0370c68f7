package domain

import (
	"bytes"
	"encoding/json"
)

// Tool wire names.
const (
	ToolFindBestProducts            = "find_best_products"
	ToolPlanAndSendRoutine          = "plan_and_send_routine"
	ToolDetectSkinTypeFromQuestions = "detect_skin_type_from_questions"
	ToolAnalyzeSkinTypeFromImage    = "analyze_skin_type_from_image"
	ToolSendMail                    = "send_mail"
)

// ToolOutput is the result payload of a tool part. The set of implementations
// is closed: one type per tool plus RawOutput for names this build does not
// know.
type ToolOutput interface {
	toolOutput()
}

// ProductsOutput is the output of find_best_products.
type ProductsOutput struct {
	Products []Product `json:"products"`
	Summary  string    `json:"summary,omitempty"`
}

// RoutineValue is the nested form of a routine result.
type RoutineValue struct {
	Message string `json:"message"`
}

// RoutineOutput is the output of plan_and_send_routine.
type RoutineOutput struct {
	Message   string        `json:"message,omitempty"`
	Value     *RoutineValue `json:"value,omitempty"`
	EmailSent bool          `json:"emailSent"`
	Error     string        `json:"error,omitempty"`
}

// SkinTypeOutput is the output of both skin type classifiers.
type SkinTypeOutput struct {
	SkinType    string  `json:"skinType"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation,omitempty"`
	Summary     string  `json:"summary,omitempty"`
}

// MailOutput is the output of send_mail.
type MailOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RawOutput holds the output of a tool unknown to this build.
type RawOutput map[string]any

func (*ProductsOutput) toolOutput() {}
func (*RoutineOutput) toolOutput()  {}
func (*SkinTypeOutput) toolOutput() {}
func (*MailOutput) toolOutput()     {}
func (RawOutput) toolOutput()       {}

// DecodeToolOutput decodes raw JSON into the output type for toolName.
// Empty or null input yields a nil output.
func DecodeToolOutput(toolName string, raw json.RawMessage) (ToolOutput, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var out ToolOutput
	switch toolName {
	case ToolFindBestProducts:
		out = &ProductsOutput{}
	case ToolPlanAndSendRoutine:
		out = &RoutineOutput{}
	case ToolDetectSkinTypeFromQuestions, ToolAnalyzeSkinTypeFromImage:
		out = &SkinTypeOutput{}
	case ToolSendMail:
		out = &MailOutput{}
	default:
		var m RawOutput
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
