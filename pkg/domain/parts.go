package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartTypeText tags a text part.
const PartTypeText = "text"

// ToolPartPrefix prefixes the type tag of every tool part.
const ToolPartPrefix = "tool-"

// PartState is the lifecycle state of a tool part.
type PartState string

const (
	StateInputStreaming  PartState = "input-streaming"
	StateInputAvailable  PartState = "input-available"
	StateOutputAvailable PartState = "output-available"
	StateOutputError     PartState = "output-error"
)

// Terminal reports whether no further updates are expected for a part in
// this state.
func (s PartState) Terminal() bool {
	return s == StateOutputAvailable || s == StateOutputError
}

// Part is a single content unit within a message: either text or a tool
// invocation record. Parts render in slice order.
type Part struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	State      PartState      `json:"state,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     ToolOutput     `json:"output,omitempty"`
	ErrorText  string         `json:"errorText,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// ToolPart builds a tool part for the named tool.
func ToolPart(toolName, callID string, state PartState, input map[string]any) Part {
	return Part{
		Type:       ToolPartPrefix + toolName,
		State:      state,
		ToolCallID: callID,
		Input:      input,
	}
}

// IsText reports whether p is a text part.
func (p Part) IsText() bool { return p.Type == PartTypeText }

// IsTool reports whether p is a tool part.
func (p Part) IsTool() bool { return strings.HasPrefix(p.Type, ToolPartPrefix) }

// ToolName returns the tool name of a tool part, or "" for other parts.
func (p Part) ToolName() string {
	if !p.IsTool() {
		return ""
	}
	return strings.TrimPrefix(p.Type, ToolPartPrefix)
}

type partJSON struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	State      PartState       `json:"state,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	Input      map[string]any  `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// UnmarshalJSON decodes a part, choosing the output type from the tool name.
func (p *Part) UnmarshalJSON(data []byte) error {
	var raw partJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Part{
		Type:       raw.Type,
		Text:       raw.Text,
		State:      raw.State,
		ToolCallID: raw.ToolCallID,
		Input:      raw.Input,
		ErrorText:  raw.ErrorText,
	}
	if p.IsTool() {
		out, err := DecodeToolOutput(p.ToolName(), raw.Output)
		if err != nil {
			return fmt.Errorf("decoding %s output: %w", p.Type, err)
		}
		p.Output = out
	}
	return nil
}
