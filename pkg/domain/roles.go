package domain

// Role defines the sender of a message.
type Role string

const (
	// RoleUser indicates a message from the user.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the model/assistant.
	RoleAssistant Role = "assistant"
	// RoleSystem indicates a system-level message.
	RoleSystem Role = "system"
	// RoleTool indicates a tool result. It only appears in model context,
	// never in a persisted conversation.
	RoleTool Role = "tool"
)

// Valid reports whether r may appear in a persisted conversation.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Model content types.
const (
	ContentTypeText       = "text"
	ContentTypeImage      = "image"
	ContentTypeToolCall   = "tool_call"
	ContentTypeToolResult = "tool_result"
)
