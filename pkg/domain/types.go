package domain

import "time"

// Conversation is an ordered sequence of messages owned by one user (by email).
type Conversation struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one turn in a conversation. Content may be empty when the body
// lives in Parts.
type Message struct {
	ID             string         `json:"id,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Role           Role           `json:"role"`
	Content        string         `json:"content,omitempty"`
	Parts          []Part         `json:"parts,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt,omitempty"`
}

// ConversationWithMessages includes a conversation and its messages.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Product is a catalog entry that can be recommended.
type Product struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Brand      string   `json:"brand,omitempty"`
	Category   string   `json:"category,omitempty"`
	Price      float64  `json:"price,omitempty"`
	Budget     string   `json:"budget,omitempty"`
	Gender     string   `json:"gender,omitempty"`
	SkinTypes  []string `json:"skin_types"`
	Concerns   []string `json:"concerns"`
	Popularity int      `json:"popularity"`
	URL        string   `json:"url,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
}

// ProductFilter narrows a catalog query. Zero fields do not filter.
type ProductFilter struct {
	SkinType string
	Concerns []string
	Budget   string
	Gender   string
	Category string
	Limit    int
}

// User is a quiz participant or an admin.
type User struct {
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	SkinType  string    `json:"skin_type,omitempty"`
	Concerns  []string  `json:"concerns,omitempty"`
	Budget    string    `json:"budget,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Age       int       `json:"age,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailTemplate is an admin-managed email body. Body may reference {{name}}
// and {{email}}.
type EmailTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Campaign statuses.
const (
	CampaignDraft = "draft"
	CampaignSent  = "sent"
)

// Campaign sends one template to every user.
type Campaign struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TemplateID string     `json:"template_id"`
	Status     string     `json:"status"`
	SentCount  int        `json:"sent_count"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// ToolCall represents a tool invocation by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult represents the outcome of a tool call execution as fed back to
// the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}
