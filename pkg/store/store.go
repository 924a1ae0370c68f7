package store

import (
	"context"
	"errors"
	"time"

	"github.com/nstogner/glow/pkg/domain"
)

// ErrNotFound is wrapped by every store error for a missing row.
var ErrNotFound = errors.New("not found")

// ConversationStore persists conversations and their append-only messages.
type ConversationStore interface {
	// CreateConversation persists a new conversation. The ID field must be set by the caller.
	CreateConversation(ctx context.Context, c *domain.Conversation) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// ListConversations returns the conversations owned by email, most recently
	// updated first.
	ListConversations(ctx context.Context, email string) ([]domain.Conversation, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage adds msg to the end of its conversation and refreshes the
	// conversation's UpdatedAt. The ID field must be set by the caller.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// GetMessages returns the messages of a conversation in append order.
	GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// UpdateMessageMetadata replaces the metadata of a stored message. It is
	// the only mutation allowed on a persisted message.
	UpdateMessageMetadata(ctx context.Context, messageID string, metadata map[string]any) error
}

// ProductStore manages the product catalog.
type ProductStore interface {
	// FindProducts returns products matching filter ordered by popularity
	// descending. A positive filter.Limit caps the result.
	FindProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)

	// UpsertProducts inserts or replaces products by ID and returns the count written.
	UpsertProducts(ctx context.Context, products []domain.Product) (int, error)
}

// UserStore manages quiz participants and admins.
type UserStore interface {
	// ListUsers returns all users, newest first.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// GetUser retrieves a user by email.
	GetUser(ctx context.Context, email string) (*domain.User, error)

	// UpsertUser creates the user or updates its profile fields. An existing
	// admin flag is never cleared.
	UpsertUser(ctx context.Context, u *domain.User) error
}

// TemplateStore manages email templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *domain.EmailTemplate) error
	GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error)
	ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error)
	UpdateTemplate(ctx context.Context, t *domain.EmailTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
}

// CampaignStore manages email campaigns.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, c *domain.Campaign) error
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)

	// MarkCampaignSent records a completed send.
	MarkCampaignSent(ctx context.Context, id string, sentCount int, sentAt time.Time) error
}

// Store is the full persistence surface of the service.
type Store interface {
	ConversationStore
	ProductStore
	UserStore
	TemplateStore
	CampaignStore
	Close() error
}
