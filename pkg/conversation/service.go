// Package conversation runs chat turns against the agent and persists the
// conversation around them.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nstogner/glow/pkg/agent"
	"github.com/nstogner/glow/pkg/auth"
	"github.com/nstogner/glow/pkg/chat"
	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/store"
)

// MaxTitleLength is the rune limit of generated conversation titles.
const MaxTitleLength = 60

const defaultTitle = "New conversation"

var (
	// ErrInvalidMessage is returned for turns whose messages fail validation.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrTurnFailed wraps every error returned by the agent.
	ErrTurnFailed = errors.New("turn failed")
)

// Runner runs one agent turn.
type Runner interface {
	Run(ctx context.Context, messages []domain.Message, observe agent.Observer) (*domain.Message, error)
}

// Service coordinates the conversation store and the agent.
type Service struct {
	store store.ConversationStore
	agent Runner
	now   func() time.Time
}

// NewService creates a Service.
func NewService(s store.ConversationStore, r Runner) *Service {
	return &Service{store: s, agent: r, now: func() time.Time { return time.Now().UTC() }}
}

// TurnInput is one chat request.
type TurnInput struct {
	// ConversationID continues an existing conversation. Empty starts a new
	// one.
	ConversationID string
	// Messages is the client's message list. The last entry is the new user
	// message. For a new conversation the earlier entries are used as
	// context; for an existing one the stored history is used instead.
	Messages []domain.Message
	// Observe receives in-flight snapshots of the assistant message.
	Observe agent.Observer
}

// TurnOutput is the result of a successful turn.
type TurnOutput struct {
	Conversation *domain.Conversation `json:"conversation"`
	UserMessage  *domain.Message      `json:"userMessage"`
	Message      *domain.Message      `json:"message"`
}

// Turn validates the request, appends the user message, runs the agent and
// appends the assistant message. When the agent fails the conversation ends
// at the user message and the error is returned.
func (s *Service) Turn(ctx context.Context, id *auth.Identity, in TurnInput) (*TurnOutput, error) {
	if err := validate(in.Messages); err != nil {
		return nil, err
	}
	latest := in.Messages[len(in.Messages)-1]

	var (
		conv    *domain.Conversation
		history []domain.Message
		err     error
	)
	if in.ConversationID == "" {
		conv = &domain.Conversation{
			ID:    uuid.New().String(),
			Email: id.Email,
			Title: Title(in.Messages),
		}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		slog.InfoContext(ctx, "Conversation created", "conversationID", conv.ID, "email", id.Email)
		// Earlier messages the client started with become the stored
		// history, so the next turn sees the same context as this one.
		for _, m := range in.Messages[:len(in.Messages)-1] {
			seeded := m
			seeded.ID = uuid.New().String()
			seeded.ConversationID = conv.ID
			seeded.Content = chat.ExtractMessageContent(m)
			seeded.CreatedAt = s.now()
			if err := s.store.AppendMessage(ctx, &seeded); err != nil {
				return nil, fmt.Errorf("appending history: %w", err)
			}
			history = append(history, seeded)
		}
	} else {
		conv, err = s.owned(ctx, id, in.ConversationID)
		if err != nil {
			return nil, err
		}
		history, err = s.store.GetMessages(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("loading messages: %w", err)
		}
	}

	userMsg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        latest.Content,
		Parts:          latest.Parts,
		Metadata:       latest.Metadata,
		CreatedAt:      s.now(),
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("appending user message: %w", err)
	}

	turnMessages := append(append([]domain.Message(nil), history...), *userMsg)
	reply, err := s.agent.Run(ctx, turnMessages, in.Observe)
	if err != nil {
		slog.ErrorContext(ctx, "Turn failed", "conversationID", conv.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTurnFailed, err)
	}

	reply.ConversationID = conv.ID
	reply.Content = chat.ExtractMessageContent(*reply)
	if err := s.store.AppendMessage(ctx, reply); err != nil {
		return nil, fmt.Errorf("appending assistant message: %w", err)
	}
	slog.InfoContext(ctx, "Turn completed", "conversationID", conv.ID, "parts", len(reply.Parts))

	return &TurnOutput{Conversation: conv, UserMessage: userMsg, Message: reply}, nil
}

func validate(messages []domain.Message) error {
	if len(messages) == 0 {
		return agent.ErrNoMessages
	}
	for i, m := range messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidMessage, i, m.Role)
		}
	}
	latest := messages[len(messages)-1]
	if latest.Role != domain.RoleUser {
		return fmt.Errorf("%w: last message must come from the user", ErrInvalidMessage)
	}
	if strings.TrimSpace(userText(latest)) == "" && latest.Metadata[agent.MetadataImageURL] == nil {
		return fmt.Errorf("%w: last message is empty", ErrInvalidMessage)
	}
	return nil
}

func userText(m domain.Message) string {
	if m.Content != "" {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.IsText() {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Title derives a conversation title from the first user message with text.
func Title(messages []domain.Message) string {
	for _, m := range messages {
		if m.Role != domain.RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(userText(m)), " ")
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > MaxTitleLength {
			text = strings.TrimSpace(string([]rune(text)[:MaxTitleLength]))
		}
		return text
	}
	return defaultTitle
}

// owned loads a conversation and checks that id may access it.
func (s *Service) owned(ctx context.Context, id *auth.Identity, conversationID string) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if !id.Owns(conv.Email) {
		return nil, fmt.Errorf("%w: conversation %s", auth.ErrForbidden, conversationID)
	}
	return conv, nil
}

// List returns the caller's conversations, most recent first.
func (s *Service) List(ctx context.Context, id *auth.Identity) ([]domain.Conversation, error) {
	return s.store.ListConversations(ctx, id.Email)
}

// Get returns a conversation with its messages.
func (s *Service) Get(ctx context.Context, id *auth.Identity, conversationID string) (*domain.ConversationWithMessages, error) {
	conv, err := s.owned(ctx, id, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	return &domain.ConversationWithMessages{Conversation: *conv, Messages: messages}, nil
}

// Delete removes a conversation and its messages.
func (s *Service) Delete(ctx context.Context, id *auth.Identity, conversationID string) error {
	if _, err := s.owned(ctx, id, conversationID); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	slog.InfoContext(ctx, "Conversation deleted", "conversationID", conversationID)
	return nil
}

// BackfillMetadata merges metadata into a stored message, the only change a
// persisted message accepts. Existing keys are overwritten.
func (s *Service) BackfillMetadata(ctx context.Context, id *auth.Identity, conversationID, messageID string, metadata map[string]any) (*domain.Message, error) {
	if _, err := s.owned(ctx, id, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	for i := range messages {
		msg := &messages[i]
		if msg.ID != messageID {
			continue
		}
		merged := map[string]any{}
		for k, v := range msg.Metadata {
			merged[k] = v
		}
		for k, v := range metadata {
			merged[k] = v
		}
		if err := s.store.UpdateMessageMetadata(ctx, messageID, merged); err != nil {
			return nil, fmt.Errorf("updating metadata: %w", err)
		}
		msg.Metadata = merged
		return msg, nil
	}
	return nil, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
}
