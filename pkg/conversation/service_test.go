package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/glow/pkg/agent"
	"github.com/nstogner/glow/pkg/auth"
	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model/fake"
	"github.com/nstogner/glow/pkg/store"
	"github.com/nstogner/glow/pkg/store/sqlite"
	"github.com/nstogner/glow/pkg/tools"
)

var (
	ana   = &auth.Identity{Email: "ana@example.com"}
	bob   = &auth.Identity{Email: "bob@example.com"}
	admin = &auth.Identity{Email: "root@example.com", Admin: true}
)

func newTestService(t *testing.T, responses ...fake.Response) (*Service, *sqlite.Store, *fake.Provider) {
	t.Helper()
	s, err := sqlite.New(t.TempDir() + "/glow.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	provider := fake.New(responses...)
	registry := tools.NewRegistry(time.Second)
	registry.Register(tools.NewDetectSkinTypeFromQuestions())
	a := agent.New(provider, registry, agent.Options{MaxToolInvocations: 2})
	return NewService(s, a), s, provider
}

func user(text string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: text}
}

func TestTurnNewConversation(t *testing.T) {
	svc, s, _ := newTestService(t,
		fake.ToolCalls("", domain.ToolCall{ID: "c1", Name: domain.ToolDetectSkinTypeFromQuestions, Input: map[string]any{"middayShine": "all-over"}}),
		fake.Text("You have oily skin."),
	)
	ctx := context.Background()

	var snapshots int
	out, err := svc.Turn(ctx, ana, TurnInput{
		Messages: []domain.Message{user("  My face   gets shiny by noon, what is my skin type and what should I use every day?")},
		Observe:  func(domain.Message) { snapshots++ },
	})
	require.NoError(t, err)

	assert.Equal(t, "My face gets shiny by noon, what is my skin type and what sh", out.Conversation.Title)
	assert.Equal(t, ana.Email, out.Conversation.Email)
	assert.Equal(t, "You have oily skin.", out.Message.Content)
	assert.Equal(t, out.Conversation.ID, out.Message.ConversationID)
	assert.Positive(t, snapshots)

	stored, err := s.GetMessages(ctx, out.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, domain.RoleUser, stored[0].Role)
	assert.Equal(t, domain.RoleAssistant, stored[1].Role)
	require.Len(t, stored[1].Parts, 2)
	assert.Equal(t, "oily", stored[1].Parts[0].Output.(*domain.SkinTypeOutput).SkinType)
}

func TestTurnContinuesConversation(t *testing.T) {
	svc, _, provider := newTestService(t, fake.Text("Hi!"), fake.Text("Welcome back."))
	ctx := context.Background()

	first, err := svc.Turn(ctx, ana, TurnInput{Messages: []domain.Message{user("hello")}})
	require.NoError(t, err)

	// The client's copy of earlier messages is ignored in favor of the store.
	second, err := svc.Turn(ctx, ana, TurnInput{
		ConversationID: first.Conversation.ID,
		Messages:       []domain.Message{user("stale"), user("again")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Welcome back.", second.Message.Content)

	seen := provider.Calls()[1].Messages
	require.Len(t, seen, 3)
	assert.Equal(t, "hello", seen[0].Text())
	assert.Equal(t, "Hi!", seen[1].Text())
	assert.Equal(t, "again", seen[2].Text())
}

func TestTurnNewConversationStoresClientHistory(t *testing.T) {
	svc, s, provider := newTestService(t, fake.Text("Use a gentle cleanser."), fake.Text("Twice a day."))
	ctx := context.Background()

	first, err := svc.Turn(ctx, ana, TurnInput{Messages: []domain.Message{
		user("I have oily skin"),
		{Role: domain.RoleAssistant, Parts: []domain.Part{domain.TextPart("Noted, oily skin.")}},
		user("what cleanser?"),
	}})
	require.NoError(t, err)

	stored, err := s.GetMessages(ctx, first.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.Equal(t, "I have oily skin", stored[0].Content)
	assert.Equal(t, "Noted, oily skin.", stored[1].Content)
	assert.Equal(t, "what cleanser?", stored[2].Content)
	for _, m := range stored {
		assert.Equal(t, first.Conversation.ID, m.ConversationID)
		assert.NotEmpty(t, m.ID)
	}

	_, err = svc.Turn(ctx, ana, TurnInput{
		ConversationID: first.Conversation.ID,
		Messages:       []domain.Message{user("how often?")},
	})
	require.NoError(t, err)

	seen := provider.Calls()[1].Messages
	require.Len(t, seen, 5)
	assert.Equal(t, "I have oily skin", seen[0].Text())
	assert.Equal(t, "Noted, oily skin.", seen[1].Text())
	assert.Equal(t, "how often?", seen[4].Text())
}

func TestTurnValidation(t *testing.T) {
	svc, _, provider := newTestService(t, fake.Text("unused"))
	ctx := context.Background()

	tests := []struct {
		name     string
		messages []domain.Message
		wantErr  error
	}{
		{"no messages", nil, agent.ErrNoMessages},
		{"last not user", []domain.Message{{Role: domain.RoleAssistant, Content: "hi"}}, ErrInvalidMessage},
		{"unknown role", []domain.Message{{Role: "robot", Content: "x"}, user("hi")}, ErrInvalidMessage},
		{"empty", []domain.Message{user("   ")}, ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Turn(ctx, ana, TurnInput{Messages: tt.messages})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, provider.Calls())
}

func TestTurnAgentFailureKeepsUserMessage(t *testing.T) {
	call := domain.ToolCall{Name: domain.ToolDetectSkinTypeFromQuestions, Input: map[string]any{}}
	svc, s, _ := newTestService(t,
		fake.Text("ok"),
		fake.ToolCalls("", call), fake.ToolCalls("", call), fake.ToolCalls("", call),
	)
	ctx := context.Background()

	first, err := svc.Turn(ctx, ana, TurnInput{Messages: []domain.Message{user("hello")}})
	require.NoError(t, err)

	_, err = svc.Turn(ctx, ana, TurnInput{ConversationID: first.Conversation.ID, Messages: []domain.Message{user("loop")}})
	require.ErrorIs(t, err, agent.ErrToolBudgetExceeded)

	stored, err := s.GetMessages(ctx, first.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "loop", stored[2].Content)
}

func TestOwnership(t *testing.T) {
	svc, _, _ := newTestService(t, fake.Text("hi"))
	ctx := context.Background()

	out, err := svc.Turn(ctx, ana, TurnInput{Messages: []domain.Message{user("hello")}})
	require.NoError(t, err)
	id := out.Conversation.ID

	_, err = svc.Get(ctx, bob, id)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = svc.Turn(ctx, bob, TurnInput{ConversationID: id, Messages: []domain.Message{user("mine now")}})
	assert.ErrorIs(t, err, auth.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, bob, id), auth.ErrForbidden)

	got, err := svc.Get(ctx, admin, id)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)

	list, err := svc.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, svc.Delete(ctx, ana, id))
	_, err = svc.Get(ctx, ana, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBackfillMetadata(t *testing.T) {
	svc, s, _ := newTestService(t, fake.Text("hi"))
	ctx := context.Background()

	out, err := svc.Turn(ctx, ana, TurnInput{Messages: []domain.Message{{
		Role: domain.RoleUser, Content: "hello", Metadata: map[string]any{"client": "web"},
	}}})
	require.NoError(t, err)

	msg, err := svc.BackfillMetadata(ctx, ana, out.Conversation.ID, out.UserMessage.ID, map[string]any{"rating": "up"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"client": "web", "rating": "up"}, msg.Metadata)

	stored, err := s.GetMessages(ctx, out.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, "up", stored[0].Metadata["rating"])
	assert.Equal(t, "hello", stored[0].Content)

	_, err = svc.BackfillMetadata(ctx, ana, out.Conversation.ID, "missing", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, defaultTitle, Title(nil))
	assert.Equal(t, "second", Title([]domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		user(""),
		user("second"),
	}))
	long := strings.Repeat("é", 80)
	assert.Equal(t, strings.Repeat("é", MaxTitleLength), Title([]domain.Message{user(long)}))
}
