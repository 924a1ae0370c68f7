package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model"
	"github.com/nstogner/glow/pkg/model/fake"
	"github.com/nstogner/glow/pkg/tools"
)

// echoTool returns its input as a raw output after an optional delay.
type echoTool struct {
	name       string
	delay      time.Duration
	idempotent bool
	calls      atomic.Int32
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echo" }
func (e *echoTool) Idempotent() bool    { return e.idempotent }
func (e *echoTool) InputSchema() *model.Schema {
	return &model.Schema{Type: model.TypeObject, Properties: map[string]*model.Schema{
		"message": {Type: model.TypeString},
	}}
}

func (e *echoTool) Execute(ctx context.Context, input map[string]any) (domain.ToolOutput, error) {
	e.calls.Add(1)
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return domain.RawOutput{"message": input["message"]}, nil
}

func userMessage(text string) domain.Message {
	return domain.Message{ConversationID: "conv-1", Role: domain.RoleUser, Content: text}
}

func newAgent(provider model.Provider, opts Options, ts ...tools.Tool) *Agent {
	r := tools.NewRegistry(time.Second)
	for _, t := range ts {
		r.Register(t)
	}
	return New(provider, r, opts)
}

func call(id, name, message string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Input: map[string]any{"message": message}}
}

func TestRunNoMessages(t *testing.T) {
	provider := fake.New(fake.Text("hi"))
	_, err := newAgent(provider, Options{}).Run(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNoMessages)
	assert.Empty(t, provider.Calls())
}

func TestRunTextOnly(t *testing.T) {
	provider := fake.New(fake.Text("Hello there!"))
	msg, err := newAgent(provider, Options{Model: "m"}).Run(context.Background(), []domain.Message{userMessage("hi")}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RoleAssistant, msg.Role)
	assert.Equal(t, "conv-1", msg.ConversationID)
	assert.NotEmpty(t, msg.ID)
	if diff := cmp.Diff([]domain.Part{domain.TextPart("Hello there!")}, msg.Parts); diff != "" {
		t.Errorf("parts mismatch (-want +got):\n%s", diff)
	}

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "m", calls[0].Model)
	assert.Equal(t, DefaultInstructions, calls[0].Instructions)
	assert.Len(t, calls[0].Tools, 0)
}

func TestRunToolThenText(t *testing.T) {
	echo := &echoTool{name: "echo", idempotent: true}
	provider := fake.New(
		fake.ToolCalls("Let me check.", call("c1", "echo", "ping")),
		fake.Text("Done."),
	)
	msg, err := newAgent(provider, Options{}, echo).Run(context.Background(), []domain.Message{userMessage("go")}, nil)
	require.NoError(t, err)

	require.Len(t, msg.Parts, 3)
	assert.Equal(t, "Let me check.", msg.Parts[0].Text)
	assert.Equal(t, "tool-echo", msg.Parts[1].Type)
	assert.Equal(t, domain.StateOutputAvailable, msg.Parts[1].State)
	assert.Equal(t, domain.RawOutput{"message": "ping"}, msg.Parts[1].Output)
	assert.Equal(t, "Done.", msg.Parts[2].Text)

	// The second decision sees the call and its result.
	calls := provider.Calls()
	require.Len(t, calls, 2)
	second := calls[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, domain.RoleAssistant, second[1].Role)
	assert.Equal(t, domain.RoleTool, second[2].Role)
	result := second[2].Content[0].ToolResult
	assert.Equal(t, "c1", result.ToolCallID)
	assert.JSONEq(t, `{"message":"ping"}`, result.Content)
}

func TestRunToolFailureDoesNotAbortTurn(t *testing.T) {
	provider := fake.New(
		fake.ToolCalls("", call("c1", "missing_tool", "x")),
		fake.Text("Sorry, that did not work."),
	)
	msg, err := newAgent(provider, Options{}).Run(context.Background(), []domain.Message{userMessage("go")}, nil)
	require.NoError(t, err)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, domain.StateOutputError, msg.Parts[0].State)
	assert.Contains(t, msg.Parts[0].ErrorText, "unknown tool")
}

func TestRunToolBudgetExceeded(t *testing.T) {
	echo := &echoTool{name: "echo", idempotent: true}
	var responses []fake.Response
	for i := 0; i < 10; i++ {
		responses = append(responses, fake.ToolCalls("", call("", "echo", "again")))
	}
	provider := fake.New(responses...)

	_, err := newAgent(provider, Options{MaxToolInvocations: 3}, echo).Run(context.Background(), []domain.Message{userMessage("loop")}, nil)
	require.ErrorIs(t, err, ErrToolBudgetExceeded)
	assert.EqualValues(t, 3, echo.calls.Load())
	assert.Len(t, provider.Calls(), 4)
}

func TestRunDefaultBudget(t *testing.T) {
	echo := &echoTool{name: "echo", idempotent: true}
	var responses []fake.Response
	for i := 0; i < DefaultMaxToolInvocations+1; i++ {
		responses = append(responses, fake.ToolCalls("", call("", "echo", "again")))
	}
	_, err := newAgent(fake.New(responses...), Options{}, echo).Run(context.Background(), []domain.Message{userMessage("loop")}, nil)
	require.ErrorIs(t, err, ErrToolBudgetExceeded)
	assert.EqualValues(t, DefaultMaxToolInvocations, echo.calls.Load())
}

func TestRunEmptyResponse(t *testing.T) {
	provider := fake.New(fake.Text("   "))
	_, err := newAgent(provider, Options{}).Run(context.Background(), []domain.Message{userMessage("hi")}, nil)
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestRunProviderError(t *testing.T) {
	boom := errors.New("quota exceeded")
	_, err := newAgent(fake.New(fake.Fail(boom)), Options{}).Run(context.Background(), []domain.Message{userMessage("hi")}, nil)
	require.ErrorIs(t, err, boom)
}

func TestRunParallelCallsKeepInvocationOrder(t *testing.T) {
	slow := &echoTool{name: "slow", delay: 100 * time.Millisecond, idempotent: true}
	quick := &echoTool{name: "quick", idempotent: true}
	provider := fake.New(
		fake.ToolCalls("", call("c1", "slow", "first"), call("c2", "quick", "second")),
		fake.Text("Both done."),
	)

	var (
		mu        sync.Mutex
		snapshots []domain.Message
	)
	observe := func(m domain.Message) {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, m)
	}

	msg, err := newAgent(provider, Options{}, slow, quick).Run(context.Background(), []domain.Message{userMessage("go")}, observe)
	require.NoError(t, err)

	require.Len(t, msg.Parts, 3)
	assert.Equal(t, "c1", msg.Parts[0].ToolCallID)
	assert.Equal(t, "c2", msg.Parts[1].ToolCallID)

	results := provider.Calls()[1].Messages[2].Content
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ToolResult.ToolCallID)
	assert.Equal(t, "c2", results[1].ToolResult.ToolCallID)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snapshots)
	for _, snap := range snapshots {
		active := 0
		for _, p := range snap.Parts {
			if p.IsTool() && !p.State.Terminal() {
				active++
			}
		}
		assert.LessOrEqual(t, active, 1)
	}
	assert.Equal(t, domain.StateInputAvailable, snapshots[0].Parts[0].State)
}

func TestRunNonIdempotentToolRunsOnce(t *testing.T) {
	mailer := &echoTool{name: "mailer"}
	provider := fake.New(
		fake.ToolCalls("", call("c1", "mailer", "hi"), call("c2", "mailer", "hi")),
		fake.ToolCalls("", call("c3", "mailer", "hi")),
		fake.Text("Sent."),
	)
	msg, err := newAgent(provider, Options{}, mailer).Run(context.Background(), []domain.Message{userMessage("mail me")}, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 1, mailer.calls.Load())
	require.Len(t, msg.Parts, 4)
	assert.Equal(t, domain.StateOutputAvailable, msg.Parts[0].State)
	assert.Equal(t, domain.StateOutputError, msg.Parts[1].State)
	assert.Equal(t, domain.StateOutputError, msg.Parts[2].State)
}

// stubbornMailer ignores cancellation and records a send once its delay
// has passed, like an SMTP relay that accepts mail after the caller gave up.
type stubbornMailer struct {
	delay    time.Duration
	attempts atomic.Int32
	sent     atomic.Int32
}

func (m *stubbornMailer) Name() string        { return "mailer" }
func (m *stubbornMailer) Description() string { return "mail" }
func (m *stubbornMailer) Idempotent() bool    { return false }
func (m *stubbornMailer) InputSchema() *model.Schema {
	return &model.Schema{Type: model.TypeObject, Properties: map[string]*model.Schema{
		"message": {Type: model.TypeString},
	}}
}

func (m *stubbornMailer) Execute(context.Context, map[string]any) (domain.ToolOutput, error) {
	m.attempts.Add(1)
	time.Sleep(m.delay)
	m.sent.Add(1)
	return domain.RawOutput{"success": true}, nil
}

func TestRunNonIdempotentToolNotRetriedAfterTimeout(t *testing.T) {
	mailer := &stubbornMailer{delay: 100 * time.Millisecond}
	r := tools.NewRegistry(50 * time.Millisecond)
	r.Register(mailer)
	provider := fake.New(
		fake.ToolCalls("", call("c1", "mailer", "hi")),
		fake.ToolCalls("", call("c2", "mailer", "hi")),
		fake.Text("Something went wrong sending your email."),
	)

	msg, err := New(provider, r, Options{}).Run(context.Background(), []domain.Message{userMessage("mail me")}, nil)
	require.NoError(t, err)

	require.Len(t, msg.Parts, 3)
	assert.Equal(t, domain.StateOutputError, msg.Parts[0].State)
	assert.Contains(t, msg.Parts[0].ErrorText, "timed out")
	assert.Equal(t, domain.StateOutputError, msg.Parts[1].State)
	assert.Contains(t, msg.Parts[1].ErrorText, "already ran")

	assert.Eventually(t, func() bool { return mailer.sent.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(2 * mailer.delay)
	assert.EqualValues(t, 1, mailer.attempts.Load())
	assert.EqualValues(t, 1, mailer.sent.Load())
}

func TestRunNonIdempotentToolRetriedAfterInvalidInput(t *testing.T) {
	mailer := &echoTool{name: "mailer"}
	bad := domain.ToolCall{ID: "c1", Name: "mailer", Input: map[string]any{"message": map[string]any{"x": 1}}}
	provider := fake.New(
		fake.ToolCalls("", bad),
		fake.ToolCalls("", call("c2", "mailer", "hi")),
		fake.ToolCalls("", bad),
		fake.Text("Sent."),
	)
	msg, err := newAgent(provider, Options{}, mailer).Run(context.Background(), []domain.Message{userMessage("mail me")}, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 1, mailer.calls.Load())
	require.Len(t, msg.Parts, 4)
	assert.Equal(t, domain.StateOutputError, msg.Parts[0].State)
	assert.Contains(t, msg.Parts[0].ErrorText, "invalid tool input")
	assert.Equal(t, domain.StateOutputAvailable, msg.Parts[1].State)
	assert.Contains(t, msg.Parts[2].ErrorText, "invalid tool input")
}

func TestRunAssignsMissingCallIDs(t *testing.T) {
	echo := &echoTool{name: "echo", idempotent: true}
	provider := fake.New(fake.ToolCalls("", call("", "echo", "x")), fake.Text("ok"))
	msg, err := newAgent(provider, Options{}, echo).Run(context.Background(), []domain.Message{userMessage("go")}, nil)
	require.NoError(t, err)

	id := msg.Parts[0].ToolCallID
	assert.Regexp(t, `^call-`, id)
	second := provider.Calls()[1].Messages
	assert.Equal(t, id, second[1].Content[0].ToolCall.ID)
	assert.Equal(t, id, second[2].Content[0].ToolResult.ToolCallID)
}
