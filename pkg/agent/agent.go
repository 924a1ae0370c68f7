// Package agent runs one conversation turn: it asks the model what to do
// next, dispatches requested tool calls to the registry and feeds their
// results back until the model answers with text.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model"
	"github.com/nstogner/glow/pkg/tools"
)

// DefaultMaxToolInvocations bounds the tool calls made in a single turn.
const DefaultMaxToolInvocations = 8

var (
	// ErrNoMessages is returned when a turn is started without messages.
	ErrNoMessages = errors.New("no messages")
	// ErrToolBudgetExceeded is returned when the model keeps calling tools
	// past the per-turn limit.
	ErrToolBudgetExceeded = errors.New("tool invocation limit exceeded")
	// ErrEmptyResponse is returned when the model ends a turn without text.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// State is a step of the per-turn state machine.
type State string

const (
	StateDeciding           State = "deciding"
	StateEmittingText       State = "emitting-text"
	StateInvokingTool       State = "invoking-tool"
	StateAwaitingToolResult State = "awaiting-tool-result"
	StateDone               State = "done"
)

// Observer receives snapshots of the in-flight assistant message. Snapshots
// hold parts in invocation order and contain at most one non-terminal tool
// part. Calls are serialized.
type Observer func(snapshot domain.Message)

// Options configures an Agent.
type Options struct {
	// Model is passed to the provider on every call.
	Model string
	// Instructions is the system prompt. Empty uses DefaultInstructions.
	Instructions string
	// MaxToolInvocations caps tool calls per turn. Zero uses
	// DefaultMaxToolInvocations.
	MaxToolInvocations int
	// Parallelism caps concurrent tool calls in one decision step. Zero
	// means no limit.
	Parallelism int
}

// Agent drives turns against a model provider and a tool registry. It holds
// no per-turn state and is safe for concurrent use.
type Agent struct {
	provider model.Provider
	registry *tools.Registry
	opts     Options
}

// New creates an Agent.
func New(provider model.Provider, registry *tools.Registry, opts Options) *Agent {
	if opts.MaxToolInvocations <= 0 {
		opts.MaxToolInvocations = DefaultMaxToolInvocations
	}
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}
	return &Agent{provider: provider, registry: registry, opts: opts}
}

// turn is the mutable state of one Run.
type turn struct {
	state       State
	context     []model.Message
	parts       []domain.Part
	pending     []domain.ToolCall
	invocations int
	// completed records non-idempotent calls that reached their tool,
	// keyed by tool name and input.
	completed map[string]bool

	mu      sync.Mutex
	msg     domain.Message
	observe Observer
}

// Run executes one turn over messages, which must be non-empty and end with
// the new user message. It returns the finalized assistant message; its
// Content is left empty for the caller to derive.
func (a *Agent) Run(ctx context.Context, messages []domain.Message, observe Observer) (*domain.Message, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	instructions, history := toModelMessages(a.opts.Instructions, messages)
	t := &turn{
		state:     StateDeciding,
		context:   history,
		completed: map[string]bool{},
		observe:   observe,
		msg: domain.Message{
			ID:        uuid.New().String(),
			Role:      domain.RoleAssistant,
			CreatedAt: time.Now().UTC(),
		},
	}
	t.msg.ConversationID = messages[len(messages)-1].ConversationID
	specs := a.registry.Specs()

	for t.state != StateDone {
		switch t.state {
		case StateDeciding:
			if err := a.decide(ctx, t, instructions, specs); err != nil {
				return nil, err
			}

		case StateEmittingText:
			t.state = StateDone

		case StateInvokingTool:
			if t.invocations+len(t.pending) > a.opts.MaxToolInvocations {
				slog.WarnContext(ctx, "Tool invocation limit exceeded",
					"conversationID", t.msg.ConversationID,
					"invocations", t.invocations,
					"requested", len(t.pending),
					"limit", a.opts.MaxToolInvocations)
				return nil, fmt.Errorf("%w: %d calls allowed per turn", ErrToolBudgetExceeded, a.opts.MaxToolInvocations)
			}
			t.invocations += len(t.pending)
			t.state = StateAwaitingToolResult

		case StateAwaitingToolResult:
			a.invokeTools(ctx, t)
			t.pending = nil
			t.state = StateDeciding
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.msg.Parts = append([]domain.Part(nil), t.parts...)
	return &t.msg, nil
}

// decide asks the model for the next step and records its answer.
func (a *Agent) decide(ctx context.Context, t *turn, instructions string, specs []model.ToolSpec) error {
	stream, err := a.provider.Stream(ctx, a.opts.Model, instructions, t.context, specs)
	if err != nil {
		return fmt.Errorf("calling model: %w", err)
	}
	defer stream.Close()

	reply, err := stream.FullMessage()
	if err != nil {
		return fmt.Errorf("reading model response: %w", err)
	}

	calls := reply.ToolCalls()
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call-" + uuid.New().String()
		}
	}
	reply.Role = domain.RoleAssistant
	t.context = append(t.context, withCallIDs(reply, calls))

	text := strings.TrimSpace(reply.Text())
	if text != "" {
		t.addPart(domain.TextPart(reply.Text()))
	}

	if len(calls) > 0 {
		t.pending = calls
		t.state = StateInvokingTool
		return nil
	}
	if text == "" {
		return ErrEmptyResponse
	}
	t.state = StateEmittingText
	return nil
}

// withCallIDs rewrites the tool calls in reply so the ids assigned above are
// the ones the model sees next to the results.
func withCallIDs(reply model.Message, calls []domain.ToolCall) model.Message {
	out := model.Message{Role: reply.Role}
	i := 0
	for _, c := range reply.Content {
		if c.Type == domain.ContentTypeToolCall && c.ToolCall != nil {
			c.ToolCall = &calls[i]
			i++
		}
		out.Content = append(out.Content, c)
	}
	return out
}

// invokeTools runs the pending calls concurrently. Parts and results keep
// invocation order regardless of completion order.
func (a *Agent) invokeTools(ctx context.Context, t *turn) {
	start := len(t.parts)
	for _, call := range t.pending {
		t.addPart(domain.ToolPart(call.Name, call.ID, domain.StateInputAvailable, call.Input))
	}

	results := make([]domain.ToolResult, len(t.pending))
	var g errgroup.Group
	if a.opts.Parallelism > 0 {
		g.SetLimit(a.opts.Parallelism)
	}
	batch := map[string]bool{}
	for i, call := range t.pending {
		key, repeat := t.repeatKey(a.registry, call)
		if key != "" {
			repeat = repeat || batch[key]
			batch[key] = true
		}
		g.Go(func() error {
			var part domain.Part
			if repeat {
				part, results[i] = duplicateCall(call)
			} else {
				// A call that reached its tool counts as sent even when it
				// failed or timed out: the side effect may still land.
				if key != "" && a.registry.Check(call) == nil {
					t.markCompleted(key)
				}
				slog.InfoContext(ctx, "Invoking tool", "tool", call.Name, "toolCallID", call.ID)
				part, results[i] = a.registry.Invoke(ctx, call)
			}
			t.setPart(start+i, part)
			return nil
		})
	}
	_ = g.Wait()

	msg := model.Message{Role: domain.RoleTool}
	for i := range results {
		msg.Content = append(msg.Content, model.Content{Type: domain.ContentTypeToolResult, ToolResult: &results[i]})
	}
	t.context = append(t.context, msg)
}

// repeatKey returns the dedupe key of a non-idempotent call and whether an
// identical call was already attempted in an earlier step of this turn.
func (t *turn) repeatKey(r *tools.Registry, call domain.ToolCall) (string, bool) {
	tool, ok := r.Get(call.Name)
	if !ok || tool.Idempotent() {
		return "", false
	}
	b, _ := json.Marshal(call.Input)
	key := call.Name + ":" + string(b)
	t.mu.Lock()
	defer t.mu.Unlock()
	return key, t.completed[key]
}

func (t *turn) markCompleted(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed[key] = true
}

func duplicateCall(call domain.ToolCall) (domain.Part, domain.ToolResult) {
	const text = "This call already ran in this turn and was not repeated."
	part := domain.ToolPart(call.Name, call.ID, domain.StateOutputError, call.Input)
	part.ErrorText = text
	return part, domain.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: "Error: " + text, IsError: true}
}

func (t *turn) addPart(p domain.Part) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parts = append(t.parts, p)
	t.notify()
}

func (t *turn) setPart(i int, p domain.Part) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parts[i] = p
	t.notify()
}

// notify sends the observer a snapshot cut after the first non-terminal
// tool part. Callers hold t.mu.
func (t *turn) notify() {
	if t.observe == nil {
		return
	}
	snap := t.msg
	snap.Parts = nil
	for _, p := range t.parts {
		snap.Parts = append(snap.Parts, p)
		if p.IsTool() && !p.State.Terminal() {
			break
		}
	}
	t.observe(snap)
}
