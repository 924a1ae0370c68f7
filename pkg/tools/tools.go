package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/mail"
	"github.com/nstogner/glow/pkg/model"
	"github.com/nstogner/glow/pkg/store"
)

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 45 * time.Second

// Tool defines the interface that all agent tools must implement.
//
// Execute receives input that already passed InputSchema validation. It
// absorbs its own failures and returns a structurally valid fallback output;
// a non-nil error is reserved for programming errors.
type Tool interface {
	Name() string
	Description() string
	InputSchema() *model.Schema
	// Idempotent reports whether a repeated call is free of extra side
	// effects. Callers must not retry a non-idempotent tool.
	Idempotent() bool
	Execute(ctx context.Context, input map[string]any) (domain.ToolOutput, error)
}

// Registry manages the available tools.
type Registry struct {
	tools   map[string]Tool
	order   []string
	timeout time.Duration
}

// NewRegistry creates a new, empty registry. A zero timeout uses
// DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
	}
}

// Register adds a tool to the registry, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	list := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}

// Specs returns the model-facing declarations of all tools.
func (r *Registry) Specs() []model.ToolSpec {
	specs := make([]model.ToolSpec, 0, len(r.order))
	for _, t := range r.List() {
		specs = append(specs, model.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.InputSchema(),
		})
	}
	return specs
}

// Invoke validates and executes one tool call. It always returns a terminal
// part and the matching result for the model, never an error: unknown tools,
// invalid input, timeouts and panics all become output-error parts.
func (r *Registry) Invoke(ctx context.Context, call domain.ToolCall) (domain.Part, domain.ToolResult) {
	part := domain.ToolPart(call.Name, call.ID, domain.StateOutputAvailable, call.Input)
	result := domain.ToolResult{ToolCallID: call.ID, Name: call.Name}

	fail := func(err error) (domain.Part, domain.ToolResult) {
		slog.WarnContext(ctx, "Tool call failed", "tool", call.Name, "toolCallID", call.ID, "error", err)
		part.State = domain.StateOutputError
		part.ErrorText = err.Error()
		result.IsError = true
		result.Content = fmt.Sprintf("Error: %v", err)
		return part, result
	}

	t, input, err := r.resolve(call)
	if err != nil {
		return fail(err)
	}
	part.Input = input

	out, err := r.execute(ctx, t, input)
	if err != nil {
		return fail(err)
	}

	part.Output = out
	b, err := json.Marshal(out)
	if err != nil {
		return fail(fmt.Errorf("encoding output: %w", err))
	}
	result.Content = string(b)
	return part, result
}

// ErrUnknownTool is returned for calls naming a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Check reports whether Invoke would execute call. A nil error means the
// tool exists and the input validates, so invoking it may have side effects
// even when the result is an error.
func (r *Registry) Check(call domain.ToolCall) error {
	_, _, err := r.resolve(call)
	return err
}

func (r *Registry) resolve(call domain.ToolCall) (Tool, map[string]any, error) {
	t, ok := r.Get(call.Name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	input, err := ValidateInput(t.InputSchema(), call.Input)
	if err != nil {
		return nil, nil, err
	}
	return t, input, nil
}

// ErrTimeout is reported when a tool outlives the registry timeout.
var ErrTimeout = errors.New("tool timed out")

type execResult struct {
	out domain.ToolOutput
	err error
}

// execute runs t under the registry timeout. A tool that ignores
// cancellation is abandoned rather than waited on.
func (r *Registry) execute(ctx context.Context, t Tool, input map[string]any) (domain.ToolOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- execResult{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		out, err := t.Execute(ctx, input)
		done <- execResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && res.out == nil {
			return nil, errors.New("tool returned no output")
		}
		return res.out, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
		}
		return nil, ctx.Err()
	}
}

// decodeInput copies validated input into a typed argument struct.
func decodeInput(input map[string]any, v any) error {
	b, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Deps are the collaborators of the standard tool set.
type Deps struct {
	Products store.ProductStore
	Mail     mail.Sender
	// Images may be nil, in which case image analysis always falls back.
	Images ImageAnalyzer
	// Writer, when set, writes routine text with WriterModel.
	Writer      model.Provider
	WriterModel string
}

// NewStandardRegistry registers the five skincare tools.
func NewStandardRegistry(d Deps, timeout time.Duration) *Registry {
	r := NewRegistry(timeout)
	r.Register(NewFindBestProducts(d.Products))
	r.Register(NewPlanAndSendRoutine(d.Products, d.Mail, d.Writer, d.WriterModel))
	r.Register(NewDetectSkinTypeFromQuestions())
	r.Register(NewAnalyzeSkinTypeFromImage(d.Images))
	r.Register(NewSendMail(d.Mail))
	return r
}
