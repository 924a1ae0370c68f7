package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/glow/pkg/chat"
	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/mail"
	"github.com/nstogner/glow/pkg/model"
	"github.com/nstogner/glow/pkg/store"
)

// RoutineSubject is the subject of routine emails.
const RoutineSubject = "Your personalized skincare routine"

const routineIntro = "Here is your personalized skincare routine:"

type routineStep struct {
	label    string
	category string
}

var (
	morningSteps = []routineStep{{"Cleanser", "cleanser"}, {"Serum", "serum"}, {"Moisturizer", "moisturizer"}, {"Sunscreen", "sunscreen"}}
	eveningSteps = []routineStep{{"Cleanser", "cleanser"}, {"Treatment", "treatment"}, {"Moisturizer", "moisturizer"}}
)

var skinTips = map[string][]string{
	"oily":        {"Choose oil-free, non-comedogenic formulas.", "Don't skip moisturizer; dehydrated skin makes more oil."},
	"dry":         {"Apply moisturizer to slightly damp skin.", "Avoid hot water and foaming cleansers."},
	"combination": {"Use lighter layers on the T-zone and richer ones on the cheeks."},
	"sensitive":   {"Patch test new products for 48 hours.", "Introduce one new product at a time."},
	"normal":      {"Keep the routine simple and consistent."},
}

// RoutineProfile is the input of plan_and_send_routine.
type RoutineProfile struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	SkinType string   `json:"skinType"`
	Concerns []string `json:"concerns"`
	Budget   string   `json:"budget"`
	Gender   string   `json:"gender"`
}

// PlanAndSendRoutine composes a routine from catalog products and emails it.
// Each call sends one email, so the tool is not idempotent.
type PlanAndSendRoutine struct {
	products  store.ProductStore
	sender    mail.Sender
	provider  model.Provider
	modelName string
}

// NewPlanAndSendRoutine creates the plan_and_send_routine tool. When
// provider is non-nil the routine text is written by the model, falling back
// to a fixed layout when the model fails.
func NewPlanAndSendRoutine(products store.ProductStore, sender mail.Sender, provider model.Provider, modelName string) *PlanAndSendRoutine {
	return &PlanAndSendRoutine{products: products, sender: sender, provider: provider, modelName: modelName}
}

func (t *PlanAndSendRoutine) Name() string { return domain.ToolPlanAndSendRoutine }

func (t *PlanAndSendRoutine) Description() string {
	return "Create a morning and evening skincare routine from catalog products and email it to the user. " +
		"Sends one email per call: call it once per request and never retry it."
}

func (t *PlanAndSendRoutine) InputSchema() *model.Schema {
	return &model.Schema{
		Type: model.TypeObject,
		Properties: map[string]*model.Schema{
			"email":    {Type: model.TypeString, Description: "Where to send the routine."},
			"name":     {Type: model.TypeString, Description: "The user's first name."},
			"skinType": {Type: model.TypeString, Enum: skinTypes, Description: "The user's skin type."},
			"concerns": {Type: model.TypeArray, Items: &model.Schema{Type: model.TypeString}, Description: "Skin concerns."},
			"budget":   {Type: model.TypeString, Enum: budgets, Description: "Budget tier."},
			"gender":   {Type: model.TypeString, Enum: genders, Description: "Gender the products are intended for."},
		},
		Required: []string{"email", "skinType"},
	}
}

func (t *PlanAndSendRoutine) Idempotent() bool { return false }

func (t *PlanAndSendRoutine) Execute(ctx context.Context, input map[string]any) (domain.ToolOutput, error) {
	var p RoutineProfile
	if err := decodeInput(input, &p); err != nil {
		return nil, err
	}

	picks := t.pickProducts(ctx, p)
	text := ""
	if t.provider != nil {
		var err error
		text, err = t.writeWithModel(ctx, p, picks)
		if err != nil {
			slog.WarnContext(ctx, "Routine writer failed, using fixed layout", "error", err)
		}
	}
	if text == "" {
		text = composeRoutine(p, picks)
	}

	out := &domain.RoutineOutput{Message: text}
	err := t.sender.Send(ctx, mail.Message{
		To:      p.Email,
		Subject: RoutineSubject,
		HTML:    mail.Document(RoutineSubject, chat.FormatRoutine(text)),
	})
	if err != nil {
		slog.WarnContext(ctx, "Routine email failed", "to", p.Email, "error", err)
		out.Error = fmt.Sprintf("The routine could not be emailed: %v", err)
		return out, nil
	}
	out.EmailSent = true
	return out, nil
}

// pickProducts returns the most popular product per category, preferring
// ones that address the user's concerns.
func (t *PlanAndSendRoutine) pickProducts(ctx context.Context, p RoutineProfile) map[string]*domain.Product {
	picks := map[string]*domain.Product{}
	for _, steps := range [][]routineStep{morningSteps, eveningSteps} {
		for _, step := range steps {
			if _, done := picks[step.category]; done {
				continue
			}
			filter := domain.ProductFilter{
				SkinType: p.SkinType,
				Concerns: p.Concerns,
				Budget:   p.Budget,
				Gender:   p.Gender,
				Category: step.category,
				Limit:    1,
			}
			found, err := t.products.FindProducts(ctx, filter)
			if err == nil && len(found) == 0 && len(p.Concerns) > 0 {
				filter.Concerns = nil
				found, err = t.products.FindProducts(ctx, filter)
			}
			if err != nil {
				slog.WarnContext(ctx, "Routine product lookup failed", "category", step.category, "error", err)
				picks[step.category] = nil
				continue
			}
			if len(found) > 0 {
				picks[step.category] = &found[0]
			} else {
				picks[step.category] = nil
			}
		}
	}
	return picks
}

func describe(pick *domain.Product, category, skinType string) string {
	if pick == nil {
		return fmt.Sprintf("a gentle %s suited to %s skin", category, skinType)
	}
	if pick.Brand != "" {
		return pick.Name + " by " + pick.Brand
	}
	return pick.Name
}

// composeRoutine renders the fixed routine layout.
func composeRoutine(p RoutineProfile, picks map[string]*domain.Product) string {
	var b strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&b, "Hi %s!\n", p.Name)
	}
	b.WriteString(routineIntro + "\n")
	for _, section := range []struct {
		title string
		steps []routineStep
	}{{"Morning Routine", morningSteps}, {"Evening Routine", eveningSteps}} {
		fmt.Fprintf(&b, "## %s\n", section.title)
		for i, step := range section.steps {
			fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, step.label, describe(picks[step.category], step.category, p.SkinType))
		}
	}
	b.WriteString("## Tips\n")
	tips := skinTips[p.SkinType]
	if len(tips) == 0 {
		tips = skinTips["normal"]
	}
	for _, tip := range tips {
		b.WriteString("- " + tip + "\n")
	}
	b.WriteString("- Wear sunscreen every day, even when it is cloudy.")
	return b.String()
}

const routineWriterInstructions = `You write skincare routines. Use only the products listed. Output plain markdown in exactly this layout:
Here is your personalized skincare routine:
## Morning Routine
1. **Step**: product and how to use it
## Evening Routine
1. **Step**: product and how to use it
## Tips
- tip`

func (t *PlanAndSendRoutine) writeWithModel(ctx context.Context, p RoutineProfile, picks map[string]*domain.Product) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Skin type: %s\n", p.SkinType)
	if len(p.Concerns) > 0 {
		fmt.Fprintf(&b, "Concerns: %s\n", strings.Join(p.Concerns, ", "))
	}
	if p.Budget != "" {
		fmt.Fprintf(&b, "Budget: %s\n", p.Budget)
	}
	b.WriteString("Products:\n")
	for _, category := range []string{"cleanser", "serum", "treatment", "moisturizer", "sunscreen"} {
		fmt.Fprintf(&b, "- %s: %s\n", category, describe(picks[category], category, p.SkinType))
	}

	text, err := model.Complete(ctx, t.provider, t.modelName, routineWriterInstructions, b.String())
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "## Morning Routine") {
		return "", fmt.Errorf("routine writer returned an unexpected layout")
	}
	return text, nil
}
