package tools

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model"
)

// SkinQuestionnaire holds the answers used to classify skin type. Every
// field is optional.
type SkinQuestionnaire struct {
	TightAfterCleansing *bool  `json:"tightAfterCleansing,omitempty"`
	MiddayShine         string `json:"middayShine,omitempty"` // none, t-zone, all-over
	FlakyPatches        *bool  `json:"flakyPatches,omitempty"`
	ReactsToProducts    *bool  `json:"reactsToProducts,omitempty"`
	PoreSize            string `json:"poreSize,omitempty"` // small, medium, large
	Description         string `json:"description,omitempty"`
}

// tieOrder breaks score ties.
var tieOrder = []string{"sensitive", "oily", "combination", "dry", "normal"}

var descriptionCues = map[string][]string{
	"oily":        {"oily", "shiny", "greasy", "breakout"},
	"dry":         {"dry", "flaky", "tight", "rough"},
	"sensitive":   {"sensitive", "red", "itch", "sting", "burn", "irritat"},
	"combination": {"t-zone", "combination"},
}

// ClassifySkinType scores questionnaire answers and picks the best-supported
// skin type. Confidence is the winner's share of all points.
func ClassifySkinType(q SkinQuestionnaire) *domain.SkinTypeOutput {
	scores := map[string]int{}
	var cues []string
	add := func(skinType string, points int, cue string) {
		scores[skinType] += points
		cues = append(cues, cue)
	}

	switch strings.ToLower(q.MiddayShine) {
	case "all-over":
		add("oily", 2, "shine all over by midday")
	case "t-zone":
		add("combination", 2, "shine limited to the T-zone")
	case "none":
		scores["dry"]++
		add("normal", 1, "no midday shine")
	}
	if q.TightAfterCleansing != nil {
		if *q.TightAfterCleansing {
			add("dry", 2, "tightness after cleansing")
		} else {
			add("normal", 1, "comfortable after cleansing")
		}
	}
	if q.FlakyPatches != nil && *q.FlakyPatches {
		add("dry", 1, "flaky patches")
	}
	if q.ReactsToProducts != nil && *q.ReactsToProducts {
		add("sensitive", 3, "reactions to products")
	}
	switch strings.ToLower(q.PoreSize) {
	case "large":
		add("oily", 1, "large pores")
	case "medium":
		add("combination", 1, "medium pores")
	case "small":
		add("normal", 1, "small pores")
	}
	desc := strings.ToLower(q.Description)
	for _, skinType := range tieOrder {
		for _, word := range descriptionCues[skinType] {
			if strings.Contains(desc, word) {
				add(skinType, 1, fmt.Sprintf("you mentioned %q", word))
				break
			}
		}
	}

	total, best := 0, ""
	for _, skinType := range tieOrder {
		total += scores[skinType]
		if best == "" || scores[skinType] > scores[best] {
			best = skinType
		}
	}
	if total == 0 {
		return &domain.SkinTypeOutput{
			SkinType:    "normal",
			Confidence:  0,
			Explanation: "Not enough answers to tell; assuming normal skin.",
			Summary:     "I could not determine your skin type from those answers, so I'll assume normal skin for now.",
		}
	}

	confidence := math.Round(float64(scores[best])/float64(total)*100) / 100
	return &domain.SkinTypeOutput{
		SkinType:    best,
		Confidence:  confidence,
		Explanation: "Based on " + strings.Join(cues, ", ") + ".",
		Summary:     fmt.Sprintf("Your skin type appears to be %s (confidence %.0f%%).", best, confidence*100),
	}
}

// DetectSkinTypeFromQuestions classifies skin type from questionnaire answers.
type DetectSkinTypeFromQuestions struct{}

// NewDetectSkinTypeFromQuestions creates the detect_skin_type_from_questions tool.
func NewDetectSkinTypeFromQuestions() *DetectSkinTypeFromQuestions {
	return &DetectSkinTypeFromQuestions{}
}

func (t *DetectSkinTypeFromQuestions) Name() string { return domain.ToolDetectSkinTypeFromQuestions }

func (t *DetectSkinTypeFromQuestions) Description() string {
	return "Classify the user's skin type from their answers to skin questions. Pass whatever answers are known; " +
		"use the result as skinType for the other tools."
}

func (t *DetectSkinTypeFromQuestions) InputSchema() *model.Schema {
	return &model.Schema{
		Type: model.TypeObject,
		Properties: map[string]*model.Schema{
			"tightAfterCleansing": {Type: model.TypeBoolean, Description: "Skin feels tight after washing."},
			"middayShine":         {Type: model.TypeString, Enum: []string{"none", "t-zone", "all-over"}, Description: "Where the face looks shiny by midday."},
			"flakyPatches":        {Type: model.TypeBoolean, Description: "Has flaky or rough patches."},
			"reactsToProducts":    {Type: model.TypeBoolean, Description: "Stings, itches or reddens with new products."},
			"poreSize":            {Type: model.TypeString, Enum: []string{"small", "medium", "large"}, Description: "Visible pore size."},
			"description":         {Type: model.TypeString, Description: "The user's own description of their skin."},
		},
	}
}

func (t *DetectSkinTypeFromQuestions) Idempotent() bool { return true }

func (t *DetectSkinTypeFromQuestions) Execute(ctx context.Context, input map[string]any) (domain.ToolOutput, error) {
	var q SkinQuestionnaire
	if err := decodeInput(input, &q); err != nil {
		return nil, err
	}
	return ClassifySkinType(q), nil
}

// ImageAnalyzer classifies skin type from a photo.
type ImageAnalyzer interface {
	AnalyzeSkinImage(ctx context.Context, imageURL string) (*domain.SkinTypeOutput, error)
}

// AnalyzeSkinTypeFromImage classifies skin type from a face photo.
type AnalyzeSkinTypeFromImage struct {
	analyzer ImageAnalyzer
}

// NewAnalyzeSkinTypeFromImage creates the analyze_skin_type_from_image tool.
// A nil analyzer makes every call return the fallback result.
func NewAnalyzeSkinTypeFromImage(analyzer ImageAnalyzer) *AnalyzeSkinTypeFromImage {
	return &AnalyzeSkinTypeFromImage{analyzer: analyzer}
}

func (t *AnalyzeSkinTypeFromImage) Name() string { return domain.ToolAnalyzeSkinTypeFromImage }

func (t *AnalyzeSkinTypeFromImage) Description() string {
	return "Classify the user's skin type from a photo of their face. Requires the image URL the user uploaded."
}

func (t *AnalyzeSkinTypeFromImage) InputSchema() *model.Schema {
	return &model.Schema{
		Type: model.TypeObject,
		Properties: map[string]*model.Schema{
			"imageUrl": {Type: model.TypeString, Description: "URL (or data URL) of the face photo."},
		},
		Required: []string{"imageUrl"},
	}
}

func (t *AnalyzeSkinTypeFromImage) Idempotent() bool { return true }

func (t *AnalyzeSkinTypeFromImage) Execute(ctx context.Context, input map[string]any) (domain.ToolOutput, error) {
	imageURL, _ := input["imageUrl"].(string)
	fallback := &domain.SkinTypeOutput{
		SkinType:    "unknown",
		Confidence:  0,
		Explanation: "The photo could not be analyzed. Try the skin questions instead.",
	}
	if t.analyzer == nil {
		return fallback, nil
	}

	out, err := t.analyzer.AnalyzeSkinImage(ctx, imageURL)
	if err != nil || out == nil {
		slog.WarnContext(ctx, "Skin image analysis failed", "error", err)
		return fallback, nil
	}
	return out, nil
}
