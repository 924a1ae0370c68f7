package gemini

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model"
	"google.golang.org/genai"
)

// SkinAnalyzer classifies skin type from a face photo with a Gemini vision
// model.
type SkinAnalyzer struct {
	provider   *Provider
	modelName  string
	httpClient *http.Client
}

// NewSkinAnalyzer creates a SkinAnalyzer that uses modelName.
func NewSkinAnalyzer(p *Provider, modelName string) *SkinAnalyzer {
	return &SkinAnalyzer{provider: p, modelName: modelName, httpClient: http.DefaultClient}
}

// AnalyzeSkinImage fetches the image and asks the model for a verdict.
func (a *SkinAnalyzer) AnalyzeSkinImage(ctx context.Context, imageURL string) (*domain.SkinTypeOutput, error) {
	data, mime, err := model.LoadImage(ctx, a.httpClient, imageURL)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mime),
			genai.NewPartFromText("Classify the skin type shown in this photo."),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(model.SkinAnalysisInstructions, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	resp, err := a.provider.client.Models.GenerateContent(ctx, a.modelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	return model.ParseSkinAnalysis(resp.Text())
}
