package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model"
	openai "github.com/sashabaranov/go-openai"
)

// SkinAnalyzer classifies skin type from a face photo with an OpenAI vision
// model. The image URL is passed through; OpenAI fetches it.
type SkinAnalyzer struct {
	provider  *Provider
	modelName string
}

// NewSkinAnalyzer creates a SkinAnalyzer that uses modelName.
func NewSkinAnalyzer(p *Provider, modelName string) *SkinAnalyzer {
	return &SkinAnalyzer{provider: p, modelName: modelName}
}

// AnalyzeSkinImage asks the model for a verdict on the image at imageURL.
func (a *SkinAnalyzer) AnalyzeSkinImage(ctx context.Context, imageURL string) (*domain.SkinTypeOutput, error) {
	resp, err := a.provider.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: model.SkinAnalysisInstructions},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Classify the skin type shown in this photo."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    imageURL,
						Detail: openai.ImageURLDetailLow,
					}},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned from OpenAI API")
	}
	return model.ParseSkinAnalysis(resp.Choices[0].Message.Content)
}
