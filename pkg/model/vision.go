package model

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nstogner/glow/pkg/domain"
)

// maxImageBytes bounds images fetched for skin analysis.
const maxImageBytes = 10 << 20

// SkinAnalysisInstructions asks a vision model for a JSON skin type verdict.
const SkinAnalysisInstructions = `You are a dermatology assistant. Look at the face in the image and classify the skin type as exactly one of: oily, dry, combination, sensitive, normal.
Respond with a single JSON object and nothing else:
{"skinType": "<type>", "confidence": <0..1>, "explanation": "<one or two sentences on the visible cues>"}`

var validSkinTypes = map[string]bool{
	"oily":        true,
	"dry":         true,
	"combination": true,
	"sensitive":   true,
	"normal":      true,
}

// ParseSkinAnalysis converts a vision model's JSON reply into a skin type
// result.
func ParseSkinAnalysis(text string) (*domain.SkinTypeOutput, error) {
	obj, err := ParseJSONObject(text)
	if err != nil {
		return nil, err
	}
	skinType, _ := obj["skinType"].(string)
	skinType = strings.ToLower(strings.TrimSpace(skinType))
	if !validSkinTypes[skinType] {
		return nil, fmt.Errorf("unexpected skin type %q", skinType)
	}
	confidence, _ := obj["confidence"].(float64)
	confidence = min(max(confidence, 0), 1)
	explanation, _ := obj["explanation"].(string)

	return &domain.SkinTypeOutput{
		SkinType:    skinType,
		Confidence:  confidence,
		Explanation: explanation,
		Summary:     fmt.Sprintf("From your photo, your skin looks %s (confidence %.0f%%).", skinType, confidence*100),
	}, nil
}

// LoadImage returns the bytes and MIME type of an image given as a data URL
// or an http(s) URL.
func LoadImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, string, error) {
	if rest, ok := strings.CutPrefix(imageURL, "data:"); ok {
		meta, payload, ok := strings.Cut(rest, ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("unsupported data url")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decoding data url: %w", err)
		}
		return data, strings.TrimSuffix(meta, ";base64"), nil
	}

	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		return nil, "", fmt.Errorf("unsupported image url: %s", imageURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", errors.New("image too large")
	}
	mime := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}
