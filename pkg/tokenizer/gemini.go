package tokenizer

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Gemini counts tokens with the Gemini API CountTokens call.
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini tokenizer requires an API key")
	}
	return NewGeminiWithConfig(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// NewGeminiWithConfig allows a custom endpoint or HTTP client.
func NewGeminiWithConfig(ctx context.Context, cfg *genai.ClientConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Count(ctx context.Context, text, modelID string) (int, error) {
	if modelID == "" {
		return 0, errors.New("gemini tokenizer requires a model id")
	}
	resp, err := g.client.Models.CountTokens(ctx, modelID, genai.Text(text), nil)
	if err != nil {
		return 0, fmt.Errorf("gemini count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}
