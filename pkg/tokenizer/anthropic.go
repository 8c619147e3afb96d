package tokenizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic counts tokens with the Messages count-tokens endpoint. The text is
// sent as a single user message, so the count includes the small per-message
// overhead the API charges.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates a counter authenticated with apiKey. Extra request
// options, such as a base URL for tests, are passed to the client.
func NewAnthropic(apiKey string, opts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic tokenizer requires an API key")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{client: anthropic.NewClient(opts...)}, nil
}

func (a *Anthropic) Count(ctx context.Context, text, modelID string) (int, error) {
	if modelID == "" {
		return 0, errors.New("anthropic tokenizer requires a model id")
	}
	resp, err := a.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(modelID),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("anthropic count tokens: %w", err)
	}
	return int(resp.InputTokens), nil
}
