// Package tokenizer provides contextbuf.Tokenizer implementations: a local
// tiktoken codec, a content-aware heuristic, and remote counters backed by the
// Anthropic and Gemini count-tokens endpoints.
package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
)

// Provider names accepted by New.
const (
	ProviderTiktoken  = "tiktoken"
	ProviderHeuristic = "heuristic"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ErrUnknownProvider is returned by New for an unrecognised provider name.
var ErrUnknownProvider = errors.New("unknown tokenizer provider")

// Config selects and tunes a tokenizer.
type Config struct {
	Provider string `json:"provider" yaml:"provider"`
	// APIKey is used by the remote providers only.
	APIKey string `json:"api_key" yaml:"api_key"` //nolint:gosec // config field, not a credential literal
	// CacheSize bounds the count cache. Zero disables caching.
	CacheSize int `json:"cache_size" yaml:"cache_size"`
	// Fallback falls back to the heuristic when the primary tokenizer fails.
	Fallback bool `json:"fallback" yaml:"fallback"`
}

// New builds the tokenizer described by cfg, wrapped in a cache and a
// heuristic fallback when requested.
func New(ctx context.Context, cfg Config) (contextbuf.Tokenizer, error) {
	var (
		tok contextbuf.Tokenizer
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderTiktoken:
		tok = NewTiktoken()
	case ProviderHeuristic:
		tok = NewHeuristic()
	case ProviderAnthropic:
		tok, err = NewAnthropic(cfg.APIKey)
	case ProviderGemini:
		tok, err = NewGemini(ctx, cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Fallback {
		tok = WithFallback(tok, NewHeuristic())
	}
	if cfg.CacheSize > 0 {
		tok = NewCached(tok, cfg.CacheSize)
	}
	return tok, nil
}

type fallback struct {
	primary   contextbuf.Tokenizer
	secondary contextbuf.Tokenizer
	logger    *logx.Logger
}

// WithFallback returns a tokenizer that asks secondary whenever primary
// fails. Cancellation of ctx is never masked.
func WithFallback(primary, secondary contextbuf.Tokenizer) contextbuf.Tokenizer {
	return &fallback{primary: primary, secondary: secondary, logger: logx.NewLogger("tokenizer")}
}

func (f *fallback) Count(ctx context.Context, text, modelID string) (int, error) {
	n, err := f.primary.Count(ctx, text, modelID)
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil {
		return 0, err
	}
	f.logger.Warn("primary tokenizer failed for model %q, using fallback: %v", modelID, err)
	return f.secondary.Count(ctx, text, modelID)
}
