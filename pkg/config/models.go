package config

import "strings"

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// ModelInfo contains static information about a known LLM model.
type ModelInfo struct {
	Provider         string
	MaxContextTokens int
	MaxOutputTokens  int
}

// KnownModels registry gives the context window of common models.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-5":        {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"claude-sonnet-4-20250514": {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"claude-opus-4-5":          {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 16384},
	"gpt-4o":                   {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"o3-mini":                  {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	"o4-mini":                  {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	"gpt-5":                    {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"gemini-2.0-flash":         {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 8192},
	"gemini-2.5-flash":         {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
}

// ProviderPattern infers a provider from a model name prefix.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
}

// GetModelInfo returns the registry entry for modelName. Unknown models get a
// conservative 32k window, an inferred provider, and false.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, ok := KnownModels[modelName]; ok {
		return info, true
	}

	provider := ""
	for _, p := range ProviderPatterns {
		if strings.HasPrefix(strings.ToLower(modelName), p.Prefix) {
			provider = p.Provider
			break
		}
	}
	return ModelInfo{Provider: provider, MaxContextTokens: 32000, MaxOutputTokens: 4096}, false
}
