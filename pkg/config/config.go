// Package config loads context buffer settings from JSON or YAML files with
// environment variable substitution and CTXBUF_ overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/archive"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/tokenizer"
)

// EnvPrefix prefixes every environment override, e.g. CTXBUF_BUFFER_MAX_TOKENS.
const EnvPrefix = "CTXBUF_"

// Duration is a time.Duration written as "1.5s" in config files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// BufferConfig sizes the context buffer.
type BufferConfig struct {
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// BufferRatio is a pointer so that an explicit 0 survives defaulting.
	BufferRatio     *float64 `json:"buffer_ratio" yaml:"buffer_ratio"`
	ModelID         string   `json:"model_id" yaml:"model_id"`
	TokenizeTimeout Duration `json:"tokenize_timeout" yaml:"tokenize_timeout"`
	ProtectHigh     bool     `json:"protect_high" yaml:"protect_high"`
}

// TokenizerConfig selects the token counter.
type TokenizerConfig struct {
	Provider  string `json:"provider" yaml:"provider"`
	APIKey    string `json:"api_key" yaml:"api_key"` //nolint:gosec // config field, not a credential literal
	CacheSize int    `json:"cache_size" yaml:"cache_size"`
	Fallback  bool   `json:"fallback" yaml:"fallback"`
}

// ArchiveConfig selects where promoted items go.
type ArchiveConfig struct {
	Backend      string   `json:"backend" yaml:"backend"`
	SQLitePath   string   `json:"sqlite_path" yaml:"sqlite_path"`
	RedisURL     string   `json:"redis_url" yaml:"redis_url"`
	RedisTTL     Duration `json:"redis_ttl" yaml:"redis_ttl"`
	KeyPrefix    string   `json:"key_prefix" yaml:"key_prefix"`
	Workers      int      `json:"workers" yaml:"workers"`
	QueueSize    int      `json:"queue_size" yaml:"queue_size"`
	WriteTimeout Duration `json:"write_timeout" yaml:"write_timeout"`
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// DebugConfig defines configuration for debug logging.
type DebugConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Domains []string `json:"domains" yaml:"domains"`
}

// Config is the complete file format.
type Config struct {
	Buffer    BufferConfig    `json:"buffer" yaml:"buffer"`
	Tokenizer TokenizerConfig `json:"tokenizer" yaml:"tokenizer"`
	Archive   ArchiveConfig   `json:"archive" yaml:"archive"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Debug     DebugConfig     `json:"debug" yaml:"debug"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// BufferOptions converts the buffer section for contextbuf.New.
func (c *Config) BufferOptions() contextbuf.Config {
	ratio := contextbuf.DefaultBufferRatio
	if c.Buffer.BufferRatio != nil {
		ratio = *c.Buffer.BufferRatio
	}
	return contextbuf.Config{
		MaxTokens:       c.Buffer.MaxTokens,
		BufferRatio:     ratio,
		ModelID:         c.Buffer.ModelID,
		TokenizeTimeout: time.Duration(c.Buffer.TokenizeTimeout),
		ProtectHigh:     c.Buffer.ProtectHigh,
	}
}

// TokenizerOptions converts the tokenizer section for tokenizer.New.
func (c *Config) TokenizerOptions() tokenizer.Config {
	return tokenizer.Config{
		Provider:  c.Tokenizer.Provider,
		APIKey:    c.Tokenizer.APIKey,
		CacheSize: c.Tokenizer.CacheSize,
		Fallback:  c.Tokenizer.Fallback,
	}
}

// ArchiveOptions converts the archive section for archive.Open.
func (c *Config) ArchiveOptions() archive.Config {
	return archive.Config{
		Backend:    c.Archive.Backend,
		SQLitePath: c.Archive.SQLitePath,
		RedisURL:   c.Archive.RedisURL,
		RedisTTL:   time.Duration(c.Archive.RedisTTL),
		KeyPrefix:  c.Archive.KeyPrefix,
	}
}
