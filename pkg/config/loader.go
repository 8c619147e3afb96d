package config

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/archive"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/tokenizer"
)

// Format of a config file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from a file extension. Anything other than
// .yaml or .yml is read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads, overrides, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, FormatFor(path))
}

// Parse is Load without the file read.
func Parse(data []byte, format Format) (*Config, error) {
	// Replace environment variable placeholders.
	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match // Return original if env var not found
	})

	var config Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal([]byte(dataStr), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal([]byte(dataStr), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func applyEnvOverrides(config *Config) error {
	v := reflect.ValueOf(config).Elem()
	return applyEnvOverridesRecursive(v, v.Type(), EnvPrefix)
}

// applyEnvOverridesRecursive walks struct fields by json tag, so
// buffer.max_tokens is overridden by CTXBUF_BUFFER_MAX_TOKENS.
func applyEnvOverridesRecursive(v reflect.Value, t reflect.Type, prefix string) error {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		jsonTag := fieldType.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		envKey := strings.ToUpper(prefix + strings.Split(jsonTag, ",")[0])

		if field.Kind() == reflect.Struct && !isTextField(field) {
			if err := applyEnvOverridesRecursive(field, field.Type(), envKey+"_"); err != nil {
				return err
			}
			continue
		}
		if envValue, ok := os.LookupEnv(envKey); ok && envValue != "" {
			if err := setFieldFromEnv(field, envValue); err != nil {
				return fmt.Errorf("env %s: %w", envKey, err)
			}
		}
	}
	return nil
}

func isTextField(field reflect.Value) bool {
	_, ok := field.Addr().Interface().(encoding.TextUnmarshaler)
	return ok
}

func setFieldFromEnv(field reflect.Value, envValue string) error {
	if !field.CanSet() {
		return nil
	}
	if tu, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return tu.UnmarshalText([]byte(envValue))
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Bool:
		b, err := strconv.ParseBool(envValue)
		if err != nil {
			return fmt.Errorf("failed to parse bool from '%s': %w", envValue, err)
		}
		field.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(envValue))
		if err != nil {
			return fmt.Errorf("failed to parse int from '%s': %w", envValue, err)
		}
		field.SetInt(int64(n))
	case reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(envValue), 64)
		if err != nil {
			return fmt.Errorf("failed to parse float from '%s': %w", envValue, err)
		}
		field.SetFloat(f)
	case reflect.Pointer:
		ptr := reflect.New(field.Type().Elem())
		if err := setFieldFromEnv(ptr.Elem(), envValue); err != nil {
			return err
		}
		field.Set(ptr)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var items []string
		for _, s := range strings.Split(envValue, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(config *Config) {
	if config.Buffer.MaxTokens == 0 {
		config.Buffer.MaxTokens = contextbuf.DefaultMaxTokens
	}
	if config.Buffer.BufferRatio == nil {
		ratio := contextbuf.DefaultBufferRatio
		config.Buffer.BufferRatio = &ratio
	}

	if config.Tokenizer.Provider == "" {
		config.Tokenizer.Provider = tokenizer.ProviderTiktoken
	}
	if config.Tokenizer.APIKey == "" {
		switch config.Tokenizer.Provider {
		case tokenizer.ProviderAnthropic:
			config.Tokenizer.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case tokenizer.ProviderGemini:
			config.Tokenizer.APIKey = os.Getenv("GOOGLE_GENAI_API_KEY")
		}
	}

	if config.Archive.Backend == "" {
		config.Archive.Backend = archive.BackendNone
	}
	if config.Archive.Backend == archive.BackendSQLite && config.Archive.SQLitePath == "" {
		config.Archive.SQLitePath = "ctxbuf-archive.db"
	}
	if config.Archive.Workers == 0 {
		config.Archive.Workers = contextbuf.DefaultWorkers
	}
	if config.Archive.QueueSize == 0 {
		config.Archive.QueueSize = contextbuf.DefaultQueueSize
	}
	if config.Archive.WriteTimeout == 0 {
		config.Archive.WriteTimeout = Duration(contextbuf.DefaultWriteTimeout)
	}

	if config.Metrics.Enabled && config.Metrics.ListenAddr == "" {
		config.Metrics.ListenAddr = ":9090"
	}
}

func validateConfig(config *Config) error {
	var errs []error

	b := config.Buffer
	if b.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("buffer.max_tokens must be positive, got %d", b.MaxTokens))
	}
	if r := *b.BufferRatio; r < 0 || r >= 1 {
		errs = append(errs, fmt.Errorf("buffer.buffer_ratio must be in [0,1), got %v", r))
	}
	if b.TokenizeTimeout < 0 {
		errs = append(errs, errors.New("buffer.tokenize_timeout must not be negative"))
	}
	if b.ModelID != "" {
		if info, _ := GetModelInfo(b.ModelID); b.MaxTokens > info.MaxContextTokens {
			logx.NewLogger("config").Warn("buffer.max_tokens %d exceeds the %d-token window of %s",
				b.MaxTokens, info.MaxContextTokens, b.ModelID)
		}
	}

	switch config.Tokenizer.Provider {
	case tokenizer.ProviderTiktoken, tokenizer.ProviderHeuristic:
	case tokenizer.ProviderAnthropic, tokenizer.ProviderGemini:
		if b.ModelID == "" {
			errs = append(errs, fmt.Errorf("tokenizer %s requires buffer.model_id", config.Tokenizer.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tokenizer.provider %q", config.Tokenizer.Provider))
	}
	if config.Tokenizer.CacheSize < 0 {
		errs = append(errs, errors.New("tokenizer.cache_size must not be negative"))
	}

	a := config.Archive
	switch a.Backend {
	case archive.BackendNone, archive.BackendMemory, archive.BackendSQLite:
	case archive.BackendRedis:
		if a.RedisURL == "" {
			errs = append(errs, errors.New("archive.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive.backend %q", a.Backend))
	}
	if a.Workers < 0 || a.QueueSize < 0 {
		errs = append(errs, errors.New("archive.workers and archive.queue_size must not be negative"))
	}

	return errors.Join(errs...)
}
