// Package config defines the loquax configuration schema and its YAML
// loader. Configuration is optional: every field has a sensible default and
// the CLI flags override whatever the file sets.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether the level is one of the recognised values.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// Duration wraps [time.Duration] so YAML values like "90s" or "10m" decode
// directly.
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for loquax.
type Config struct {
	// Logging configures slog output.
	Logging LoggingConfig `yaml:"logging"`

	// Recognition configures model selection and speech recognition.
	Recognition RecognitionConfig `yaml:"recognition"`

	// Correction configures the LLM terminology correction stage.
	Correction CorrectionConfig `yaml:"correction"`

	// Archive configures the optional Postgres transcript archive.
	Archive ArchiveConfig `yaml:"archive"`

	// Media configures external tool paths for audio extraction.
	Media MediaConfig `yaml:"media"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is the minimum level to emit. Default: info.
	Level LogLevel `yaml:"level"`
}

// RecognitionConfig configures model-tier planning and recognition.
type RecognitionConfig struct {
	// Model forces a specific tier (tiny, base, small, medium, large)
	// instead of memory-based planning. Empty selects automatically.
	Model string `yaml:"model"`

	// Priority picks the planning trade-off: "accuracy" (default) or
	// "speed".
	Priority string `yaml:"priority"`

	// AcceleratorMemoryGiB is the usable accelerator memory for tier
	// planning. Zero falls back to a conservative default.
	AcceleratorMemoryGiB float64 `yaml:"accelerator_memory_gib"`

	// Language is the spoken language hint passed to the recognizer.
	// "auto" (default) enables language detection.
	Language string `yaml:"language"`

	// CacheDir stores downloaded model weights. Empty uses
	// $XDG_CACHE_HOME/loquax/models.
	CacheDir string `yaml:"cache_dir"`

	// AttemptTimeout bounds a single tier attempt before falling back.
	// Zero disables the per-attempt bound.
	AttemptTimeout Duration `yaml:"attempt_timeout"`
}

// CorrectionConfig configures the LLM correction stage.
type CorrectionConfig struct {
	// Enabled toggles the correction stage. Default: true when a provider
	// is configured.
	Enabled bool `yaml:"enabled"`

	// Provider names the LLM backend (openai, anthropic, ollama, ...).
	Provider string `yaml:"provider"`

	// Model is the model identifier understood by the provider.
	Model string `yaml:"model"`

	// APIKey authenticates with the provider. Empty falls back to the
	// provider's environment variable convention.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (self-hosted gateways,
	// Ollama on a non-default port).
	BaseURL string `yaml:"base_url"`

	// CharBudget caps the character size of one correction batch. Zero
	// uses the built-in default.
	CharBudget int `yaml:"char_budget"`

	// EditTolerance is the fractional token-count divergence above which a
	// corrected batch is rejected. Zero uses the built-in default.
	EditTolerance float64 `yaml:"edit_tolerance"`

	// BatchTimeout bounds one LLM round trip. Zero disables the bound.
	BatchTimeout Duration `yaml:"batch_timeout"`

	// LedgerPolicy resolves conflicting term corrections: "first-wins"
	// (default) or "last-wins".
	LedgerPolicy string `yaml:"ledger_policy"`

	// Temperature is the sampling temperature for correction requests.
	Temperature float64 `yaml:"temperature"`

	// Fallbacks lists backends tried in order when the primary provider
	// fails, each behind its own circuit breaker.
	Fallbacks []FallbackProvider `yaml:"fallbacks"`
}

// FallbackProvider names one fallback correction backend.
type FallbackProvider struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// ArchiveConfig configures the optional transcript archive.
type ArchiveConfig struct {
	// Enabled toggles archiving. Requires PostgresDSN.
	Enabled bool `yaml:"enabled"`

	// PostgresDSN is the connection string for the archive database.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Embeddings configures the embedding provider used for semantic
	// search over archived segments.
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider names the embedding backend. Currently only "openai".
	Provider string `yaml:"provider"`

	// Model is the embedding model identifier.
	Model string `yaml:"model"`

	// APIKey authenticates with the provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url"`
}

// MediaConfig configures external tooling for audio extraction.
type MediaConfig struct {
	// FFmpegPath overrides the ffmpeg binary looked up on PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath overrides the ffprobe binary looked up on PATH.
	FFprobePath string `yaml:"ffprobe_path"`

	// TempDir holds intermediate extracted audio. Empty uses the system
	// temp directory.
	TempDir string `yaml:"temp_dir"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: LogLevelInfo},
		Recognition: RecognitionConfig{
			Priority: "accuracy",
			Language: "auto",
		},
		Correction: CorrectionConfig{
			Enabled:      true,
			Provider:     "openai",
			LedgerPolicy: "first-wins",
		},
		Archive: ArchiveConfig{
			Embeddings: EmbeddingsConfig{
				Provider: "openai",
				Model:    "text-embedding-3-small",
			},
		},
	}
}
