package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/loquax/internal/correct"
	"github.com/MrWong99/loquax/internal/tier"
)

// ValidLLMProviderNames lists the correction backends loquax knows how to
// construct. Unknown names are soft warnings, not hard errors, so a newer
// backend can be tried without a code change failing validation.
var ValidLLMProviderNames = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"gemini":    true,
	"ollama":    true,
	"deepseek":  true,
	"mistral":   true,
	"groq":      true,
	"llamacpp":  true,
	"llamafile": true,
}

// Load reads and validates the configuration file at path. Defaults are
// applied first, so a partial file only overrides the sections it names.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default] and validates the
// result. Unknown fields are rejected so typos fail loudly instead of being
// silently ignored.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: defaults only.
			return cfg, nil
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for hard errors and logs soft warnings
// for values that are suspicious but not fatal. All hard errors are
// collected and joined so the user sees every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if !c.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q (valid: debug, info, warn, error)", c.Logging.Level))
	}

	if c.Recognition.Model != "" {
		if _, err := tier.ParseTier(c.Recognition.Model); err != nil {
			errs = append(errs, fmt.Errorf("recognition.model: %w", err))
		}
	}
	if p := tier.Priority(c.Recognition.Priority); !p.IsValid() {
		errs = append(errs, fmt.Errorf("recognition.priority: unknown priority %q (valid: accuracy, speed)", c.Recognition.Priority))
	}
	if c.Recognition.AcceleratorMemoryGiB < 0 {
		errs = append(errs, fmt.Errorf("recognition.accelerator_memory_gib: must not be negative, got %g", c.Recognition.AcceleratorMemoryGiB))
	}
	if c.Recognition.AttemptTimeout < 0 {
		errs = append(errs, fmt.Errorf("recognition.attempt_timeout: must not be negative, got %s", c.Recognition.AttemptTimeout.Std()))
	}

	if c.Correction.Enabled {
		if !ValidLLMProviderNames[strings.ToLower(c.Correction.Provider)] {
			slog.Warn("unrecognized correction provider, attempting anyway",
				"provider", c.Correction.Provider,
				"known", knownProviderList())
		}
		if c.Correction.CharBudget < 0 {
			errs = append(errs, fmt.Errorf("correction.char_budget: must not be negative, got %d", c.Correction.CharBudget))
		}
		if c.Correction.EditTolerance < 0 || c.Correction.EditTolerance > 1 {
			errs = append(errs, fmt.Errorf("correction.edit_tolerance: must be in [0, 1], got %g", c.Correction.EditTolerance))
		}
		if c.Correction.BatchTimeout < 0 {
			errs = append(errs, fmt.Errorf("correction.batch_timeout: must not be negative, got %s", c.Correction.BatchTimeout.Std()))
		}
		if p := correct.Policy(c.Correction.LedgerPolicy); !p.IsValid() {
			errs = append(errs, fmt.Errorf("correction.ledger_policy: unknown policy %q (valid: first-wins, last-wins)", c.Correction.LedgerPolicy))
		}
		if c.Correction.Temperature < 0 || c.Correction.Temperature > 2 {
			errs = append(errs, fmt.Errorf("correction.temperature: must be in [0, 2], got %g", c.Correction.Temperature))
		}
		for i, fb := range c.Correction.Fallbacks {
			if fb.Model == "" {
				errs = append(errs, fmt.Errorf("correction.fallbacks[%d]: model is required", i))
			}
			if !ValidLLMProviderNames[strings.ToLower(fb.Provider)] {
				slog.Warn("unrecognized fallback provider, attempting anyway",
					"provider", fb.Provider, "known", knownProviderList())
			}
		}
	}

	if c.Archive.Enabled {
		if c.Archive.PostgresDSN == "" {
			errs = append(errs, errors.New("archive.postgres_dsn: required when archive is enabled"))
		}
		if p := c.Archive.Embeddings.Provider; p != "" && !strings.EqualFold(p, "openai") {
			slog.Warn("unrecognized embeddings provider, semantic search will be disabled",
				"provider", p)
		}
	}

	return errors.Join(errs...)
}

func knownProviderList() string {
	names := make([]string, 0, len(ValidLLMProviderNames))
	for name := range ValidLLMProviderNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
