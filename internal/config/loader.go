package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/mikubot/internal/engine"
)

// ValidProviderNames lists the LLM provider names the default registry
// knows. Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = []string{"groq", "openai", "cohere", "anthropic", "gemini", "mistral", "deepseek", "ollama", "llamacpp", "llamafile", "openai-compatible"}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path, overlays the process
// environment and returns a validated [Config]. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromReader(strings.NewReader(""))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], overlays
// the process environment and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	return LoadWithEnv(r, nil)
}

// LoadWithEnv is [LoadFromReader] with an explicit environment. A nil map
// uses the process environment.
func LoadWithEnv(r io.Reader, environ map[string]string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize maps the legacy AI_PROVIDER values onto the delegate backend and
// its provider entry, and drops the placeholder owner id "0".
func normalize(cfg *Config) {
	b := strings.ToLower(strings.TrimSpace(cfg.Persona.Backend))
	if slices.Contains(ValidProviderNames, b) {
		if cfg.Providers.LLM.Name == "" {
			cfg.Providers.LLM.Name = b
		}
		b = string(engine.KindDelegate)
	}
	cfg.Persona.Backend = b
	cfg.Persona.HistoryLimit = cfg.EffectiveHistoryLimit()
	cfg.Server.LogLevel = LogLevel(strings.ToLower(string(cfg.Server.LogLevel)))
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	if cfg.Discord.OwnerID == "0" {
		cfg.Discord.OwnerID = ""
	}
	cfg.Discord.AdminIDs = slices.DeleteFunc(cfg.Discord.AdminIDs, func(id string) bool {
		return strings.TrimSpace(id) == ""
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set BOT_TOKEN)"))
	}
	if cfg.Discord.OwnerID == "" && len(cfg.Discord.AdminIDs) == 0 {
		slog.Warn("no owner_id or admin_ids configured; admin commands are unavailable")
	}

	// Persona
	kind, err := engine.ParseKind(cfg.Persona.Backend)
	if err != nil {
		errs = append(errs, fmt.Errorf("persona.backend: %w", err))
	}
	if cfg.Persona.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("persona.history_limit %d must not be negative", cfg.Persona.HistoryLimit))
	}
	if cfg.Persona.Timeout < 0 {
		errs = append(errs, fmt.Errorf("persona.timeout %s must not be negative", cfg.Persona.Timeout))
	}
	if cfg.Persona.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("persona.max_tokens %d must not be negative", cfg.Persona.MaxTokens))
	}
	if cfg.Persona.Temperature < 0 || cfg.Persona.Temperature > 2 {
		errs = append(errs, fmt.Errorf("persona.temperature %.2f is out of range [0, 2]", cfg.Persona.Temperature))
	}
	if cfg.Persona.TopP < 0 || cfg.Persona.TopP > 1 {
		errs = append(errs, fmt.Errorf("persona.top_p %.2f is out of range [0, 1]", cfg.Persona.TopP))
	}
	if p := cfg.Persona.FrequencyPenalty; p < -2 || p > 2 {
		errs = append(errs, fmt.Errorf("persona.frequency_penalty %.2f is out of range [-2, 2]", p))
	}
	if p := cfg.Persona.PresencePenalty; p < -2 || p > 2 {
		errs = append(errs, fmt.Errorf("persona.presence_penalty %.2f is out of range [-2, 2]", p))
	}

	// Providers
	if kind == engine.KindDelegate {
		if cfg.Providers.LLM.Name == "" {
			errs = append(errs, errors.New("providers.llm.name is required for the delegate backend"))
		}
		for i, e := range append([]ProviderEntry{cfg.Providers.LLM}, cfg.Providers.LLMFallbacks...) {
			if i > 0 && e.Name == "" {
				errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i-1))
			}
			validateProviderName(e.Name)
		}
	}

	// Store
	switch cfg.Store.EffectiveDriver() {
	case StoreMemory:
	case StoreSQLite:
		if cfg.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	case StorePostgres:
		if cfg.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, sqlite, postgres", cfg.Store.Driver))
	}

	// Stickers
	if math.IsNaN(cfg.Stickers.Chance) || cfg.Stickers.Chance < 0 || cfg.Stickers.Chance > 1 {
		errs = append(errs, fmt.Errorf("stickers.chance %v is out of range [0, 1]", cfg.Stickers.Chance))
	}
	if cfg.Stickers.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("stickers.watch_interval %s must not be negative", cfg.Stickers.WatchInterval))
	}

	// Rate limit
	if cfg.RateLimit.Messages < 0 {
		errs = append(errs, fmt.Errorf("ratelimit.messages %d must not be negative", cfg.RateLimit.Messages))
	}
	if cfg.RateLimit.Period < 0 {
		errs = append(errs, fmt.Errorf("ratelimit.period %s must not be negative", cfg.RateLimit.Period))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown llm provider name; may be a typo or a custom registration",
		"name", name,
		"known", ValidProviderNames,
	)
}
