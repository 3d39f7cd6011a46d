// Package config provides the configuration schema, loader, watcher and
// factory registry for the bot.
//
// Configuration comes from an optional YAML file overlaid with environment
// variables. The variable names are those the bot has always used
// (BOT_TOKEN, AI_PROVIDER, GROQ_API_KEY, ...), so an env-only deployment
// keeps working without a file.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/mikubot/internal/chat"
	"github.com/MrWong99/mikubot/internal/engine/delegate"
	"github.com/MrWong99/mikubot/internal/ratelimit"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to a slog level. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the root configuration structure.
// It is typically loaded with [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Persona   PersonaConfig   `yaml:"persona"`
	Providers ProvidersConfig `yaml:"providers"`
	Store     StoreConfig     `yaml:"store"`
	Stickers  StickersConfig  `yaml:"stickers"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// ServerConfig holds the ops HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr is the address of the /healthz, /readyz and /metrics
	// server. Empty disables it.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`
}

// DiscordConfig holds the transport credentials and the admin list.
type DiscordConfig struct {
	Token   string `yaml:"token" env:"BOT_TOKEN"`
	GuildID string `yaml:"guild_id" env:"GUILD_ID"`

	// AdminIDs may run admin commands. OwnerID always can.
	AdminIDs []string `yaml:"admin_ids" env:"ADMIN_IDS" envSeparator:","`
	OwnerID  string   `yaml:"owner_id" env:"OWNER_ID"`
}

// PersonaConfig selects and tunes the reply backend.
type PersonaConfig struct {
	// Backend is "rule-based" or "delegate". The provider names "groq",
	// "cohere" and "openai" select the delegate with that provider.
	Backend string `yaml:"backend" env:"AI_PROVIDER"`

	// HistoryLimit is how many past exchanges the delegate sees. Zero uses
	// the provider default: 5 for cohere, 6 otherwise.
	HistoryLimit int `yaml:"history_limit"`

	// Timeout bounds one delegate call.
	Timeout time.Duration `yaml:"timeout"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// Nucleus sampling and repetition penalties sent with every request.
	TopP             float64 `yaml:"top_p"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty"`

	// RepliesFile replaces the built-in canned replies of the rule-based
	// backend. Empty uses the built-in set.
	RepliesFile string `yaml:"replies_file"`
}

// ProvidersConfig declares the language model behind the delegate backend.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary fails or its
	// circuit breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// Keys holds per-provider API keys used when an entry has none.
	Keys APIKeys `yaml:"api_keys"`
}

// APIKeys maps the provider key environment variables.
type APIKeys struct {
	Groq   string `yaml:"groq" env:"GROQ_API_KEY"`
	OpenAI string `yaml:"openai" env:"OPENAI_API_KEY"`
	Cohere string `yaml:"cohere" env:"COHERE_API_KEY"`
}

// For returns the key configured for the named provider.
func (k APIKeys) For(provider string) string {
	switch provider {
	case "groq":
		return k.Groq
	case "openai":
		return k.OpenAI
	case "cohere":
		return k.Cohere
	}
	return ""
}

// ProviderEntry is the configuration block of one LLM provider.
// Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "groq").
	Name string `yaml:"name"`

	// APIKey is the authentication key. Empty falls back to [APIKeys].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	// Driver is "memory", "sqlite" or "postgres". Empty picks postgres
	// when DSN is set and sqlite otherwise.
	Driver string `yaml:"driver" env:"DATABASE_DRIVER"`

	// Path is the sqlite database file.
	Path string `yaml:"path" env:"DATABASE_PATH"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

// CohereHistoryLimit is the history window used with cohere.
const CohereHistoryLimit = 5

// DefaultHistoryLimit returns the history window for the named provider.
func DefaultHistoryLimit(provider string) int {
	if strings.EqualFold(provider, "cohere") {
		return CohereHistoryLimit
	}
	return delegate.DefaultHistoryLimit
}

// EffectiveHistoryLimit returns persona.history_limit, or the primary
// provider's default when it is zero.
func (c *Config) EffectiveHistoryLimit() int {
	if c.Persona.HistoryLimit != 0 {
		return c.Persona.HistoryLimit
	}
	return DefaultHistoryLimit(c.Providers.LLM.Name)
}

// EffectiveDriver resolves an empty Driver.
func (s StoreConfig) EffectiveDriver() string {
	switch {
	case s.Driver != "":
		return s.Driver
	case s.DSN != "":
		return StorePostgres
	default:
		return StoreSQLite
	}
}

// StickersConfig configures the sticker table.
type StickersConfig struct {
	Path string `yaml:"path" env:"STICKERS_JSON_PATH"`

	// Chance is the probability in [0, 1] that a reply carries a sticker.
	Chance float64 `yaml:"chance" env:"STICKER_CHANCE"`

	// WatchInterval is how often the file is polled for changes. Zero
	// disables watching.
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// RateLimitConfig bounds how many messages a user may send per period.
type RateLimitConfig struct {
	Messages int           `yaml:"messages"`
	Period   time.Duration `yaml:"period"`
}

// Default returns the configuration used for every key not set by the file
// or the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Persona: PersonaConfig{
			Backend:          "rule-based",
			Timeout:          delegate.DefaultTimeout,
			MaxTokens:        delegate.DefaultMaxTokens,
			Temperature:      delegate.DefaultTemperature,
			TopP:             delegate.DefaultTopP,
			FrequencyPenalty: delegate.DefaultFrequencyPenalty,
			PresencePenalty:  delegate.DefaultPresencePenalty,
		},
		Store: StoreConfig{
			Path: "data/miku_bot.db",
		},
		Stickers: StickersConfig{
			Path:          "stickers.json",
			Chance:        chat.DefaultStickerChance,
			WatchInterval: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Messages: ratelimit.DefaultMessages,
			Period:   ratelimit.DefaultPeriod,
		},
	}
}
