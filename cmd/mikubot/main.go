// Command mikubot runs the Miku Nakano chat bot on Discord.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/mikubot/internal/app"
	"github.com/MrWong99/mikubot/internal/config"
	"github.com/MrWong99/mikubot/internal/observe"
	"github.com/MrWong99/mikubot/internal/store"
	"github.com/MrWong99/mikubot/internal/store/memstore"
	"github.com/MrWong99/mikubot/internal/store/postgres"
	"github.com/MrWong99/mikubot/internal/store/sqlite"
	"github.com/MrWong99/mikubot/pkg/provider/llm"
	"github.com/MrWong99/mikubot/pkg/provider/llm/anyllm"
	"github.com/MrWong99/mikubot/pkg/provider/llm/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file (optional)")
	envPath := flag.String("env", ".env", "path to a KEY=VALUE file loaded into the environment (optional)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "mikubot: %v\n", err)
		return 1
	}

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// Environment-only deployments have no config file.
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mikubot: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(level))

	slog.Info("mikubot starting",
		"version", version,
		"config", path,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Registry ──────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	registerBuiltinStores(reg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "mikubot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithTelemetry(tel),
		app.WithLevelVar(level),
	}
	if path != "" {
		opts = append(opts, app.WithConfigWatch(path, nil))
	}
	application, err := app.New(ctx, cfg, reg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, application)

	slog.Info("bot ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// defaultModels is used when a provider entry names no model.
var defaultModels = map[string]string{
	"groq":   "llama-3.3-70b-versatile",
	"cohere": "command-r-plus-08-2024",
	"openai": "gpt-4o-mini",
}

// cohereCompatURL is Cohere's OpenAI-compatible endpoint.
const cohereCompatURL = "https://api.cohere.ai/compatibility/v1"

// registerBuiltinProviders wires all built-in LLM factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Every any-llm backend shares the same pattern: optional APIKey +
	// optional BaseURL. ollama is local and usually needs neither.
	for _, providerName := range anyllm.Backends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, modelOf(entry), opts...)
		})
	}

	// cohere has no any-llm backend; its compatibility endpoint speaks the
	// OpenAI wire format.
	reg.RegisterLLM("cohere", func(entry config.ProviderEntry) (llm.Provider, error) {
		base := entry.BaseURL
		if base == "" {
			base = cohereCompatURL
		}
		return openai.New(entry.APIKey, modelOf(entry), openai.WithBaseURL(base), openai.WithLegacyMaxTokens())
	})

	// openai-compatible talks to any self-hosted server with the OpenAI API.
	reg.RegisterLLM("openai-compatible", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if optBool(entry.Options, "legacy_max_tokens") {
			opts = append(opts, openai.WithLegacyMaxTokens())
		}
		return openai.New(entry.APIKey, modelOf(entry), opts...)
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// registerBuiltinStores wires the store drivers into reg.
func registerBuiltinStores(reg *config.Registry) {
	reg.RegisterStore(config.StoreMemory, func(context.Context, config.StoreConfig) (store.Store, error) {
		slog.Warn("using the in-memory store; data is lost on restart")
		return memstore.New(), nil
	})
	reg.RegisterStore(config.StoreSQLite, func(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
		return sqlite.Open(ctx, cfg.Path)
	})
	reg.RegisterStore(config.StorePostgres, func(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
		return postgres.NewStore(ctx, cfg.DSN)
	})
}

func modelOf(entry config.ProviderEntry) string {
	if entry.Model != "" {
		return entry.Model
	}
	return defaultModels[entry.Name]
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, a *app.App) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       mikubot, startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Backend         : %-19s ║\n", a.Backend())
	if cfg.Providers.LLM.Name != "" {
		printProvider("LLM", cfg.Providers.LLM.Name, modelOf(cfg.Providers.LLM))
		fmt.Printf("║  LLM fallbacks   : %-19d ║\n", len(cfg.Providers.LLMFallbacks))
	}
	fmt.Printf("║  Store           : %-19s ║\n", cfg.Store.EffectiveDriver())
	fmt.Printf("║  Sticker groups  : %-19d ║\n", a.StickerCategories())
	fmt.Printf("║  Sticker chance  : %-19.2f ║\n", cfg.Stickers.Chance)
	fmt.Printf("║  Admins          : %-19d ║\n", len(cfg.Discord.AdminIDs))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optBool extracts a bool value from a provider Options map[string]any.
func optBool(opts map[string]any, key string) bool {
	v, _ := opts[key].(bool)
	return v
}
