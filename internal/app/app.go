// Package app wires the bot's subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the store, builds the
// reply backend and the chat service, and connects the transport; Run serves
// until the context is cancelled; Shutdown tears everything down.
//
// For testing, inject doubles via functional options (WithStore,
// WithBackend, WithTransport, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mikubot/internal/chat"
	"github.com/MrWong99/mikubot/internal/config"
	"github.com/MrWong99/mikubot/internal/discord"
	"github.com/MrWong99/mikubot/internal/discord/commands"
	"github.com/MrWong99/mikubot/internal/engine"
	"github.com/MrWong99/mikubot/internal/engine/delegate"
	"github.com/MrWong99/mikubot/internal/engine/rulebased"
	"github.com/MrWong99/mikubot/internal/health"
	"github.com/MrWong99/mikubot/internal/intent"
	"github.com/MrWong99/mikubot/internal/observe"
	"github.com/MrWong99/mikubot/internal/orchestrator"
	"github.com/MrWong99/mikubot/internal/ratelimit"
	"github.com/MrWong99/mikubot/internal/resilience"
	"github.com/MrWong99/mikubot/internal/sticker"
	"github.com/MrWong99/mikubot/internal/store"
	"github.com/MrWong99/mikubot/internal/warmth"
	"github.com/MrWong99/mikubot/pkg/provider/llm"
)

// Transport is the chat platform connection. *discord.Bot implements it.
type Transport interface {
	chat.Sender
	health.Pinger
	Router() *discord.CommandRouter
	Run(ctx context.Context) error
	Close() error
}

var _ Transport = (*discord.Bot)(nil)

// TransportFactory connects a transport that feeds svc.
type TransportFactory func(ctx context.Context, cfg *config.Config, svc *chat.Service) (Transport, error)

// DiscordTransport is the default [TransportFactory].
func DiscordTransport(ctx context.Context, cfg *config.Config, svc *chat.Service) (Transport, error) {
	return discord.New(ctx, discord.Config{
		Token:   cfg.Discord.Token,
		GuildID: cfg.Discord.GuildID,
	}, svc)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	reg *config.Registry

	// Subsystems, initialised in New and torn down in Shutdown.
	store        store.Store
	llm          llm.Provider
	backend      engine.Backend
	stickers     *sticker.Selector
	stickerWatch *sticker.Watcher
	orch         *orchestrator.Orchestrator
	svc          *chat.Service
	transport    Transport
	newTransport TransportFactory
	metrics      *observe.Metrics
	telemetry    *observe.Telemetry
	handler      http.Handler
	server       *http.Server

	level      *slog.LevelVar
	configPath string
	watcher    *config.Watcher
	watchEnv   map[string]string

	// closers run last-in first-out during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithBackend injects a reply backend instead of building one from config.
func WithBackend(b engine.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithLLM injects the language model used by the delegate backend instead
// of creating the configured providers.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.llm = p }
}

// WithTransport replaces [DiscordTransport].
func WithTransport(f TransportFactory) Option {
	return func(a *App) { a.newTransport = f }
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry serves the Prometheus handler of t on /metrics and shuts t
// down with the app.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// WithLevelVar lets configuration reloads change the log level.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigWatch watches the config file at path and applies the log level
// and sticker chance on change. environ overrides the process environment
// for reloads when non-nil.
func WithConfigWatch(path string, environ map[string]string) Option {
	return func(a *App) {
		a.configPath = path
		a.watchEnv = environ
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. reg supplies the
// store and LLM constructors. New performs all initialisation synchronously
// and connects the transport before returning.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:          cfg,
		reg:          reg,
		newTransport: DiscordTransport,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.telemetry != nil {
		a.closers = append(a.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.telemetry.Shutdown(sctx)
		})
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Reply backend ─────────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	// ── 3. Stickers ──────────────────────────────────────────────────────
	if err := a.initStickers(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init stickers: %w", err)
	}

	// ── 4. Orchestrator + chat service ───────────────────────────────────
	a.orch = orchestrator.New(a.backend, a.stickers, orchestrator.WithMetrics(a.metrics))
	a.svc = chat.New(a.store, a.orch,
		chat.WithAdmins(cfg.Discord.OwnerID, cfg.Discord.AdminIDs...),
		chat.WithRateLimiter(ratelimit.New(cfg.RateLimit.Messages, cfg.RateLimit.Period)),
		chat.WithMetrics(a.metrics),
		chat.WithHistoryLimit(cfg.EffectiveHistoryLimit()),
		chat.WithStickerChance(cfg.Stickers.Chance),
	)

	// ── 5. Transport ─────────────────────────────────────────────────────
	if err := a.initTransport(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init transport: %w", err)
	}

	// ── 6. Ops endpoints ─────────────────────────────────────────────────
	a.initHTTP()

	// ── 7. Config watcher ────────────────────────────────────────────────
	if err := a.initConfigWatch(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		st, err := a.reg.CreateStore(ctx, a.cfg.Store)
		if err != nil {
			return err
		}
		a.store = st
		slog.Info("store opened", "driver", a.cfg.Store.EffectiveDriver())
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

func (a *App) initBackend() error {
	if a.backend != nil {
		return nil
	}
	kind, err := engine.ParseKind(a.cfg.Persona.Backend)
	if err != nil {
		return err
	}

	switch kind {
	case engine.KindRuleBased:
		replies := intent.DefaultReplies()
		if path := a.cfg.Persona.RepliesFile; path != "" {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open replies %q: %w", path, err)
			}
			replies, err = intent.LoadReplies(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("load replies %q: %w", path, err)
			}
		}
		sel, err := intent.NewSelector(replies, nil)
		if err != nil {
			return err
		}
		a.backend = rulebased.New(warmth.NewTracker(), intent.NewClassifier(), sel)

	case engine.KindDelegate:
		p, err := a.buildLLM()
		if err != nil {
			return err
		}
		a.backend, err = delegate.New(p,
			delegate.WithHistoryLimit(a.cfg.EffectiveHistoryLimit()),
			delegate.WithTimeout(a.cfg.Persona.Timeout),
			delegate.WithMaxTokens(a.cfg.Persona.MaxTokens),
			delegate.WithTemperature(a.cfg.Persona.Temperature),
			delegate.WithPenalties(a.cfg.Persona.TopP, a.cfg.Persona.FrequencyPenalty, a.cfg.Persona.PresencePenalty),
		)
		if err != nil {
			return err
		}
	}
	slog.Info("reply backend ready", "kind", a.backend.Kind())
	return nil
}

// buildLLM creates the primary provider and its fallbacks behind circuit
// breakers.
func (a *App) buildLLM() (llm.Provider, error) {
	if a.llm != nil {
		return a.llm, nil
	}
	entries := append([]config.ProviderEntry{a.cfg.Providers.LLM}, a.cfg.Providers.LLMFallbacks...)
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("llm circuit breaker changed state", "provider", name, "from", from, "to", to)
			},
		},
	}

	var group *resilience.LLMFallback
	for i, entry := range entries {
		if entry.APIKey == "" {
			entry.APIKey = a.cfg.Providers.Keys.For(entry.Name)
		}
		p, err := a.reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		if i == 0 {
			group = resilience.NewLLMFallback(p, entry.Name, fbCfg)
		} else {
			group.AddFallback(entry.Name, p)
		}
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model, "fallback", i > 0)
	}
	return group, nil
}

func (a *App) initStickers() error {
	sel, err := sticker.NewSelector(a.cfg.Stickers.Path)
	if err != nil {
		return err
	}
	a.stickers = sel
	slog.Info("sticker table loaded", "path", a.cfg.Stickers.Path, "categories", sel.Len())

	if d := a.cfg.Stickers.WatchInterval; d > 0 && a.cfg.Stickers.Path != "" {
		a.stickerWatch = sticker.Watch(sel,
			sticker.WithPollInterval(d),
			sticker.WithReloadHook(func(n int, err error) {
				if err == nil {
					slog.Info("sticker table reloaded", "categories", n)
				}
			}),
		)
		a.closers = append(a.closers, func() error {
			a.stickerWatch.Stop()
			return nil
		})
	}
	return nil
}

func (a *App) initTransport(ctx context.Context) error {
	t, err := a.newTransport(ctx, a.cfg, a.svc)
	if err != nil {
		return err
	}
	a.transport = t
	a.svc.SetSender(t)
	commands.NewChatCommands(a.svc).Register(t.Router())
	a.closers = append(a.closers, t.Close)
	return nil
}

func (a *App) initHTTP() {
	checks := []health.Checker{
		health.PingCheck("store", a.store),
		health.PingCheck("transport", a.transport),
	}
	// An empty sticker table is allowed at startup; once one is loaded,
	// readiness tracks it.
	if a.stickers.Len() > 0 {
		checks = append(checks, health.CountCheck("stickers", a.stickers.Len))
	}

	mux := http.NewServeMux()
	health.New(checks...).Register(mux)
	if a.telemetry != nil {
		mux.Handle("GET /metrics", a.telemetry.Handler)
	}
	a.handler = observe.Middleware(a.metrics)(mux)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		a.server = &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
}

func (a *App) initConfigWatch() error {
	if a.configPath == "" {
		return nil
	}
	if _, err := os.Stat(a.configPath); errors.Is(err, os.ErrNotExist) {
		slog.Debug("config file absent, hot reload disabled", "path", a.configPath)
		return nil
	}
	var opts []config.WatcherOption
	if a.watchEnv != nil {
		opts = append(opts, config.WithEnvironment(a.watchEnv))
	}
	w, err := config.NewWatcher(a.configPath, a.applyConfig, opts...)
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// applyConfig applies the hot-reloadable parts of a changed config.
func (a *App) applyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.StickerChanceChanged {
		a.svc.SetStickerChance(d.NewStickerChance)
		slog.Info("sticker chance changed", "chance", a.svc.StickerChance())
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after restart", "sections", d.RestartRequired)
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Service returns the chat service.
func (a *App) Service() *chat.Service { return a.svc }

// Handler returns the ops HTTP handler serving /healthz, /readyz and, with
// telemetry, /metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Backend returns the active reply backend kind.
func (a *App) Backend() engine.Kind { return a.orch.Backend() }

// StickerCategories returns the number of loaded sticker categories.
func (a *App) StickerCategories() int { return a.stickers.Len() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the transport and the ops server and blocks until ctx is
// cancelled or one of them fails. On cancellation Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.transport.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: transport: %w", err)
		}
		return nil
	})

	if a.server != nil {
		g.Go(func() error {
			slog.Info("ops server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	slog.Info("app running", "backend", a.Backend(), "stickers", a.stickers.Len())
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range slices.Backward(a.closers) {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New opened before it failed.
func (a *App) closeAll() {
	for _, closer := range slices.Backward(a.closers) {
		if err := closer(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	a.closers = nil
}
