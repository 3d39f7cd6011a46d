package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/mikubot/internal/app"
	"github.com/MrWong99/mikubot/internal/chat"
	"github.com/MrWong99/mikubot/internal/config"
	"github.com/MrWong99/mikubot/internal/discord"
	"github.com/MrWong99/mikubot/internal/engine"
	"github.com/MrWong99/mikubot/internal/store"
	"github.com/MrWong99/mikubot/internal/store/memstore"
	"github.com/MrWong99/mikubot/pkg/provider/llm"
	llmmock "github.com/MrWong99/mikubot/pkg/provider/llm/mock"
)

// ─── Test doubles ────────────────────────────────────────────────────────────

type fakeTransport struct {
	router  *discord.CommandRouter
	pingErr atomic.Pointer[error]
	closed  atomic.Bool

	mu   sync.Mutex
	sent []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{router: discord.NewCommandRouter()}
}

func (f *fakeTransport) SendDirect(_ context.Context, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, userID)
	return nil
}

func (f *fakeTransport) Ping(context.Context) error {
	if p := f.pingErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (f *fakeTransport) Router() *discord.CommandRouter { return f.router }

func (f *fakeTransport) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeTransport) factory() app.TransportFactory {
	return func(context.Context, *config.Config, *chat.Service) (app.Transport, error) {
		return f, nil
	}
}

type closeRecorder struct {
	store.Store
	closed atomic.Bool
}

func (c *closeRecorder) Close() error {
	c.closed.Store(true)
	return c.Store.Close()
}

// ─── Fixtures ────────────────────────────────────────────────────────────────

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	stickers := filepath.Join(t.TempDir(), "stickers.json")
	if err := os.WriteFile(stickers, []byte(`{"cool": "c1", "happy": ["h1"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Server.ListenAddr = ""
	cfg.Discord.Token = "token"
	cfg.Discord.OwnerID = "owner"
	cfg.Store.Driver = config.StoreMemory
	cfg.Stickers.Path = stickers
	cfg.Stickers.WatchInterval = 0
	cfg.Stickers.Chance = 0
	return cfg
}

func testRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterStore(config.StoreMemory, func(context.Context, config.StoreConfig) (store.Store, error) {
		return memstore.New(), nil
	})
	return reg
}

func newApp(t *testing.T, cfg *config.Config, reg *config.Registry, opts ...app.Option) (*app.App, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	a, err := app.New(context.Background(), cfg, reg, append([]app.Option{app.WithTransport(tr.factory())}, opts...)...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, tr
}

func say(t *testing.T, a *app.App, id, text string) chat.Outgoing {
	t.Helper()
	out, err := a.Service().HandleMessage(context.Background(), chat.Incoming{
		Profile: store.Profile{ID: id, FirstName: "Futaro"},
		Text:    text,
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	return out
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestNew_RuleBased(t *testing.T) {
	t.Parallel()

	a, tr := newApp(t, testConfig(t), testRegistry())

	if a.Backend() != engine.KindRuleBased {
		t.Errorf("Backend = %q", a.Backend())
	}
	if a.StickerCategories() != 2 {
		t.Errorf("StickerCategories = %d, want 2", a.StickerCategories())
	}
	if got, want := len(tr.router.ApplicationCommands()), len(chat.Commands()); got != want {
		t.Errorf("registered %d commands, want %d", got, want)
	}
	if out := say(t, a, "u1", "hello"); out.Text == "" {
		t.Error("empty reply")
	}
	if !a.Service().IsAdmin("owner") {
		t.Error("owner is not admin")
	}
}

func TestNew_RepliesFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Persona.RepliesFile = filepath.Join(t.TempDir(), "replies.yaml")
	doc := "flat:\n  thanks: [\"...Hmph. Koi baat nahi.\"]\n"
	if err := os.WriteFile(cfg.Persona.RepliesFile, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	a, _ := newApp(t, cfg, testRegistry())

	if got := say(t, a, "u1", "thank you"); got.Text != "...Hmph. Koi baat nahi." {
		t.Errorf("reply = %q", got.Text)
	}
}

func TestNew_DelegateFailsOver(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Persona.Backend = string(engine.KindDelegate)
	cfg.Providers.LLM = config.ProviderEntry{Name: "groq", Model: "llama"}
	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "openai", Model: "gpt-4o-mini", APIKey: "own-key"}}
	cfg.Providers.Keys.Groq = "gsk"
	cfg.Persona.TopP = 0.9
	cfg.Persona.FrequencyPenalty = 0.4
	cfg.Persona.PresencePenalty = 0.1

	primary := &llmmock.Provider{CompleteErr: llm.ErrTransport}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "...Kya hai?"}}
	var keys sync.Map

	reg := testRegistry()
	reg.RegisterLLM("groq", func(e config.ProviderEntry) (llm.Provider, error) {
		keys.Store("groq", e.APIKey)
		return primary, nil
	})
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		keys.Store("openai", e.APIKey)
		return secondary, nil
	})

	a, _ := newApp(t, cfg, reg)

	if a.Backend() != engine.KindDelegate {
		t.Errorf("Backend = %q", a.Backend())
	}
	if got := say(t, a, "u1", "hello"); got.Text != "...Kya hai?" {
		t.Errorf("reply = %q, want fallback provider reply", got.Text)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Errorf("calls primary=%d secondary=%d", len(primary.Calls()), len(secondary.Calls()))
	}
	if calls := secondary.Calls(); len(calls) == 1 {
		req := calls[0].Req
		if req.TopP != 0.9 || req.FrequencyPenalty != 0.4 || req.PresencePenalty != 0.1 {
			t.Errorf("sampling sent = top_p %v, frequency %v, presence %v", req.TopP, req.FrequencyPenalty, req.PresencePenalty)
		}
	}
	if k, _ := keys.Load("groq"); k != "gsk" {
		t.Errorf("groq key = %v, want key from api_keys", k)
	}
	if k, _ := keys.Load("openai"); k != "own-key" {
		t.Errorf("openai key = %v, want entry key", k)
	}
}

func TestNew_UnregisteredProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Persona.Backend = string(engine.KindDelegate)
	cfg.Providers.LLM = config.ProviderEntry{Name: "groq"}

	st := &closeRecorder{Store: memstore.New()}
	_, err := app.New(context.Background(), cfg, testRegistry(), app.WithStore(st), app.WithTransport(newFakeTransport().factory()))
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
	if !st.closed.Load() {
		t.Error("store not closed after failed init")
	}
}

func TestNew_TransportFailureClosesStore(t *testing.T) {
	t.Parallel()

	st := &closeRecorder{Store: memstore.New()}
	boom := errors.New("gateway down")
	_, err := app.New(context.Background(), testConfig(t), testRegistry(),
		app.WithStore(st),
		app.WithTransport(func(context.Context, *config.Config, *chat.Service) (app.Transport, error) {
			return nil, boom
		}),
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !st.closed.Load() {
		t.Error("store not closed after failed init")
	}
}

func TestNew_InjectedLLM(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Persona.Backend = string(engine.KindDelegate)
	cfg.Providers.LLM = config.ProviderEntry{Name: "unregistered"}
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "...Fine."}}

	a, _ := newApp(t, cfg, testRegistry(), app.WithLLM(p))
	if got := say(t, a, "u1", "hi"); got.Text != "...Fine." {
		t.Errorf("reply = %q", got.Text)
	}
}

func TestHandler_Readiness(t *testing.T) {
	t.Parallel()

	a, tr := newApp(t, testConfig(t), testRegistry())

	get := func(path string) int {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}
	if code := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d", code)
	}
	if code := get("/readyz"); code != http.StatusOK {
		t.Errorf("/readyz = %d", code)
	}

	down := errors.New("gateway not ready")
	tr.pingErr.Store(&down)
	if code := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz with transport down = %d, want 503", code)
	}
	if code := get("/metrics"); code != http.StatusNotFound {
		t.Errorf("/metrics without telemetry = %d, want 404", code)
	}
}

func TestBroadcastUsesTransport(t *testing.T) {
	t.Parallel()

	a, tr := newApp(t, testConfig(t), testRegistry())
	say(t, a, "u1", "hello")
	say(t, a, "u2", "hello")

	report, err := a.Service().Broadcast(context.Background(), "...Announcement.", []string{"u1", "u2"}, nil)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if report.Success != 2 {
		t.Errorf("report = %+v", report)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.sent) != 2 {
		t.Errorf("sent = %v", tr.sent)
	}
}

func TestConfigWatch_AppliesHotSettings(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lv := new(slog.LevelVar)
	a, _ := newApp(t, testConfig(t), testRegistry(),
		app.WithLevelVar(lv),
		app.WithConfigWatch(path, map[string]string{"BOT_TOKEN": "token"}),
	)

	if err := os.WriteFile(path, []byte("server:\n  log_level: debug\nstickers:\n  chance: 0.75\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if lv.Level() == slog.LevelDebug && a.Service().StickerChance() == 0.75 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("hot settings not applied: level=%s chance=%v", lv.Level(), a.Service().StickerChance())
}

func TestConfigWatch_MissingFileIsIgnored(t *testing.T) {
	t.Parallel()

	newApp(t, testConfig(t), testRegistry(),
		app.WithConfigWatch(filepath.Join(t.TempDir(), "absent.yaml"), nil),
	)
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()

	st := &closeRecorder{Store: memstore.New()}
	a, tr := newApp(t, testConfig(t), testRegistry(), app.WithStore(st))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !tr.closed.Load() || !st.closed.Load() {
		t.Errorf("closed transport=%v store=%v", tr.closed.Load(), st.closed.Load())
	}
	// Second call is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestShutdown_ExpiredContext(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	a, err := app.New(context.Background(), testConfig(t), testRegistry(), app.WithTransport(tr.factory()))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown = %v, want context.Canceled", err)
	}
	if tr.closed.Load() {
		t.Error("transport closed despite expired context")
	}
}
