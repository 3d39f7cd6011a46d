package config_test

import (
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mikubot/internal/config"
	"github.com/MrWong99/mikubot/internal/engine"
)

// noEnv isolates tests from the host environment.
var noEnv = map[string]string{}

func load(t *testing.T, doc string, environ map[string]string) (*config.Config, error) {
	t.Helper()
	return config.LoadWithEnv(strings.NewReader(doc), environ)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, "discord:\n  token: abc\n", noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Persona.Backend != "rule-based" {
		t.Errorf("backend = %q", cfg.Persona.Backend)
	}
	if cfg.Store.EffectiveDriver() != config.StoreSQLite || cfg.Store.Path != "data/miku_bot.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Stickers.Chance != 0.3 || cfg.Stickers.Path != "stickers.json" {
		t.Errorf("stickers = %+v", cfg.Stickers)
	}
	if cfg.RateLimit.Messages != 10 || cfg.RateLimit.Period != time.Minute {
		t.Errorf("ratelimit = %+v", cfg.RateLimit)
	}
	if cfg.Persona.Timeout != 30*time.Second || cfg.Persona.HistoryLimit != 6 {
		t.Errorf("persona = %+v", cfg.Persona)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	t.Parallel()

	doc := `
server:
  listen_addr: ":9000"
  log_level: debug
discord:
  token: abc
  admin_ids: ["1", "2"]
  owner_id: "3"
persona:
  backend: delegate
  timeout: 10s
providers:
  llm:
    name: groq
    model: llama-3.1-8b-instant
  llm_fallbacks:
    - name: openai
      model: gpt-4o-mini
store:
  driver: memory
stickers:
  chance: 0.5
  watch_interval: 0s
ratelimit:
  messages: 5
  period: 30s
`
	cfg, err := load(t, doc, noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !slices.Equal(cfg.Discord.AdminIDs, []string{"1", "2"}) || cfg.Discord.OwnerID != "3" {
		t.Errorf("discord = %+v", cfg.Discord)
	}
	if cfg.Persona.Timeout != 10*time.Second {
		t.Errorf("timeout = %s", cfg.Persona.Timeout)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "openai" {
		t.Errorf("fallbacks = %+v", cfg.Providers.LLMFallbacks)
	}
	if cfg.Stickers.Chance != 0.5 || cfg.Stickers.WatchInterval != 0 {
		t.Errorf("stickers = %+v", cfg.Stickers)
	}
	if cfg.RateLimit.Messages != 5 || cfg.RateLimit.Period != 30*time.Second {
		t.Errorf("ratelimit = %+v", cfg.RateLimit)
	}
}

func TestLoad_EnvironmentOverlay(t *testing.T) {
	t.Parallel()

	environ := map[string]string{
		"BOT_TOKEN":          "env-token",
		"AI_PROVIDER":        "groq",
		"GROQ_API_KEY":       "gsk",
		"COHERE_API_KEY":     "co",
		"ADMIN_IDS":          "11,22",
		"OWNER_ID":           "0",
		"DATABASE_PATH":      "/tmp/miku.db",
		"LOG_LEVEL":          "WARN",
		"STICKERS_JSON_PATH": "/etc/miku/stickers.json",
		"STICKER_CHANCE":     "0.1",
	}
	cfg, err := load(t, "discord:\n  token: file-token\n", environ)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("token = %q, env should win", cfg.Discord.Token)
	}
	if cfg.Persona.Backend != string(engine.KindDelegate) || cfg.Providers.LLM.Name != "groq" {
		t.Errorf("AI_PROVIDER=groq mapped to backend %q provider %q", cfg.Persona.Backend, cfg.Providers.LLM.Name)
	}
	if cfg.Providers.Keys.For("groq") != "gsk" || cfg.Providers.Keys.For("cohere") != "co" || cfg.Providers.Keys.For("ollama") != "" {
		t.Errorf("keys = %+v", cfg.Providers.Keys)
	}
	if !slices.Equal(cfg.Discord.AdminIDs, []string{"11", "22"}) {
		t.Errorf("admins = %v", cfg.Discord.AdminIDs)
	}
	if cfg.Discord.OwnerID != "" {
		t.Errorf("owner = %q, want placeholder 0 dropped", cfg.Discord.OwnerID)
	}
	if cfg.Store.Path != "/tmp/miku.db" || cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("store/log = %+v %q", cfg.Store, cfg.Server.LogLevel)
	}
	if cfg.Stickers.Path != "/etc/miku/stickers.json" || cfg.Stickers.Chance != 0.1 {
		t.Errorf("stickers = %+v", cfg.Stickers)
	}
}

func TestLoad_DSNSelectsPostgres(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, "", map[string]string{"BOT_TOKEN": "x", "DATABASE_DSN": "postgres://localhost/miku"})
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Store.EffectiveDriver() != config.StorePostgres {
		t.Errorf("driver = %q", cfg.Store.EffectiveDriver())
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := load(t, "discord:\n  token: x\n  dm_role_id: y\n", noEnv)
	if err == nil || !strings.Contains(err.Error(), "dm_role_id") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	doc := `
server:
  log_level: bananas
persona:
  backend: telepathy
  temperature: 3
  top_p: 1.5
  presence_penalty: -3
store:
  driver: mongodb
stickers:
  chance: 1.5
ratelimit:
  messages: -1
`
	_, err := load(t, doc, noEnv)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{
		"server.log_level",
		"discord.token is required",
		"persona.backend",
		"persona.temperature",
		"persona.top_p",
		"persona.presence_penalty",
		"store.driver",
		"stickers.chance",
		"ratelimit.messages",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestLoad_PersonaSampling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		doc         string
		environ     map[string]string
		wantHistory int
	}{
		{"rule-based default", "", nil, 6},
		{"groq default", "", map[string]string{"AI_PROVIDER": "groq"}, 6},
		{"cohere default", "", map[string]string{"AI_PROVIDER": "cohere"}, config.CohereHistoryLimit},
		{"cohere explicit", "persona:\n  history_limit: 3\n", map[string]string{"AI_PROVIDER": "cohere"}, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			environ := map[string]string{"BOT_TOKEN": "x"}
			maps.Copy(environ, tc.environ)
			cfg, err := load(t, tc.doc, environ)
			if err != nil {
				t.Fatalf("LoadWithEnv: %v", err)
			}
			if cfg.Persona.HistoryLimit != tc.wantHistory || cfg.EffectiveHistoryLimit() != tc.wantHistory {
				t.Errorf("history limit = %d, want %d", cfg.Persona.HistoryLimit, tc.wantHistory)
			}
		})
	}

	cfg, err := load(t, "persona:\n  top_p: 0.8\n  frequency_penalty: 0.5\n  presence_penalty: -0.5\n", map[string]string{"BOT_TOKEN": "x"})
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if p := cfg.Persona; p.TopP != 0.8 || p.FrequencyPenalty != 0.5 || p.PresencePenalty != -0.5 {
		t.Errorf("sampling = %+v", p)
	}

	def, err := load(t, "", map[string]string{"BOT_TOKEN": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if def.Persona.TopP != 0.95 || def.Persona.FrequencyPenalty != 0.3 || def.Persona.PresencePenalty != 0.2 {
		t.Errorf("default sampling = %+v", def.Persona)
	}
}

func TestValidate_DelegateNeedsProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"no provider", "persona:\n  backend: delegate\n", "providers.llm.name is required"},
		{"unnamed fallback", "persona:\n  backend: delegate\nproviders:\n  llm:\n    name: groq\n  llm_fallbacks:\n    - model: x\n", "providers.llm_fallbacks[0].name"},
		{"postgres without dsn", "store:\n  driver: postgres\n", "store.dsn is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(t, tc.doc, map[string]string{"BOT_TOKEN": "x"})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("BOT_TOKEN", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("stickers:\n  chance: 0.7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "from-env" || cfg.Stickers.Chance != 0.7 {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("MIKUBOT_DOTENV_TEST=hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("MIKUBOT_DOTENV_TEST") })

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("MIKUBOT_DOTENV_TEST"); got != "hello" {
		t.Errorf("MIKUBOT_DOTENV_TEST = %q", got)
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()

	for lvl, want := range map[config.LogLevel]string{
		config.LogDebug: "DEBUG",
		config.LogInfo:  "INFO",
		config.LogWarn:  "WARN",
		config.LogError: "ERROR",
		"":              "INFO",
	} {
		if got := lvl.SlogLevel().String(); got != want {
			t.Errorf("%q.SlogLevel() = %s, want %s", lvl, got, want)
		}
	}
}
