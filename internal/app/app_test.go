package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxdesk/internal/app"
	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/resilience"
	"github.com/MrWong99/voxdesk/internal/turnlog"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxdesk/pkg/provider/llm/mock"
	"github.com/MrWong99/voxdesk/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxdesk/pkg/provider/stt/mock"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxdesk/pkg/provider/tts/mock"
	"github.com/MrWong99/voxdesk/pkg/provider/vad"
	vadmock "github.com/MrWong99/voxdesk/pkg/provider/vad/mock"
	"github.com/MrWong99/voxdesk/pkg/types"
)

var fixedNow = time.Date(2026, 10, 14, 8, 15, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := &config.Config{
		Assistant: config.AssistantConfig{
			SystemPrompt: "Be brief. It is {current_time}.",
			KnownCities:  []string{"Marburg", "Berlin"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

type fixture struct {
	llm *llmmock.Provider
	stt *sttmock.Provider
	tts *ttsmock.Provider
	app *app.App
}

func newFixture(t *testing.T, cfg *config.Config, opts ...app.Option) *fixture {
	t.Helper()
	f := &fixture{
		llm: &llmmock.Provider{Default: "Sure thing."},
		stt: &sttmock.Provider{Transcript: stt.Transcript{Text: "tell me a joke"}},
		tts: &ttsmock.Provider{WAV: audio.EncodeWAV(make([]byte, 320), 16000, 1)},
	}
	opts = append([]app.Option{app.WithClock(func() time.Time { return fixedNow })}, opts...)
	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: f.llm, STT: f.stt, TTS: f.tts}, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	f.app = a
	return f
}

func lastSystemPrompt(t *testing.T, p *llmmock.Provider) string {
	t.Helper()
	if p.CallCount() == 0 {
		t.Fatal("llm never called")
	}
	msgs := p.Calls[p.CallCount()-1].Req.Messages
	if len(msgs) == 0 || msgs[0].Role != types.RoleSystem {
		t.Fatalf("first message is not a system prompt: %+v", msgs)
	}
	return msgs[0].Content
}

func TestNew_WiresSubsystems(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())

	if _, ok := f.app.Journal().(*turnlog.Memory); !ok {
		t.Errorf("journal is %T, want in-memory", f.app.Journal())
	}
	if _, healthy := f.app.Health().Check(context.Background()); !healthy {
		t.Error("health check failed with all providers configured")
	}

	res, err := f.app.Orchestrator().ProcessText(context.Background(), "tell me a joke")
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if res.Reply != "Sure thing." {
		t.Errorf("reply = %q", res.Reply)
	}
	if got := lastSystemPrompt(t, f.llm); got != "Be brief. It is 2026-10-14T08:15." {
		t.Errorf("system prompt = %q", got)
	}
	recs, err := f.app.Journal().Recent(context.Background(), 0)
	if err != nil || len(recs) != 1 {
		t.Fatalf("journal = %v, %v", recs, err)
	}
}

func TestNew_AudioTurnUsesConfiguredSTT(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Assistant.Language = "de"
	cfg.Assistant.TranscriptionPrompt = "Termine und Wetter"
	f := newFixture(t, cfg)

	if _, err := f.app.Orchestrator().ProcessAudio(context.Background(), make([]byte, 3200)); err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if f.stt.CallCount() != 1 {
		t.Fatalf("stt calls = %d", f.stt.CallCount())
	}
	got := f.stt.Calls[0].Cfg
	if got.Language != "de" || got.Prompt != "Termine und Wetter" || got.SampleRate != 16000 {
		t.Errorf("stt config = %+v", got)
	}
	var keywords []string
	for _, k := range got.Keywords {
		keywords = append(keywords, k.Keyword)
	}
	if !slices.Equal(keywords, []string{"Marburg", "Berlin"}) {
		t.Errorf("keywords = %v", keywords)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		providers *app.Providers
	}{
		{"no providers", nil},
		{"no llm", &app.Providers{TTS: &ttsmock.Provider{}}},
		{"no tts", &app.Providers{LLM: &llmmock.Provider{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := app.New(context.Background(), testConfig(), tt.providers); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_InjectedJournalIsNotClosed(t *testing.T) {
	t.Parallel()

	j := &closeCounter{Memory: turnlog.NewMemory(10)}
	f := newFixture(t, testConfig(), app.WithJournal(j))
	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if j.closed != 0 {
		t.Errorf("injected journal closed %d times", j.closed)
	}
}

type closeCounter struct {
	*turnlog.Memory
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestReload(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	cfg := testConfig()
	f := newFixture(t, cfg, app.WithLogLevel(level))

	next := testConfig()
	next.Assistant.SystemPrompt = "Speak like a pirate."
	next.Assistant.KnownCities = []string{"Kassel"}
	next.Server.LogLevel = config.LogDebug
	next.Providers.LLM.Model = "llama3"
	d := config.Diff(cfg, next)
	f.app.Reload(cfg, next, d)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	if got := f.app.Config().Assistant.KnownCities; !slices.Equal(got, []string{"Kassel"}) {
		t.Errorf("known cities = %v", got)
	}
	if f.app.Config().Providers.LLM.Model == "llama3" {
		t.Error("restart-only section was applied live")
	}

	if _, err := f.app.Orchestrator().ProcessText(context.Background(), "tell me a joke"); err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if got := lastSystemPrompt(t, f.llm); got != "Speak like a pirate." {
		t.Errorf("system prompt = %q after reload", got)
	}
}

func TestHTTPServer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	srv := httptest.NewServer(f.app.HTTPServer().Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/", "/healthz", "/readyz", "/turns", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestMCPServer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	ctx := context.Background()
	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := f.app.MCPServer("test").Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })
	cs, err := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "t", Version: "v0"}, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })

	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(res.Tools) != 2 {
		t.Errorf("tools = %d, want 2", len(res.Tools))
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	newReg := func() *config.Registry {
		reg := config.NewRegistry()
		reg.RegisterLLM("ollama", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
		reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
		reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
		reg.RegisterTTS("melo", func(config.ProviderEntry) (tts.Provider, error) { return nil, errors.New("unreachable") })
		reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) { return &vadmock.Engine{}, nil })
		return reg
	}

	t.Run("fallbacks are wrapped", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Providers.TTS.Name = ""
		cfg.Providers.LLM.Fallbacks = []config.ProviderEntry{{Name: "openai"}}

		ps, err := app.BuildProviders(cfg, newReg(), nil)
		if err != nil {
			t.Fatalf("BuildProviders: %v", err)
		}
		fb, ok := ps.LLM.(*resilience.LLMFallback)
		if !ok {
			t.Fatalf("llm is %T, want *resilience.LLMFallback", ps.LLM)
		}
		if !slices.Equal(fb.Names(), []string{"ollama", "openai"}) {
			t.Errorf("fallback order = %v", fb.Names())
		}
		if _, ok := ps.STT.(*sttmock.Provider); !ok {
			t.Errorf("stt without fallbacks is %T, want unwrapped", ps.STT)
		}
		if ps.TTS != nil || ps.VAD == nil {
			t.Errorf("tts = %v, vad = %v", ps.TTS, ps.VAD)
		}
	})

	t.Run("unregistered provider is skipped", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Providers.TTS.Name = ""
		cfg.Providers.STT.Name = "deepgram"
		ps, err := app.BuildProviders(cfg, newReg(), nil)
		if err != nil {
			t.Fatalf("BuildProviders: %v", err)
		}
		if ps.STT != nil {
			t.Errorf("stt = %T, want nil", ps.STT)
		}
	})

	t.Run("factory error fails", func(t *testing.T) {
		t.Parallel()
		if _, err := app.BuildProviders(testConfig(), newReg(), nil); err == nil {
			t.Fatal("expected error from melo factory")
		}
	})

	t.Run("unregistered fallback fails", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Providers.TTS.Name = ""
		cfg.Providers.STT.Fallbacks = []config.ProviderEntry{{Name: "deepgram"}}
		if _, err := app.BuildProviders(cfg, newReg(), nil); !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
		}
	})
}

func TestRegisterBuiltins(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	app.RegisterBuiltins(reg)
	for kind, names := range config.ValidProviderNames {
		got := reg.Names(kind)
		for _, n := range names {
			if !slices.Contains(got, n) {
				t.Errorf("%s provider %q not registered", kind, n)
			}
		}
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
