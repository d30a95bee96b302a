// Package app wires the voxdesk subsystems into a running assistant.
//
// New builds the turn journal, the weather and calendar tools, the intent
// router and the turn orchestrator from a validated config. The result is
// shared by every front end: the HTTP server, the MCP server and the
// microphone loop. Reload applies a hot-reloadable config change, and
// Shutdown releases what New opened.
//
// Tests inject doubles through the functional options.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/health"
	"github.com/MrWong99/voxdesk/internal/intent"
	"github.com/MrWong99/voxdesk/internal/mcp"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/server"
	"github.com/MrWong99/voxdesk/internal/tools/calendar"
	"github.com/MrWong99/voxdesk/internal/tools/weather"
	"github.com/MrWong99/voxdesk/internal/turn"
	"github.com/MrWong99/voxdesk/internal/turnlog"
	"github.com/MrWong99/voxdesk/internal/turnlog/postgres"
	"github.com/MrWong99/voxdesk/internal/turnlog/sqlite"
	"github.com/MrWong99/voxdesk/pkg/provider/stt"
	"github.com/MrWong99/voxdesk/pkg/types"
)

// App owns the assistant's subsystems.
type App struct {
	cfg       *config.Config
	providers *Providers

	journal      turnlog.Store
	weather      *weather.Client
	calendar     *calendar.Client
	router       *intent.Router
	orchestrator *turn.Orchestrator
	health       *health.Handler

	metrics    *observe.Metrics
	level      *slog.LevelVar
	httpClient *http.Client
	now        func() time.Time

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option configures New.
type Option func(*App)

// WithJournal uses s instead of opening the configured turn journal. The
// caller keeps ownership of s.
func WithJournal(s turnlog.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets Reload adjust the process log level through v.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithHTTPClient is used by the weather and calendar tools.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// WithClock replaces time.Now for the tools, the router and the orchestrator.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New builds an App from cfg. cfg must have been validated. LLM and TTS
// providers are required; STT is required only for audio turns.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}
	if err := a.initTools(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init tools: %w", err)
	}
	if err := a.initOrchestrator(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}
	a.initHealth()
	return a, nil
}

func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	tc := a.cfg.Turnlog
	switch tc.Backend {
	case config.TurnlogPostgres:
		s, err := postgres.New(ctx, tc.DSN)
		if err != nil {
			return err
		}
		a.journal = s
	case config.TurnlogSQLite:
		s, err := sqlite.New(ctx, tc.DSN)
		if err != nil {
			return err
		}
		a.journal = s
	default:
		a.journal = turnlog.NewMemory(tc.Limit)
	}
	a.closers = append(a.closers, a.journal.Close)
	slog.Info("turn journal ready", "backend", string(tc.Backend))
	return nil
}

func (a *App) initTools() error {
	tc := a.cfg.Tools

	wopts := []weather.Option{weather.WithTimeout(tc.Timeout), weather.WithClock(a.now), weather.WithMetrics(a.metrics)}
	copts := []calendar.Option{calendar.WithTimeout(tc.Timeout), calendar.WithClock(a.now), calendar.WithMetrics(a.metrics)}
	if a.httpClient != nil {
		wopts = append(wopts, weather.WithHTTPClient(a.httpClient))
		copts = append(copts, calendar.WithHTTPClient(a.httpClient))
	}

	var err error
	if a.weather, err = weather.New(tc.WeatherURL, tc.APIKey, wopts...); err != nil {
		return err
	}
	if a.calendar, err = calendar.New(tc.CalendarURL, tc.CalendarID, copts...); err != nil {
		return err
	}
	return nil
}

func (a *App) initOrchestrator() error {
	ac := a.cfg.Assistant
	if a.providers.LLM == nil {
		return fmt.Errorf("an llm provider is required")
	}

	a.router = intent.NewRouter(
		intent.NewLLMExtractor(a.providers.LLM),
		intent.WithKnownCities(ac.KnownCities...),
		intent.WithClock(a.now),
	)

	opts := []turn.Option{
		turn.WithRouter(a.router),
		turn.WithWeather(a.weather),
		turn.WithCalendar(a.calendar),
		turn.WithJournal(a.journal),
		turn.WithMetrics(a.metrics),
		turn.WithClock(a.now),
		turn.WithSystemPrompt(ac.SystemPrompt),
		turn.WithDefaultCity(ac.DefaultCity),
		turn.WithMaxHistory(ac.MaxHistory),
		turn.WithVoice(types.VoiceProfile{ID: ac.VoiceID, Provider: a.cfg.Providers.TTS.Name}),
	}
	if ac.RefusalKeywords != nil {
		opts = append(opts, turn.WithRefusalKeywords(ac.RefusalKeywords...))
	}
	if a.providers.STT != nil {
		opts = append(opts, turn.WithSTT(a.providers.STT, a.sttConfig()))
	}

	o, err := turn.New(a.providers.LLM, a.providers.TTS, opts...)
	if err != nil {
		return err
	}
	a.orchestrator = o
	return nil
}

// sttConfig derives the recognition settings from the assistant config. Known
// cities double as keyword hints.
func (a *App) sttConfig() stt.Config {
	ac := a.cfg.Assistant
	cfg := stt.Config{
		SampleRate: a.cfg.Audio.SampleRate,
		Language:   ac.Language,
		Prompt:     ac.TranscriptionPrompt,
	}
	for _, city := range ac.KnownCities {
		cfg.Keywords = append(cfg.Keywords, stt.KeywordBoost{Keyword: city, Boost: 2})
	}
	return cfg
}

func (a *App) initHealth() {
	ps := a.cfg.Providers
	a.health = health.New(
		health.Ping("turnlog", a.journal),
		health.Configured("llm:"+ps.LLM.Name, a.providers.LLM != nil),
		health.Configured("stt:"+ps.STT.Name, a.providers.STT != nil),
		health.Configured("tts:"+ps.TTS.Name, a.providers.TTS != nil),
	)
}

// Config returns the config the App was built from, with hot-reloaded
// assistant settings applied.
func (a *App) Config() *config.Config { return a.cfg }

// Providers returns the provider set.
func (a *App) Providers() *Providers { return a.providers }

// Orchestrator returns the turn orchestrator.
func (a *App) Orchestrator() *turn.Orchestrator { return a.orchestrator }

// Journal returns the turn journal.
func (a *App) Journal() turnlog.Store { return a.journal }

// Health returns the probe handler.
func (a *App) Health() *health.Handler { return a.health }

// HTTPServer returns the /process front end bound to the orchestrator.
func (a *App) HTTPServer() *server.Server {
	return server.New(a.orchestrator,
		server.WithSampleRate(a.cfg.Audio.SampleRate),
		server.WithHealth(a.health),
		server.WithMetrics(a.metrics),
		server.WithMetricsHandler(observe.MetricsHandler()),
		server.WithJournal(a.journal),
	)
}

// MCPServer returns an MCP server exposing the weather and calendar tools.
func (a *App) MCPServer(version string) *mcpsdk.Server {
	return mcp.NewServer(mcp.Config{
		Weather:     a.weather,
		Calendar:    a.calendar,
		DefaultCity: a.cfg.Assistant.DefaultCity,
		Version:     version,
	})
}

// Reload applies the hot-reloadable parts of a config change. It matches
// [config.ChangeFunc] so it can be handed to [config.NewWatcher]. Sections
// that need a restart are left untouched.
func (a *App) Reload(_, next *config.Config, d config.ConfigDiff) {
	if d.SystemPromptChanged {
		a.orchestrator.SetSystemPrompt(next.Assistant.SystemPrompt)
		a.cfg.Assistant.SystemPrompt = next.Assistant.SystemPrompt
		slog.Info("system prompt reloaded")
	}
	if d.KnownCitiesChanged {
		a.orchestrator.SetKnownCities(next.Assistant.KnownCities)
		a.cfg.Assistant.KnownCities = next.Assistant.KnownCities
		slog.Info("known cities reloaded", "count", len(next.Assistant.KnownCities))
	}
	if d.RefusalKeywordsChanged {
		kw := next.Assistant.RefusalKeywords
		if kw == nil {
			kw = turn.DefaultRefusalKeywords
		}
		a.orchestrator.SetRefusalKeywords(kw)
		a.cfg.Assistant.RefusalKeywords = next.Assistant.RefusalKeywords
		slog.Info("refusal keywords reloaded", "count", len(kw))
	}
	if d.LogLevelChanged {
		a.cfg.Server.LogLevel = d.NewLogLevel
		if a.level != nil {
			a.level.Set(SlogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", string(d.NewLogLevel))
		}
	}
}

// Shutdown releases everything New opened. It stops early with the context
// error when ctx expires. Calling it again is a no-op.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		for i, c := range a.closers {
			if ctxErr := ctx.Err(); ctxErr != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				err = ctxErr
				return
			}
			if cerr := c(); cerr != nil {
				slog.Warn("closer error", "index", i, "err", cerr)
			}
		}
		slog.Info("shutdown complete")
	})
	return err
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// SlogLevel maps a config log level to its slog level. Unknown values map to
// info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
