// Package turn runs the assistant's conversational turns.
//
// One turn is: transcribe (audio input only), route, call the weather or
// calendar tool or chat, rephrase the tool output for speech, guard against
// model refusals, synthesise, and append the exchange to the history. Every
// failure past transcription degrades to a spoken answer; only synthesis
// errors are reported to the caller.
//
// An [Orchestrator] owns the conversation state. Turns must not run
// concurrently; callers serialise them (the listen loop is sequential, the
// HTTP service takes a lock). Prompt and keyword setters may be called from
// any goroutine.
package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/internal/capture"
	"github.com/MrWong99/voxdesk/internal/convo"
	"github.com/MrWong99/voxdesk/internal/intent"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/tools/calendar"
	"github.com/MrWong99/voxdesk/internal/turnlog"
	"github.com/MrWong99/voxdesk/pkg/provider/llm"
	"github.com/MrWong99/voxdesk/pkg/provider/stt"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
	"github.com/MrWong99/voxdesk/pkg/types"
)

// ErrSynthesis wraps text-to-speech failures returned by [Orchestrator.ProcessText].
var ErrSynthesis = errors.New("turn: synthesis failed")

// ErrNoTranscriber is returned by [Orchestrator.ProcessAudio] when no STT
// provider is configured.
var ErrNoTranscriber = errors.New("turn: no stt provider configured")

const defaultMaxHistory = 20

// WeatherTool answers weather questions.
type WeatherTool interface {
	Forecast(ctx context.Context, city, dayHint string) string
}

// CalendarTool executes calendar requests.
type CalendarTool interface {
	Execute(ctx context.Context, req calendar.Request) string
}

// Listener captures one utterance per call. [capture.Recorder] implements it.
type Listener interface {
	Record(ctx context.Context) capture.Utterance
}

// Result describes a finished turn.
type Result struct {
	TurnID string

	// UserText is what the user said. Empty when the turn was skipped.
	UserText string

	Intent     intent.Kind
	ToolOutput string
	Reply      string
	Refused    bool

	// Audio is the synthesised WAV reply.
	Audio []byte

	// Skipped reports that transcription produced no text and nothing else
	// ran.
	Skipped bool
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithSTT sets the transcription provider used by ProcessAudio and Loop.
func WithSTT(p stt.Provider, cfg stt.Config) Option {
	return func(o *Orchestrator) {
		o.stt = p
		o.sttCfg = cfg
	}
}

// WithRouter replaces the default router, which extracts parameters with the
// orchestrator's LLM.
func WithRouter(r *intent.Router) Option {
	return func(o *Orchestrator) { o.router = r }
}

// WithWeather sets the weather tool. Without one, weather requests are
// answered as chat.
func WithWeather(w WeatherTool) Option {
	return func(o *Orchestrator) { o.weather = w }
}

// WithCalendar sets the calendar tool. Without one, calendar requests are
// answered as chat.
func WithCalendar(c CalendarTool) Option {
	return func(o *Orchestrator) { o.calendar = c }
}

// WithJournal records every finished turn in s.
func WithJournal(s turnlog.Store) Option {
	return func(o *Orchestrator) { o.journal = s }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the clock used for the system prompt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSystemPrompt sets the system prompt template. "{current_time}" is
// substituted on every turn.
func WithSystemPrompt(tmpl string) Option {
	return func(o *Orchestrator) { o.systemPrompt = tmpl }
}

// WithRefusalKeywords replaces [DefaultRefusalKeywords].
func WithRefusalKeywords(keywords ...string) Option {
	return func(o *Orchestrator) { o.refusals = append([]string(nil), keywords...) }
}

// WithVoice sets the voice passed to the TTS provider.
func WithVoice(v types.VoiceProfile) Option {
	return func(o *Orchestrator) { o.voice = v }
}

// WithDefaultCity sets the city used until the user names one.
func WithDefaultCity(city string) Option {
	return func(o *Orchestrator) { o.cc = convo.NewContext(city) }
}

// WithMaxHistory bounds the number of non-system history messages.
func WithMaxHistory(n int) Option {
	return func(o *Orchestrator) { o.history = convo.NewHistory(n) }
}

// Orchestrator runs turns. See the package documentation for the
// concurrency contract.
type Orchestrator struct {
	llm      llm.Provider
	tts      tts.Provider
	stt      stt.Provider
	sttCfg   stt.Config
	router   *intent.Router
	weather  WeatherTool
	calendar CalendarTool
	journal  turnlog.Store
	metrics  *observe.Metrics
	now      func() time.Time
	voice    types.VoiceProfile

	cc      convo.Context
	history *convo.History

	mu           sync.RWMutex
	systemPrompt string
	refusals     []string

	// idleBackoff throttles the listen loop when capture yields nothing, so a
	// failing device does not spin.
	idleBackoff time.Duration
}

// New returns an Orchestrator answering with model and speaking through
// speech.
func New(model llm.Provider, speech tts.Provider, opts ...Option) (*Orchestrator, error) {
	if model == nil || speech == nil {
		return nil, fmt.Errorf("turn: llm and tts providers are required")
	}
	o := &Orchestrator{
		llm:         model,
		tts:         speech,
		now:         time.Now,
		cc:          convo.NewContext(convo.DefaultCity),
		history:     convo.NewHistory(defaultMaxHistory),
		refusals:    DefaultRefusalKeywords,
		idleBackoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.router == nil {
		o.router = intent.NewRouter(intent.NewLLMExtractor(model))
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.sttCfg.Prompt == "" {
		o.sttCfg.Prompt = DefaultTranscriptionPrompt
	}
	return o, nil
}

// SetSystemPrompt replaces the system prompt template from the next turn on.
func (o *Orchestrator) SetSystemPrompt(tmpl string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.systemPrompt = tmpl
}

// SetRefusalKeywords replaces the refusal keywords from the next turn on.
func (o *Orchestrator) SetRefusalKeywords(keywords []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refusals = append([]string(nil), keywords...)
}

// SetKnownCities replaces the cities the router recognises by name.
func (o *Orchestrator) SetKnownCities(cities []string) {
	o.router.SetKnownCities(cities)
}

// Context returns the current conversation context.
func (o *Orchestrator) Context() convo.Context { return o.cc }

// History returns a copy of the dialogue history.
func (o *Orchestrator) History() []types.Message { return o.history.Messages() }

func (o *Orchestrator) promptSettings() (string, []string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.systemPrompt, o.refusals
}
