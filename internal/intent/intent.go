// Package intent decides what a transcribed utterance asks for.
//
// Routing is keyword based: the first category whose keywords appear in the
// text wins, with weather checked before calendar and chat as the fallback.
// For weather and calendar requests the [Router] also resolves the
// parameters the tools need, asking an [Extractor] (normally a language
// model) only for what the keywords and the conversation context cannot
// answer.
package intent

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/MrWong99/voxdesk/internal/convo"
	"github.com/MrWong99/voxdesk/internal/intent/phonetic"
	"github.com/MrWong99/voxdesk/internal/tools/calendar"
)

// Kind is the category of a request.
type Kind string

const (
	KindWeather  Kind = "weather"
	KindCalendar Kind = "calendar"
	KindChat     Kind = "chat"
)

var (
	weatherKeywords  = []string{"weather", "rain", "temperature", "forecast"}
	calendarKeywords = []string{"appointment", "meeting", "schedule", "delete", "list", "update", "change", "add", "where", "next"}
)

// Intent is a routed request. Only the fields of its Kind are set.
type Intent struct {
	Kind Kind

	// City and DayHint parameterise a weather lookup. DayHint is the
	// original utterance, from which the weather tool picks the day.
	City    string
	DayHint string

	// Calendar is the resolved calendar operation.
	Calendar calendar.Request
}

// Extractor pulls structured parameters out of free text. Implementations
// return the model's raw answer; the Router does the parsing.
type Extractor interface {
	// City returns the city named in text, or "NONE".
	City(ctx context.Context, text string) (string, error)

	// CalendarParams returns a JSON object describing the calendar
	// operation text asks for. now anchors relative dates.
	CalendarParams(ctx context.Context, text string, now time.Time) (string, error)
}

// Option is a functional option for configuring a Router.
type Option func(*Router)

// WithKnownCities sets the places recognised without asking the Extractor.
func WithKnownCities(cities ...string) Option {
	return func(r *Router) {
		r.cities = append([]string(nil), cities...)
	}
}

// WithMatcher replaces the default phonetic city matcher.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(r *Router) {
		r.matcher = m
	}
}

// WithClock overrides the clock used for date-aware calendar extraction.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// Router classifies utterances and resolves tool parameters. It is safe for
// concurrent use; the known city list may be replaced at runtime.
type Router struct {
	extractor Extractor
	matcher   *phonetic.Matcher
	now       func() time.Time

	mu     sync.RWMutex
	cities []string
}

// NewRouter returns a Router that falls back to ex for parameters keywords
// cannot resolve.
func NewRouter(ex Extractor, opts ...Option) *Router {
	r := &Router{
		extractor: ex,
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.matcher == nil {
		ignore := append(append([]string{}, weatherKeywords...), calendarKeywords...)
		r.matcher = phonetic.New(phonetic.WithIgnore(ignore...))
	}
	return r
}

// SetKnownCities replaces the known city list.
func (r *Router) SetKnownCities(cities []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cities = append([]string(nil), cities...)
}

// KnownCities returns a copy of the known city list.
func (r *Router) KnownCities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.cities...)
}

// Route classifies text and resolves its parameters. The returned context
// carries the city a weather request settled on.
func (r *Router) Route(ctx context.Context, text string, cc convo.Context) (Intent, convo.Context) {
	switch kind := Classify(text); kind {
	case KindWeather:
		city := r.ResolveCity(ctx, text, cc)
		return Intent{Kind: kind, City: city, DayHint: text}, cc.WithCity(city)
	case KindCalendar:
		return Intent{Kind: kind, Calendar: r.CalendarRequest(ctx, text, cc)}, cc
	default:
		return Intent{Kind: KindChat}, cc
	}
}

// Classify returns the category of text by keyword.
func Classify(text string) Kind {
	words := tokenize(text)
	switch {
	case containsAny(words, weatherKeywords):
		return KindWeather
	case containsAny(words, calendarKeywords):
		return KindCalendar
	default:
		return KindChat
	}
}

// tokenize lower-cases text and splits it into words.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// inflections are the word endings a keyword may carry and still match, so
// "meetings" and "rainy" match while "address" does not match "add".
var inflections = []string{"", "s", "es", "d", "ed", "ing", "y"}

func containsAny(words, keywords []string) bool {
	for _, kw := range keywords {
		if containsWord(words, kw) {
			return true
		}
	}
	return false
}

func containsWord(words []string, kw string) bool {
	for _, w := range words {
		rest, ok := strings.CutPrefix(w, kw)
		if !ok {
			continue
		}
		for _, suffix := range inflections {
			if rest == suffix {
				return true
			}
		}
	}
	return false
}

// containsPhrase reports whether the word sequence phrase occurs in words.
func containsPhrase(words []string, phrase string) bool {
	want := strings.Fields(phrase)
	for i := 0; i+len(want) <= len(words); i++ {
		match := true
		for j, w := range want {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
