// Package phonetic finds known place names in transcribed text, tolerating
// the spelling drift speech recognition introduces ("marbug", "frankfort").
//
// Candidates are filtered by Double Metaphone code overlap and ranked by
// Jaro-Winkler similarity. A candidate without phonetic overlap is accepted
// only above the stricter fuzzy threshold.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.88

	// minTokenLen keeps short function words ("in", "the") from matching on
	// their own.
	minTokenLen = 4
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a candidate
// that shares a Double Metaphone code with the input. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a candidate
// without phonetic overlap. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithIgnore adds words that never match a place. Intent keywords belong
// here.
func WithIgnore(words ...string) Option {
	return func(m *Matcher) {
		for _, w := range words {
			m.ignore[strings.ToLower(w)] = struct{}{}
		}
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	ignore            map[string]struct{}
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		ignore:            map[string]struct{}{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the place from places closest to word. word may be a phrase.
// When nothing clears the thresholds ok is false and place is empty.
func (m *Matcher) Match(word string, places []string) (place string, score float64, ok bool) {
	tokens := strings.Fields(strings.ToLower(word))
	if len(tokens) == 0 {
		return "", 0, false
	}
	inputCodes := codesFor(tokens)
	full := strings.Join(tokens, " ")

	var bestPhonetic bool
	for _, p := range places {
		pTokens := strings.Fields(strings.ToLower(p))
		if len(pTokens) == 0 {
			continue
		}
		s := similarity(tokens, pTokens, full)
		phonetic := overlaps(inputCodes, codesFor(pTokens))

		switch {
		case phonetic && s >= m.phoneticThreshold:
			if !bestPhonetic || s > score {
				place, score, bestPhonetic = p, s, true
			}
		case !bestPhonetic && s >= m.fuzzyThreshold && s > score:
			place, score = p, s
		}
	}
	return place, score, place != ""
}

// Find scans text for the best matching place. Every run of consecutive
// words as long as the longest place name is tried.
func (m *Matcher) Find(text string, places []string) (place string, score float64, ok bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-' && r != '\''
	})
	maxLen := 1
	for _, p := range places {
		maxLen = max(maxLen, len(strings.Fields(p)))
	}

	for i := range words {
		if m.ignored(words[i]) {
			continue
		}
		for n := 1; n <= maxLen && i+n <= len(words); n++ {
			if n > 1 && m.ignored(words[i+n-1]) {
				break
			}
			if n == 1 && len([]rune(words[i])) < minTokenLen {
				continue
			}
			cand, s, hit := m.Match(strings.Join(words[i:i+n], " "), places)
			if hit && s > score {
				place, score = cand, s
			}
		}
	}
	return place, score, place != ""
}

func (m *Matcher) ignored(w string) bool {
	_, ok := m.ignore[w]
	return ok
}

func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best of the full-phrase and the concatenated
// Jaro-Winkler scores. Token pairs are only compared for single-word places,
// so "new york" cannot win on "york" alone.
func similarity(in, place []string, inFull string) float64 {
	score := matchr.JaroWinkler(inFull, strings.Join(place, " "), false)
	if s := matchr.JaroWinkler(strings.Join(in, ""), strings.Join(place, ""), false); s > score {
		score = s
	}
	return score
}
