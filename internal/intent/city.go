package intent

import (
	"context"
	"slices"
	"strings"

	"github.com/MrWong99/voxdesk/internal/convo"
	"github.com/MrWong99/voxdesk/internal/observe"
)

// NoCity is the sentinel the Extractor answers with when text names no city.
const NoCity = "NONE"

// ResolveCity returns the city a weather request is about:
//
//  1. a known city named in the text, tolerating misspellings;
//  2. the last city when the text says "there" or "that city";
//  3. the Extractor's answer as given, unless it is [NoCity], empty or an
//     error;
//  4. the last city.
func (r *Router) ResolveCity(ctx context.Context, text string, cc convo.Context) string {
	log := observe.Logger(ctx)
	cities := r.KnownCities()

	if city, ok := knownCity(text, cities); ok {
		return city
	}
	if city, score, ok := r.matcher.Find(text, cities); ok {
		log.Debug("intent: phonetic city match", "city", city, "score", score)
		return city
	}

	words := tokenize(text)
	if containsWord(words, "there") || containsPhrase(words, "that city") {
		return cc.LastCity
	}

	if r.extractor == nil {
		return cc.LastCity
	}
	raw, err := r.extractor.City(ctx, text)
	if err != nil {
		log.Warn("intent: city extraction failed", "err", err, "city", cc.LastCity)
		return cc.LastCity
	}
	city := cleanCity(raw)
	if city == "" || strings.EqualFold(city, NoCity) {
		return cc.LastCity
	}

	// The model may name any city. Only the casing of a known one is
	// normalised; a different place must not be bent onto the list.
	if i := slices.IndexFunc(cities, func(c string) bool { return strings.EqualFold(c, city) }); i >= 0 {
		return cities[i]
	}
	return city
}

// knownCity returns the longest known city contained in text.
func knownCity(text string, cities []string) (string, bool) {
	lower := " " + strings.Join(tokenize(text), " ") + " "
	best := ""
	for _, c := range cities {
		needle := " " + strings.Join(tokenize(c), " ") + " "
		if strings.TrimSpace(needle) == "" {
			continue
		}
		if strings.Contains(lower, needle) && len(c) > len(best) {
			best = c
		}
	}
	return best, best != ""
}

// cleanCity reduces a model answer to the bare city name: first line only,
// without quotes or trailing punctuation.
func cleanCity(raw string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(raw), "\n")
	line = strings.Trim(strings.TrimSpace(line), `"'.,!`+"`")
	return strings.TrimSpace(line)
}
