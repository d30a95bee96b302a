package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/voxdesk/pkg/provider/llm"
)

// LLMExtractor implements [Extractor] with single-shot language model
// prompts.
type LLMExtractor struct {
	llm llm.Provider
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor returns an Extractor backed by p.
func NewLLMExtractor(p llm.Provider) *LLMExtractor {
	return &LLMExtractor{llm: p}
}

// City implements [Extractor].
func (e *LLMExtractor) City(ctx context.Context, text string) (string, error) {
	out, err := llm.Prompt(ctx, e.llm, CityPrompt(text))
	if err != nil {
		return "", fmt.Errorf("intent: extract city: %w", err)
	}
	return out, nil
}

// CalendarParams implements [Extractor].
func (e *LLMExtractor) CalendarParams(ctx context.Context, text string, now time.Time) (string, error) {
	out, err := llm.Prompt(ctx, e.llm, CalendarPrompt(text, now))
	if err != nil {
		return "", fmt.Errorf("intent: extract calendar params: %w", err)
	}
	return out, nil
}

// CityPrompt asks for the bare city name or the [NoCity] sentinel.
func CityPrompt(text string) string {
	return fmt.Sprintf("Extract city name from: '%s'. Return ONLY the city name. If no city is mentioned, return %s.", text, NoCity)
}

// CalendarPrompt asks for the calendar parameters as JSON, anchored on now
// so "tomorrow 9am" resolves to a concrete timestamp.
func CalendarPrompt(text string, now time.Time) string {
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
	return fmt.Sprintf(`Current Date: %s
Tomorrow Date: %s
Request: "%s"

Extract parameters into JSON.
- action: "list", "read", "create", "update", "delete"
- title: string
- start_time: YYYY-MM-DDTHH:MM
- end_time: YYYY-MM-DDTHH:MM
- location: string
- description: string
- event_id: number, only when the request names an appointment ID

Example: "Add meeting tomorrow 9am" -> {"action": "create", "title": "Meeting", "start_time": "%sT09:00"}

JSON ONLY:`, now.Format("2006-01-02 15:04"), tomorrow, text, tomorrow)
}
