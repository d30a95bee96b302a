package turn

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/voxdesk/internal/intent"
)

// DefaultSystemPrompt is used when no prompt is configured.
const DefaultSystemPrompt = "You are a helpful voice assistant. Keep your answers concise and conversational. Maximum 50 words."

// DefaultTranscriptionPrompt biases recognition towards the commands the
// assistant understands.
const DefaultTranscriptionPrompt = "A voice command to a calendar assistant. Delete the previously created appointment. Add a meeting. Check weather in Marburg."

// CurrentTimePlaceholder is replaced in the system prompt on every turn.
const CurrentTimePlaceholder = "{current_time}"

// currentTimeLayout renders the placeholder as YYYY-MM-DDTHH:MM.
const currentTimeLayout = "2006-01-02T15:04"

// SystemErrorReply is spoken when no usable answer could be produced.
const SystemErrorReply = "I processed your request, but there was a system error."

// DefaultRefusalKeywords mark a rephrase the model refused to produce.
var DefaultRefusalKeywords = []string{"unable to", "cannot access", "not provided", "no information", "cannot answer"}

// RenderSystemPrompt substitutes the current time into tmpl.
func RenderSystemPrompt(tmpl string, now time.Time) string {
	if tmpl == "" {
		tmpl = DefaultSystemPrompt
	}
	return strings.ReplaceAll(tmpl, CurrentTimePlaceholder, now.Format(currentTimeLayout))
}

const weatherInstruction = `INSTRUCTION: Read the text above to the user in a single, natural spoken sentence. It is real data you are allowed to read; never refuse.
- ONLY mention the day the text is about.
- Do NOT read raw lists or bullet points.
- Do NOT say 'Here is the weather' or 'The tool says'. Just give the answer.`

const calendarInstruction = `INSTRUCTION: Read the text above to the user clearly. Do not add any extra words. It is real data you are allowed to read; never refuse.
- If it lists events, summarise them naturally, keeping each ID.
- If it confirms a create, update or delete, just say it was done and keep the ID.`

// RephrasePrompt asks the model to turn raw tool output into speech.
func RephrasePrompt(kind intent.Kind, toolOutput string) string {
	instruction := calendarInstruction
	if kind == intent.KindWeather {
		instruction = weatherInstruction
	}
	return fmt.Sprintf("TEXT TO READ: %q\n%s", toolOutput, instruction)
}

// ChatFallbackPrompt is a single-shot prompt used when the history-based chat
// completion fails.
func ChatFallbackPrompt(text string) string {
	return "Reply briefly to: " + text
}

var bracketStripper = strings.NewReplacer("[", "", "]", "", "{", "", "}", "")

// RawDataReply speaks toolOutput without depending on the model.
func RawDataReply(toolOutput string) string {
	return "Here is the information: " + bracketStripper.Replace(toolOutput)
}

// IsRefusal reports whether reply contains one of keywords, ignoring case.
func IsRefusal(reply string, keywords []string) bool {
	lower := strings.ToLower(reply)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
