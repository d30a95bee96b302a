package stt

import "time"

// Transcript is the result of one transcription request.
type Transcript struct {
	// Text is the transcribed speech content. Empty on silence.
	Text string

	// Language is the detected or requested language, if the provider reports
	// it.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available (Deepgram).
	// May be nil for providers that don't support word-level output.
	Words []WordDetail

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to improve recognition of place names the assistant knows about.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Marburg").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// AudioDuration returns the playback length of 16-bit mono pcm at rate.
func AudioDuration(pcm []byte, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(len(pcm)/2) * int64(time.Second) / int64(rate))
}
