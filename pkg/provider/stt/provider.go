// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server or
// library, Deepgram, or an OpenAI-compatible endpoint) behind one batch call:
// a finalised PCM utterance goes in and a Transcript comes out. The text may
// be empty when the audio held no recognisable speech.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by providers when Transcribe is called with no
// audio at all.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Config describes the audio format and recognition hints for one
// transcription request. Zero values fall back to the provider defaults.
type Config struct {
	// SampleRate is the PCM sample rate in Hz. Default: 16000.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// Empty lets the provider pick its configured language.
	Language string

	// Prompt is an initial-prompt hint that biases recognition towards the
	// expected vocabulary and phrasing. Providers without prompt support ignore
	// it.
	Prompt string

	// Keywords is a list of vocabulary hints such as city names. Providers
	// without keyword support ignore it.
	Keywords []KeywordBoost
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises speech in pcm, which is 16-bit signed
	// little-endian mono audio at cfg.SampleRate.
	//
	// A silent or unintelligible utterance yields a Transcript with empty Text
	// and a nil error. Errors are reserved for transport, authentication and
	// decoding failures.
	Transcribe(ctx context.Context, pcm []byte, cfg Config) (Transcript, error)
}
