// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local MeloTTS or Coqui
// server, or ElevenLabs) behind one batch call: the final reply text goes in
// and a complete WAV payload comes out, ready for an [audio.Player] or an HTTP
// response body.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/voxdesk/pkg/types"
)

// ErrEmptyText is returned by providers when Synthesize is called with blank
// text.
var ErrEmptyText = errors.New("tts: empty text")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech and returns a RIFF/WAV payload holding
	// 16-bit PCM.
	//
	// voice selects the speaker. A zero VoiceProfile lets the provider use its
	// configured default voice.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error)
}
