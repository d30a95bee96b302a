package resilience

import (
	"context"

	"github.com/MrWong99/voxdesk/pkg/provider/llm"
	"github.com/MrWong99/voxdesk/pkg/provider/stt"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
	"github.com/MrWong99/voxdesk/pkg/types"
)

var (
	_ llm.Provider = (*LLMFallback)(nil)
	_ stt.Provider = (*STTFallback)(nil)
	_ tts.Provider = (*TTSFallback)(nil)
)

// LLMFallback is an [llm.Provider] that fails over across a [FallbackGroup].
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

// NewLLMFallback returns an LLMFallback with primary tried first.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.FallbackGroup, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// STTFallback is an [stt.Provider] that fails over across a [FallbackGroup].
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

// NewSTTFallback returns an STTFallback with primary tried first.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Transcribe implements [stt.Provider]. An empty transcript is a success and
// does not fail over.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Transcript, error) {
	return Do(ctx, f.FallbackGroup, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, pcm, cfg)
	})
}

// TTSFallback is a [tts.Provider] that fails over across a [FallbackGroup].
type TTSFallback struct {
	*FallbackGroup[tts.Provider]
}

// NewTTSFallback returns a TTSFallback with primary tried first.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Synthesize implements [tts.Provider]. Fallback providers receive the same
// voice profile; one they do not know falls back to their default voice.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	return Do(ctx, f.FallbackGroup, func(ctx context.Context, p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}
