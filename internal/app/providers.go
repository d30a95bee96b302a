package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/resilience"
	"github.com/MrWong99/voxdesk/pkg/provider/llm"
	"github.com/MrWong99/voxdesk/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/voxdesk/pkg/provider/llm/openai"
	"github.com/MrWong99/voxdesk/pkg/provider/stt"
	"github.com/MrWong99/voxdesk/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/voxdesk/pkg/provider/stt/openai"
	"github.com/MrWong99/voxdesk/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
	"github.com/MrWong99/voxdesk/pkg/provider/tts/coqui"
	"github.com/MrWong99/voxdesk/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/voxdesk/pkg/provider/tts/melo"
	"github.com/MrWong99/voxdesk/pkg/provider/vad"
	"github.com/MrWong99/voxdesk/pkg/provider/vad/energy"
	"github.com/MrWong99/voxdesk/pkg/provider/vad/webrtc"
)

// Providers holds one value per provider slot. Nil means not configured.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
	VAD vad.Engine
}

// anyLLMProviders are served through any-llm-go.
var anyLLMProviders = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// RegisterBuiltins registers every provider implementation shipped with
// voxdesk.
func RegisterBuiltins(reg *config.Registry) {
	// LLM
	for _, name := range anyLLMProviders {
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}
	reg.RegisterLLM("ollama", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if e.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
		}
		return anyllm.NewOllama(e.Model, opts...)
	})
	openAI := func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if e.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(e.BaseURL))
		}
		if org := optString(e.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(e.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(e.APIKey, e.Model, opts...)
	}
	reg.RegisterLLM("openai", openAI)
	reg.RegisterLLM("openai-compatible", openAI)

	// STT
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ep := optString(e.Options, "endpoint"); ep != "" {
			opts = append(opts, whisper.WithEndpoint(ep))
		}
		return whisper.New(e.BaseURL, opts...)
	})
	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Provider, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = optString(e.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})
	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(e.BaseURL))
		}
		return deepgram.New(e.APIKey, opts...)
	})
	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if e.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, oastt.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(e.APIKey, opts...)
	})

	// TTS
	reg.RegisterTTS("melo", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []melo.Option
		if d := optDuration(e.Options, "timeout"); d > 0 {
			opts = append(opts, melo.WithTimeout(d))
		}
		return melo.New(e.BaseURL, opts...)
	})
	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(e.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if spk := optString(e.Options, "speaker"); spk != "" {
			opts = append(opts, coqui.WithSpeaker(spk))
		}
		if rate := optInt(e.Options, "output_sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(e.BaseURL, opts...)
	})
	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := optString(e.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if v := optString(e.Options, "voice"); v != "" {
			opts = append(opts, elevenlabs.WithVoice(v))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})

	// VAD
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) { return energy.New(), nil })
	reg.RegisterVAD("webrtc", func(config.ProviderEntry) (vad.Engine, error) { return webrtc.New(), nil })

	for _, kind := range []string{"llm", "stt", "tts", "vad"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// BuildProviders instantiates the providers named in cfg. A provider with
// fallbacks is wrapped in the matching [resilience] failover type; m, if set,
// counts the failed calls.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	ps := &Providers{}
	fb := resilience.FallbackConfig{Metrics: m}

	var err error
	if ps.LLM, err = build(cfg.Providers.LLM, "llm", reg.CreateLLM, func(p llm.Provider, name string) (llm.Provider, func(string, llm.Provider)) {
		f := resilience.NewLLMFallback(p, name, fb)
		return f, f.AddFallback
	}); err != nil {
		return nil, err
	}
	if ps.STT, err = build(cfg.Providers.STT, "stt", reg.CreateSTT, func(p stt.Provider, name string) (stt.Provider, func(string, stt.Provider)) {
		f := resilience.NewSTTFallback(p, name, fb)
		return f, f.AddFallback
	}); err != nil {
		return nil, err
	}
	if ps.TTS, err = build(cfg.Providers.TTS, "tts", reg.CreateTTS, func(p tts.Provider, name string) (tts.Provider, func(string, tts.Provider)) {
		f := resilience.NewTTSFallback(p, name, fb)
		return f, f.AddFallback
	}); err != nil {
		return nil, err
	}
	if name := cfg.Providers.VAD.Name; name != "" {
		if ps.VAD, err = reg.CreateVAD(cfg.Providers.VAD); err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "vad", "name", name)
	}
	return ps, nil
}

// build creates the provider for e and, when e lists fallbacks, wraps it with
// wrap and appends each fallback in order.
func build[T any](e config.ProviderEntry, kind string, create func(config.ProviderEntry) (T, error), wrap func(T, string) (T, func(string, T))) (T, error) {
	var zero T
	if e.Name == "" {
		return zero, nil
	}
	p, err := create(e)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not available in this build, skipping", "kind", kind, "name", e.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, e.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model)
	if len(e.Fallbacks) == 0 {
		return p, nil
	}

	wrapped, add := wrap(p, e.Name)
	for i, fe := range e.Fallbacks {
		fp, err := create(fe)
		if err != nil {
			return zero, fmt.Errorf("create %s fallback %d %q: %w", kind, i, fe.Name, err)
		}
		add(fe.Name, fp)
		slog.Info("fallback provider created", "kind", kind, "name", fe.Name, "position", i+1)
	}
	return wrapped, nil
}

// optString extracts a string from a provider Options map. Missing keys and
// non-string values yield "".
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer from a provider Options map. YAML yields int,
// TOML yields int64; numeric strings are accepted too.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// optDuration extracts a duration such as "30s" from a provider Options map.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
