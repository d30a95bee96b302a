package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from the file extension. Anything other than
// ".toml" is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// ValidProviderNames lists the built-in provider names per kind. Unknown
// names are rejected by [Validate].
var ValidProviderNames = map[string][]string{
	"llm": {"ollama", "openai", "openai-compatible", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper", "whisper-native", "deepgram", "openai"},
	"tts": {"melo", "coqui", "elevenlabs"},
	"vad": {"energy", "webrtc"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8000"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultLLMModel        = "gemma:2b"
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultWhisperURL      = "http://localhost:8001"
	DefaultTTSURL          = "http://localhost:8002"
	DefaultWeatherURL      = "https://api.responsible-nlp.net/weather.php"
	DefaultCalendarURL     = "https://api.responsible-nlp.net/calendar.php"
	DefaultCalendarID      = "3864546"
	DefaultCity            = "Marburg"
	DefaultToolTimeout     = 10 * time.Second
	DefaultMaxHistory      = 20
	DefaultTurnlogLimit    = 1000
	DefaultMCPPath         = "/mcp"
)

// DefaultKnownCities seeds phonetic city matching when none are configured.
var DefaultKnownCities = []string{"Marburg", "Frankfurt", "Giessen", "Kassel", "Berlin", "Hamburg", "Munich", "Cologne"}

// Load reads the configuration file at path, applies defaults and validates
// the result. A relative assistant.system_prompt_file is resolved against the
// file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	return loadBytes(path, data)
}

func loadBytes(path string, data []byte) (*Config, error) {
	cfg, err := Decode(bytes.NewReader(data), FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if f := cfg.Assistant.SystemPromptFile; f != "" && !filepath.IsAbs(f) {
		cfg.Assistant.SystemPromptFile = filepath.Join(filepath.Dir(path), f)
	}
	if err := ResolveSystemPrompt(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates it.
func LoadFromReader(r io.Reader) (*Config, error) {
	return Decode(r, FormatYAML)
}

// Decode reads a config in the given format. Unknown keys are errors in both
// formats.
func Decode(r io.Reader, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: decode toml: unknown keys %s", strings.Join(keys, ", "))
		}
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveSystemPrompt loads assistant.system_prompt_file into
// assistant.system_prompt when no inline prompt is set. A missing file is
// logged and leaves the built-in prompt in effect.
func ResolveSystemPrompt(cfg *Config) error {
	a := &cfg.Assistant
	if a.SystemPrompt != "" || a.SystemPromptFile == "" {
		return nil
	}
	data, err := os.ReadFile(a.SystemPromptFile)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: system prompt file not found, using built-in prompt", "path", a.SystemPromptFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read system prompt %q: %w", a.SystemPromptFile, err)
	}
	a.SystemPrompt = strings.TrimSpace(string(data))
	return nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	p := &cfg.Providers
	if p.LLM.Name == "" {
		p.LLM.Name = "ollama"
	}
	if p.LLM.Name == "ollama" {
		if p.LLM.BaseURL == "" {
			p.LLM.BaseURL = DefaultOllamaURL
		}
		if p.LLM.Model == "" {
			p.LLM.Model = DefaultLLMModel
		}
	}
	if p.STT.Name == "" {
		p.STT.Name = "whisper"
		if p.STT.BaseURL == "" {
			p.STT.BaseURL = DefaultWhisperURL
		}
	}
	if p.TTS.Name == "" {
		p.TTS.Name = "melo"
		if p.TTS.BaseURL == "" {
			p.TTS.BaseURL = DefaultTTSURL
		}
	}
	if p.VAD.Name == "" {
		p.VAD.Name = "energy"
	}

	au := &cfg.Audio
	if au.SampleRate == 0 {
		au.SampleRate = 16000
	}
	if au.FrameSize == 0 {
		au.FrameSize = 512
	}
	if au.EnergyThreshold == 0 {
		au.EnergyThreshold = 300
	}
	if au.SilenceSeconds == 0 {
		au.SilenceSeconds = 1.5
	}
	if au.PadSeconds == 0 {
		au.PadSeconds = 0.8
	}

	as := &cfg.Assistant
	if as.DefaultCity == "" {
		as.DefaultCity = DefaultCity
	}
	if as.KnownCities == nil {
		as.KnownCities = slices.Clone(DefaultKnownCities)
	}
	if as.Language == "" {
		as.Language = "en"
	}
	if as.MaxHistory == 0 {
		as.MaxHistory = DefaultMaxHistory
	}

	t := &cfg.Tools
	if t.WeatherURL == "" {
		t.WeatherURL = DefaultWeatherURL
	}
	if t.CalendarURL == "" {
		t.CalendarURL = DefaultCalendarURL
	}
	if t.CalendarID == "" {
		t.CalendarID = DefaultCalendarID
	}
	if t.APIKey == "" {
		t.APIKey = t.CalendarID
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultToolTimeout
	}

	if cfg.Turnlog.Backend == "" {
		cfg.Turnlog.Backend = TurnlogMemory
	}
	if cfg.Turnlog.Limit == 0 {
		cfg.Turnlog.Limit = DefaultTurnlogLimit
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
}

// Validate checks cfg for coherence and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	for _, p := range []struct {
		kind  string
		entry ProviderEntry
	}{
		{"llm", cfg.Providers.LLM},
		{"stt", cfg.Providers.STT},
		{"tts", cfg.Providers.TTS},
		{"vad", cfg.Providers.VAD},
	} {
		known := ValidProviderNames[p.kind]
		if p.entry.Name != "" && !slices.Contains(known, p.entry.Name) {
			errs = append(errs, fmt.Errorf("providers.%s.name %q is unknown; valid values: %s", p.kind, p.entry.Name, strings.Join(known, ", ")))
		}
		for i, fb := range p.entry.Fallbacks {
			if !slices.Contains(known, fb.Name) {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name %q is unknown; valid values: %s", p.kind, i, fb.Name, strings.Join(known, ", ")))
			}
		}
	}

	a := cfg.Audio
	if a.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", a.SampleRate))
	}
	if a.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", a.FrameSize))
	}
	if a.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("audio.energy_threshold %.1f must be positive", a.EnergyThreshold))
	}
	if a.SilenceSeconds < 0 || a.PadSeconds < 0 {
		errs = append(errs, errors.New("audio.silence_seconds and audio.pad_seconds must not be negative"))
	}
	if a.VADMode < 0 || a.VADMode > 3 {
		errs = append(errs, fmt.Errorf("audio.vad_mode %d is out of range [0, 3]", a.VADMode))
	}

	if cfg.Assistant.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("assistant.max_history %d must not be negative", cfg.Assistant.MaxHistory))
	}
	if cfg.Tools.Timeout < 0 {
		errs = append(errs, fmt.Errorf("tools.timeout %s must not be negative", cfg.Tools.Timeout))
	}

	tl := cfg.Turnlog
	if tl.Backend != "" && !tl.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("turnlog.backend %q is invalid; valid values: memory, postgres, sqlite", tl.Backend))
	}
	if (tl.Backend == TurnlogPostgres || tl.Backend == TurnlogSQLite) && tl.DSN == "" {
		errs = append(errs, fmt.Errorf("turnlog.dsn is required for backend %q", tl.Backend))
	}

	if p := cfg.MCP.Path; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", p))
	}

	return errors.Join(errs...)
}
