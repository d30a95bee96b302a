// Package config provides the configuration schema, loader, provider registry
// and file watcher for voxdesk.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// TurnlogBackend selects where finished turns are journaled.
type TurnlogBackend string

const (
	TurnlogMemory   TurnlogBackend = "memory"
	TurnlogPostgres TurnlogBackend = "postgres"
	TurnlogSQLite   TurnlogBackend = "sqlite"
)

// IsValid reports whether b is a recognised backend.
func (b TurnlogBackend) IsValid() bool {
	switch b {
	case TurnlogMemory, TurnlogPostgres, TurnlogSQLite:
		return true
	}
	return false
}

// Config is the root configuration structure. It is loaded from YAML or TOML
// with [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Providers ProvidersConfig `yaml:"providers" toml:"providers"`
	Audio     AudioConfig     `yaml:"audio" toml:"audio"`
	Assistant AssistantConfig `yaml:"assistant" toml:"assistant"`
	Tools     ToolsConfig     `yaml:"tools" toml:"tools"`
	Turnlog   TurnlogConfig   `yaml:"turnlog" toml:"turnlog"`
	MCP       MCPConfig       `yaml:"mcp" toml:"mcp"`
}

// ServerConfig holds the HTTP service and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the /process service (e.g. ":8000").
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// ProvidersConfig selects the implementation for each pipeline stage. Each
// entry names a provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm" toml:"llm"`
	STT ProviderEntry `yaml:"stt" toml:"stt"`
	TTS ProviderEntry `yaml:"tts" toml:"tts"`
	VAD ProviderEntry `yaml:"vad" toml:"vad"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "ollama", "whisper").
	Name string `yaml:"name" toml:"name"`

	APIKey string `yaml:"api_key" toml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	Model string `yaml:"model" toml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options" toml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open. Ignored for vad.
	Fallbacks []ProviderEntry `yaml:"fallbacks" toml:"fallbacks"`
}

// AudioConfig configures microphone capture and playback for the listen
// command.
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate" toml:"sample_rate"`
	FrameSize       int     `yaml:"frame_size" toml:"frame_size"`
	EnergyThreshold float64 `yaml:"energy_threshold" toml:"energy_threshold"`
	SilenceSeconds  float64 `yaml:"silence_seconds" toml:"silence_seconds"`
	PadSeconds      float64 `yaml:"pad_seconds" toml:"pad_seconds"`

	// VADMode is the aggressiveness passed to model-based VAD engines.
	VADMode int `yaml:"vad_mode" toml:"vad_mode"`

	// InputDevice is a substring of the PortAudio device name. Empty selects
	// the system default.
	InputDevice string `yaml:"input_device" toml:"input_device"`

	// Playback enables speaking replies through the default output device.
	// Default: true.
	Playback *bool `yaml:"playback" toml:"playback"`
}

// PlaybackEnabled reports whether replies are played back.
func (a AudioConfig) PlaybackEnabled() bool { return a.Playback == nil || *a.Playback }

// AssistantConfig holds the conversational behaviour. The fields marked
// hot-reloadable are applied to a running process by the [Watcher].
type AssistantConfig struct {
	// SystemPrompt is the prompt template. "{current_time}" is substituted on
	// every turn. Hot-reloadable.
	SystemPrompt string `yaml:"system_prompt" toml:"system_prompt"`

	// SystemPromptFile is read when SystemPrompt is empty. Relative paths are
	// resolved against the config file's directory.
	SystemPromptFile string `yaml:"system_prompt_file" toml:"system_prompt_file"`

	// DefaultCity is used for weather questions until the user names a city.
	DefaultCity string `yaml:"default_city" toml:"default_city"`

	// KnownCities are recognised by name and phonetic similarity.
	// Hot-reloadable.
	KnownCities []string `yaml:"known_cities" toml:"known_cities"`

	// RefusalKeywords mark a rephrase the model refused. Hot-reloadable.
	RefusalKeywords []string `yaml:"refusal_keywords" toml:"refusal_keywords"`

	// TranscriptionPrompt biases whisper towards the supported commands.
	TranscriptionPrompt string `yaml:"transcription_prompt" toml:"transcription_prompt"`

	Language string `yaml:"language" toml:"language"`

	// MaxHistory bounds the dialogue history. Default: 20.
	MaxHistory int `yaml:"max_history" toml:"max_history"`

	// VoiceID selects the TTS voice.
	VoiceID string `yaml:"voice_id" toml:"voice_id"`
}

// ToolsConfig configures the weather and calendar HTTP tools.
type ToolsConfig struct {
	WeatherURL  string        `yaml:"weather_url" toml:"weather_url"`
	CalendarURL string        `yaml:"calendar_url" toml:"calendar_url"`
	CalendarID  string        `yaml:"calendar_id" toml:"calendar_id"`
	APIKey      string        `yaml:"api_key" toml:"api_key"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"`
}

// TurnlogConfig selects the turn journal.
type TurnlogConfig struct {
	Backend TurnlogBackend `yaml:"backend" toml:"backend"`

	// DSN is the postgres connection string or the sqlite file path.
	DSN string `yaml:"dsn" toml:"dsn"`

	// Limit bounds the in-memory journal.
	Limit int `yaml:"limit" toml:"limit"`
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	// ListenAddr serves streamable HTTP when set; otherwise the mcp command
	// speaks over stdio.
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// Path is the HTTP mount point. Default: "/mcp".
	Path string `yaml:"path" toml:"path"`
}
