package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Only fields a
// running process can apply without restart are tracked.
type ConfigDiff struct {
	SystemPromptChanged    bool
	KnownCitiesChanged     bool
	RefusalKeywordsChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// Empty reports whether nothing hot-reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.SystemPromptChanged && !d.KnownCitiesChanged && !d.RefusalKeywordsChanged && !d.LogLevelChanged
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	d.SystemPromptChanged = old.Assistant.SystemPrompt != new.Assistant.SystemPrompt
	d.KnownCitiesChanged = !slices.Equal(old.Assistant.KnownCities, new.Assistant.KnownCities)
	d.RefusalKeywordsChanged = !slices.Equal(old.Assistant.RefusalKeywords, new.Assistant.RefusalKeywords)

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if audioSansPlayback(old.Audio) != audioSansPlayback(new.Audio) || old.Audio.PlaybackEnabled() != new.Audio.PlaybackEnabled() {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Tools != new.Tools {
		d.RestartRequired = append(d.RestartRequired, "tools")
	}
	if old.Turnlog != new.Turnlog {
		d.RestartRequired = append(d.RestartRequired, "turnlog")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	return d
}

func audioSansPlayback(a AudioConfig) AudioConfig {
	a.Playback = nil
	return a
}
