package config

import "fmt"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADTuningChanged is true when any VAD threshold or debounce knob
	// changed. Engine and model path swaps require a restart and are not
	// tracked here.
	VADTuningChanged bool

	// SemanticChanged is true when the semantic provider selection,
	// credentials, or timeout changed.
	SemanticChanged bool
}

// HasChanges reports whether any hot-reloadable field changed.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.VADTuningChanged || d.SemanticChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD.SpeechThreshold != new.VAD.SpeechThreshold ||
		old.VAD.SilenceThreshold != new.VAD.SilenceThreshold ||
		old.VAD.MinSpeechFrames != new.VAD.MinSpeechFrames ||
		old.VAD.HangoverFrames != new.VAD.HangoverFrames {
		d.VADTuningChanged = true
	}

	if !equalEntry(old.Semantic.Primary, new.Semantic.Primary) ||
		!equalEntryPtr(old.Semantic.Fallback, new.Semantic.Fallback) ||
		old.Semantic.TimeoutSeconds != new.Semantic.TimeoutSeconds {
		d.SemanticChanged = true
	}

	return d
}

// equalEntry compares the scalar fields of two provider entries. The Options
// map is compared shallowly by top-level string form, which is enough to
// detect the reload-relevant changes.
func equalEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}

func equalEntryPtr(a, b *ProviderEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return equalEntry(*a, *b)
}
