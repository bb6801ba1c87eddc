package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"semantic": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"vad":      {"model", "energy"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Audio
	if cfg.Audio.MaxRecordingSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.max_recording_seconds %.1f must not be negative", cfg.Audio.MaxRecordingSeconds))
	}

	// VAD
	validateProviderName("vad", cfg.VAD.Engine)
	if cfg.VAD.SpeechThreshold < 0 || cfg.VAD.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.2f is out of range [0, 1]", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.SilenceThreshold < 0 || cfg.VAD.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.2f is out of range [0, 1]", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.SpeechThreshold != 0 && cfg.VAD.SilenceThreshold > cfg.VAD.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.2f must not exceed vad.speech_threshold %.2f",
			cfg.VAD.SilenceThreshold, cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.ModelPath != "" && cfg.VAD.Engine == "energy" {
		slog.Warn("vad.model_path is set but the energy engine does not use weights")
	}

	// Semantic
	validateProviderName("semantic", cfg.Semantic.Primary.Name)
	if cfg.Semantic.Fallback != nil {
		validateProviderName("semantic", cfg.Semantic.Fallback.Name)
		if cfg.Semantic.Primary.Name == "" {
			errs = append(errs, errors.New("semantic.fallback is set but semantic.primary is not configured"))
		}
	}
	if cfg.Semantic.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("semantic.timeout_seconds %.1f must not be negative", cfg.Semantic.TimeoutSeconds))
	}
	if cfg.Semantic.Primary.Name == "" {
		slog.Warn("semantic.primary is not configured; check-ins will be acoustic-only")
	}

	// Calibration
	if cfg.Calibration.PostgresDSN == "" {
		slog.Warn("calibration.postgres_dsn is empty; per-user calibration will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
