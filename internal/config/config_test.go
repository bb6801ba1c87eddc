package config_test

import (
	"strings"
	"testing"

	"github.com/novahale/vocalis/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
audio:
  max_recording_seconds: 300
vad:
  engine: model
  speech_threshold: 0.5
  silence_threshold: 0.35
semantic:
  primary:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  timeout_seconds: 8
calibration:
  postgres_dsn: "postgres://localhost/vocalis"
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.VAD.Engine != "model" {
		t.Errorf("VAD.Engine = %q, want model", cfg.VAD.Engine)
	}
	if cfg.Semantic.Primary.Name != "openai" {
		t.Errorf("Semantic.Primary.Name = %q, want openai", cfg.Semantic.Primary.Name)
	}
	if cfg.Semantic.TimeoutSeconds != 8 {
		t.Errorf("TimeoutSeconds = %.1f, want 8", cfg.Semantic.TimeoutSeconds)
	}
	if cfg.Calibration.PostgresDSN == "" {
		t.Error("PostgresDSN not decoded")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	yaml := `
server:
  listen_addr: ":8080"
  log_levle: info
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("want error on unknown field, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\n",
			want: "server.log_level",
		},
		{
			name: "tls missing key",
			yaml: "server:\n  tls:\n    cert_file: /tmp/cert.pem\n",
			want: "server.tls",
		},
		{
			name: "negative recording cap",
			yaml: "audio:\n  max_recording_seconds: -1\n",
			want: "audio.max_recording_seconds",
		},
		{
			name: "speech threshold out of range",
			yaml: "vad:\n  speech_threshold: 1.5\n",
			want: "vad.speech_threshold",
		},
		{
			name: "silence above speech",
			yaml: "vad:\n  speech_threshold: 0.4\n  silence_threshold: 0.6\n",
			want: "silence_threshold",
		},
		{
			name: "fallback without primary",
			yaml: "semantic:\n  fallback:\n    name: ollama\n",
			want: "semantic.fallback",
		},
		{
			name: "negative semantic timeout",
			yaml: "semantic:\n  timeout_seconds: -2\n",
			want: "semantic.timeout_seconds",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("want validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_WarningsAreNotErrors(t *testing.T) {
	// Unknown provider names and missing DSN only warn.
	yaml := `
vad:
  engine: quantum
semantic:
  primary:
    name: not-a-provider
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("warnings should not fail validation: %v", err)
	}
}

func TestLogLevelIsValid(t *testing.T) {
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q.IsValid() = false", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error(`"verbose".IsValid() = true`)
	}
}
