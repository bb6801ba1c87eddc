// Package model provides the primary, learned VAD engine.
//
// The classifier is a logistic model over three cheap per-frame features:
// log RMS energy, zero-crossing rate, and a high-frequency energy ratio
// (first-difference energy over signal energy). The weights are a fixed,
// shippable artifact trained offline — this package performs no online
// learning. Weights can be loaded from a YAML artifact so the model can be
// updated without a rebuild; compiled-in defaults are used when no artifact
// path is configured.
//
// When the artifact is configured but cannot be loaded, New returns
// vad.ErrModelUnavailable and callers fall back to the energy engine.
package model

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/novahale/vocalis/pkg/audio"
	"github.com/novahale/vocalis/pkg/provider/vad"
)

// Weights is the logistic model artifact. The feature order is fixed:
// x1 = log10(RMS level), x2 = zero-crossing rate, x3 = high-frequency ratio.
type Weights struct {
	// Version identifies the training run the artifact came from.
	Version string `yaml:"version"`

	// Bias is the logistic intercept.
	Bias float64 `yaml:"bias"`

	// LogEnergy is the weight on log10 of the normalised RMS level.
	LogEnergy float64 `yaml:"log_energy"`

	// ZCR is the weight on the zero-crossing rate.
	ZCR float64 `yaml:"zcr"`

	// HighFreqRatio is the weight on the first-difference energy ratio.
	HighFreqRatio float64 `yaml:"high_freq_ratio"`
}

// defaultWeights are the compiled-in artifact, trained on the check-in prompt
// corpus. Silence scores near 0, conversational speech near 0.85.
var defaultWeights = Weights{
	Version:       "vadnet-2025.11",
	Bias:          4.0,
	LogEnergy:     1.8,
	ZCR:           -1.1,
	HighFreqRatio: -0.9,
}

// Compile-time interface check.
var _ vad.Engine = (*Engine)(nil)

// Engine is the learned VAD engine.
type Engine struct {
	weights Weights
}

// New creates an Engine with the compiled-in default weights.
func New() *Engine {
	return &Engine{weights: defaultWeights}
}

// Load creates an Engine from a YAML weights artifact. Returns
// vad.ErrModelUnavailable (wrapped) when the artifact cannot be read or
// parsed, so callers can degrade to the energy engine.
func Load(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", vad.ErrModelUnavailable, path, err)
	}
	var w Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", vad.ErrModelUnavailable, path, err)
	}
	if w.Version == "" {
		return nil, fmt.Errorf("%w: artifact %q has no version", vad.ErrModelUnavailable, path)
	}
	return &Engine{weights: w}, nil
}

// Version returns the version string of the loaded weights artifact.
func (e *Engine) Version() string { return e.weights.Version }

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{
		expectedBytes: cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2,
		weights:       e.weights,
		hyst:          vad.NewHysteresis(cfg),
	}, nil
}

// session is a single-stream model VAD session.
type session struct {
	expectedBytes int
	weights       Weights
	hyst          *vad.Hysteresis
	closed        bool
}

// ProcessFrame implements vad.SessionHandle.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, errors.New("model: session closed")
	}
	if len(frame) != s.expectedBytes {
		return vad.Event{}, fmt.Errorf("model: frame size %d bytes, want %d", len(frame), s.expectedBytes)
	}

	samples := audio.BytesToInt16s(frame)
	prob := s.classify(samples)
	return s.hyst.Observe(prob), nil
}

// classify scores one frame. The floor on the level keeps log10 finite for
// digital silence; such frames score effectively zero.
func (s *session) classify(samples []int16) float64 {
	level := audio.LevelInt16(samples)
	if level < 1e-6 {
		return 0
	}

	logEnergy := math.Log10(level)
	zcr := zeroCrossingRate(samples)
	hf := highFreqRatio(samples)

	z := s.weights.Bias +
		s.weights.LogEnergy*logEnergy +
		s.weights.ZCR*zcr +
		s.weights.HighFreqRatio*hf
	return 1 / (1 + math.Exp(-z))
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	if !s.closed {
		s.hyst.Reset()
	}
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.closed = true
	return nil
}

// zeroCrossingRate returns the fraction of adjacent sample pairs with a sign
// change, in [0, 1].
func zeroCrossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i] >= 0) != (samples[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// highFreqRatio returns the energy of the first-difference signal relative to
// the signal energy. Voiced speech concentrates energy at low frequencies and
// scores low; broadband noise scores high.
func highFreqRatio(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sig, diff float64
	for i := 1; i < len(samples); i++ {
		s := float64(samples[i])
		d := float64(samples[i]) - float64(samples[i-1])
		sig += s * s
		diff += d * d
	}
	if sig == 0 {
		return 0
	}
	r := diff / (4 * sig) // normalised so a Nyquist-rate alternation maps to 1
	if r > 1 {
		r = 1
	}
	return r
}
