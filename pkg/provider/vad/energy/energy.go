// Package energy provides the dependency-free fallback VAD engine.
//
// It classifies frames by normalised RMS amplitude: the level is mapped
// through a soft saturation curve onto a pseudo-probability so that the
// shared hysteresis thresholds apply unchanged. It cannot distinguish loud
// non-speech noise from speech, which is why it is the fallback rather than
// the primary — but it has no model artifact to load and can never fail to
// initialise.
package energy

import (
	"errors"
	"fmt"

	"github.com/novahale/vocalis/pkg/audio"
	"github.com/novahale/vocalis/pkg/provider/vad"
)

// defaultPivot is the normalised RMS level mapped to probability 0.5. For
// 16-bit PCM, 0.015 corresponds to quiet but clearly audible speech; ambient
// room noise typically sits well below it.
const defaultPivot = 0.015

// Compile-time interface check.
var _ vad.Engine = (*Engine)(nil)

// Engine is the energy-based VAD engine.
type Engine struct {
	pivot float64
}

// Option is a functional option for New.
type Option func(*Engine)

// WithPivot overrides the RMS level that maps to probability 0.5. Raise it in
// noisy environments, lower it for very quiet speakers.
func WithPivot(level float64) Option {
	return func(e *Engine) { e.pivot = level }
}

// New creates an energy Engine.
func New(opts ...Option) *Engine {
	e := &Engine{pivot: defaultPivot}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{
		expectedBytes: cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2,
		pivot:         e.pivot,
		hyst:          vad.NewHysteresis(cfg),
	}, nil
}

// session is a single-stream energy VAD session.
type session struct {
	expectedBytes int
	pivot         float64
	hyst          *vad.Hysteresis
	closed        bool
}

// ProcessFrame implements vad.SessionHandle.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, errors.New("energy: session closed")
	}
	if len(frame) != s.expectedBytes {
		return vad.Event{}, fmt.Errorf("energy: frame size %d bytes, want %d", len(frame), s.expectedBytes)
	}

	level := audio.Level(frame)
	// Soft saturation: probability 0.5 at the pivot level, approaching 1
	// asymptotically. Monotonic in level, exactly 0 for digital silence.
	prob := level / (level + s.pivot)
	return s.hyst.Observe(prob), nil
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
