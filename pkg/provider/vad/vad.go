// Package vad defines the Engine interface for Voice Activity Detection
// backends.
//
// A VAD engine wraps a frame-level speech detector (a learned voice/non-voice
// classifier, or the dependency-free energy fallback) and surfaces it as a
// stateful, per-stream session. Each session maintains its own internal state
// (hysteresis counters, smoothing history) so that multiple concurrent audio
// streams can be processed independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, making it suitable for the per-recording segmentation loop
// that gates feature extraction.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"time"
)

// ErrModelUnavailable is returned by a model-backed [Engine] when its weights
// artifact cannot be loaded or initialisation fails. Callers degrade to the
// energy engine and log the condition; it is never surfaced to the user.
var ErrModelUnavailable = errors.New("vad: model unavailable")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. The pipeline always segments at
	// 16000; other rates are resampled before reaching the VAD.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// ProcessFrame returns an error if the supplied frame does not match this
	// size. Typical: 30.
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame counts toward a
	// speech onset. Range [0, 1]. Higher values reduce false positives at the
	// cost of speech-start latency. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame counts toward a
	// speech end. Must be ≤ SpeechThreshold so the detector has hysteresis
	// and does not flap at sentence boundaries. Typical: 0.35.
	SilenceThreshold float64

	// MinSpeechFrames is how many consecutive speech frames are needed before
	// SpeechStart is emitted. Default: 3 (~90 ms at 30 ms frames).
	MinSpeechFrames int

	// HangoverFrames is how many consecutive silence frames are needed before
	// SpeechEnd is emitted. Default: 10 (~300 ms), which keeps short
	// intra-sentence pauses inside one segment.
	HangoverFrames int
}

// WithDefaults returns cfg with zero values replaced by pipeline defaults.
func (c Config) WithDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.FrameSizeMs == 0 {
		c.FrameSizeMs = 30
	}
	if c.SpeechThreshold == 0 {
		c.SpeechThreshold = 0.5
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = 0.35
	}
	if c.MinSpeechFrames == 0 {
		c.MinSpeechFrames = 3
	}
	if c.HangoverFrames == 0 {
		c.HangoverFrames = 10
	}
	return c
}

// Validate reports configuration errors common to all engines.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return errors.New("vad: sample rate must be positive")
	}
	if c.FrameSizeMs <= 0 {
		return errors.New("vad: frame size must be positive")
	}
	if c.SpeechThreshold < 0 || c.SpeechThreshold > 1 {
		return errors.New("vad: speech threshold out of [0,1]")
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold {
		return errors.New("vad: silence threshold must be in [0, speech threshold]")
	}
	return nil
}

// Event represents a voice activity detection result for a single audio frame.
type Event struct {
	// Type is the detection result.
	Type EventType

	// Probability is the speech probability score (0.0–1.0).
	Probability float64
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates speech has just ended.
	SpeechEnd

	// Silence indicates no speech detected.
	Silence
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "SPEECH_START"
	case SpeechContinue:
		return "SPEECH_CONTINUE"
	case SpeechEnd:
		return "SPEECH_END"
	case Silence:
		return "SILENCE"
	default:
		return "UNKNOWN"
	}
}

// Segment is a contiguous span of speech within a recording, expressed as
// offsets from the start of the recording.
type Segment struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns the segment length.
func (s Segment) Duration() time.Duration { return s.End - s.Start }

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations without
// a live engine. Each session maintains its own detection state; Reset clears
// this state without closing the session.
//
// A SessionHandle should not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection
	// result. The frame must be raw little-endian PCM at the SampleRate and
	// FrameSizeMs configured when the session was created. Returns an error
	// if the frame size is wrong or the engine encounters an internal
	// failure.
	//
	// This method is designed to be called synchronously in the segmentation
	// loop; it must not block.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears all accumulated detection state (hysteresis counters,
	// history) without closing the session. Use this when the audio stream is
	// restarted to avoid stale state from the previous segment affecting
	// subsequent frames.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame and Reset must return errors or be no-ops. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The
	// session is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid or if the engine
	// cannot allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
