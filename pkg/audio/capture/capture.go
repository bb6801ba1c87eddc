// Package capture defines the interfaces and types for acquiring microphone
// audio within Vocalis.
//
// The two primary abstractions are:
//
//   - [Source] — an active audio input that produces a continuous stream of
//     mono PCM frames plus a per-frame level reading for UI feedback.
//   - [Recorder] — the hand-off boundary between the real-time producer and
//     the synchronous analysis pipeline: it accumulates frames into a single
//     recording buffer that the consumer owns after Stop.
//
// Implementations of [Source] are provided by transport-specific adapter
// packages (e.g., the websocket ingest endpoint). The interface is
// intentionally narrow to keep the check-in session decoupled from transport
// details.
//
// This package lives under pkg/ because external code (alternative capture
// transports) is expected to implement [Source].
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/novahale/vocalis/pkg/audio"
)

// ErrDeviceUnavailable is returned by [Source.Start] when no input device is
// available or permission was denied. It is fatal to the recording and must be
// surfaced to the user — implementations must not retry silently, because a
// retry could record across an unintended gap.
var ErrDeviceUnavailable = errors.New("capture: input device unavailable")

// ErrStreamInterrupted indicates the input device disconnected mid-capture.
// Like [ErrDeviceUnavailable] it is fatal to the current recording and is
// reported upward rather than retried.
var ErrStreamInterrupted = errors.New("capture: stream interrupted")

// Source is an audio input producing a continuous stream of PCM frames.
//
// Implementations must be safe for concurrent use. The Frames and Levels
// channels are closed when the source stops, whether via [Source.Stop] or an
// interruption.
type Source interface {
	// Start acquires the input and begins producing frames. The supplied ctx
	// governs the lifetime of the acquisition attempt only; once started, the
	// source remains live until Stop is called or the stream is interrupted.
	//
	// Returns [ErrDeviceUnavailable] (possibly wrapped) when the input cannot
	// be acquired.
	Start(ctx context.Context) error

	// Frames returns the read-only stream of captured audio frames. The
	// channel is bounded; a consumer that falls far behind will cause the
	// producer to drop frames rather than block the real-time path.
	Frames() <-chan audio.Frame

	// Levels returns the per-frame normalised RMS level stream (0–1),
	// intended for UI input-level feedback. May be drained independently of
	// Frames.
	Levels() <-chan float64

	// Stop flushes and releases the input. It is idempotent and always safe
	// to call, including before Start and concurrently with an in-flight
	// interruption. After Stop returns, Frames and Levels are closed.
	//
	// Returns [ErrStreamInterrupted] (possibly wrapped) when the stream died
	// before Stop was requested, so callers can distinguish a clean stop from
	// a device loss.
	Stop() error
}

// Recording is the complete audio captured between Start and Stop, handed off
// as a single buffer. After hand-off the consumer owns the data; the recorder
// never touches it again.
type Recording struct {
	// PCM is the concatenated 16-bit little-endian mono audio.
	PCM []byte

	// SampleRate is the rate of PCM in Hz.
	SampleRate int

	// Duration is the total captured duration.
	Duration time.Duration
}

// Recorder consumes a [Source]'s frame stream and accumulates it into one
// recording. It is the single hand-off boundary between the callback-driven
// producer side and the synchronous analysis side: the producer writes frames,
// the consumer owns the buffer after [Recorder.Stop] — no buffer is ever read
// and written concurrently.
//
// A Recorder records at most once and is not reusable.
type Recorder struct {
	source   Source
	maxBytes int

	mu        sync.Mutex
	started   bool
	stopped   bool
	recording Recording
	done      chan struct{}
}

// NewRecorder creates a Recorder draining src. maxDuration bounds the
// recording; frames past the bound are discarded (the session enforces its own
// duration policy, this is a memory guard).
func NewRecorder(src Source, maxDuration time.Duration) *Recorder {
	maxBytes := int(maxDuration.Seconds() * float64(audio.PipelineSampleRate) * 2)
	return &Recorder{
		source:   src,
		maxBytes: maxBytes,
		done:     make(chan struct{}),
	}
}

// Start begins draining the source's frame stream into the recording buffer.
// Frames are converted to the native pipeline format as they arrive.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("capture: recorder already started")
	}
	r.started = true
	r.mu.Unlock()

	if err := r.source.Start(ctx); err != nil {
		close(r.done)
		return err
	}

	go r.drain()
	return nil
}

// drain is the single consumer of the source's frame channel. It exits when
// the source closes the channel (clean stop or interruption).
func (r *Recorder) drain() {
	defer close(r.done)
	conv := audio.FormatConverter{Target: audio.Native}
	for frame := range r.source.Frames() {
		converted := conv.Convert(frame)
		if len(converted.Data) == 0 {
			continue
		}
		r.mu.Lock()
		if len(r.recording.PCM) < r.maxBytes {
			r.recording.PCM = append(r.recording.PCM, converted.Data...)
			r.recording.Duration += converted.Duration()
		}
		r.mu.Unlock()
	}
}

// Stop stops the source, waits for the drain goroutine to finish, and hands
// off whatever audio was captured so far. The recording is always returned,
// even when err is non-nil — an interrupted or just-stopped recording is still
// processed with the audio captured up to that point, never discarded
// half-way.
//
// Stop is idempotent; subsequent calls return the same recording. Calling
// Stop on a never-started Recorder returns an empty recording.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	if !r.started {
		r.stopped = true
		r.recording.SampleRate = audio.PipelineSampleRate
		rec := r.recording
		r.mu.Unlock()
		return rec, nil
	}
	r.mu.Unlock()

	err := r.source.Stop()
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		r.recording.SampleRate = audio.PipelineSampleRate
	}
	return r.recording, err
}
