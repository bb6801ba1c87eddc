// Package mock provides a test double for the capture.Source interface.
//
// Use Source to feed scripted frames into a Recorder or check-in session and
// to simulate device failures.
//
// Example:
//
//	src := mock.NewSource(frames...)
//	rec := capture.NewRecorder(src, 5*time.Minute)
//	_ = rec.Start(ctx)
//	recording, err := rec.Stop()
package mock

import (
	"context"
	"sync"

	"github.com/novahale/vocalis/pkg/audio"
	"github.com/novahale/vocalis/pkg/audio/capture"
)

// Source is a mock implementation of capture.Source. It emits the scripted
// Script frames after Start and then leaves the stream open until Stop or
// Interrupt.
type Source struct {
	mu sync.Mutex

	// Script holds the frames emitted (in order) once Start is called.
	Script []audio.Frame

	// StartErr, if non-nil, is returned from Start.
	StartErr error

	// StopErr, if non-nil, is returned from Stop after the channels close.
	StopErr error

	// StartCalls and StopCalls count invocations.
	StartCalls int
	StopCalls  int

	frames  chan audio.Frame
	levels  chan float64
	stopped bool
}

// Ensure Source implements capture.Source at compile time.
var _ capture.Source = (*Source)(nil)

// NewSource creates a Source that will emit the given frames after Start.
func NewSource(script ...audio.Frame) *Source {
	return &Source{
		Script: script,
		frames: make(chan audio.Frame, len(script)+1),
		levels: make(chan float64, len(script)+1),
	}
}

// Start emits the scripted frames. Returns StartErr when set.
func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	if s.StartErr != nil {
		return s.StartErr
	}
	for _, f := range s.Script {
		s.frames <- f
		s.levels <- audio.Level(f.Data)
	}
	return nil
}

// Frames implements capture.Source.
func (s *Source) Frames() <-chan audio.Frame { return s.frames }

// Levels implements capture.Source.
func (s *Source) Levels() <-chan float64 { return s.levels }

// Stop closes the streams. Idempotent; returns StopErr when set.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	if !s.stopped {
		s.stopped = true
		close(s.frames)
		close(s.levels)
	}
	return s.StopErr
}

// Interrupt simulates a mid-capture device loss: the streams close and the
// next Stop reports capture.ErrStreamInterrupted.
func (s *Source) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.frames)
		close(s.levels)
	}
	if s.StopErr == nil {
		s.StopErr = capture.ErrStreamInterrupted
	}
}
