// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify session creation and to script per-frame events into
// the segmentation loop without a real classifier.
//
// Example:
//
//	sess := &mock.Session{Events: []vad.Event{{Type: vad.SpeechStart}, {Type: vad.SpeechContinue}}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/novahale/vocalis/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a default empty Session is
	// returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned from NewSession.
	NewSessionErr error

	// NewSessionCalls records each config passed to NewSession.
	NewSessionCalls []vad.Config
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of vad.SessionHandle. It replays the
// scripted Events in order; once exhausted it returns Silence events.
type Session struct {
	// Events are returned in order from successive ProcessFrame calls.
	Events []vad.Event

	// ProcessFrameErr, if non-nil, is returned from every ProcessFrame call.
	ProcessFrameErr error

	// Frames records a copy of every frame passed to ProcessFrame.
	Frames [][]byte

	// ResetCalls and CloseCalls count invocations.
	ResetCalls int
	CloseCalls int

	next int
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame replays the next scripted event.
func (s *Session) ProcessFrame(frame []byte) (vad.Event, error) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)

	if s.ProcessFrameErr != nil {
		return vad.Event{}, s.ProcessFrameErr
	}
	if s.next < len(s.Events) {
		ev := s.Events[s.next]
		s.next++
		return ev, nil
	}
	return vad.Event{Type: vad.Silence}, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.ResetCalls++
	s.next = 0
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.CloseCalls++
	return nil
}
