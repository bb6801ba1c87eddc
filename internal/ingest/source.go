package ingest

import (
	"context"
	"sync"

	"github.com/novahale/vocalis/pkg/audio"
	"github.com/novahale/vocalis/pkg/audio/capture"
)

// frameBuffer bounds the source's frame channel. At 20 ms frames this is
// about two seconds of backlog before frames are dropped.
const frameBuffer = 100

// wsSource adapts a websocket connection's audio stream to [capture.Source].
// The connection's read loop pushes frames; the recorder drains them. There
// is no device to acquire, so Start only flips state.
type wsSource struct {
	frames chan audio.Frame
	levels chan float64

	mu          sync.Mutex
	started     bool
	closed      bool
	interrupted bool
}

var _ capture.Source = (*wsSource)(nil)

func newWSSource() *wsSource {
	return &wsSource{
		frames: make(chan audio.Frame, frameBuffer),
		levels: make(chan float64, frameBuffer),
	}
}

// Start implements capture.Source.
func (s *wsSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Frames implements capture.Source.
func (s *wsSource) Frames() <-chan audio.Frame { return s.frames }

// Levels implements capture.Source.
func (s *wsSource) Levels() <-chan float64 { return s.levels }

// Stop implements capture.Source. Idempotent; reports an interruption when
// the connection died before the client requested a stop.
func (s *wsSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
		close(s.levels)
	}
	if s.interrupted {
		return capture.ErrStreamInterrupted
	}
	return nil
}

// push hands a frame to the recorder. Frames are dropped rather than blocking
// the connection's read loop when the consumer falls behind.
func (s *wsSource) push(f audio.Frame) (level float64, dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, true
	}
	s.mu.Unlock()

	level = audio.Level(f.Data)
	select {
	case s.frames <- f:
	default:
		return level, true
	}
	select {
	case s.levels <- level:
	default:
	}
	return level, false
}

// interrupt marks the stream as lost and closes it. Called when the websocket
// drops mid-capture.
func (s *wsSource) interrupt() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.interrupted = true
		close(s.frames)
		close(s.levels)
	} else {
		s.interrupted = true
	}
	s.mu.Unlock()
}
