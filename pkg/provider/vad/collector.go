package vad

import "time"

// Collector assembles the per-frame event stream of a session into an ordered
// list of speech segments with recording-relative offsets.
//
// Segment starts are backdated by the MinSpeechFrames debounce so the onset
// frames that triggered SpeechStart are included; segment ends are backdated
// by the hangover so trailing silence is excluded. Zero collected segments is
// a legitimate result for silent input, not an error.
//
// Not safe for concurrent use; create one per recording.
type Collector struct {
	cfg      Config
	frameDur time.Duration

	elapsed  time.Duration
	open     bool
	start    time.Duration
	segments []Segment
}

// NewCollector creates a Collector matching the session's config.
func NewCollector(cfg Config) *Collector {
	cfg = cfg.WithDefaults()
	return &Collector{
		cfg:      cfg,
		frameDur: time.Duration(cfg.FrameSizeMs) * time.Millisecond,
	}
}

// Observe consumes the event for the next frame in the stream.
func (c *Collector) Observe(ev Event) {
	frameStart := c.elapsed
	c.elapsed += c.frameDur

	switch ev.Type {
	case SpeechStart:
		start := frameStart - time.Duration(c.cfg.MinSpeechFrames-1)*c.frameDur
		if start < 0 {
			start = 0
		}
		c.open = true
		c.start = start
	case SpeechEnd:
		if c.open {
			end := c.elapsed - time.Duration(c.cfg.HangoverFrames)*c.frameDur
			if end < c.start {
				end = c.start
			}
			c.append(Segment{Start: c.start, End: end})
			c.open = false
		}
	}
}

// Finish closes any still-open segment at the end of the recording and
// returns the collected segments. A segment left open when audio ends is
// closed at the final frame boundary — stopping mid-word keeps the audio.
func (c *Collector) Finish() []Segment {
	if c.open {
		c.append(Segment{Start: c.start, End: c.elapsed})
		c.open = false
	}
	return c.segments
}

// Elapsed returns the total duration observed so far.
func (c *Collector) Elapsed() time.Duration { return c.elapsed }

func (c *Collector) append(s Segment) {
	if s.End <= s.Start {
		return
	}
	c.segments = append(c.segments, s)
}
