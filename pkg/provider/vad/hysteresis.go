package vad

// Hysteresis converts a stream of per-frame speech probabilities into
// SpeechStart/Continue/End/Silence events. It implements the debounce rules
// shared by all engines: MinSpeechFrames consecutive frames above
// SpeechThreshold open a segment, HangoverFrames consecutive frames below
// SilenceThreshold close it. Frames between the two thresholds extend the
// current state.
//
// Engines embed a Hysteresis so that the classifier (learned model or energy
// threshold) and the smoothing policy stay decoupled. Not safe for concurrent
// use; each session owns its own instance.
type Hysteresis struct {
	cfg Config

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewHysteresis creates a Hysteresis for the given (defaulted) config.
func NewHysteresis(cfg Config) *Hysteresis {
	return &Hysteresis{cfg: cfg.WithDefaults()}
}

// Observe consumes one frame probability and returns the resulting event.
func (h *Hysteresis) Observe(probability float64) Event {
	ev := Event{Probability: probability}

	if h.inSpeech {
		if probability < h.cfg.SilenceThreshold {
			h.silenceCount++
			if h.silenceCount >= h.cfg.HangoverFrames {
				h.inSpeech = false
				h.silenceCount = 0
				h.speechCount = 0
				ev.Type = SpeechEnd
				return ev
			}
		} else {
			h.silenceCount = 0
		}
		ev.Type = SpeechContinue
		return ev
	}

	if probability >= h.cfg.SpeechThreshold {
		h.speechCount++
		if h.speechCount >= h.cfg.MinSpeechFrames {
			h.inSpeech = true
			h.speechCount = 0
			ev.Type = SpeechStart
			return ev
		}
	} else {
		h.speechCount = 0
	}
	ev.Type = Silence
	return ev
}

// Reset clears the hysteresis state.
func (h *Hysteresis) Reset() {
	h.inSpeech = false
	h.speechCount = 0
	h.silenceCount = 0
}
