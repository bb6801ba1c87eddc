package checkin

import (
	"sync"
	"time"

	"github.com/novahale/vocalis/internal/biomarker"
	"github.com/novahale/vocalis/pkg/audio/capture"
	"github.com/novahale/vocalis/pkg/provider/semantic"
	"github.com/novahale/vocalis/pkg/types"
)

// Session is one check-in from capture to final metrics. All exported methods
// are safe for concurrent use.
type Session struct {
	id     string
	userID string

	mu       sync.Mutex
	state    State
	recorder *capture.Recorder
	metrics  *types.SessionMetrics
	mismatch *types.MismatchResult
	fused    bool

	// features and speechSeconds snapshot the processed recording so a
	// completed check-in can be promoted to the user's voice baseline.
	features      *types.AudioFeatures
	speechSeconds float64

	// semanticDone is closed when the async semantic attempt finishes
	// (fused, failed, or timed out). Nil when no semantic analysis was
	// started.
	semanticDone chan struct{}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user.
func (s *Session) UserID() string { return s.userID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Metrics returns a copy of the session's metrics, or nil before scoring
// completes. The copy is detached: later fusion does not mutate it.
func (s *Session) Metrics() *types.SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		return nil
	}
	m := *s.metrics
	return &m
}

// Mismatch returns the utterance's mismatch result, or nil when no transcript
// was analysed.
func (s *Session) Mismatch() *types.MismatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mismatch == nil {
		return nil
	}
	m := *s.mismatch
	return &m
}

// WaitSemantic blocks until the async semantic attempt finishes, for callers
// that want the blended result rather than the earliest one. Returns
// immediately when no semantic analysis was started.
func (s *Session) WaitSemantic() {
	s.mu.Lock()
	done := s.semanticDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// transition advances the state machine, rejecting illegal steps.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		return transitionError(s.state, to)
	}
	s.state = to
	return nil
}

// fail moves the session to the error state from whatever active state it is
// in. Terminal states stay put.
func (s *Session) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateComplete && s.state != StateError {
		s.state = StateError
	}
}

// setMetrics installs the acoustic-only metrics produced by scoring.
func (s *Session) setMetrics(m types.SessionMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = &m
}

// setFeatures snapshots the recording's extracted features.
func (s *Session) setFeatures(f types.AudioFeatures, speechSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = &f
	s.speechSeconds = speechSec
}

// featureSnapshot returns the extracted features, or nil before processing.
func (s *Session) featureSnapshot() (*types.AudioFeatures, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.features == nil {
		return nil, 0
	}
	f := *s.features
	return &f, s.speechSeconds
}

// setMismatch attaches the per-utterance mismatch result.
func (s *Session) setMismatch(m types.MismatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mismatch = &m
}

// applyFusion upgrades the session's metrics with a semantic result, exactly
// once. The sessionID guard rejects results that belong to a superseded
// session; the fused flag and the completed-state check make the upgrade
// idempotent and ordered after acoustic scoring. Returns false when the
// result was discarded.
func (s *Session) applyFusion(sessionID string, res *semantic.Result, fusedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != sessionID || s.fused || s.state != StateComplete || s.metrics == nil {
		return false
	}
	if res == nil || res.Confidence <= 0 {
		return false
	}

	m := s.metrics

	stress := biomarker.Fuse(
		biomarker.ScoreInput{Score: m.AcousticStress, Confidence: m.AcousticConfidence},
		biomarker.ScoreInput{Score: res.StressScore, Confidence: res.Confidence},
	)
	fatigue := biomarker.Fuse(
		biomarker.ScoreInput{Score: m.AcousticFatigue, Confidence: m.AcousticConfidence},
		biomarker.ScoreInput{Score: res.FatigueScore, Confidence: res.Confidence},
	)

	m.StressScore = stress.Score
	m.FatigueScore = fatigue.Score
	m.StressLevel = biomarker.LevelForStress(stress.Score)
	m.FatigueLevel = biomarker.LevelForFatigue(fatigue.Score)
	m.Confidence = (stress.Confidence + fatigue.Confidence) / 2

	m.SemanticStress = res.StressScore
	m.SemanticFatigue = res.FatigueScore
	m.SemanticConfidence = res.Confidence
	m.FusedAt = fusedAt

	if m.Explanations != nil {
		e := *m.Explanations
		e.Mode = "blended"
		m.Explanations = &e
	}

	s.fused = true
	return true
}
