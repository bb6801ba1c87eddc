// Package checkin orchestrates the voice check-in pipeline: one Session per
// recording, driven through capture, VAD-gated feature extraction, biomarker
// scoring with per-user calibration, and an asynchronous semantic upgrade.
//
// The Manager is the only writer of session state. Acoustic results are
// returned synchronously from [Manager.Complete]; the semantic result, when a
// provider is configured, is fused in the background and never blocks the
// check-in response.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novahale/vocalis/internal/biomarker"
	"github.com/novahale/vocalis/internal/calibration"
	"github.com/novahale/vocalis/internal/observe"
	"github.com/novahale/vocalis/internal/processor"
	"github.com/novahale/vocalis/pkg/audio"
	"github.com/novahale/vocalis/pkg/audio/capture"
	"github.com/novahale/vocalis/pkg/provider/semantic"
	"github.com/novahale/vocalis/pkg/types"
)

// ErrSessionNotFound is returned when a session ID does not resolve to a live
// session.
var ErrSessionNotFound = errors.New("checkin: session not found")

// ErrNotComplete is returned when an operation requires a completed session,
// such as submitting a self-report.
var ErrNotComplete = errors.New("checkin: session not complete")

const (
	// defaultSemanticTimeout bounds the background semantic attempt. A
	// provider slower than this loses its slot; the acoustic-only result
	// stands.
	defaultSemanticTimeout = 10 * time.Second

	// defaultMaxRecording matches the processor's session duration cap.
	defaultMaxRecording = 5 * time.Minute
)

// Manager creates and drives check-in sessions. Safe for concurrent use.
type Manager struct {
	processor    *processor.Processor
	scorer       *biomarker.Scorer
	repo         calibration.Repository
	maxRecording time.Duration
	metrics      *observe.Metrics
	logger       *slog.Logger
	now          func() time.Time

	// cfgMu guards the hot-swappable semantic settings.
	cfgMu           sync.RWMutex
	semantic        semantic.Provider
	semanticTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	// userMu serialises self-report updates per user so concurrent reports
	// fold into calibration one at a time.
	userMu sync.Mutex
	locks  map[string]*sync.Mutex

	// overlay holds calibrations that could not be persisted. A successful
	// save clears the entry; until then the in-memory value wins over the
	// repository's stale one.
	overlayMu sync.RWMutex
	overlay   map[string]types.BiomarkerCalibration
}

// Option configures a Manager.
type Option func(*Manager)

// WithSemanticProvider enables background semantic analysis of transcripts.
func WithSemanticProvider(p semantic.Provider) Option {
	return func(m *Manager) { m.semantic = p }
}

// WithSemanticTimeout overrides the background semantic attempt deadline.
func WithSemanticTimeout(d time.Duration) Option {
	return func(m *Manager) { m.semanticTimeout = d }
}

// WithMaxRecording overrides the recording memory bound.
func WithMaxRecording(d time.Duration) Option {
	return func(m *Manager) { m.maxRecording = d }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// WithManagerLogger overrides the logger. Defaults to slog.Default.
func WithManagerLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager. The processor, scorer, and repository are
// required; semantic analysis is off unless a provider is supplied.
func NewManager(proc *processor.Processor, scorer *biomarker.Scorer, repo calibration.Repository, opts ...Option) *Manager {
	m := &Manager{
		processor:       proc,
		scorer:          scorer,
		repo:            repo,
		semanticTimeout: defaultSemanticTimeout,
		maxRecording:    defaultMaxRecording,
		logger:          slog.Default(),
		now:             time.Now,
		sessions:        make(map[string]*Session),
		locks:           make(map[string]*sync.Mutex),
		overlay:         make(map[string]types.BiomarkerCalibration),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Start opens a new check-in session for userID and begins recording from src.
// The returned session is in the capturing state.
func (m *Manager) Start(ctx context.Context, userID string, src capture.Source) (*Session, error) {
	s := &Session{
		id:       uuid.NewString(),
		userID:   userID,
		state:    StateIdle,
		recorder: capture.NewRecorder(src, m.maxRecording),
	}
	if err := s.transition(StateCapturing); err != nil {
		return nil, err
	}
	if err := s.recorder.Start(ctx); err != nil {
		s.fail()
		m.metrics.RecordCheckIn(ctx, "error")
		return nil, fmt.Errorf("checkin: start capture: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.metrics.ActiveSessions.Add(ctx, 1)

	m.logger.Info("check-in started", "session_id", s.id, "user_id", userID)
	return s, nil
}

// Lookup resolves a live session by ID.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Abort stops a session's capture and marks it failed, for transport
// disconnects and client cancellation. Idempotent.
func (m *Manager) Abort(ctx context.Context, s *Session) {
	if s.State() == StateComplete || s.State() == StateError {
		return
	}
	if _, err := s.recorder.Stop(); err != nil {
		m.logger.Warn("capture stop during abort", "session_id", s.id, "error", err)
	}
	s.fail()
	m.release(ctx, s)
	m.metrics.RecordCheckIn(ctx, "aborted")
}

// Complete stops recording and runs the full acoustic pipeline: segmentation,
// feature extraction, scoring, and per-user calibration. When a transcript is
// supplied it also computes the mismatch result and, if a semantic provider is
// configured, launches the background semantic upgrade.
//
// The returned metrics are acoustic-only; callers that want the blended
// result can wait on [Session.WaitSemantic] and re-read [Session.Metrics].
func (m *Manager) Complete(ctx context.Context, s *Session, transcript string) (*types.SessionMetrics, error) {
	recording, stopErr := s.recorder.Stop()
	if stopErr != nil {
		// An interrupted stream still yields whatever audio arrived; process
		// it rather than discarding the user's check-in.
		m.logger.Warn("capture stopped with error", "session_id", s.id, "error", stopErr)
	}
	if err := s.transition(StateProcessing); err != nil {
		return nil, err
	}

	procStart := m.now()
	res, err := m.processor.Process(ctx, audio.BytesToInt16s(recording.PCM), recording.SampleRate)
	m.metrics.ProcessingDuration.Record(ctx, m.now().Sub(procStart).Seconds())
	if err != nil {
		s.fail()
		m.release(ctx, s)
		m.metrics.RecordCheckIn(ctx, checkInStatus(err))
		return nil, err
	}
	m.metrics.SpeechRatio.Record(ctx, res.Quality.SpeechRatio)

	if err := s.transition(StateScoring); err != nil {
		return nil, err
	}

	scoreStart := m.now()
	cal := m.loadCalibration(ctx, s.userID)
	scored := m.scorer.Score(res.Features, res.Quality)
	scored = calibrate(scored, cal)
	m.metrics.ScoringDuration.Record(ctx, m.now().Sub(scoreStart).Seconds())

	s.setFeatures(res.Features, res.Metadata.SpeechDurationSec)

	s.setMetrics(types.SessionMetrics{
		StressScore:        scored.StressScore,
		FatigueScore:       scored.FatigueScore,
		StressLevel:        scored.StressLevel,
		FatigueLevel:       scored.FatigueLevel,
		Confidence:         scored.Confidence,
		AcousticStress:     scored.StressScore,
		AcousticFatigue:    scored.FatigueScore,
		AcousticConfidence: scored.Confidence,
		Explanations:       scored.Explanations,
		Quality:            scored.Quality,
		BaselineDrift:      m.baselineDrift(ctx, s.userID, res.Features),
		AnalyzedAt:         scored.AnalyzedAt,
	})
	if err := s.transition(StateComplete); err != nil {
		return nil, err
	}
	m.release(ctx, s)
	m.metrics.RecordCheckIn(ctx, "complete")

	m.logger.Info("check-in scored",
		"session_id", s.id,
		"user_id", s.userID,
		"stress", fmt.Sprintf("%.0f", scored.StressScore),
		"fatigue", fmt.Sprintf("%.0f", scored.FatigueScore),
		"confidence", fmt.Sprintf("%.2f", scored.Confidence),
		"speech_sec", fmt.Sprintf("%.1f", res.Metadata.SpeechDurationSec),
	)

	if transcript != "" {
		mm := biomarker.Detect(transcript, scored)
		s.setMismatch(mm)
		if mm.Detected {
			m.metrics.MismatchDetections.Add(ctx, 1)
			m.logger.Info("tone/content mismatch flagged",
				"session_id", s.id,
				"semantic", string(mm.SemanticSignal),
				"acoustic", string(mm.AcousticSignal),
				"confidence", fmt.Sprintf("%.2f", mm.Confidence),
			)
		}
		if prov, timeout := m.semanticConfig(); prov != nil {
			done := make(chan struct{})
			s.mu.Lock()
			s.semanticDone = done
			s.mu.Unlock()
			go m.runSemantic(s, s.id, transcript, prov, timeout, done)
		}
	}

	return s.Metrics(), nil
}

// SetSemantic swaps the analysis backend and timeout at runtime, typically
// after a configuration reload. A nil provider disables semantic analysis;
// a non-positive timeout keeps the current one. Check-ins already past the
// scoring stage keep the provider they launched with.
func (m *Manager) SetSemantic(p semantic.Provider, timeout time.Duration) {
	m.cfgMu.Lock()
	m.semantic = p
	if timeout > 0 {
		m.semanticTimeout = timeout
	}
	m.cfgMu.Unlock()
}

func (m *Manager) semanticConfig() (semantic.Provider, time.Duration) {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.semantic, m.semanticTimeout
}

// runSemantic performs the background semantic analysis and at-most-once
// fusion. It deliberately uses a fresh context: the HTTP request that
// triggered the check-in has usually already returned.
func (m *Manager) runSemantic(s *Session, sessionID, transcript string, prov semantic.Provider, timeout time.Duration, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := m.now()
	res, err := prov.Analyze(ctx, semantic.Request{Transcript: transcript})
	m.metrics.SemanticDuration.Record(ctx, m.now().Sub(start).Seconds())
	if err != nil {
		m.metrics.RecordProviderError(ctx, "semantic", errKind(err))
		m.metrics.RecordFusion(ctx, "unavailable")
		m.logger.Warn("semantic analysis unavailable, keeping acoustic-only result",
			"session_id", sessionID, "error", err)
		return
	}

	if s.applyFusion(sessionID, res, m.now()) {
		m.metrics.RecordFusion(ctx, "applied")
		m.logger.Info("semantic fusion applied", "session_id", sessionID,
			"semantic_confidence", fmt.Sprintf("%.2f", res.Confidence))
	} else {
		m.metrics.RecordFusion(ctx, "discarded")
	}
}

// SubmitSelfReport folds the user's own assessment into their calibration and
// persists it. Requires a completed session so the acoustic scores being
// calibrated against are final.
//
// A persistence failure is soft: the updated calibration stays active
// in memory and the wrapped error is returned so callers can surface a
// warning. Concurrent reports for the same user are serialised.
func (m *Manager) SubmitSelfReport(ctx context.Context, s *Session, report types.CheckInSelfReport) (types.BiomarkerCalibration, error) {
	if s.State() != StateComplete {
		return types.BiomarkerCalibration{}, ErrNotComplete
	}
	metrics := s.Metrics()
	if metrics == nil {
		return types.BiomarkerCalibration{}, ErrNotComplete
	}

	lock := m.userLock(s.userID)
	lock.Lock()
	defer lock.Unlock()

	acoustic := types.VoiceMetrics{
		StressScore:  metrics.AcousticStress,
		FatigueScore: metrics.AcousticFatigue,
		Confidence:   metrics.AcousticConfidence,
	}
	prev := m.loadCalibration(ctx, s.userID)
	next := calibration.UpdateFromSelfReport(acoustic, report, prev)

	if err := m.repo.Save(ctx, s.userID, calibration.Patch{Calibration: &next}); err != nil {
		m.overlayMu.Lock()
		m.overlay[s.userID] = next
		m.overlayMu.Unlock()
		m.metrics.RecordCalibrationUpdate(ctx, "write_failed")
		m.logger.Warn("calibration save failed, keeping update in memory",
			"user_id", s.userID, "error", err)
		return next, fmt.Errorf("checkin: persist calibration: %w", err)
	}

	m.overlayMu.Lock()
	delete(m.overlay, s.userID)
	m.overlayMu.Unlock()
	m.metrics.RecordCalibrationUpdate(ctx, "saved")
	m.logger.Info("calibration updated", "user_id", s.userID,
		"sample_count", next.SampleCount)
	return next, nil
}

// BaselineDistancer is implemented by calibration stores that can compare a
// feature vector against the user's stored voice baseline. Stores without the
// capability simply never contribute a drift value.
type BaselineDistancer interface {
	BaselineDistance(ctx context.Context, userID string, features types.AudioFeatures) (distance float64, found bool, err error)
}

// baselineDrift computes the distance between this recording's features and
// the user's voice baseline. Nil when no baseline exists, the store cannot
// compute distances, or the lookup fails.
func (m *Manager) baselineDrift(ctx context.Context, userID string, features types.AudioFeatures) *float64 {
	bd, ok := m.repo.(BaselineDistancer)
	if !ok {
		return nil
	}
	distance, found, err := bd.BaselineDistance(ctx, userID, features)
	if err != nil {
		m.logger.Warn("baseline distance lookup failed",
			"user_id", userID, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	return &distance
}

// SaveBaseline promotes a completed check-in's recording to the user's voice
// baseline, replacing any previous one wholesale. The session must have
// completed analysis; aborted or in-flight sessions are rejected.
func (m *Manager) SaveBaseline(ctx context.Context, s *Session, promptID string) (*types.VoiceBaseline, error) {
	if s.State() != StateComplete {
		return nil, ErrNotComplete
	}
	features, speechSec := s.featureSnapshot()
	if features == nil {
		return nil, ErrNotComplete
	}

	lock := m.userLock(s.userID)
	lock.Lock()
	defer lock.Unlock()

	baseline := types.VoiceBaseline{
		Features:      *features,
		RecordedAt:    m.now(),
		PromptID:      promptID,
		SpeechSeconds: speechSec,
	}
	if err := m.repo.Save(ctx, s.userID, calibration.Patch{Baseline: &baseline}); err != nil {
		m.logger.Warn("baseline save failed", "user_id", s.userID, "error", err)
		return nil, fmt.Errorf("checkin: persist baseline: %w", err)
	}
	m.logger.Info("voice baseline recorded", "user_id", s.userID,
		"prompt_id", promptID, "speech_seconds", speechSec)
	return &baseline, nil
}

// loadCalibration fetches the user's calibration, preferring an unsaved
// in-memory update over the repository. Load failures degrade to the identity
// calibration rather than blocking the check-in.
func (m *Manager) loadCalibration(ctx context.Context, userID string) types.BiomarkerCalibration {
	m.overlayMu.RLock()
	if cal, ok := m.overlay[userID]; ok {
		m.overlayMu.RUnlock()
		return cal
	}
	m.overlayMu.RUnlock()

	settings, err := m.repo.Load(ctx, userID)
	if err != nil {
		m.logger.Warn("calibration load failed, using identity calibration",
			"user_id", userID, "error", err)
		return calibration.Default()
	}
	if settings.Calibration == nil {
		return calibration.Default()
	}
	return *settings.Calibration
}

// release removes a finished session from the live set.
func (m *Manager) release(ctx context.Context, s *Session) {
	m.mu.Lock()
	_, live := m.sessions[s.id]
	delete(m.sessions, s.id)
	m.mu.Unlock()
	if live {
		m.metrics.ActiveSessions.Add(ctx, -1)
	}
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

// calibrate applies the per-user bias/scale correction and re-derives the
// level bands so scores and levels never disagree.
func calibrate(vm types.VoiceMetrics, cal types.BiomarkerCalibration) types.VoiceMetrics {
	vm.StressScore = calibration.ApplyStress(vm.StressScore, cal)
	vm.FatigueScore = calibration.ApplyFatigue(vm.FatigueScore, cal)
	vm.StressLevel = biomarker.LevelForStress(vm.StressScore)
	vm.FatigueLevel = biomarker.LevelForFatigue(vm.FatigueScore)
	return vm
}

// checkInStatus maps a pipeline error to the check-in counter status.
func checkInStatus(err error) string {
	switch {
	case errors.Is(err, processor.ErrInsufficientSpeech):
		return "insufficient_speech"
	case errors.Is(err, processor.ErrRecordingTooLong):
		return "recording_too_long"
	default:
		return "error"
	}
}

// errKind classifies a provider error for the error counter.
func errKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, semantic.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
