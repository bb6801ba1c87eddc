package checkin

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/novahale/vocalis/internal/biomarker"
	"github.com/novahale/vocalis/internal/calibration"
	"github.com/novahale/vocalis/internal/observe"
	"github.com/novahale/vocalis/internal/processor"
	"github.com/novahale/vocalis/pkg/audio"
	capturemock "github.com/novahale/vocalis/pkg/audio/capture/mock"
	"github.com/novahale/vocalis/pkg/provider/semantic"
	semanticmock "github.com/novahale/vocalis/pkg/provider/semantic/mock"
	"github.com/novahale/vocalis/pkg/provider/vad/model"
	"github.com/novahale/vocalis/pkg/types"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// tone generates n samples of a sine at freq Hz.
func tone(n int, freq float64, sampleRate int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(0.3 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// voicedSource returns a mock capture source scripted with ~4.5s of speech in
// a 6.5s recording, enough to clear the minimum-speech gate.
func voicedSource() *capturemock.Source {
	const rate = audio.PipelineSampleRate
	pcm := make([]int16, 0)
	pcm = append(pcm, make([]int16, rate/2)...)
	pcm = append(pcm, tone(2*rate, 200, rate)...)
	pcm = append(pcm, make([]int16, rate)...)
	pcm = append(pcm, tone(5*rate/2, 200, rate)...)
	pcm = append(pcm, make([]int16, rate/2)...)
	return capturemock.NewSource(audio.Frame{
		Data:       audio.Int16sToBytes(pcm),
		SampleRate: rate,
		Channels:   1,
	})
}

// silentSource returns a mock capture source scripted with 10s of silence.
func silentSource() *capturemock.Source {
	return capturemock.NewSource(audio.Frame{
		Data:       make([]byte, audio.PipelineSampleRate*10*2),
		SampleRate: audio.PipelineSampleRate,
		Channels:   1,
	})
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return met
}

func newManager(t *testing.T, repo calibration.Repository, opts ...Option) *Manager {
	t.Helper()
	if repo == nil {
		repo = calibration.NewMemoryRepository()
	}
	opts = append([]Option{WithMetrics(testMetrics(t))}, opts...)
	return NewManager(processor.New(model.New()), biomarker.NewScorer(), repo, opts...)
}

func TestCheckInLifecycle(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateCapturing {
		t.Fatalf("state = %s, want capturing", s.State())
	}
	if _, ok := m.Lookup(s.ID()); !ok {
		t.Error("session not registered")
	}

	metrics, err := m.Complete(ctx, s, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if s.State() != StateComplete {
		t.Errorf("state = %s, want complete", s.State())
	}
	if metrics.StressScore < 0 || metrics.StressScore > 100 {
		t.Errorf("StressScore = %.1f out of range", metrics.StressScore)
	}
	if !metrics.StressLevel.IsValid() || !metrics.FatigueLevel.IsValid() {
		t.Errorf("invalid levels %q/%q", metrics.StressLevel, metrics.FatigueLevel)
	}
	if metrics.AcousticConfidence <= 0 {
		t.Errorf("AcousticConfidence = %.2f, want > 0", metrics.AcousticConfidence)
	}
	if metrics.SemanticConfidence != 0 || !metrics.FusedAt.IsZero() {
		t.Error("semantic fields set without a semantic provider")
	}
	if metrics.Explanations == nil || metrics.Explanations.Mode != "acoustic" {
		t.Error("want acoustic explanations")
	}
	if _, ok := m.Lookup(s.ID()); ok {
		t.Error("completed session still in live set")
	}
}

func TestCompleteInsufficientSpeech(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", silentSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err = m.Complete(ctx, s, "")
	if !errors.Is(err, processor.ErrInsufficientSpeech) {
		t.Fatalf("err = %v, want ErrInsufficientSpeech", err)
	}
	if s.State() != StateError {
		t.Errorf("state = %s, want error", s.State())
	}
	if _, ok := m.Lookup(s.ID()); ok {
		t.Error("failed session still in live set")
	}
}

func TestAbort(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Abort(ctx, s)
	if s.State() != StateError {
		t.Errorf("state = %s, want error", s.State())
	}
	if _, ok := m.Lookup(s.ID()); ok {
		t.Error("aborted session still in live set")
	}
	// Idempotent.
	m.Abort(ctx, s)
}

func TestSemanticFusionApplied(t *testing.T) {
	prov := &semanticmock.Provider{
		Result: &semantic.Result{StressScore: 80, FatigueScore: 20, Confidence: 0.9},
	}
	m := newManager(t, nil, WithSemanticProvider(prov))
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	acoustic, err := m.Complete(ctx, s, "honestly not sure how today went")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if acoustic.SemanticConfidence != 0 {
		t.Error("synchronous result should be acoustic-only")
	}

	s.WaitSemantic()
	fused := s.Metrics()
	if fused.SemanticConfidence != 0.9 {
		t.Errorf("SemanticConfidence = %.2f, want 0.9", fused.SemanticConfidence)
	}
	if fused.FusedAt.IsZero() {
		t.Error("FusedAt not set")
	}
	if fused.Explanations == nil || fused.Explanations.Mode != "blended" {
		t.Error("want blended explanations after fusion")
	}
	if fused.StressScore <= acoustic.StressScore {
		t.Errorf("fused stress = %.1f, want > acoustic %.1f (semantic pulled up)",
			fused.StressScore, acoustic.StressScore)
	}
	maxConf := math.Max(fused.AcousticConfidence, 0.9)
	if fused.Confidence > maxConf {
		t.Errorf("fused confidence %.2f exceeds max input %.2f", fused.Confidence, maxConf)
	}
	// The returned acoustic snapshot is detached from the fusion write.
	if acoustic.SemanticConfidence != 0 || !acoustic.FusedAt.IsZero() {
		t.Error("fusion mutated the earlier snapshot")
	}
	if got := prov.Calls(); got != 1 {
		t.Errorf("semantic calls = %d, want 1", got)
	}
}

func TestSemanticTimeoutKeepsAcousticResult(t *testing.T) {
	prov := &semanticmock.Provider{
		Result: &semantic.Result{StressScore: 80, FatigueScore: 20, Confidence: 0.9},
		Delay:  time.Second,
	}
	m := newManager(t, nil,
		WithSemanticProvider(prov),
		WithSemanticTimeout(10*time.Millisecond),
	)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Complete(ctx, s, "fine"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	s.WaitSemantic()
	final := s.Metrics()
	if final.SemanticConfidence != 0 {
		t.Errorf("SemanticConfidence = %.2f, want 0 after timeout", final.SemanticConfidence)
	}
	if !final.FusedAt.IsZero() {
		t.Error("FusedAt set after timeout")
	}
}

func TestFusionExactlyOnce(t *testing.T) {
	prov := &semanticmock.Provider{
		Result: &semantic.Result{StressScore: 80, FatigueScore: 20, Confidence: 0.9},
	}
	m := newManager(t, nil, WithSemanticProvider(prov))
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Complete(ctx, s, "fine"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	s.WaitSemantic()

	res := &semantic.Result{StressScore: 10, FatigueScore: 10, Confidence: 1}
	if s.applyFusion(s.ID(), res, time.Now()) {
		t.Error("second fusion applied, want discarded")
	}
	if s.applyFusion("some-other-session", res, time.Now()) {
		t.Error("fusion with mismatched session ID applied")
	}
}

func TestMismatchAttachedForTranscript(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Complete(ctx, s, "I'm doing great, feeling really good"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	mm := s.Mismatch()
	if mm == nil {
		t.Fatal("no mismatch result for transcript")
	}
	if mm.SemanticSignal != types.SemanticPositive {
		t.Errorf("SemanticSignal = %s, want positive", mm.SemanticSignal)
	}
	if mm.Detected && mm.SuggestionForAssistant == "" {
		t.Error("detected mismatch without suggestion")
	}
}

func TestSubmitSelfReport(t *testing.T) {
	repo := calibration.NewMemoryRepository()
	m := newManager(t, repo)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	report := types.CheckInSelfReport{StressScore: 50, FatigueScore: 50, ReportedAt: time.Now()}
	if _, err := m.SubmitSelfReport(ctx, s, report); !errors.Is(err, ErrNotComplete) {
		t.Fatalf("self-report before complete: err = %v, want ErrNotComplete", err)
	}

	if _, err := m.Complete(ctx, s, ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	cal, err := m.SubmitSelfReport(ctx, s, report)
	if err != nil {
		t.Fatalf("SubmitSelfReport: %v", err)
	}
	if cal.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1", cal.SampleCount)
	}

	settings, err := repo.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Calibration == nil || settings.Calibration.SampleCount != 1 {
		t.Error("calibration not persisted")
	}
}

// failRepo loads empty settings and always fails to save.
type failRepo struct{}

func (failRepo) Load(context.Context, string) (*calibration.Settings, error) {
	return &calibration.Settings{}, nil
}

func (failRepo) Save(context.Context, string, calibration.Patch) error {
	return calibration.ErrWriteFailed
}

func TestSelfReportWriteFailureKeepsCalibrationInMemory(t *testing.T) {
	m := newManager(t, failRepo{})
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Complete(ctx, s, ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	report := types.CheckInSelfReport{StressScore: 10, FatigueScore: 10, ReportedAt: time.Now()}
	cal, err := m.SubmitSelfReport(ctx, s, report)
	if !errors.Is(err, calibration.ErrWriteFailed) {
		t.Fatalf("err = %v, want ErrWriteFailed", err)
	}
	if cal.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1 despite write failure", cal.SampleCount)
	}

	// The unsaved update stays active: a second report builds on it.
	cal2, err := m.SubmitSelfReport(ctx, s, report)
	if !errors.Is(err, calibration.ErrWriteFailed) {
		t.Fatalf("second report: err = %v, want ErrWriteFailed", err)
	}
	if cal2.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2 (overlay not used)", cal2.SampleCount)
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateCapturing, true},
		{StateCapturing, StateProcessing, true},
		{StateProcessing, StateScoring, true},
		{StateScoring, StateComplete, true},
		{StateCapturing, StateError, true},
		{StateIdle, StateComplete, false},
		{StateCapturing, StateScoring, false},
		{StateComplete, StateCapturing, false},
		{StateError, StateCapturing, false},
		{StateComplete, StateError, false},
	}
	for _, tc := range tests {
		if got := canTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestSaveBaseline(t *testing.T) {
	repo := calibration.NewMemoryRepository()
	m := newManager(t, repo)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Complete(ctx, s, ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	baseline, err := m.SaveBaseline(ctx, s, "prompt-1")
	if err != nil {
		t.Fatalf("SaveBaseline: %v", err)
	}
	if baseline.PromptID != "prompt-1" {
		t.Errorf("PromptID = %q, want prompt-1", baseline.PromptID)
	}
	if baseline.SpeechSeconds <= 0 {
		t.Errorf("SpeechSeconds = %.2f, want > 0", baseline.SpeechSeconds)
	}
	if baseline.RecordedAt.IsZero() {
		t.Error("RecordedAt not set")
	}

	settings, err := repo.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Baseline == nil {
		t.Fatal("baseline not persisted")
	}
	if settings.Baseline.PromptID != "prompt-1" {
		t.Errorf("stored PromptID = %q, want prompt-1", settings.Baseline.PromptID)
	}
}

func TestSaveBaselineReplacesPrevious(t *testing.T) {
	repo := calibration.NewMemoryRepository()
	m := newManager(t, repo)
	ctx := context.Background()

	for i, promptID := range []string{"prompt-1", "prompt-2"} {
		s, err := m.Start(ctx, "user-1", voicedSource())
		if err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		if _, err := m.Complete(ctx, s, ""); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
		if _, err := m.SaveBaseline(ctx, s, promptID); err != nil {
			t.Fatalf("SaveBaseline %d: %v", i, err)
		}
	}

	settings, err := repo.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Baseline == nil || settings.Baseline.PromptID != "prompt-2" {
		t.Fatalf("baseline = %+v, want prompt-2", settings.Baseline)
	}
}

func TestSaveBaselineRequiresCompletion(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.SaveBaseline(ctx, s, ""); !errors.Is(err, ErrNotComplete) {
		t.Fatalf("err = %v, want ErrNotComplete", err)
	}
	m.Abort(ctx, s)
	if _, err := m.SaveBaseline(ctx, s, ""); !errors.Is(err, ErrNotComplete) {
		t.Fatalf("after abort: err = %v, want ErrNotComplete", err)
	}
}

func TestBaselineDriftOnNextCheckIn(t *testing.T) {
	repo := calibration.NewMemoryRepository()
	m := newManager(t, repo)
	ctx := context.Background()

	first, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	metrics, err := m.Complete(ctx, first, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if metrics.BaselineDrift != nil {
		t.Errorf("BaselineDrift = %v before any baseline, want nil", *metrics.BaselineDrift)
	}
	if _, err := m.SaveBaseline(ctx, first, "prompt-1"); err != nil {
		t.Fatalf("SaveBaseline: %v", err)
	}

	second, err := m.Start(ctx, "user-1", voicedSource())
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	metrics, err = m.Complete(ctx, second, "")
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if metrics.BaselineDrift == nil {
		t.Fatal("BaselineDrift nil with a stored baseline")
	}
	if *metrics.BaselineDrift < 0 {
		t.Errorf("BaselineDrift = %.3f, want >= 0", *metrics.BaselineDrift)
	}
}
