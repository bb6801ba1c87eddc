// Package processor orchestrates the per-recording pipeline: segmentation,
// speech selection, and feature extraction. It is the single entry point
// between raw captured audio and a scored-ready feature record.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/novahale/vocalis/pkg/audio"
	"github.com/novahale/vocalis/pkg/dsp"
	"github.com/novahale/vocalis/pkg/provider/vad"
	"github.com/novahale/vocalis/pkg/provider/vad/energy"
	"github.com/novahale/vocalis/pkg/types"
)

// ErrInsufficientSpeech indicates the recording held less speech than the
// minimum needed for trustworthy features. It is a user-facing "please speak
// longer" condition, not a system failure.
var ErrInsufficientSpeech = errors.New("processor: insufficient speech")

// ErrRecordingTooLong indicates the recording exceeds the session bound.
var ErrRecordingTooLong = errors.New("processor: recording exceeds maximum session duration")

const (
	// MinSpeechSeconds is the least speech a recording must contain to be
	// scored.
	MinSpeechSeconds = 3.0

	// MaxSessionSeconds bounds a single check-in recording.
	MaxSessionSeconds = 300.0
)

// Metadata describes one processing run.
type Metadata struct {
	TotalDurationSec  float64 `json:"totalDurationSec"`
	SpeechDurationSec float64 `json:"speechDurationSec"`
	ProcessingTimeMs  int64   `json:"processingTimeMs"`
}

// Result is the output of one Process call.
type Result struct {
	Features types.AudioFeatures
	Quality  types.VoiceDataQuality
	Metadata Metadata
}

// Processor runs segmentation and feature extraction for one recording at a
// time. It is safe for concurrent use; each Process call creates its own VAD
// session.
type Processor struct {
	primary   vad.Engine
	fallback  vad.Engine
	extractor *dsp.Extractor
	logger    *slog.Logger

	mu     sync.RWMutex
	vadCfg vad.Config
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithFallbackEngine replaces the default energy-based fallback engine.
func WithFallbackEngine(e vad.Engine) Option {
	return func(p *Processor) { p.fallback = e }
}

// WithVADConfig overrides the default VAD configuration. Zero fields keep
// their defaults.
func WithVADConfig(cfg vad.Config) Option {
	return func(p *Processor) { p.vadCfg = cfg.WithDefaults() }
}

// New creates a Processor using primary for segmentation, degrading to the
// energy-based fallback when the primary engine cannot start a session.
func New(primary vad.Engine, opts ...Option) *Processor {
	p := &Processor{
		primary:   primary,
		fallback:  energy.New(),
		extractor: dsp.NewExtractor(audio.PipelineSampleRate),
		vadCfg:    vad.Config{}.WithDefaults(),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetVADConfig swaps the segmentation tuning. In-flight Process calls keep
// the configuration they started with; later calls use the new one.
func (p *Processor) SetVADConfig(cfg vad.Config) {
	cfg = cfg.WithDefaults()
	p.mu.Lock()
	p.vadCfg = cfg
	p.mu.Unlock()
}

// Process segments raw mono PCM, validates speech content, and extracts one
// feature record. Audio at a sample rate other than 16 kHz is resampled
// first. A stopped-early recording is processed with whatever audio it holds;
// silence yields ErrInsufficientSpeech, never a spurious score.
func (p *Processor) Process(ctx context.Context, raw []int16, sampleRate int) (*Result, error) {
	started := time.Now()

	if sampleRate <= 0 {
		return nil, fmt.Errorf("processor: invalid sample rate %d", sampleRate)
	}
	totalSec := float64(len(raw)) / float64(sampleRate)
	if totalSec > MaxSessionSeconds {
		return nil, fmt.Errorf("%w: %.0fs > %.0fs", ErrRecordingTooLong, totalSec, MaxSessionSeconds)
	}

	samples := raw
	if sampleRate != audio.PipelineSampleRate {
		resampled := audio.ResampleMono16(audio.Int16sToBytes(raw), sampleRate, audio.PipelineSampleRate)
		samples = audio.BytesToInt16s(resampled)
	}

	segments, err := p.segment(ctx, samples)
	if err != nil {
		return nil, err
	}

	total := time.Duration(len(samples)) * time.Second / audio.PipelineSampleRate
	var speechDur time.Duration
	for _, seg := range segments {
		speechDur += seg.Duration()
	}
	speechSec := speechDur.Seconds()

	if speechSec < MinSpeechSeconds {
		return nil, fmt.Errorf("%w: %.1fs of speech, need at least %.0fs",
			ErrInsufficientSpeech, speechSec, MinSpeechSeconds)
	}

	speech := selectSpeech(samples, segments)
	features, stats := p.extractor.Extract(speech, segments, total)
	quality := assessQuality(features, stats, speechSec, total.Seconds())

	return &Result{
		Features: features,
		Quality:  quality,
		Metadata: Metadata{
			TotalDurationSec:  total.Seconds(),
			SpeechDurationSec: speechSec,
			ProcessingTimeMs:  time.Since(started).Milliseconds(),
		},
	}, nil
}

// segment runs the VAD over the recording and returns the detected speech
// segments. Failure to start the primary engine degrades to the fallback with
// a log line; it is never surfaced to the user.
func (p *Processor) segment(ctx context.Context, samples []int16) ([]vad.Segment, error) {
	p.mu.RLock()
	cfg := p.vadCfg
	p.mu.RUnlock()

	session, err := p.primary.NewSession(cfg)
	if err != nil {
		p.logger.Warn("primary VAD engine unavailable, degrading to energy fallback", "error", err)
		session, err = p.fallback.NewSession(cfg)
		if err != nil {
			return nil, fmt.Errorf("processor: start fallback VAD session: %w", err)
		}
	}
	defer session.Close()

	frameSamples := cfg.SampleRate * cfg.FrameSizeMs / 1000
	collector := vad.NewCollector(cfg)

	for start := 0; start+frameSamples <= len(samples); start += frameSamples {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("processor: segmentation cancelled: %w", err)
		}
		ev, err := session.ProcessFrame(audio.Int16sToBytes(samples[start : start+frameSamples]))
		if err != nil {
			return nil, fmt.Errorf("processor: VAD frame: %w", err)
		}
		collector.Observe(ev)
	}

	return collector.Finish(), nil
}

// selectSpeech concatenates the sample ranges covered by segments.
func selectSpeech(samples []int16, segments []vad.Segment) []int16 {
	var out []int16
	for _, seg := range segments {
		start := int(seg.Start * audio.PipelineSampleRate / time.Second)
		end := int(seg.End * audio.PipelineSampleRate / time.Second)
		if start < 0 {
			start = 0
		}
		if end > len(samples) {
			end = len(samples)
		}
		if start >= end {
			continue
		}
		out = append(out, samples[start:end]...)
	}
	return out
}

// assessQuality derives the data-quality record that drives scorer
// confidence. Deductions accumulate in the order listed in Reasons.
func assessQuality(features types.AudioFeatures, stats dsp.Stats, speechSec, totalSec float64) types.VoiceDataQuality {
	q := types.VoiceDataQuality{
		SpeechSeconds: speechSec,
		TotalSeconds:  totalSec,
		Quality:       1,
	}
	if totalSec > 0 {
		q.SpeechRatio = speechSec / totalSec
	}

	deduct := func(amount float64, reason string) {
		q.Quality -= amount
		q.Reasons = append(q.Reasons, reason)
	}

	if q.SpeechRatio < 0.3 {
		deduct(0.2, "little speech detected")
	}
	if speechSec < 5 {
		deduct(0.15, "short speech sample")
	}
	if stats.VoicedFrameCount == 0 {
		deduct(0.3, "no voiced frames for pitch")
	} else if stats.FrameCount > 0 && float64(stats.VoicedFrameCount)/float64(stats.FrameCount) < 0.2 {
		deduct(0.15, "few voiced frames")
	}
	if features.RMS < 0.02 {
		deduct(0.2, "very quiet recording")
	}

	if q.Quality < 0 {
		q.Quality = 0
	}
	return q
}
