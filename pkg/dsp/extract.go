package dsp

import (
	"math"
	"time"

	"github.com/novahale/vocalis/pkg/provider/vad"
	"github.com/novahale/vocalis/pkg/types"
)

// Analysis geometry: 1024-sample frames (64 ms at 16 kHz) with 50% overlap.
const (
	frameSize = 1024
	hopSize   = frameSize / 2

	// rolloffFraction is the spectral-energy fraction defining the rolloff
	// frequency.
	rolloffFraction = 0.85
)

// Stats reports how much signal the extractor actually analysed. The caller
// uses it to derive data quality (e.g. "no voiced frames for pitch").
type Stats struct {
	// FrameCount is the number of analysis frames processed.
	FrameCount int

	// VoicedFrameCount is how many frames carried a usable pitch estimate.
	VoicedFrameCount int
}

// Extractor computes one fixed-shape feature record per recording from
// speech-only audio. It is stateless apart from precomputed tables and safe
// for concurrent use.
type Extractor struct {
	sampleRate int
	window     []float64
	melBank    *MelBank
}

// NewExtractor creates an Extractor for the given sample rate (16000 for the
// pipeline).
func NewExtractor(sampleRate int) *Extractor {
	return &Extractor{
		sampleRate: sampleRate,
		window:     HannWindow(frameSize),
		melBank:    NewMelBank(sampleRate, frameSize),
	}
}

// Extract computes the feature record for one recording. speech is the
// concatenated speech-only audio selected by the VAD; segments are the
// original segment boundaries within the recording (driving the temporal
// features); total is the full recording duration.
//
// Spectral, energy and MFCC features are aggregated as per-frame means (the
// MFCC vector is the per-coefficient mean). Pitch statistics cover voiced
// frames only; with zero voiced frames all pitch fields are 0, never NaN —
// callers detect that condition through [Stats.VoicedFrameCount].
func (e *Extractor) Extract(speech []int16, segments []vad.Segment, total time.Duration) (types.AudioFeatures, Stats) {
	var f types.AudioFeatures
	var st Stats

	var (
		centroidSum, fluxSum, rolloffSum float64
		rmsSum, zcrSum                   float64
		mfccSum                          [types.MFCCCount]float64
		pitches                          []float64
		prevSpectrum                     []float64
	)

	frame := make([]float64, frameSize)
	for start := 0; start+frameSize <= len(speech); start += hopSize {
		// Normalise to [-1, 1] and apply the analysis window.
		for i := range frame {
			frame[i] = float64(speech[start+i]) / 32768.0 * e.window[i]
		}

		spectrum := Spectrum(frame)
		centroidSum += e.centroid(spectrum)
		rolloffSum += e.rolloff(spectrum)
		fluxSum += flux(spectrum, prevSpectrum)
		prevSpectrum = spectrum

		for c, v := range e.melBank.MFCC(spectrum, types.MFCCCount) {
			mfccSum[c] += v
		}

		rmsSum += frameRMS(speech[start : start+frameSize])
		zcrSum += frameZCR(speech[start : start+frameSize])

		// Pitch runs on the unwindowed frame; windowing biases the
		// autocorrelation peak.
		raw := make([]float64, frameSize)
		for i := range raw {
			raw[i] = float64(speech[start+i]) / 32768.0
		}
		if f0, voiced := EstimatePitch(raw, e.sampleRate); voiced {
			pitches = append(pitches, f0)
		}

		st.FrameCount++
	}

	if st.FrameCount > 0 {
		n := float64(st.FrameCount)
		f.SpectralCentroid = centroidSum / n
		f.SpectralFlux = fluxSum / n
		f.SpectralRolloff = rolloffSum / n
		f.RMS = rmsSum / n
		f.ZCR = zcrSum / n
		for c := range f.MFCC {
			f.MFCC[c] = mfccSum[c] / n
		}
	}

	st.VoicedFrameCount = len(pitches)
	f.PitchMean, f.PitchStdDev, f.PitchRange = pitchStats(pitches)

	f.SpeechRate = SyllableRate(speech, e.sampleRate)
	f.PauseRatio, f.PauseCount, f.AvgPauseDurationMs = pauseStats(segments, total)

	return f, st
}

// centroid returns the spectral centre of mass in Hz.
func (e *Extractor) centroid(spectrum []float64) float64 {
	var weighted, sum float64
	binHz := float64(e.sampleRate) / frameSize
	for i, m := range spectrum {
		weighted += float64(i) * binHz * m
		sum += m
	}
	if sum == 0 {
		return 0
	}
	return weighted / sum
}

// rolloff returns the frequency in Hz below which rolloffFraction of spectral
// energy lies.
func (e *Extractor) rolloff(spectrum []float64) float64 {
	var total float64
	for _, m := range spectrum {
		total += m * m
	}
	if total == 0 {
		return 0
	}
	target := total * rolloffFraction
	var acc float64
	binHz := float64(e.sampleRate) / frameSize
	for i, m := range spectrum {
		acc += m * m
		if acc >= target {
			return float64(i) * binHz
		}
	}
	return float64(len(spectrum)-1) * binHz
}

// flux returns the positive spectral difference between consecutive frames,
// computed on unit-normalised spectra so the result is level-independent.
func flux(spectrum, prev []float64) float64 {
	if prev == nil {
		return 0
	}
	var sumCur, sumPrev float64
	for i := range spectrum {
		sumCur += spectrum[i]
		sumPrev += prev[i]
	}
	if sumCur == 0 || sumPrev == 0 {
		return 0
	}
	var fl float64
	for i := range spectrum {
		d := spectrum[i]/sumCur - prev[i]/sumPrev
		if d > 0 {
			fl += d
		}
	}
	return fl
}

// frameRMS returns the normalised RMS energy of a sample frame in [0, 1].
func frameRMS(samples []int16) float64 {
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768.0
}

// frameZCR returns the zero-crossing rate of a sample frame in [0, 1].
func frameZCR(samples []int16) float64 {
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i] >= 0) != (samples[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// pitchStats reduces the voiced-frame pitch track to mean, standard
// deviation, and range. All zeros for an empty track.
func pitchStats(pitches []float64) (mean, stdDev, rng float64) {
	if len(pitches) == 0 {
		return 0, 0, 0
	}
	lo, hi := pitches[0], pitches[0]
	for _, p := range pitches {
		mean += p
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	mean /= float64(len(pitches))

	var variance float64
	for _, p := range pitches {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(pitches))

	return mean, math.Sqrt(variance), hi - lo
}

// pauseStats derives the pause features from the VAD segment boundaries.
// Pauses are the gaps between consecutive speech segments; leading and
// trailing silence counts toward PauseRatio but not PauseCount.
func pauseStats(segments []vad.Segment, total time.Duration) (ratio float64, count int, avgMs float64) {
	if total <= 0 {
		return 0, 0, 0
	}

	var speech time.Duration
	var gaps time.Duration
	for i, seg := range segments {
		speech += seg.Duration()
		if i > 0 {
			gap := seg.Start - segments[i-1].End
			if gap > 0 {
				gaps += gap
				count++
			}
		}
	}

	silence := total - speech
	if silence < 0 {
		silence = 0
	}
	ratio = float64(silence) / float64(total)
	if count > 0 {
		avgMs = float64(gaps.Milliseconds()) / float64(count)
	}
	return ratio, count, avgMs
}
