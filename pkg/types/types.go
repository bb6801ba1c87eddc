// Package types defines the shared data model used across all Vocalis packages.
//
// These types form the lingua franca between the audio pipeline, the biomarker
// scorer, the calibration layer, and the fusion stage. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// MFCCCount is the fixed number of mel-frequency cepstral coefficients carried
// in an AudioFeatures record.
const MFCCCount = 13

// AudioFeatures is the fixed-shape acoustic feature record produced once per
// recording by the feature extractor. It is immutable after creation and holds
// no back-reference to the raw audio it was computed from.
type AudioFeatures struct {
	// MFCC holds the per-coefficient mean of the 13 mel-frequency cepstral
	// coefficients across all analysis frames.
	MFCC [MFCCCount]float64 `json:"mfcc"`

	// SpectralCentroid is the mean spectral centre of mass in Hz. Correlates
	// with perceived voice brightness.
	SpectralCentroid float64 `json:"spectralCentroid"`

	// SpectralFlux is the mean frame-to-frame spectral change. High values
	// indicate rapid, agitated articulation.
	SpectralFlux float64 `json:"spectralFlux"`

	// SpectralRolloff is the mean frequency in Hz below which 85% of spectral
	// energy is concentrated.
	SpectralRolloff float64 `json:"spectralRolloff"`

	// RMS is the mean root-mean-square energy, normalised to [0, 1] for 16-bit
	// PCM input.
	RMS float64 `json:"rms"`

	// ZCR is the mean zero-crossing rate per frame, normalised to [0, 1].
	ZCR float64 `json:"zcr"`

	// SpeechRate is the estimated syllables per second. This is an
	// energy-envelope proxy (nucleus peak counting), not phonetic parsing —
	// treat it as approximate.
	SpeechRate float64 `json:"speechRate"`

	// PauseRatio is silence duration divided by total duration within the
	// analysed span. Range [0, 1].
	PauseRatio float64 `json:"pauseRatio"`

	// PauseCount is the number of inter-segment pauses detected by the VAD.
	PauseCount int `json:"pauseCount"`

	// AvgPauseDurationMs is the mean pause length in milliseconds, 0 when
	// PauseCount is 0.
	AvgPauseDurationMs float64 `json:"avgPauseDurationMs"`

	// PitchMean is the mean fundamental frequency in Hz across voiced frames.
	// 0 when no voiced frames were found.
	PitchMean float64 `json:"pitchMean"`

	// PitchStdDev is the standard deviation of the fundamental frequency in Hz
	// across voiced frames. 0 when no voiced frames were found.
	PitchStdDev float64 `json:"pitchStdDev"`

	// PitchRange is max minus min fundamental frequency in Hz across voiced
	// frames. 0 when no voiced frames were found.
	PitchRange float64 `json:"pitchRange"`
}

// Vector flattens the feature record into a fixed-order float slice. The order
// is stable across releases: 13 MFCC coefficients followed by the scalar
// features in struct declaration order. Used for baseline distance queries.
func (f AudioFeatures) Vector() []float64 {
	v := make([]float64, 0, MFCCCount+12)
	v = append(v, f.MFCC[:]...)
	return append(v,
		f.SpectralCentroid, f.SpectralFlux, f.SpectralRolloff,
		f.RMS, f.ZCR,
		f.SpeechRate, f.PauseRatio, float64(f.PauseCount), f.AvgPauseDurationMs,
		f.PitchMean, f.PitchStdDev, f.PitchRange,
	)
}

// VoiceDataQuality describes how much usable speech a recording contained and
// how trustworthy the derived features are.
type VoiceDataQuality struct {
	// SpeechSeconds is the total duration of speech-classified audio.
	SpeechSeconds float64 `json:"speechSeconds"`

	// TotalSeconds is the full recording duration.
	TotalSeconds float64 `json:"totalSeconds"`

	// SpeechRatio is SpeechSeconds / TotalSeconds (0 when TotalSeconds is 0).
	SpeechRatio float64 `json:"speechRatio"`

	// Quality is the overall quality score in [0, 1]. Drives scorer confidence.
	Quality float64 `json:"quality"`

	// Reasons lists human-readable quality deductions in the order they were
	// applied (e.g. "little speech detected", "no voiced frames for pitch").
	Reasons []string `json:"reasons,omitempty"`
}

// StressLevel is the categorical stress band derived from a stress score.
type StressLevel string

const (
	StressLow      StressLevel = "low"
	StressModerate StressLevel = "moderate"
	StressElevated StressLevel = "elevated"
	StressHigh     StressLevel = "high"
)

// IsValid reports whether l is a recognised stress level.
func (l StressLevel) IsValid() bool {
	switch l {
	case StressLow, StressModerate, StressElevated, StressHigh:
		return true
	}
	return false
}

// FatigueLevel is the categorical fatigue band derived from a fatigue score.
type FatigueLevel string

const (
	FatigueRested    FatigueLevel = "rested"
	FatigueNormal    FatigueLevel = "normal"
	FatigueTired     FatigueLevel = "tired"
	FatigueExhausted FatigueLevel = "exhausted"
)

// IsValid reports whether l is a recognised fatigue level.
func (l FatigueLevel) IsValid() bool {
	switch l {
	case FatigueRested, FatigueNormal, FatigueTired, FatigueExhausted:
		return true
	}
	return false
}

// Explanations ties a score to the observed features that drove it, so the UI
// can show why a score is what it is instead of presenting a black-box number.
type Explanations struct {
	// Mode identifies how the metrics were produced: "acoustic" for
	// voice-only scoring, "blended" after semantic fusion.
	Mode string `json:"mode"`

	// StressDrivers lists the feature observations that raised or lowered the
	// stress score, most influential first.
	StressDrivers []string `json:"stressDrivers,omitempty"`

	// FatigueDrivers lists the feature observations that raised or lowered
	// the fatigue score, most influential first.
	FatigueDrivers []string `json:"fatigueDrivers,omitempty"`
}

// VoiceMetrics is the scored output for one recording. Level fields are always
// derived from the score fields through the canonical band table, so the two
// never disagree.
type VoiceMetrics struct {
	// StressScore is the stress estimate in [0, 100].
	StressScore float64 `json:"stressScore"`

	// FatigueScore is the fatigue estimate in [0, 100].
	FatigueScore float64 `json:"fatigueScore"`

	// StressLevel is the categorical band for StressScore.
	StressLevel StressLevel `json:"stressLevel"`

	// FatigueLevel is the categorical band for FatigueScore.
	FatigueLevel FatigueLevel `json:"fatigueLevel"`

	// Confidence is the trust in these scores, in [0, 1]. Derived from data
	// quality, never assumed.
	Confidence float64 `json:"confidence"`

	// AnalyzedAt is when scoring completed.
	AnalyzedAt time.Time `json:"analyzedAt"`

	// Explanations holds the per-axis driver strings. Nil when the caller
	// asked for scores only.
	Explanations *Explanations `json:"explanations,omitempty"`

	// Quality carries the data quality the confidence was derived from.
	Quality *VoiceDataQuality `json:"quality,omitempty"`
}

// VoiceBaseline is a reference feature snapshot captured during user
// calibration. There is exactly one per user; recalibration replaces it
// wholesale, baselines are never merged.
type VoiceBaseline struct {
	// Features is the captured reference feature vector.
	Features AudioFeatures `json:"features"`

	// RecordedAt is when the baseline recording was made.
	RecordedAt time.Time `json:"recordedAt"`

	// PromptID identifies the reading prompt the user spoke.
	PromptID string `json:"promptId"`

	// SpeechSeconds is how much speech the baseline recording contained.
	SpeechSeconds float64 `json:"speechSeconds"`
}

// BiomarkerCalibration is the per-user bias/scale correction learned from
// self-reports. It is mutated only by an explicit calibration-update step;
// bounds are hard invariants enforced after every update.
type BiomarkerCalibration struct {
	// StressBias shifts the raw stress score. Bounded to [-25, 25].
	StressBias float64 `json:"stressBias"`

	// FatigueBias shifts the raw fatigue score. Bounded to [-25, 25].
	FatigueBias float64 `json:"fatigueBias"`

	// StressScale multiplies the raw stress score. Bounded to [0.75, 1.25].
	StressScale float64 `json:"stressScale"`

	// FatigueScale multiplies the raw fatigue score. Bounded to [0.75, 1.25].
	FatigueScale float64 `json:"fatigueScale"`

	// SampleCount is the number of self-reports absorbed so far. Monotonically
	// non-decreasing.
	SampleCount int `json:"sampleCount"`

	// UpdatedAt is when the last self-report was absorbed.
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckInSelfReport is the user's own stress/fatigue assessment, treated as
// ground truth for calibration. It is never overwritten automatically.
type CheckInSelfReport struct {
	// StressScore is the self-reported stress in [0, 100].
	StressScore float64 `json:"stressScore"`

	// FatigueScore is the self-reported fatigue in [0, 100].
	FatigueScore float64 `json:"fatigueScore"`

	// ReportedAt is when the user submitted the report.
	ReportedAt time.Time `json:"reportedAt"`
}

// SemanticSignal is the sentiment class derived from what the user said.
type SemanticSignal string

const (
	SemanticPositive SemanticSignal = "positive"
	SemanticNeutral  SemanticSignal = "neutral"
	SemanticNegative SemanticSignal = "negative"
)

// AcousticSignal is the categorical class derived from how the user sounded.
type AcousticSignal string

const (
	AcousticStressed  AcousticSignal = "stressed"
	AcousticFatigued  AcousticSignal = "fatigued"
	AcousticNormal    AcousticSignal = "normal"
	AcousticEnergetic AcousticSignal = "energetic"
)

// MismatchResult flags a contradiction between the semantic content of an
// utterance and its acoustic delivery. It is computed per message and attached
// to that message; it is not persisted as a standalone entity.
type MismatchResult struct {
	// Detected is true when the two signals are semantically opposed and both
	// clear the minimum confidence bar.
	Detected bool `json:"detected"`

	// SemanticSignal is the transcript sentiment class.
	SemanticSignal SemanticSignal `json:"semanticSignal"`

	// AcousticSignal is the voice-derived class.
	AcousticSignal AcousticSignal `json:"acousticSignal"`

	// Confidence is the combined confidence of the detection, in [0, 1].
	Confidence float64 `json:"confidence"`

	// SuggestionForAssistant is a short plain-text hint describing the
	// contradiction, for injection into the conversational assistant's
	// context. Empty when Detected is false. Always a detached string, never
	// a live reference into pipeline state.
	SuggestionForAssistant string `json:"suggestionForAssistant,omitempty"`
}

// SessionMetrics is the composite metric record for one check-in session. It
// is created when acoustic processing completes and mutated exactly once more
// if semantic fusion completes; it is immutable thereafter for that session.
type SessionMetrics struct {
	// Final blended (or acoustic-only) metrics. This is the surface the rest
	// of the application reads.
	StressScore  float64      `json:"stressScore"`
	FatigueScore float64      `json:"fatigueScore"`
	StressLevel  StressLevel  `json:"stressLevel"`
	FatigueLevel FatigueLevel `json:"fatigueLevel"`
	Confidence   float64      `json:"confidence"`

	// Retained acoustic-only sub-scores.
	AcousticStress     float64 `json:"acousticStress"`
	AcousticFatigue    float64 `json:"acousticFatigue"`
	AcousticConfidence float64 `json:"acousticConfidence"`

	// Retained semantic sub-scores. Zero-valued with SemanticConfidence 0
	// when semantic analysis never arrived.
	SemanticStress     float64 `json:"semanticStress"`
	SemanticFatigue    float64 `json:"semanticFatigue"`
	SemanticConfidence float64 `json:"semanticConfidence"`

	// Explanations and quality carried over from acoustic scoring, with the
	// mode upgraded to "blended" after fusion.
	Explanations *Explanations     `json:"explanations,omitempty"`
	Quality      *VoiceDataQuality `json:"quality,omitempty"`

	// BaselineDrift is the Euclidean distance between this recording's
	// feature vector and the user's stored voice baseline. Nil when no
	// baseline exists or the store cannot compute distances.
	BaselineDrift *float64 `json:"baselineDrift,omitempty"`

	// AnalyzedAt is when acoustic scoring completed; FusedAt is when the
	// semantic upgrade was applied (zero when acoustic-only).
	AnalyzedAt time.Time `json:"analyzedAt"`
	FusedAt    time.Time `json:"fusedAt,omitzero"`
}
