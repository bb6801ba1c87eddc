// Package biomarker maps acoustic feature records to stress and fatigue
// metrics, fuses them with transcript-derived scores, and flags
// contradictions between the two signal families.
//
// Scoring is a fixed, versioned threshold model rather than an opaque one:
// the product has to explain every score with driver strings tying it back to
// observed features, which requires thresholds a human can read.
package biomarker

import (
	"fmt"
	"time"

	"github.com/novahale/vocalis/pkg/types"
)

// ThresholdModelVersion identifies the scoring table below. Bump it whenever
// a threshold or weight changes so stored metrics stay attributable.
const ThresholdModelVersion = "thresholds-2026.02"

// baseScore is the neutral starting point per axis before drivers apply.
const baseScore = 30.0

// Stress drivers. Elevated pitch variability, fast speech and compressed
// pausing are the classic acoustic stress correlates.
const (
	stressPitchStdDevHigh   = 35.0 // Hz
	stressPitchStdDevWeight = 15.0

	stressSpeechRateHigh   = 4.5 // syllables/s
	stressSpeechRateWeight = 12.0

	stressPauseRatioLow    = 0.08
	stressPauseRatioWeight = 8.0

	stressRMSHigh   = 0.15
	stressRMSWeight = 7.0

	stressPitchStdDevLow       = 12.0 // Hz
	stressPitchStdDevLowWeight = 8.0  // subtracted
)

// Fatigue drivers. Slowed, flattened, pause-heavy delivery.
const (
	fatigueSpeechRateLow    = 3.0 // syllables/s
	fatigueSpeechRateWeight = 15.0

	fatiguePauseRatioHigh   = 0.35
	fatiguePauseRatioWeight = 12.0

	fatigueAvgPauseMsHigh   = 800.0
	fatigueAvgPauseWeight   = 8.0

	fatigueRMSLow    = 0.04
	fatigueRMSWeight = 10.0

	fatiguePitchRangeLow    = 40.0 // Hz
	fatiguePitchRangeWeight = 8.0

	fatigueSpeechRateHigh       = 4.5 // syllables/s
	fatigueSpeechRateHighWeight = 8.0 // subtracted
)

// Scorer maps one feature record to acoustic-only voice metrics.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score applies the threshold model to features and derives confidence from
// quality. Scores are always in [0, 100] and levels are always banded from
// the returned scores, never computed independently.
func (s *Scorer) Score(features types.AudioFeatures, quality types.VoiceDataQuality) types.VoiceMetrics {
	stress, stressDrivers := scoreStress(features)
	fatigue, fatigueDrivers := scoreFatigue(features)

	return types.VoiceMetrics{
		StressScore:  stress,
		FatigueScore: fatigue,
		StressLevel:  LevelForStress(stress),
		FatigueLevel: LevelForFatigue(fatigue),
		Confidence:   clamp01(quality.Quality),
		AnalyzedAt:   s.now(),
		Explanations: &types.Explanations{
			Mode:           "acoustic",
			StressDrivers:  stressDrivers,
			FatigueDrivers: fatigueDrivers,
		},
		Quality: &quality,
	}
}

func scoreStress(f types.AudioFeatures) (float64, []string) {
	score := baseScore
	var drivers []string

	if f.PitchStdDev > stressPitchStdDevHigh {
		score += stressPitchStdDevWeight
		drivers = append(drivers, fmt.Sprintf("elevated pitch variability (%.1f Hz std dev)", f.PitchStdDev))
	} else if f.PitchStdDev > 0 && f.PitchStdDev < stressPitchStdDevLow {
		score -= stressPitchStdDevLowWeight
		drivers = append(drivers, fmt.Sprintf("steady pitch (%.1f Hz std dev)", f.PitchStdDev))
	}
	if f.SpeechRate > stressSpeechRateHigh {
		score += stressSpeechRateWeight
		drivers = append(drivers, fmt.Sprintf("fast speech rate (%.1f syllables/s)", f.SpeechRate))
	}
	if f.PauseRatio > 0 && f.PauseRatio < stressPauseRatioLow {
		score += stressPauseRatioWeight
		drivers = append(drivers, fmt.Sprintf("few pauses (%.0f%% silence)", f.PauseRatio*100))
	}
	if f.RMS > stressRMSHigh {
		score += stressRMSWeight
		drivers = append(drivers, fmt.Sprintf("raised vocal energy (%.2f RMS)", f.RMS))
	}

	return clampScore(score), drivers
}

func scoreFatigue(f types.AudioFeatures) (float64, []string) {
	score := baseScore
	var drivers []string

	if f.SpeechRate > 0 && f.SpeechRate < fatigueSpeechRateLow {
		score += fatigueSpeechRateWeight
		drivers = append(drivers, fmt.Sprintf("slow speech rate (%.1f syllables/s)", f.SpeechRate))
	} else if f.SpeechRate > fatigueSpeechRateHigh {
		score -= fatigueSpeechRateHighWeight
		drivers = append(drivers, fmt.Sprintf("brisk speech rate (%.1f syllables/s)", f.SpeechRate))
	}
	if f.PauseRatio > fatiguePauseRatioHigh {
		score += fatiguePauseRatioWeight
		drivers = append(drivers, fmt.Sprintf("frequent pausing (%.0f%% silence)", f.PauseRatio*100))
	}
	if f.AvgPauseDurationMs > fatigueAvgPauseMsHigh {
		score += fatigueAvgPauseWeight
		drivers = append(drivers, fmt.Sprintf("long pauses (%.0f ms average)", f.AvgPauseDurationMs))
	}
	if f.RMS > 0 && f.RMS < fatigueRMSLow {
		score += fatigueRMSWeight
		drivers = append(drivers, fmt.Sprintf("low vocal energy (%.3f RMS)", f.RMS))
	}
	if f.PitchRange > 0 && f.PitchRange < fatiguePitchRangeLow {
		score += fatiguePitchRangeWeight
		drivers = append(drivers, fmt.Sprintf("flattened intonation (%.0f Hz pitch range)", f.PitchRange))
	}

	return clampScore(score), drivers
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
