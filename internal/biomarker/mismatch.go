package biomarker

import (
	"fmt"

	"github.com/novahale/vocalis/pkg/types"
)

// minMismatchConfidence is the bar both signals must clear before a
// contradiction is flagged. Below it the signals are too uncertain to
// confront the user with.
const minMismatchConfidence = 0.4

// AcousticSignalFor derives the categorical voice signal from scored metrics.
// Stress dominates fatigue when both are elevated; low scores on both axes
// read as energetic.
func AcousticSignalFor(m types.VoiceMetrics) types.AcousticSignal {
	switch {
	case m.StressScore >= bandModerateMax:
		return types.AcousticStressed
	case m.FatigueScore >= bandModerateMax:
		return types.AcousticFatigued
	case m.StressScore < bandLowMax && m.FatigueScore < bandLowMax:
		return types.AcousticEnergetic
	default:
		return types.AcousticNormal
	}
}

// Detect compares the transcript's sentiment against the utterance's acoustic
// signal and flags a contradiction when the two are semantically opposed and
// both clear the confidence bar.
//
// The returned SuggestionForAssistant is a detached plain string; it is the
// only mismatch output crossing into the conversational layer.
func Detect(transcript string, metrics types.VoiceMetrics) types.MismatchResult {
	sentiment := ClassifySentiment(transcript)
	acoustic := AcousticSignalFor(metrics)

	result := types.MismatchResult{
		SemanticSignal: sentiment.Signal,
		AcousticSignal: acoustic,
	}

	// Detection confidence is the weaker of the two signals: a mismatch is
	// only as trustworthy as its least certain half.
	conf := sentiment.Confidence
	if metrics.Confidence < conf {
		conf = metrics.Confidence
	}
	result.Confidence = conf

	if sentiment.Confidence < minMismatchConfidence || metrics.Confidence < minMismatchConfidence {
		return result
	}

	switch {
	case sentiment.Signal == types.SemanticPositive &&
		(acoustic == types.AcousticStressed || acoustic == types.AcousticFatigued):
		result.Detected = true
		result.SuggestionForAssistant = fmt.Sprintf(
			"user's words sounded positive but their voice shows %s; consider gently checking in",
			acousticAdjective(acoustic))

	case sentiment.Signal == types.SemanticNegative &&
		(acoustic == types.AcousticNormal || acoustic == types.AcousticEnergetic):
		result.Detected = true
		result.SuggestionForAssistant = fmt.Sprintf(
			"user's words sounded negative but their voice sounds %s; the concern may be situational rather than physical",
			acousticAdjective(acoustic))
	}

	return result
}

func acousticAdjective(s types.AcousticSignal) string {
	switch s {
	case types.AcousticStressed:
		return "elevated stress"
	case types.AcousticFatigued:
		return "fatigue"
	case types.AcousticEnergetic:
		return "energetic"
	default:
		return "steady"
	}
}
