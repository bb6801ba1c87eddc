// Package calibration personalises raw biomarker scores per user. A small
// bias/scale correction, learned from the user's own self-reports, closes the
// gap between what the threshold model says and what this particular voice
// means.
//
// Updates are deliberately conservative: a bounded exponential-moving-average
// step per self-report, with hard clamps on bias and scale, so one outlier
// report can never swing calibration into nonsense.
package calibration

import (
	"time"

	"github.com/novahale/vocalis/pkg/types"
)

// learningRate is the EMA step fraction per self-report. One update closes at
// most this fraction of the observed gap.
const learningRate = 0.15

// Hard calibration bounds. These are safety invariants, enforced after every
// update.
const (
	BiasMin  = -25.0
	BiasMax  = 25.0
	ScaleMin = 0.75
	ScaleMax = 1.25
)

// minScoreForScale is the smallest acoustic score for which a report/acoustic
// ratio is meaningful. Below it only the bias learns.
const minScoreForScale = 10.0

// Apply maps a raw score through one axis's correction:
// clamp(raw*scale + bias, 0, 100). With bias 0 and scale 1 it is the
// identity on [0, 100].
func Apply(raw, bias, scale float64) float64 {
	return clamp(raw*scale+bias, 0, 100)
}

// ApplyStress applies the stress-axis correction.
func ApplyStress(raw float64, cal types.BiomarkerCalibration) float64 {
	return Apply(raw, cal.StressBias, cal.StressScale)
}

// ApplyFatigue applies the fatigue-axis correction.
func ApplyFatigue(raw float64, cal types.BiomarkerCalibration) float64 {
	return Apply(raw, cal.FatigueBias, cal.FatigueScale)
}

// UpdateFromSelfReport absorbs one self-report into the calibration. Per axis
// the bias moves learningRate of the way toward closing the gap between the
// acoustic score and the reported score, and the scale eases toward the
// report/acoustic ratio. Bounds are re-clamped unconditionally and
// SampleCount increments by exactly one.
func UpdateFromSelfReport(acoustic types.VoiceMetrics, report types.CheckInSelfReport, prev types.BiomarkerCalibration) types.BiomarkerCalibration {
	next := prev
	if next.StressScale == 0 {
		next.StressScale = 1
	}
	if next.FatigueScale == 0 {
		next.FatigueScale = 1
	}

	next.StressBias, next.StressScale = updateAxis(
		acoustic.StressScore, report.StressScore, next.StressBias, next.StressScale)
	next.FatigueBias, next.FatigueScale = updateAxis(
		acoustic.FatigueScore, report.FatigueScore, next.FatigueBias, next.FatigueScale)

	next.SampleCount = prev.SampleCount + 1
	if report.ReportedAt.IsZero() {
		next.UpdatedAt = time.Now()
	} else {
		next.UpdatedAt = report.ReportedAt
	}
	return next
}

func updateAxis(acoustic, reported, bias, scale float64) (float64, float64) {
	delta := clamp(reported, 0, 100) - acoustic

	bias = clamp(bias+learningRate*delta, BiasMin, BiasMax)

	if acoustic >= minScoreForScale {
		ratio := clamp(reported, 0, 100) / acoustic
		scale = clamp(scale+learningRate*(ratio-scale), ScaleMin, ScaleMax)
	}
	return bias, scale
}

// Default returns the identity calibration for a new user.
func Default() types.BiomarkerCalibration {
	return types.BiomarkerCalibration{StressScale: 1, FatigueScale: 1}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
