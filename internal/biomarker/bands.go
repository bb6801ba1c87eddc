package biomarker

import "github.com/novahale/vocalis/pkg/types"

// Canonical score band cut points. Both axes share the same geometry; only the
// level names differ. Boundary semantics: 35 falls in the moderate/normal
// band, 55 and 75 fall in the elevated/tired band.
const (
	bandLowMax      = 35.0
	bandModerateMax = 55.0
	bandElevatedMax = 75.0
)

// LevelForStress derives the categorical stress band from a final score.
// This is the only place stress levels are derived; callers must never band
// scores themselves.
func LevelForStress(score float64) types.StressLevel {
	switch {
	case score < bandLowMax:
		return types.StressLow
	case score < bandModerateMax:
		return types.StressModerate
	case score <= bandElevatedMax:
		return types.StressElevated
	default:
		return types.StressHigh
	}
}

// LevelForFatigue derives the categorical fatigue band from a final score.
func LevelForFatigue(score float64) types.FatigueLevel {
	switch {
	case score < bandLowMax:
		return types.FatigueRested
	case score < bandModerateMax:
		return types.FatigueNormal
	case score <= bandElevatedMax:
		return types.FatigueTired
	default:
		return types.FatigueExhausted
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
