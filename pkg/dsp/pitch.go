package dsp

import "math"

// Fundamental-frequency search band in Hz. 60–400 Hz covers adult speaking
// voices with headroom on both ends.
const (
	pitchMinHz = 60.0
	pitchMaxHz = 400.0
)

// voicingThreshold is the minimum normalised autocorrelation peak for a frame
// to count as voiced. Below it the frame is treated as unvoiced and excluded
// from pitch statistics.
const voicingThreshold = 0.6

// EstimatePitch estimates the fundamental frequency of one analysis frame via
// normalised autocorrelation. Returns voiced=false (and f0 0) for unvoiced or
// near-silent frames; unvoiced frames must not enter pitch statistics.
func EstimatePitch(frame []float64, sampleRate int) (f0 float64, voiced bool) {
	n := len(frame)
	minLag := int(float64(sampleRate) / pitchMaxHz)
	maxLag := int(float64(sampleRate) / pitchMinHz)
	if maxLag >= n {
		maxLag = n - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return 0, false
	}

	var energy float64
	for _, s := range frame {
		energy += s * s
	}
	if energy < 1e-6 {
		return 0, false
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < n; i++ {
			corr += frame[i] * frame[i+lag]
		}
		corr /= energy
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	if bestCorr < voicingThreshold || bestLag == 0 {
		return 0, false
	}

	// Parabolic interpolation around the peak refines the lag estimate below
	// one sample of resolution.
	refined := float64(bestLag)
	if bestLag > minLag && bestLag < maxLag {
		c := func(lag int) float64 {
			var corr float64
			for i := 0; i+lag < n; i++ {
				corr += frame[i] * frame[i+lag]
			}
			return corr / energy
		}
		y0, y1, y2 := c(bestLag-1), bestCorr, c(bestLag+1)
		denom := y0 - 2*y1 + y2
		if math.Abs(denom) > 1e-12 {
			refined += 0.5 * (y0 - y2) / denom
		}
	}

	return float64(sampleRate) / refined, true
}
