package dsp

import "math"

// Envelope window geometry: 10 ms hops give the envelope enough resolution to
// separate syllable nuclei (~4–8 per second in fluent speech).
const (
	envelopeWindowMs = 10
	// minNucleusGapWindows is the minimum spacing between counted peaks
	// (~100 ms), below which two peaks are one syllable.
	minNucleusGapWindows = 10
)

// SyllableRate estimates syllables per second from the speech audio's energy
// envelope: local maxima above the mean envelope level, at least ~100 ms
// apart, are counted as syllable nuclei.
//
// This is a proxy, not phonetic parsing — it tracks relative speaking rate
// well but is not ground truth. Returns 0 for audio shorter than a few
// envelope windows.
func SyllableRate(speech []int16, sampleRate int) float64 {
	env := energyEnvelope(speech, sampleRate)
	if len(env) < 3 {
		return 0
	}

	var mean float64
	for _, e := range env {
		mean += e
	}
	mean /= float64(len(env))
	if mean <= 0 {
		return 0
	}

	nuclei := 0
	lastPeak := -minNucleusGapWindows
	for i := 1; i < len(env)-1; i++ {
		if env[i] > mean && env[i] >= env[i-1] && env[i] > env[i+1] && i-lastPeak >= minNucleusGapWindows {
			nuclei++
			lastPeak = i
		}
	}

	seconds := float64(len(speech)) / float64(sampleRate)
	if seconds <= 0 {
		return 0
	}
	return float64(nuclei) / seconds
}

// energyEnvelope computes the smoothed per-window RMS envelope of the signal.
func energyEnvelope(speech []int16, sampleRate int) []float64 {
	window := sampleRate * envelopeWindowMs / 1000
	if window == 0 || len(speech) < window {
		return nil
	}

	raw := make([]float64, len(speech)/window)
	for w := range raw {
		var sum float64
		for i := w * window; i < (w+1)*window; i++ {
			s := float64(speech[i])
			sum += s * s
		}
		raw[w] = math.Sqrt(sum / float64(window))
	}

	// Three-point moving average removes pitch-period ripple that would
	// otherwise be counted as spurious nuclei.
	smooth := make([]float64, len(raw))
	for i := range raw {
		sum, count := raw[i], 1.0
		if i > 0 {
			sum += raw[i-1]
			count++
		}
		if i < len(raw)-1 {
			sum += raw[i+1]
			count++
		}
		smooth[i] = sum / count
	}
	return smooth
}
