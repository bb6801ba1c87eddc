package audio

import "math"

// fullScale is the maximum magnitude of a 16-bit PCM sample.
const fullScale = 32768.0

// Level computes the normalised RMS level of a 16-bit mono PCM frame in
// [0, 1]. It is the per-frame value a capture source publishes for UI
// feedback (input level indicators) and is also the measure the energy VAD
// thresholds against.
func Level(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := range samples {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(samples)) / fullScale
}

// LevelInt16 is Level for already-decoded int16 samples.
func LevelInt16(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(samples))) / fullScale
}
