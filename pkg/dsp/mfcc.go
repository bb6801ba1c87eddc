package dsp

import "math"

// melFilterCount is the number of triangular mel filters applied before the
// DCT. 26 filters over 0–8000 Hz is the common speech configuration.
const melFilterCount = 26

// hzToMel converts a frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// melToHz converts a mel value back to Hz.
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// MelBank is a triangular mel filterbank over a fixed FFT geometry.
type MelBank struct {
	filters [][]float64 // [filter][bin] weights
}

// NewMelBank builds a filterbank with melFilterCount filters spanning 0 Hz to
// Nyquist for the given sample rate and FFT size.
func NewMelBank(sampleRate, fftSize int) *MelBank {
	bins := fftSize/2 + 1
	maxMel := hzToMel(float64(sampleRate) / 2)

	// Filter centre frequencies, evenly spaced on the mel scale, with one
	// extra point on each side for the triangle edges.
	centers := make([]int, melFilterCount+2)
	for i := range centers {
		hz := melToHz(maxMel * float64(i) / float64(melFilterCount+1))
		centers[i] = int(hz * float64(fftSize) / float64(sampleRate))
		if centers[i] >= bins {
			centers[i] = bins - 1
		}
	}

	filters := make([][]float64, melFilterCount)
	for f := range filters {
		w := make([]float64, bins)
		lo, mid, hi := centers[f], centers[f+1], centers[f+2]
		for b := lo; b <= hi && b < bins; b++ {
			switch {
			case b < mid && mid > lo:
				w[b] = float64(b-lo) / float64(mid-lo)
			case b == mid:
				w[b] = 1
			case mid < hi:
				w[b] = float64(hi-b) / float64(hi-mid)
			}
		}
		filters[f] = w
	}
	return &MelBank{filters: filters}
}

// MFCC computes nCoeffs cepstral coefficients from a magnitude spectrum:
// filterbank energies → log → DCT-II. Empty filters contribute a log floor
// instead of -Inf, so the output is always finite.
func (mb *MelBank) MFCC(spectrum []float64, nCoeffs int) []float64 {
	energies := make([]float64, len(mb.filters))
	for f, w := range mb.filters {
		var sum float64
		for b, weight := range w {
			if weight != 0 && b < len(spectrum) {
				sum += weight * spectrum[b] * spectrum[b]
			}
		}
		// Floor keeps the log finite on silent frames.
		energies[f] = math.Log(sum + 1e-10)
	}

	coeffs := make([]float64, nCoeffs)
	n := float64(len(energies))
	for c := range coeffs {
		var sum float64
		for f, e := range energies {
			sum += e * math.Cos(math.Pi*float64(c)*(float64(f)+0.5)/n)
		}
		coeffs[c] = sum / n
	}
	return coeffs
}
