// Package dsp implements the signal-processing primitives behind the Vocalis
// feature extractor: a radix-2 FFT, mel-frequency cepstral coefficients,
// spectral shape statistics, autocorrelation pitch estimation, and the
// energy-envelope syllable-rate proxy.
//
// Everything here is deterministic pure-Go math on float64 slices. The
// analysis geometry is fixed at 1024-sample frames with 50% overlap at
// 16 kHz; see [Extractor].
package dsp

import "math"

// FFT computes the in-place radix-2 Cooley-Tukey FFT of the complex signal
// (re, im). The length must be a power of two; both slices are modified.
func FFT(re, im []float64) {
	n := len(re)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wRe, wIm := math.Cos(angle), math.Sin(angle)
		for start := 0; start < n; start += length {
			curRe, curIm := 1.0, 0.0
			half := length / 2
			for k := range half {
				i, j := start+k, start+k+half
				tRe := re[j]*curRe - im[j]*curIm
				tIm := re[j]*curIm + im[j]*curRe
				re[j] = re[i] - tRe
				im[j] = im[i] - tIm
				re[i] += tRe
				im[i] += tIm
				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
}

// Spectrum returns the magnitude spectrum of a real frame: len(frame)/2 + 1
// bins from DC to Nyquist. The frame length must be a power of two. The input
// is not modified.
func Spectrum(frame []float64) []float64 {
	n := len(frame)
	re := make([]float64, n)
	im := make([]float64, n)
	copy(re, frame)
	FFT(re, im)

	mag := make([]float64, n/2+1)
	for i := range mag {
		mag[i] = math.Hypot(re[i], im[i])
	}
	return mag
}

// HannWindow returns the length-n Hann window.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
