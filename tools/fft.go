package tools

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// FFTWindowSize is the number of samples transformed per spectrum.
	FFTWindowSize = 1024
	// FFTBins is the number of frequency buckets exposed to visualizers.
	FFTBins = 32
)

// FFTMagnitudes folds the spectrum of the trailing FFTWindowSize samples
// into bins averaged magnitude buckets. Shorter inputs are zero-padded,
// so a silent or empty stream yields all-zero bins. The DC term is
// dropped and magnitudes are normalized so a full-scale sine lands
// around 0.5 after Hann windowing.
func FFTMagnitudes(samples []float64, bins int) []float64 {
	if bins <= 0 {
		return nil
	}
	out := make([]float64, bins)
	if len(samples) == 0 {
		return out
	}

	seq := make([]float64, FFTWindowSize)
	if len(samples) >= FFTWindowSize {
		copy(seq, samples[len(samples)-FFTWindowSize:])
	} else {
		copy(seq[FFTWindowSize-len(samples):], samples)
	}
	window.Hann(seq)

	fft := fourier.NewFFT(FFTWindowSize)
	coeffs := fft.Coefficients(nil, seq)

	mags := coeffs[1:]
	perBin := len(mags) / bins
	if perBin == 0 {
		perBin = 1
	}
	for i := range bins {
		var sum float64
		count := 0
		for j := i * perBin; j < (i+1)*perBin && j < len(mags); j++ {
			sum += cmplx.Abs(mags[j])
			count++
		}
		if count > 0 {
			out[i] = sum / float64(count) / (FFTWindowSize / 2)
		}
	}
	return out
}
