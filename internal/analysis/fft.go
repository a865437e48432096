// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"sinescope/internal/log"
	"sinescope/pkg/bitint"
)

// WindowFunc selects the window applied before a spectrum estimate.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

// Spectrum frame limits.
const (
	MinSpectrumSize = 64
	MaxSpectrumSize = 8192
)

// SpectrumEstimator estimates the dominant frequency of a channel with a
// windowed real FFT. Buffers are allocated once; it is not safe for
// concurrent use.
type SpectrumEstimator struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	window     []float64
	input      []float64
	coeffs     []complex128
}

// SpectrumSizeFor returns the largest usable power-of-two frame for a window
// of frames samples, clamped to [MinSpectrumSize, MaxSpectrumSize].
func SpectrumSizeFor(frames int) int {
	return min(max(bitint.PrevPowerOfTwo(frames), MinSpectrumSize), MaxSpectrumSize)
}

// NewSpectrumEstimator returns an estimator with a size-point FFT.
func NewSpectrumEstimator(size int, sampleRate float64, wf WindowFunc) (*SpectrumEstimator, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("spectrum size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	coeffs := make([]float64, size)
	applyWindow(coeffs, wf)

	log.Debugf("Analysis: spectrum estimator size %d at %.1f Hz", size, sampleRate)

	return &SpectrumEstimator{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		window:     coeffs,
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
	}, nil
}

// Size returns the FFT length.
func (s *SpectrumEstimator) Size() int { return s.size }

// BinFrequency returns the centre frequency of bin k.
func (s *SpectrumEstimator) BinFrequency(k int) float64 {
	return float64(k) * s.sampleRate / float64(s.size)
}

// DominantFrequency returns the frequency of the strongest non-DC bin,
// refined by parabolic interpolation. It uses the most recent Size samples
// and zero pads shorter input. Silence returns 0.
func (s *SpectrumEstimator) DominantFrequency(samples []float64) float64 {
	if len(samples) > s.size {
		samples = samples[len(samples)-s.size:]
	}
	for i := range s.input {
		if i < len(samples) {
			s.input[i] = samples[i] * s.window[i]
		} else {
			s.input[i] = 0
		}
	}
	s.fft.Coefficients(s.coeffs, s.input)

	best, bestMag := 0, 0.0
	for k := 1; k < len(s.coeffs); k++ {
		if m := cmplx.Abs(s.coeffs[k]); m > bestMag {
			best, bestMag = k, m
		}
	}
	if best == 0 || bestMag < 1e-9 {
		return 0
	}
	return s.BinFrequency(1) * (float64(best) + s.interpolate(best))
}

// interpolate returns the sub-bin offset of the peak at k, in [-0.5, 0.5].
func (s *SpectrumEstimator) interpolate(k int) float64 {
	if k <= 0 || k >= len(s.coeffs)-1 {
		return 0
	}
	a := cmplx.Abs(s.coeffs[k-1])
	b := cmplx.Abs(s.coeffs[k])
	c := cmplx.Abs(s.coeffs[k+1])
	denom := a - 2*b + c
	if denom == 0 {
		return 0
	}
	return max(min(0.5*(a-c)/denom, 0.5), -0.5)
}

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc. Unknown
// names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown window function %q", name)
	}
}

// applyWindow fills coeffs with the window's coefficients.
func applyWindow(coeffs []float64, wf WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch wf {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}
